package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/goalpulse/internal/events"
	"github.com/zombor/goalpulse/internal/extract"
	"github.com/zombor/goalpulse/internal/lock"
	"github.com/zombor/goalpulse/internal/scanning"
)

const defaultTransactionLimit = 50

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
	safeExtension       = regexp.MustCompile(`^\.[a-zA-Z0-9]{1,8}$`)
)

// Scanner reads a receipt image
type Scanner interface {
	ScanReceipt(ctx context.Context, imageData []byte, contentType string) (*scanning.ReceiptData, error)
}

// IDGenerator generates unique names for receipt images
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles ledger operations
type Service struct {
	db          DB
	scanner     Scanner
	storage     Storage
	gate        *lock.Gate
	publisher   events.Publisher
	extractor   *extract.Extractor
	idGenerator IDGenerator
	timeSource  TimeSource

	// serializes read-modify-write of the goal
	mu sync.Mutex
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, scanner Scanner, storage Storage, gate *lock.Gate, publisher events.Publisher) *Service {
	return NewServiceWithDeps(db, scanner, storage, gate, publisher, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, scanner Scanner, storage Storage, gate *lock.Gate, publisher events.Publisher, idGen IDGenerator, timeSrc TimeSource) *Service {
	if gate == nil {
		gate = lock.NewGate(nil)
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{
		db:          db,
		scanner:     scanner,
		storage:     storage,
		gate:        gate,
		publisher:   publisher,
		extractor:   extract.NewWithTimeSource(timeSrc),
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// SettingFlag returns a func reporting whether a boolean setting is "true".
// Read errors count as false.
func SettingFlag(db DB, key string) func() bool {
	return func() bool {
		v, err := db.GetSetting(key)
		return err == nil && v == "true"
	}
}

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	filename = filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	if !safeExtension.MatchString(ext) {
		ext = ""
	}

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	const maxLen = 50
	if len(base) > maxLen {
		base = strings.TrimSpace(base[:maxLen])
	}
	if base == "" {
		base = "receipt"
	}

	return base + strings.ToLower(ext)
}

func (s *Service) today() string {
	return s.timeSource.Now().Format(dateLayout)
}

// publish sends an event; failures are logged and never reach the caller
func (s *Service) publish(ctx context.Context, kind string, id, amount int64, date string) {
	if err := s.publisher.Publish(ctx, events.NewEvent(kind, id, amount, date)); err != nil {
		slog.Warn("Failed to publish event", "kind", kind, "id", id, "error", err)
	}
}

// adjustSaved moves the goal's saved amount by delta cents. Callers hold s.mu.
func (s *Service) adjustSaved(delta int64) error {
	goal, err := s.db.GetGoal()
	if errors.Is(err, ErrNoGoal) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("getting goal: %w", err)
	}
	goal.Saved += delta
	if err := s.db.SaveGoal(goal); err != nil {
		return fmt.Errorf("saving goal: %w", err)
	}
	return nil
}

func (s *Service) addTransaction(ctx context.Context, t *Transaction, kind string) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.AddTransaction(t); err != nil {
		return nil, fmt.Errorf("saving transaction: %w", err)
	}

	delta := t.Amount
	if t.Type == TypeExpense {
		delta = -delta
	}
	if err := s.adjustSaved(delta); err != nil {
		return nil, err
	}

	s.publish(ctx, kind, t.ID, t.Amount, t.Date)
	return t, nil
}

// AddExpense records an expense dated today and takes it out of the goal's
// saved amount. An empty category means DefaultCategory.
func (s *Service) AddExpense(ctx context.Context, amount int64, category, note string) (*Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	category = strings.TrimSpace(category)
	if category == "" {
		category = DefaultCategory
	}
	if !validCategory(category) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCategory, category)
	}

	return s.addTransaction(ctx, &Transaction{
		Type:      TypeExpense,
		Amount:    amount,
		Category:  category,
		Date:      s.today(),
		Note:      strings.TrimSpace(note),
		CreatedAt: s.timeSource.Now(),
	}, events.KindExpenseAdded)
}

// AddIncome records income dated today and adds it to the goal's saved amount
func (s *Service) AddIncome(ctx context.Context, amount int64, note string) (*Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	return s.addTransaction(ctx, &Transaction{
		Type:      TypeIncome,
		Amount:    amount,
		Date:      s.today(),
		Note:      strings.TrimSpace(note),
		CreatedAt: s.timeSource.Now(),
	}, events.KindIncomeAdded)
}

// ListTransactions returns the most recent transactions. A limit of zero or
// less means the default of 50.
func (s *Service) ListTransactions(limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = defaultTransactionLimit
	}
	transactions, err := s.db.ListTransactions(limit)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	return transactions, nil
}

// DeleteTransaction removes a transaction. The goal is left as it is.
func (s *Service) DeleteTransaction(ctx context.Context, id int64) error {
	if err := s.db.DeleteTransaction(id); err != nil {
		return fmt.Errorf("deleting transaction: %w", err)
	}
	s.publish(ctx, events.KindTransactionDeleted, id, 0, "")
	return nil
}

// ScanReceipt stores the upload and reads it into a Draft for the user to
// confirm. Auto-lock is suspended while the scan runs so that switching to
// the camera does not lock the app. If the scan fails the image is removed.
func (s *Service) ScanReceipt(ctx context.Context, filename string, data []byte, contentType string) (*Draft, error) {
	release := s.gate.Suspend()
	defer release()

	name := fmt.Sprintf("%s_%s", s.idGenerator.Generate(), sanitizeFilename(filename))
	savedPath, err := s.storage.Save(name, data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	receiptData, err := s.scanner.ScanReceipt(ctx, data, contentType)
	if err != nil {
		slog.Error("Failed to scan receipt",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		s.removeImage(savedPath)
		return nil, fmt.Errorf("scanning receipt: %w", err)
	}

	return &Draft{
		ImageFile:   savedPath,
		ContentType: contentType,
		Store:       receiptData.Store,
		Amount:      ToCents(receiptData.Total),
		Date:        receiptData.Date,
		Text:        receiptData.Text,
	}, nil
}

// DiscardDraft removes the image of a draft the user threw away. Images of
// saved receipts are refused with ErrImageInUse.
func (s *Service) DiscardDraft(imageFile string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkImageUnused(imageFile); err != nil {
		return err
	}
	if err := s.storage.Delete(imageFile); err != nil {
		return fmt.Errorf("discarding draft: %w", err)
	}
	return nil
}

// checkImageUnused returns ErrImageInUse when a saved receipt references name
func (s *Service) checkImageUnused(name string) error {
	receipt, err := s.db.GetReceiptByImage(name)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("looking up image owner: %w", err)
	}
	return fmt.Errorf("%w: %s is used by receipt %d", ErrImageInUse, name, receipt.ID)
}

func (s *Service) removeImage(name string) {
	if err := s.storage.Delete(name); err != nil {
		slog.Warn("Failed to delete file", "filename", name, "error", err)
	}
}

// SaveReceipt stores a confirmed draft as a receipt plus a linked expense in
// DefaultCategory, and takes the amount out of the goal's saved amount. A
// draft whose image already backs another receipt is refused with
// ErrImageInUse.
func (s *Service) SaveReceipt(ctx context.Context, draft Draft) (*Receipt, error) {
	if draft.Amount < 0 {
		return nil, ErrInvalidAmount
	}
	if !validDate(draft.Date) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, draft.Date)
	}
	if draft.ImageFile == "" {
		return nil, fmt.Errorf("%w: image file is required", errBadFilename)
	}
	if _, err := s.storage.Get(draft.ImageFile); err != nil {
		return nil, fmt.Errorf("receipt image: %w", err)
	}
	store := strings.TrimSpace(draft.Store)
	if store == "" {
		store = extract.UnknownStore
	}

	now := s.timeSource.Now()
	receipt := &Receipt{
		ImageFile:     draft.ImageFile,
		ContentType:   draft.ContentType,
		Store:         store,
		Amount:        draft.Amount,
		Date:          draft.Date,
		ExtractedText: draft.Text,
		CreatedAt:     now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkImageUnused(receipt.ImageFile); err != nil {
		return nil, err
	}
	if err := s.db.AddReceipt(receipt); err != nil {
		return nil, fmt.Errorf("saving receipt to database: %w", err)
	}

	t := &Transaction{
		Type:      TypeExpense,
		Amount:    receipt.Amount,
		Category:  DefaultCategory,
		Date:      receipt.Date,
		ReceiptID: receipt.ID,
		Note:      "From receipt: " + receipt.Store,
		CreatedAt: now,
	}
	if err := s.db.AddTransaction(t); err != nil {
		if delErr := s.db.DeleteReceipt(receipt.ID); delErr != nil {
			slog.Error("Failed to roll back receipt", "id", receipt.ID, "error", delErr)
		}
		return nil, fmt.Errorf("saving receipt transaction: %w", err)
	}

	if err := s.adjustSaved(-receipt.Amount); err != nil {
		return nil, err
	}

	s.publish(ctx, events.KindReceiptSaved, receipt.ID, receipt.Amount, receipt.Date)
	return receipt, nil
}

// GetReceipt retrieves a receipt by ID
func (s *Service) GetReceipt(id int64) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return receipt, nil
}

// ListReceipts returns all receipts, newest first
func (s *Service) ListReceipts() ([]*Receipt, error) {
	receipts, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	return receipts, nil
}

// DeleteReceipt removes a receipt, its linked transactions and its image
func (s *Service) DeleteReceipt(ctx context.Context, id int64) error {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return fmt.Errorf("getting receipt for deletion: %w", err)
	}

	if err := s.db.DeleteTransactionsByReceipt(id); err != nil {
		return fmt.Errorf("deleting receipt transactions: %w", err)
	}
	if err := s.db.DeleteReceipt(id); err != nil {
		return fmt.Errorf("deleting receipt from database: %w", err)
	}

	// Log error but keep the database deletion
	s.removeImage(receipt.ImageFile)

	s.publish(ctx, events.KindReceiptDeleted, id, receipt.Amount, receipt.Date)
	return nil
}

// GetReceiptImage returns the image of a receipt and its content type
func (s *Service) GetReceiptImage(id int64) ([]byte, string, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt: %w", err)
	}

	data, err := s.storage.Get(receipt.ImageFile)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt image: %w", err)
	}

	contentType := receipt.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}

// Extract runs the receipt text extractor on already recognized text
func (s *Service) Extract(text string) extract.ExtractedReceipt {
	return s.extractor.Extract(text)
}

// Goal returns the savings goal
func (s *Service) Goal() (*Goal, error) {
	goal, err := s.db.GetGoal()
	if err != nil {
		return nil, fmt.Errorf("getting goal: %w", err)
	}
	return goal, nil
}

// GoalUpdate holds the editable goal fields. A nil Saved keeps the current
// saved amount.
type GoalUpdate struct {
	Name                string `json:"name"`
	Target              int64  `json:"target"`
	MonthlyContribution int64  `json:"monthly_contribution"`
	Saved               *int64 `json:"saved,omitempty"`
}

// UpdateGoal edits the savings goal, creating it if there is none
func (s *Service) UpdateGoal(update GoalUpdate) (*Goal, error) {
	name := strings.TrimSpace(update.Name)
	if name == "" || update.Target <= 0 || update.MonthlyContribution < 0 {
		return nil, ErrInvalidGoal
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	goal, err := s.db.GetGoal()
	if errors.Is(err, ErrNoGoal) {
		goal = &Goal{CreatedAt: s.timeSource.Now()}
	} else if err != nil {
		return nil, fmt.Errorf("getting goal: %w", err)
	}

	goal.Name = name
	goal.Target = update.Target
	goal.MonthlyContribution = update.MonthlyContribution
	if update.Saved != nil {
		goal.Saved = *update.Saved
	}

	if err := s.db.SaveGoal(goal); err != nil {
		return nil, fmt.Errorf("saving goal: %w", err)
	}
	return goal, nil
}

// Setting returns a setting value
func (s *Service) Setting(key string) (string, error) {
	value, err := s.db.GetSetting(key)
	if err != nil {
		return "", fmt.Errorf("getting setting: %w", err)
	}
	return value, nil
}

// SetSetting stores a setting value
func (s *Service) SetSetting(key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrInvalidSetting
	}
	if err := s.db.SetSetting(key, value); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

// Settings returns every setting
func (s *Service) Settings() (map[string]string, error) {
	settings, err := s.db.ListSettings()
	if err != nil {
		return nil, fmt.Errorf("listing settings: %w", err)
	}
	return settings, nil
}

// ClearAllData deletes every transaction, receipt and receipt image and
// zeroes the goal's saved amount. Settings survive.
func (s *Service) ClearAllData(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	receipts, err := s.db.ListReceipts()
	if err != nil {
		return fmt.Errorf("listing receipts: %w", err)
	}

	if err := s.db.ClearAll(); err != nil {
		return fmt.Errorf("clearing data: %w", err)
	}

	for _, r := range receipts {
		s.removeImage(r.ImageFile)
	}

	s.publish(ctx, events.KindDataCleared, 0, 0, "")
	return nil
}
