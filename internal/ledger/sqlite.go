package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// timestamps sort as text in this layout
const sqliteTimeLayout = "2006-01-02 15:04:05.000000000"

const (
	transactionColumns = "id, type, amount, category, date, receipt_id, note, created_at"
	receiptColumns     = "id, image_file, content_type, store, amount, date, extracted_text, created_at"
)

// SQLiteDB implements the DB interface on a SQLite file
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens the database at path, migrates it and seeds the default
// goal and settings on first use
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer at a time
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(path); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &SQLiteDB{db: db}
	if err := s.seed(); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed database: %w", err)
	}
	return s, nil
}

func (s *SQLiteDB) seed() error {
	goal := DefaultGoal(time.Now().UTC())
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO goals (id, name, target, saved, monthly_contribution, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		goal.ID, goal.Name, goal.Target, goal.Saved, goal.MonthlyContribution, formatTime(goal.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("seed goal: %w", err)
	}

	for k, v := range DefaultSettings {
		if _, err := s.db.Exec(`INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("seed setting %s: %w", k, err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.ParseInLocation(sqliteTimeLayout, s, time.UTC)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*Transaction, error) {
	var (
		t         Transaction
		category  sql.NullString
		receiptID sql.NullInt64
		note      sql.NullString
		createdAt string
	)
	if err := row.Scan(&t.ID, &t.Type, &t.Amount, &category, &t.Date, &receiptID, &note, &createdAt); err != nil {
		return nil, err
	}
	created, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	t.Category = category.String
	t.ReceiptID = receiptID.Int64
	t.Note = note.String
	t.CreatedAt = created
	return &t, nil
}

func scanReceipt(row rowScanner) (*Receipt, error) {
	var (
		r         Receipt
		store     sql.NullString
		text      sql.NullString
		createdAt string
	)
	if err := row.Scan(&r.ID, &r.ImageFile, &r.ContentType, &store, &r.Amount, &r.Date, &text, &createdAt); err != nil {
		return nil, err
	}
	created, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	r.Store = store.String
	r.ExtractedText = text.String
	r.CreatedAt = created
	return &r, nil
}

// GetGoal returns the savings goal, or ErrNoGoal
func (s *SQLiteDB) GetGoal() (*Goal, error) {
	var (
		g         Goal
		createdAt string
	)
	err := s.db.QueryRow(
		`SELECT id, name, target, saved, monthly_contribution, created_at FROM goals ORDER BY id LIMIT 1`,
	).Scan(&g.ID, &g.Name, &g.Target, &g.Saved, &g.MonthlyContribution, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoGoal
	}
	if err != nil {
		return nil, fmt.Errorf("get goal: %w", err)
	}
	if g.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &g, nil
}

// SaveGoal replaces the savings goal
func (s *SQLiteDB) SaveGoal(goal *Goal) error {
	if goal.ID == 0 {
		res, err := s.db.Exec(
			`INSERT INTO goals (name, target, saved, monthly_contribution, created_at) VALUES (?, ?, ?, ?, ?)`,
			goal.Name, goal.Target, goal.Saved, goal.MonthlyContribution, formatTime(goal.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert goal: %w", err)
		}
		goal.ID, err = res.LastInsertId()
		return err
	}

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO goals (id, name, target, saved, monthly_contribution, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		goal.ID, goal.Name, goal.Target, goal.Saved, goal.MonthlyContribution, formatTime(goal.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save goal: %w", err)
	}
	return nil
}

// AddTransaction stores a new transaction and sets its ID
func (s *SQLiteDB) AddTransaction(t *Transaction) error {
	res, err := s.db.Exec(
		`INSERT INTO transactions (type, amount, category, date, receipt_id, note, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(t.Type), t.Amount, nullString(t.Category), t.Date, nullInt64(t.ReceiptID), nullString(t.Note), formatTime(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	t.ID, err = res.LastInsertId()
	return err
}

// GetTransaction retrieves a transaction by ID
func (s *SQLiteDB) GetTransaction(id int64) (*Transaction, error) {
	t, err := scanTransaction(s.db.QueryRow(`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

// ListTransactions returns up to limit transactions, newest date first
func (s *SQLiteDB) ListTransactions(limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = -1 // no limit
	}
	rows, err := s.db.Query(
		`SELECT `+transactionColumns+` FROM transactions ORDER BY date DESC, created_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	transactions := make([]*Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

func (s *SQLiteDB) deleteByID(table string, id int64) error {
	res, err := s.db.Exec(`DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTransaction removes a transaction
func (s *SQLiteDB) DeleteTransaction(id int64) error {
	if err := s.deleteByID("transactions", id); err != nil {
		return fmt.Errorf("transaction %d: %w", id, err)
	}
	return nil
}

// DeleteTransactionsByReceipt removes every transaction linked to a receipt
func (s *SQLiteDB) DeleteTransactionsByReceipt(receiptID int64) error {
	if _, err := s.db.Exec(`DELETE FROM transactions WHERE receipt_id = ?`, receiptID); err != nil {
		return fmt.Errorf("delete receipt transactions: %w", err)
	}
	return nil
}

// AddReceipt stores a new receipt and sets its ID
func (s *SQLiteDB) AddReceipt(r *Receipt) error {
	res, err := s.db.Exec(
		`INSERT INTO receipts (image_file, content_type, store, amount, date, extracted_text, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ImageFile, r.ContentType, nullString(r.Store), r.Amount, r.Date, nullString(r.ExtractedText), formatTime(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}
	r.ID, err = res.LastInsertId()
	return err
}

// GetReceipt retrieves a receipt by ID
func (s *SQLiteDB) GetReceipt(id int64) (*Receipt, error) {
	r, err := scanReceipt(s.db.QueryRow(`SELECT `+receiptColumns+` FROM receipts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("receipt %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get receipt: %w", err)
	}
	return r, nil
}

// GetReceiptByImage retrieves the receipt that references an image file
func (s *SQLiteDB) GetReceiptByImage(imageFile string) (*Receipt, error) {
	r, err := scanReceipt(s.db.QueryRow(`SELECT `+receiptColumns+` FROM receipts WHERE image_file = ? ORDER BY id LIMIT 1`, imageFile))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("receipt with image %q: %w", imageFile, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get receipt by image: %w", err)
	}
	return r, nil
}

// ListReceipts returns all receipts, newest date first
func (s *SQLiteDB) ListReceipts() ([]*Receipt, error) {
	rows, err := s.db.Query(`SELECT ` + receiptColumns + ` FROM receipts ORDER BY date DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	defer rows.Close()

	receipts := make([]*Receipt, 0)
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}

// DeleteReceipt removes a receipt
func (s *SQLiteDB) DeleteReceipt(id int64) error {
	if err := s.deleteByID("receipts", id); err != nil {
		return fmt.Errorf("receipt %d: %w", id, err)
	}
	return nil
}

// GetSetting returns the value stored for key
func (s *SQLiteDB) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("setting %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

// SetSetting stores a value for key
func (s *SQLiteDB) SetSetting(key, value string) error {
	if _, err := s.db.Exec(`INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)`, key, value); err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

// ListSettings returns every setting
func (s *SQLiteDB) ListSettings() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings[k] = v
	}
	return settings, rows.Err()
}

// ClearAll deletes all transactions and receipts and zeroes the goal
func (s *SQLiteDB) ClearAll() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM transactions`,
		`DELETE FROM receipts`,
		`UPDATE goals SET saved = 0`,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("clear data: %w", err)
		}
	}
	return tx.Commit()
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
