package ledger

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
)

// csvTimeLayout matches SQLite's datetime('now')
const csvTimeLayout = "2006-01-02 15:04:05"

var csvHeader = []string{"id", "type", "amount", "category", "date", "note", "created_at"}

// Exported records carry amounts in dollars rather than cents

type exportGoal struct {
	ID                  int64           `json:"id"`
	Name                string          `json:"name"`
	Target              decimal.Decimal `json:"target"`
	Saved               decimal.Decimal `json:"saved"`
	MonthlyContribution decimal.Decimal `json:"monthly_contribution"`
	CreatedAt           string          `json:"created_at"`
}

type exportTransaction struct {
	ID        int64           `json:"id"`
	Type      TransactionType `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Category  *string         `json:"category"`
	Date      string          `json:"date"`
	ReceiptID *int64          `json:"receipt_id"`
	Note      *string         `json:"note"`
	CreatedAt string          `json:"created_at"`
}

type exportReceipt struct {
	ID            int64           `json:"id"`
	ImageFile     string          `json:"image_file"`
	Store         *string         `json:"store"`
	Amount        decimal.Decimal `json:"amount"`
	Date          string          `json:"date"`
	ExtractedText *string         `json:"extracted_text"`
	CreatedAt     string          `json:"created_at"`
}

type exportData struct {
	Goals        []exportGoal        `json:"goals"`
	Transactions []exportTransaction `json:"transactions"`
	Receipts     []exportReceipt     `json:"receipts"`
	Settings     map[string]string   `json:"settings"`
}

func dollars(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

func optional[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}
	return &v
}

// ExportJSON dumps the goal, transactions, receipts and settings as
// indented JSON
func (s *Service) ExportJSON() ([]byte, error) {
	data := exportData{
		Goals:        make([]exportGoal, 0, 1),
		Transactions: make([]exportTransaction, 0),
		Receipts:     make([]exportReceipt, 0),
	}

	goal, err := s.db.GetGoal()
	if err != nil && !errors.Is(err, ErrNoGoal) {
		return nil, fmt.Errorf("getting goal: %w", err)
	}
	if goal != nil {
		data.Goals = append(data.Goals, exportGoal{
			ID:                  goal.ID,
			Name:                goal.Name,
			Target:              dollars(goal.Target),
			Saved:               dollars(goal.Saved),
			MonthlyContribution: dollars(goal.MonthlyContribution),
			CreatedAt:           goal.CreatedAt.UTC().Format(csvTimeLayout),
		})
	}

	transactions, err := s.transactionsByID()
	if err != nil {
		return nil, err
	}
	for _, t := range transactions {
		data.Transactions = append(data.Transactions, exportTransaction{
			ID:        t.ID,
			Type:      t.Type,
			Amount:    dollars(t.Amount),
			Category:  optional(t.Category),
			Date:      t.Date,
			ReceiptID: optional(t.ReceiptID),
			Note:      optional(t.Note),
			CreatedAt: t.CreatedAt.UTC().Format(csvTimeLayout),
		})
	}

	receipts, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	sort.Slice(receipts, func(i, j int) bool { return receipts[i].ID < receipts[j].ID })
	for _, r := range receipts {
		data.Receipts = append(data.Receipts, exportReceipt{
			ID:            r.ID,
			ImageFile:     r.ImageFile,
			Store:         optional(r.Store),
			Amount:        dollars(r.Amount),
			Date:          r.Date,
			ExtractedText: optional(r.ExtractedText),
			CreatedAt:     r.CreatedAt.UTC().Format(csvTimeLayout),
		})
	}

	if data.Settings, err = s.db.ListSettings(); err != nil {
		return nil, fmt.Errorf("listing settings: %w", err)
	}

	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding export: %w", err)
	}
	return out, nil
}

// ExportCSV writes every transaction, oldest ID first, under the header
// id,type,amount,category,date,note,created_at
func (s *Service) ExportCSV() ([]byte, error) {
	transactions, err := s.transactionsByID()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("writing csv: %w", err)
	}
	for _, t := range transactions {
		record := []string{
			strconv.FormatInt(t.ID, 10),
			string(t.Type),
			FormatCents(t.Amount),
			t.Category,
			t.Date,
			t.Note,
			t.CreatedAt.UTC().Format(csvTimeLayout),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("writing csv: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("writing csv: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Service) transactionsByID() ([]*Transaction, error) {
	transactions, err := s.allTransactions()
	if err != nil {
		return nil, err
	}
	sort.Slice(transactions, func(i, j int) bool { return transactions[i].ID < transactions[j].ID })
	return transactions, nil
}
