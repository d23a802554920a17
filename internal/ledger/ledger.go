// Package ledger keeps the savings goal, income and expense transactions,
// scanned receipts and app settings, and serves them over HTTP.
package ledger

import (
	"errors"
	"time"
)

// TransactionType is either income or expense
type TransactionType string

const (
	TypeIncome  TransactionType = "income"
	TypeExpense TransactionType = "expense"
)

const (
	dateLayout = "2006-01-02"

	// DefaultCategory is used for expenses saved without a category,
	// including every receipt
	DefaultCategory = "Food & Drinks"
	// UncategorizedCategory is what category totals report for expenses
	// with no category
	UncategorizedCategory = "Other Expenses"
)

// Categories lists the expense categories in display order
var Categories = []string{
	"Food & Drinks",
	"Smoking / Alcohol",
	"Fuel / Gas",
	"Groceries",
	"Shopping / Clothes",
	"Bills & Utilities",
	"Taxi",
	"Health",
	"Entertainment",
	"Other Expenses",
}

// Setting keys
const (
	SettingCurrency             = "currency"
	SettingBiometricEnabled     = "biometric_enabled"
	SettingNotificationsEnabled = "notifications_enabled"
)

// DefaultSettings are written the first time a database is opened
var DefaultSettings = map[string]string{
	SettingCurrency:             "USD",
	SettingBiometricEnabled:     "false",
	SettingNotificationsEnabled: "true",
}

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidAmount   = errors.New("amount must be greater than zero")
	ErrInvalidCategory = errors.New("unknown category")
	ErrInvalidDate     = errors.New("date must be YYYY-MM-DD")
	ErrInvalidGoal     = errors.New("goal needs a name and a positive target")
	ErrInvalidSetting  = errors.New("setting key is required")
	ErrNoGoal          = errors.New("no savings goal")
	ErrImageInUse      = errors.New("image belongs to a saved receipt")
)

// Goal is the savings goal. Money is in cents.
type Goal struct {
	ID                  int64     `json:"id"`
	Name                string    `json:"name"`
	Target              int64     `json:"target"`
	Saved               int64     `json:"saved"`
	MonthlyContribution int64     `json:"monthly_contribution"`
	CreatedAt           time.Time `json:"created_at"`
}

// DefaultGoal is the goal seeded into a new database
func DefaultGoal(now time.Time) *Goal {
	return &Goal{
		ID:                  1,
		Name:                "House",
		Target:              2200000,
		Saved:               194417,
		MonthlyContribution: 200000,
		CreatedAt:           now,
	}
}

// Transaction is a single income or expense. Amount is in cents and always
// positive; Type carries the sign.
type Transaction struct {
	ID        int64           `json:"id"`
	Type      TransactionType `json:"type"`
	Amount    int64           `json:"amount"`
	Category  string          `json:"category,omitempty"`
	Date      string          `json:"date"` // YYYY-MM-DD
	ReceiptID int64           `json:"receipt_id,omitempty"`
	Note      string          `json:"note,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Receipt is a scanned receipt that has been confirmed and saved
type Receipt struct {
	ID            int64     `json:"id"`
	ImageFile     string    `json:"image_file"`
	ContentType   string    `json:"content_type"`
	Store         string    `json:"store"`
	Amount        int64     `json:"amount"`
	Date          string    `json:"date"` // YYYY-MM-DD
	ExtractedText string    `json:"extracted_text,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Draft is a scanned receipt waiting for the user to confirm or correct it
type Draft struct {
	ImageFile   string `json:"image_file"`
	ContentType string `json:"content_type"`
	Store       string `json:"store"`
	Amount      int64  `json:"amount"`
	Date        string `json:"date"`
	Text        string `json:"text,omitempty"`
}

func validDate(date string) bool {
	_, err := time.Parse(dateLayout, date)
	return err == nil
}

func validCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}
