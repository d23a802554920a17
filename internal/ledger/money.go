package ledger

import "github.com/shopspring/decimal"

// ToCents converts a dollar amount to cents, rounding half away from zero
func ToCents(amount float64) int64 {
	return decimal.NewFromFloat(amount).Round(2).Shift(2).IntPart()
}

// FromCents converts cents to a dollar amount
func FromCents(cents int64) float64 {
	return decimal.New(cents, -2).InexactFloat64()
}

// FormatCents renders cents with two decimals, e.g. 1299 as "12.99"
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
