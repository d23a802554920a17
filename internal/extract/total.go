package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// amountPattern matches currency-like figures with exactly two decimals,
// optionally preceded by a dollar sign
var amountPattern = regexp.MustCompile(`\$?\s*(\d{1,8}\.\d{2})\b`)

// extractTotal returns the largest two-decimal amount printed on the receipt.
// Receipts list line items, subtotal and tax before the grand total, so the
// maximum is usually the total. A discount printed as a large positive
// figure will win instead; callers confirm the value with the user.
func extractTotal(text string) float64 {
	matches := amountPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return 0
	}

	var total float64
	for _, m := range matches {
		value, err := strconv.ParseFloat(stripAmount(m), 64)
		if err != nil {
			continue
		}
		if value > total {
			total = value
		}
	}
	return total
}

// stripAmount removes the currency symbol and any whitespace around a match
func stripAmount(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '$', ' ', '\t', '\n', '\r', '\f', '\v':
			return -1
		}
		return r
	}, s)
}
