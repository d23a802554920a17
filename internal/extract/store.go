package extract

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// UnknownStore is returned when no line looks like a merchant name
	UnknownStore = "Unknown"

	storeCandidateLines = 8
	storeMinLen         = 2
	storeMaxLen         = 40
	storeTruncateLen    = 50
)

var (
	lineBreakPattern   = regexp.MustCompile(`\r\n|\r|\n`)
	numericLinePattern = regexp.MustCompile(`^\d+\.?\d*$`)
)

// reservedHeaders are whole lines that OCR often places above the merchant name
var reservedHeaders = map[string]struct{}{
	"total":    {},
	"subtotal": {},
	"tax":      {},
	"date":     {},
	"time":     {},
	"reprint":  {},
	"prepaid":  {},
	"receipt":  {},
}

// extractStore returns the first plausible merchant line among the first
// eight non-empty lines of the receipt
func extractStore(text string) string {
	examined := 0
	for _, line := range lineBreakPattern.Split(text, -1) {
		t := strings.TrimFunc(line, isTrimmable)
		if t == "" {
			continue
		}
		if examined == storeCandidateLines {
			break
		}
		examined++

		if isStoreName(t) {
			return truncate(t, storeTruncateLen)
		}
	}
	return UnknownStore
}

// isTrimmable reports whitespace along with the byte order mark some
// scanners prepend to their output
func isTrimmable(r rune) bool {
	return unicode.IsSpace(r) || r == '\uFEFF'
}

func isStoreName(line string) bool {
	n := utf8.RuneCountInString(line)
	if n < storeMinLen || n > storeMaxLen {
		return false
	}
	if _, reserved := reservedHeaders[strings.ToLower(line)]; reserved {
		return false
	}
	return !numericLinePattern.MatchString(line)
}

// truncate cuts s to at most n runes
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
