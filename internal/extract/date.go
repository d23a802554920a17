package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// dateMatcher looks for one date notation in text and returns it normalized
// to YYYY-MM-DD
type dateMatcher func(text string, now time.Time) (string, bool)

// dateMatchers are tried in order; the first one that matches wins
var dateMatchers = []dateMatcher{
	matchUSDate,
	matchISODate,
	matchEuropeanDate,
	matchMonthNameDate,
}

var (
	usDatePattern       = regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})`)
	isoDatePattern      = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)
	europeanDatePattern = regexp.MustCompile(`(\d{1,2})\.(\d{1,2})\.(\d{4})`)
)

// monthNamePatterns holds one pattern per month, January first. A month
// abbreviation may be followed by more letters ("February"), then the day,
// an optional comma and an optional year. Separators include Unicode spaces
// such as NBSP.
var monthNamePatterns = func() []*regexp.Regexp {
	names := []string{"jan", "feb", "mar", "apr", "may", "jun", "jul", "aug", "sep", "oct", "nov", "dec"}
	patterns := make([]*regexp.Regexp, len(names))
	for i, name := range names {
		patterns[i] = regexp.MustCompile(`(?i)(` + name + `)\w*[\s\p{Zs}]+(\d{1,2})(?:,[\s\p{Zs}]*)?(\d{4})?`)
	}
	return patterns
}()

// extractDate returns the first date found in text, or the local date of now
func extractDate(text string, now time.Time) string {
	for _, match := range dateMatchers {
		if date, ok := match(text, now); ok {
			return date
		}
	}
	return now.Format(dateLayout)
}

// matchUSDate handles M/D/YYYY and MM/DD/YYYY
func matchUSDate(text string, _ time.Time) (string, bool) {
	m := usDatePattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return formatDate(m[3], m[1], m[2]), true
}

// matchISODate handles YYYY-MM-DD, returned verbatim
func matchISODate(text string, _ time.Time) (string, bool) {
	m := isoDatePattern.FindString(text)
	if m == "" {
		return "", false
	}
	return m, true
}

// matchEuropeanDate handles D.M.YYYY and DD.MM.YYYY
func matchEuropeanDate(text string, _ time.Time) (string, bool) {
	m := europeanDatePattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return formatDate(m[3], m[2], m[1]), true
}

// matchMonthNameDate handles "Jan 4", "Feb 04, 2026" and "February 4".
// Months are searched in calendar order, so an earlier month wins even when
// a later one appears first in the text.
func matchMonthNameDate(text string, now time.Time) (string, bool) {
	for i, pattern := range monthNamePatterns {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		year := m[3]
		if year == "" {
			year = strconv.Itoa(now.Year())
		}
		return formatDate(year, strconv.Itoa(i+1), m[2]), true
	}
	return "", false
}

// formatDate joins the parts as YYYY-MM-DD, zero padding month and day.
// The values are not range checked.
func formatDate(year, month, day string) string {
	return fmt.Sprintf("%s-%s-%s", year, pad2(month), pad2(day))
}

func pad2(s string) string {
	if len(s) < 2 {
		return "0" + s
	}
	return s
}
