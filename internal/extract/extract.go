// Package extract infers the total, date and store name of a receipt from
// the raw text an OCR engine produced for it.
//
// Extraction never fails. Each field is computed by an independent pass and
// falls back to a well-defined value (0, today, "Unknown") when nothing in
// the text matches.
package extract

import "time"

// dateLayout is the format of every date produced by this package
const dateLayout = "2006-01-02"

// ExtractedReceipt holds the best guess for each field of a scanned receipt
type ExtractedReceipt struct {
	Total float64 `json:"total"`
	Date  string  `json:"date"`  // YYYY-MM-DD
	Store string  `json:"store"` // 1-50 characters
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type localTimeSource struct{}

func (localTimeSource) Now() time.Time {
	return time.Now()
}

// Extractor runs the total, date and store passes over receipt text.
// The zero value is not usable; use New or NewWithTimeSource.
type Extractor struct {
	timeSource TimeSource
}

// New creates an Extractor that reads the local wall clock
func New() *Extractor {
	return &Extractor{timeSource: localTimeSource{}}
}

// NewWithTimeSource creates an Extractor with a custom clock, used for the
// date fallback and for month-name dates printed without a year
func NewWithTimeSource(ts TimeSource) *Extractor {
	if ts == nil {
		ts = localTimeSource{}
	}
	return &Extractor{timeSource: ts}
}

// Extract returns the fields found in text. It is safe for concurrent use.
func (e *Extractor) Extract(text string) ExtractedReceipt {
	now := e.timeSource.Now()
	return ExtractedReceipt{
		Total: extractTotal(text),
		Date:  extractDate(text, now),
		Store: extractStore(text),
	}
}

var defaultExtractor = New()

// Extract runs the default Extractor over text
func Extract(text string) ExtractedReceipt {
	return defaultExtractor.Extract(text)
}
