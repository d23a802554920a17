package scanning

import (
	"context"
	"fmt"

	"github.com/zombor/goalpulse/internal/extract"
)

// ReceiptData is what a scan produces: the recognized text and the fields
// pulled out of it
type ReceiptData struct {
	extract.ExtractedReceipt
	Text string `json:"text"`
}

// Recognizer turns a receipt image or PDF into plain text
type Recognizer interface {
	// Recognize returns the text printed on the receipt, line by line
	Recognize(ctx context.Context, imageData []byte, contentType string) (string, error)
	// Close releases any resources held by the recognizer
	Close() error
}

// Scanner runs a Recognizer and feeds its output to the extractor
type Scanner struct {
	recognizer Recognizer
	extractor  *extract.Extractor
}

// NewScanner creates a Scanner. A nil extractor uses the local clock.
func NewScanner(recognizer Recognizer, extractor *extract.Extractor) *Scanner {
	if extractor == nil {
		extractor = extract.New()
	}
	return &Scanner{
		recognizer: recognizer,
		extractor:  extractor,
	}
}

// ScanReceipt recognizes the receipt text and extracts total, date and store.
// Only recognition can fail; extraction always produces a result.
func (s *Scanner) ScanReceipt(ctx context.Context, imageData []byte, contentType string) (*ReceiptData, error) {
	text, err := s.recognizer.Recognize(ctx, imageData, contentType)
	if err != nil {
		return nil, fmt.Errorf("recognizing receipt text: %w", err)
	}

	return &ReceiptData{
		ExtractedReceipt: s.extractor.Extract(text),
		Text:             text,
	}, nil
}

// Close closes the underlying recognizer
func (s *Scanner) Close() error {
	return s.recognizer.Close()
}
