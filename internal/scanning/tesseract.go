package scanning

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract recognizes receipts on-device with the Tesseract OCR engine
type Tesseract struct {
	languages []string
}

// NewTesseract creates a Tesseract recognizer. languages are Tesseract
// traineddata names such as "eng" or "deu"; none means the engine default.
func NewTesseract(languages ...string) *Tesseract {
	return &Tesseract{languages: languages}
}

// Recognize runs OCR over the receipt. A gosseract client is not safe for
// concurrent use, so each call gets its own.
func (t *Tesseract) Recognize(ctx context.Context, imageData []byte, contentType string) (string, error) {
	finalImageData, err := prepareImageData(imageData, contentType)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if len(t.languages) > 0 {
		if err := client.SetLanguage(t.languages...); err != nil {
			return "", fmt.Errorf("setting OCR language: %w", err)
		}
	}
	if err := client.SetImageFromBytes(finalImageData); err != nil {
		return "", fmt.Errorf("loading image into OCR: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("running OCR: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// Close is a no-op; clients are released after each call
func (t *Tesseract) Close() error {
	return nil
}
