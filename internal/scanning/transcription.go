package scanning

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/avast/retry-go"
)

// transcribePrompt is the shared prompt used by all LLM providers. Models
// only read the receipt; extraction happens locally so every recognizer
// yields the same fields for the same text.
const transcribePrompt = `You are reading a photo or scan of a store receipt. Transcribe every line of printed text exactly as it appears, top to bottom.

Rules:
- Keep one receipt line per output line
- Keep numbers, prices, dates and punctuation exactly as printed (e.g. 12.99, 03/14/2025)
- Do not summarize, translate, correct or reorder anything
- Do not add commentary, headings or labels of your own
- Do not use markdown code blocks
- If there is no readable text, return an empty response`

const retryAttempts = 3

var retryDelay = 2 * time.Second

// errPermanent marks failures that retrying cannot fix
var errPermanent = errors.New("permanent failure")

// withRetry retries fn on transient failures
func withRetry(ctx context.Context, provider string, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			if errors.Is(err, errPermanent) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return false
			}
			slog.Warn("Recognizer call failed, will retry", "provider", provider, "error", err)
			return true
		}),
		retry.Attempts(retryAttempts),
		retry.Delay(retryDelay),
		retry.LastErrorOnly(true),
	)
}

// cleanTranscription strips markdown fences and surrounding whitespace that
// models tend to add around their answer
func cleanTranscription(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	// Drop the opening fence along with any language tag
	if idx := strings.Index(text, "\n"); idx != -1 {
		text = text[idx+1:]
	} else {
		text = strings.TrimPrefix(text, "```")
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
