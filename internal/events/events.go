// Package events announces ledger changes to other services.
package events

import (
	"context"
	"encoding/json"
	"time"
)

// Event kinds
const (
	KindExpenseAdded       = "expense.added"
	KindIncomeAdded        = "income.added"
	KindReceiptSaved       = "receipt.saved"
	KindReceiptDeleted     = "receipt.deleted"
	KindTransactionDeleted = "transaction.deleted"
	KindDataCleared        = "data.cleared"
)

// Event is a lightweight notice of a ledger change. Consumers fetch the full
// record by ID if they need it.
type Event struct {
	Kind      string    `json:"kind"`
	ID        int64     `json:"id,omitempty"`
	Amount    int64     `json:"amount,omitempty"` // cents
	Date      string    `json:"date,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent creates an event stamped with the current time
func NewEvent(kind string, id, amount int64, date string) Event {
	return Event{
		Kind:      kind,
		ID:        id,
		Amount:    amount,
		Date:      date,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the event to JSON bytes
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON decodes an event
func EventFromJSON(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, err
	}
	return e, nil
}

// Publisher sends events somewhere
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
