// Package events publishes summary job lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"time"
)

const (
	TypeSummaryCompleted = "summary.completed"
	TypeSummaryFailed    = "summary.failed"
)

// SummaryEvent is the body of a lifecycle event.
type SummaryEvent struct {
	Type            string    `json:"type"`
	SummaryID       string    `json:"summaryId"`
	OwnerID         string    `json:"ownerId"`
	SourceReference string    `json:"sourceReference"`
	Error           string    `json:"error,omitempty"`
	OccurredAt      time.Time `json:"occurredAt"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event SummaryEvent) error
	Close() error
}

// Encode renders the wire form of an event.
func Encode(event SummaryEvent) ([]byte, error) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	return json.Marshal(event)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, SummaryEvent) error { return nil }
func (Nop) Close() error                                { return nil }
