// internal/events/types.go
package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType represents the type of event.
type EventType string

const (
	// Transaction lifecycle events
	TxAttempt   EventType = "tx.attempt"
	TxConfirmed EventType = "tx.confirmed"
	TxFailed    EventType = "tx.failed"

	// Decoding pipeline events
	SummaryComputed EventType = "summary.computed"
)

// AllTypes lists every event type the agent publishes.
func AllTypes() []EventType {
	return []EventType{TxAttempt, TxConfirmed, TxFailed, SummaryComputed}
}

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// Publisher is the producer side of the bus.
type Publisher interface {
	Publish(event Event) error
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

// NewBase stamps an event with the current time.
func NewBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, EventTime: time.Now()}
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// TxAttemptEvent is emitted after every send attempt, successful or not.
type TxAttemptEvent struct {
	BaseEvent
	Operation           string
	Attempt             int
	Signature           string // empty when the network did not accept the submission
	Confirmed           bool
	ComputeUnitLimit    uint32
	PriorityFeeLamports uint64
	Error               error
}

// TxConfirmedEvent is emitted when a logical operation lands on chain.
type TxConfirmedEvent struct {
	BaseEvent
	Operation string
	Signature string
	Attempts  int
}

// TxFailedEvent is emitted when a logical operation gives up.
type TxFailedEvent struct {
	BaseEvent
	Operation string
	Attempts  int
	Error     error
}

// SummaryComputedEvent is emitted once per signature by the summary pipeline.
type SummaryComputedEvent struct {
	BaseEvent
	Signature   string
	Transfers   int
	USDNetDelta decimal.Decimal
}
