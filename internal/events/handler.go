// internal/events/handler.go
package events

import (
	"context"

	"go.uber.org/zap"
)

// Handler processes events of a specific type.
type Handler interface {
	// Handle processes an event. Should not block.
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc is an adapter to allow the use of ordinary functions as event handlers.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls f(ctx, event).
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Subscription represents a subscription to events.
type Subscription interface {
	// Unsubscribe removes the subscription.
	Unsubscribe()
}

type subscription struct {
	id       string
	eventBus *Bus
	types    []EventType
}

// Unsubscribe removes this subscription from the event bus.
func (s *subscription) Unsubscribe() {
	s.eventBus.unsubscribe(s.id, s.types)
}

// LogHandler writes lifecycle events to the structured log.
type LogHandler struct {
	logger *zap.Logger
}

// NewLogHandler creates a handler suitable for all event types.
func NewLogHandler(logger *zap.Logger) *LogHandler {
	return &LogHandler{logger: logger.Named("events")}
}

// Handle logs the event with type-specific fields.
func (h *LogHandler) Handle(_ context.Context, event Event) error {
	switch e := event.(type) {
	case TxAttemptEvent:
		fields := []zap.Field{
			zap.String("operation", e.Operation),
			zap.Int("attempt", e.Attempt),
			zap.String("signature", e.Signature),
			zap.Bool("confirmed", e.Confirmed),
			zap.Uint32("compute_unit_limit", e.ComputeUnitLimit),
			zap.Uint64("priority_fee_lamports", e.PriorityFeeLamports),
		}
		if e.Error != nil {
			h.logger.Warn("Transaction attempt failed", append(fields, zap.Error(e.Error))...)
			return nil
		}
		h.logger.Info("Transaction attempt", fields...)
	case TxConfirmedEvent:
		h.logger.Info("Transaction confirmed",
			zap.String("operation", e.Operation),
			zap.String("signature", e.Signature),
			zap.Int("attempts", e.Attempts))
	case TxFailedEvent:
		h.logger.Error("Transaction failed",
			zap.String("operation", e.Operation),
			zap.Int("attempts", e.Attempts),
			zap.Error(e.Error))
	case SummaryComputedEvent:
		h.logger.Info("Summary computed",
			zap.String("signature", e.Signature),
			zap.Int("transfers", e.Transfers),
			zap.String("usd_net_delta", e.USDNetDelta.String()))
	default:
		h.logger.Debug("Event", zap.String("event_type", string(event.Type())))
	}
	return nil
}
