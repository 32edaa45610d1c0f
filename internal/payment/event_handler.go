package payment

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/frahmantamala/salespilot/internal/core/datamodel/payment"
	"github.com/frahmantamala/salespilot/internal/core/events"
)

// EventHandler keeps an audit trail of reconciliation outcomes.
type EventHandler struct {
	logger   *slog.Logger
	recorded atomic.Int64
	rejected atomic.Int64
}

func NewEventHandler(logger *slog.Logger) *EventHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventHandler{logger: logger}
}

func (h *EventHandler) HandlePaymentRecorded(ctx context.Context, event events.Event) error {
	recorded, ok := event.(*events.PaymentRecordedEvent)
	if !ok {
		h.logger.Error("invalid event type for payment recorded handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentRecordedEvent, got %T", event)
	}
	h.recorded.Add(1)

	level := slog.LevelInfo
	if recorded.Status != payment.StatusCompleted && recorded.Status != payment.StatusSuccess {
		level = slog.LevelWarn
	}
	h.logger.Log(ctx, level, "payment reconciled",
		"doc_id", recorded.DocID,
		"gateway", recorded.Gateway,
		"status", recorded.Status,
		"source", recorded.Source,
		"currency", recorded.Currency,
		"merge", recorded.Merge,
		"event_id", recorded.EventID())
	return nil
}

func (h *EventHandler) HandleVerificationFailed(ctx context.Context, event events.Event) error {
	failed, ok := event.(*events.PaymentVerificationFailedEvent)
	if !ok {
		h.logger.Error("invalid event type for verification failed handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentVerificationFailedEvent, got %T", event)
	}
	h.rejected.Add(1)

	h.logger.WarnContext(ctx, "payment callback rejected",
		"gateway", failed.Gateway,
		"identifier", failed.Identifier,
		"reason", failed.Reason,
		"event_id", failed.EventID())
	return nil
}

// Counts returns how many records were written and callbacks rejected since start.
func (h *EventHandler) Counts() (recorded, rejected int64) {
	return h.recorded.Load(), h.rejected.Load()
}

// Ping lets the audit trail sit in the health report; it is always up.
func (h *EventHandler) Ping(context.Context) error {
	return nil
}

func (h *EventHandler) HealthDetails() map[string]any {
	recorded, rejected := h.Counts()
	return map[string]any{"recorded": recorded, "rejected": rejected}
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypePaymentRecorded, h.HandlePaymentRecorded)
	eventBus.Subscribe(events.EventTypePaymentVerificationFailed, h.HandleVerificationFailed)

	h.logger.Info("payment event handlers registered",
		"handlers", []string{events.EventTypePaymentRecorded, events.EventTypePaymentVerificationFailed})
}
