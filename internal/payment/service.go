package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/salespilot/internal"
	"github.com/frahmantamala/salespilot/internal/core/datamodel/payment"
	"github.com/frahmantamala/salespilot/internal/core/events"
)

type ServiceAPI interface {
	Reconcile(ctx context.Context, v Verifier, cb *Callback, opts ReconcileOptions) (*Outcome, error)
	Record(ctx context.Context, rec *payment.Record, opts WriteOptions) (string, error)
	Get(ctx context.Context, id string) (*payment.Record, error)
}

type ReconcileOptions struct {
	Merge bool
	// PersistUnverified writes the derived record even when verification
	// did not pass. Only PayPal, which has nothing to verify, uses it.
	PersistUnverified bool
}

// Outcome is what the handlers need to answer the gateway or the browser.
// A non-nil PersistErr never turns a verified payment into a failure.
type Outcome struct {
	Result     *VerificationResult
	DocID      string
	Persisted  bool
	PersistErr error
}

type Service struct {
	store    Store
	eventBus *events.EventBus
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(store Store, eventBus *events.EventBus, logger *slog.Logger) *Service {
	if store == nil {
		store = UnconfiguredStore{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		eventBus: eventBus,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Reconcile verifies a callback and persists the derived record. The only
// returned error is a configuration error from the verifier.
func (s *Service) Reconcile(ctx context.Context, v Verifier, cb *Callback, opts ReconcileOptions) (*Outcome, error) {
	gateway := string(v.Gateway())

	result, err := v.Verify(ctx, cb)
	if err != nil {
		s.logger.Error("payment verification unavailable", "gateway", gateway, "error", err)
		return nil, err
	}

	outcome := &Outcome{Result: result}

	if !result.Verified && !opts.PersistUnverified {
		s.logger.Warn("payment verification failed",
			"gateway", gateway,
			"doc_id", result.DocID,
			"status", result.Status,
			"reason", result.Reason)
		s.publish(ctx, events.NewPaymentVerificationFailedEvent(gateway, result.DocID, result.Reason))
		return outcome, nil
	}

	if result.Record == nil {
		s.logger.Info("verified callback carries nothing to record",
			"gateway", gateway,
			"event_type", result.EventType,
			"reason", result.Reason)
		return outcome, nil
	}

	docID, err := s.Record(ctx, result.Record, WriteOptions{DocID: result.DocID, Merge: opts.Merge})
	if err != nil {
		outcome.PersistErr = err
		return outcome, nil
	}
	outcome.DocID = docID
	outcome.Persisted = true
	return outcome, nil
}

// Record writes rec through the configured store. Failures, panics
// included, are logged and returned; they never propagate further.
func (s *Service) Record(ctx context.Context, rec *payment.Record, opts WriteOptions) (id string, err error) {
	if rec == nil {
		return "", errors.New("nil payment record")
	}
	if rec.Source == "" {
		rec.Source = internal.SourceFromContext(ctx)
	}

	now := s.now().UTC()
	rec.UpdatedAt = now
	if !opts.Merge || rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("payment store panicked: %v", r)
		}
		if err != nil {
			s.logger.Error("failed to persist payment record",
				"gateway", rec.Gateway,
				"doc_id", opts.DocID,
				"merge", opts.Merge,
				"source", rec.Source,
				"error", err)
		}
	}()

	id, err = s.store.Write(ctx, rec, opts)
	if err != nil {
		return "", err
	}

	s.logger.Info("payment record persisted",
		"gateway", rec.Gateway,
		"doc_id", id,
		"status", rec.Status,
		"merge", opts.Merge,
		"source", rec.Source)
	s.publish(ctx, events.NewPaymentRecordedEvent(id, string(rec.Gateway), rec.Status, rec.Source, rec.Currency, opts.Merge))
	return id, nil
}

func (s *Service) Get(ctx context.Context, id string) (*payment.Record, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event", "event_type", event.EventType(), "error", err)
	}
}
