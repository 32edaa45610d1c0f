package payment

import (
	"context"
	"net/http"

	"github.com/frahmantamala/salespilot/internal"
	"github.com/frahmantamala/salespilot/internal/core/datamodel/payment"
)

var (
	ErrStoreNotConfigured = internal.NewConfigurationError("payment store is not configured", internal.ErrCodeStoreNotConfigured)
	ErrNotFound           = internal.NewNotFoundError("payment record not found", internal.ErrCodePaymentNotFound)
	ErrPersistenceFailed  = &internal.AppError{
		Type:       internal.ErrorTypeInternal,
		Code:       internal.ErrCodePersistenceFailed,
		Message:    "failed to persist payment",
		StatusCode: http.StatusInternalServerError,
	}
)

// WriteOptions controls how a record lands in the store. An empty DocID
// makes the store generate one. Merge keeps fields the write does not set.
type WriteOptions struct {
	DocID string
	Merge bool
}

// Store persists canonical payment records. Implementations live in the
// firestore, postgres and bolt subpackages; one is selected at startup.
type Store interface {
	Write(ctx context.Context, rec *payment.Record, opts WriteOptions) (string, error)
	Get(ctx context.Context, id string) (*payment.Record, error)
}

// Pinger is implemented by stores that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// UnconfiguredStore is used when no backend has credentials. Every call
// fails with ErrStoreNotConfigured.
type UnconfiguredStore struct{}

func (UnconfiguredStore) Write(context.Context, *payment.Record, WriteOptions) (string, error) {
	return "", ErrStoreNotConfigured
}

func (UnconfiguredStore) Get(context.Context, string) (*payment.Record, error) {
	return nil, ErrStoreNotConfigured
}

func (UnconfiguredStore) Ping(context.Context) error {
	return ErrStoreNotConfigured
}
