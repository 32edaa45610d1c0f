package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frahmantamala/salespilot/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/salespilot/internal/payment"
)

// PaymentStore keeps payment records in the payment_records table, one row
// per gateway identifier.
type PaymentStore struct {
	db *gorm.DB
}

func NewPaymentStore(db *gorm.DB) *PaymentStore {
	return &PaymentStore{
		db: db,
	}
}

func (s *PaymentStore) Write(ctx context.Context, rec *payment.Record, opts paymentpkg.WriteOptions) (string, error) {
	id := opts.DocID
	if id == "" {
		id = uuid.NewString()
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if !opts.Merge {
			row := *rec
			row.ID = id
			return tx.Save(&row).Error
		}

		var existing payment.Record
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row := *rec
			row.ID = id
			return tx.Create(&row).Error
		}
		if err != nil {
			return err
		}

		existing.MergeFrom(rec)
		return tx.Save(&existing).Error
	})
	if err != nil {
		return "", fmt.Errorf("write payment record %s: %w", id, err)
	}
	return id, nil
}

func (s *PaymentStore) Get(ctx context.Context, id string) (*payment.Record, error) {
	var rec payment.Record
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, paymentpkg.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PaymentStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
