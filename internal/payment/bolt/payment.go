// Package bolt keeps payment records in a single-file BoltDB database, for
// local runs without a cloud or SQL backend.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"
	"github.com/google/uuid"

	"github.com/frahmantamala/salespilot/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/salespilot/internal/payment"
)

const DefaultBucket = "payments"

type PaymentStore struct {
	db     *bolt.DB
	bucket []byte
}

// Open opens or creates the database at path and ensures the bucket exists.
func Open(path, bucket string) (*PaymentStore, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &PaymentStore{db: db, bucket: []byte(bucket)}, nil
}

func (s *PaymentStore) Close() error {
	return s.db.Close()
}

func (s *PaymentStore) Write(_ context.Context, rec *payment.Record, opts paymentpkg.WriteOptions) (string, error) {
	id := opts.DocID
	if id == "" {
		id = uuid.NewString()
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)

		row := *rec
		if opts.Merge {
			if existing := b.Get([]byte(id)); existing != nil {
				var stored payment.Record
				if err := json.Unmarshal(existing, &stored); err != nil {
					return fmt.Errorf("decode stored record: %w", err)
				}
				stored.MergeFrom(rec)
				row = stored
			}
		}
		row.ID = id

		data, err := json.Marshal(&row)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), data)
	})
	if err != nil {
		return "", fmt.Errorf("write payment record %s: %w", id, err)
	}
	return id, nil
}

func (s *PaymentStore) Get(_ context.Context, id string) (*payment.Record, error) {
	var rec payment.Record

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.bucket).Get([]byte(id))
		if v == nil {
			return paymentpkg.ErrNotFound
		}
		return json.Unmarshal(v, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Ping fails once the database has been closed.
func (s *PaymentStore) Ping(_ context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(s.bucket) == nil {
			return fmt.Errorf("bucket %s is missing", s.bucket)
		}
		return nil
	})
}
