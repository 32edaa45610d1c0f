// Package firestore stores payment records as documents in a Firestore
// collection keyed by gateway identifier.
package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/frahmantamala/salespilot/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/salespilot/internal/payment"
)

const DefaultCollection = "payments"

type ClientConfig struct {
	ProjectID       string
	CredentialsFile string
	CredentialsJSON string
}

// NewClient opens a Firestore client. With no credentials set the
// application default credentials are used, which also covers
// FIRESTORE_EMULATOR_HOST.
func NewClient(ctx context.Context, cfg ClientConfig) (*firestore.Client, error) {
	var opts []option.ClientOption
	switch {
	case cfg.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("open firestore client: %w", err)
	}
	return client, nil
}

type PaymentStore struct {
	client     *firestore.Client
	collection string
}

func NewPaymentStore(client *firestore.Client, collection string) *PaymentStore {
	if collection == "" {
		collection = DefaultCollection
	}
	return &PaymentStore{client: client, collection: collection}
}

func (s *PaymentStore) doc(id string) *firestore.DocumentRef {
	col := s.client.Collection(s.collection)
	if id == "" {
		return col.NewDoc()
	}
	return col.Doc(id)
}

// Write replaces the document, or with Merge deep-merges the set fields into
// it. createdAt is only written when the document is new.
func (s *PaymentStore) Write(ctx context.Context, rec *payment.Record, opts paymentpkg.WriteOptions) (string, error) {
	ref := s.doc(opts.DocID)
	fields := rec.Fields()
	fields["updatedAt"] = rec.UpdatedAt

	if !opts.Merge {
		fields["createdAt"] = rec.CreatedAt
		if _, err := ref.Set(ctx, fields); err != nil {
			return "", fmt.Errorf("set payment document %s: %w", ref.ID, err)
		}
		return ref.ID, nil
	}

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && (snap == nil || snap.Exists()) {
			return err
		}
		if !snap.Exists() {
			fields["createdAt"] = rec.CreatedAt
		}
		return tx.Set(ref, fields, firestore.MergeAll)
	})
	if err != nil {
		return "", fmt.Errorf("merge payment document %s: %w", ref.ID, err)
	}
	return ref.ID, nil
}

func (s *PaymentStore) Get(ctx context.Context, id string) (*payment.Record, error) {
	snap, err := s.doc(id).Get(ctx)
	if snap != nil && !snap.Exists() {
		return nil, paymentpkg.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var rec payment.Record
	if err := snap.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("decode payment document %s: %w", id, err)
	}
	rec.ID = snap.Ref.ID
	return &rec, nil
}

// Ping reads at most one document to prove the credentials work.
func (s *PaymentStore) Ping(ctx context.Context) error {
	iter := s.client.Collection(s.collection).Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return err
	}
	return nil
}

func (s *PaymentStore) Close() error {
	return s.client.Close()
}
