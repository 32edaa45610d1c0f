package cmd

import (
	"context"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/salespilot/internal"
	paymentPkg "github.com/frahmantamala/salespilot/internal/payment"
	boltstore "github.com/frahmantamala/salespilot/internal/payment/bolt"
	firestorestore "github.com/frahmantamala/salespilot/internal/payment/firestore"
	postgresstore "github.com/frahmantamala/salespilot/internal/payment/postgres"
)

// storeHandle is the selected payment store plus whatever must be closed
// on shutdown.
type storeHandle struct {
	Store  paymentPkg.Store
	Driver string
	DB     *sqlx.DB
	close  []func() error
}

func (h *storeHandle) Close() error {
	var firstErr error
	for _, c := range h.close {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// resolveDriver turns "auto" into the first backend that has credentials,
// in the order firestore, postgres, bolt.
func resolveDriver(cfg *internal.Config) string {
	driver := cfg.Store.Driver
	if driver != "" && driver != internal.StoreDriverAuto {
		return driver
	}
	switch {
	case cfg.Store.FirestoreProjectID != "":
		return internal.StoreDriverFirestore
	case cfg.Database.Source != "":
		return internal.StoreDriverPostgres
	case cfg.Store.BoltPath != "":
		return internal.StoreDriverBolt
	default:
		return internal.StoreDriverNone
	}
}

// openStore builds the payment store once at startup. A backend that is
// selected but cannot be opened is a startup error; no backend at all is
// not, every write then fails with a configuration error.
func openStore(ctx context.Context, cfg *internal.Config, logger *slog.Logger) (*storeHandle, error) {
	driver := resolveDriver(cfg)
	handle := &storeHandle{Driver: driver}

	switch driver {
	case internal.StoreDriverFirestore:
		client, err := firestorestore.NewClient(ctx, firestorestore.ClientConfig{
			ProjectID:       cfg.Store.FirestoreProjectID,
			CredentialsFile: cfg.Store.FirestoreCredentialsFile,
			CredentialsJSON: cfg.Store.FirestoreCredentialsJSON,
		})
		if err != nil {
			return nil, err
		}
		store := firestorestore.NewPaymentStore(client, cfg.Store.FirestoreCollection)
		handle.Store = store
		handle.close = append(handle.close, store.Close)

	case internal.StoreDriverPostgres:
		db, err := initDB(cfg.Database)
		if err != nil {
			return nil, err
		}
		gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to open gorm session: %w", err)
		}
		handle.DB = db
		handle.Store = postgresstore.NewPaymentStore(gormDB)
		handle.close = append(handle.close, db.Close)

	case internal.StoreDriverBolt:
		store, err := boltstore.Open(cfg.Store.BoltPath, cfg.Store.BoltBucket)
		if err != nil {
			return nil, err
		}
		handle.Store = store
		handle.close = append(handle.close, store.Close)

	default:
		logger.Warn("no payment store configured, payment records will not be persisted")
		handle.Store = paymentPkg.UnconfiguredStore{}
	}

	logger.Info("payment store selected", "driver", driver)
	return handle, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
