// Package postgres implements the storage.Store interface on PostgreSQL
// using database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/kidega/apartments/pkg/storage"
)

// Store is the PostgreSQL-backed implementation of storage.Store.
type Store struct {
	db *sql.DB
}

// NewStore connects to PostgreSQL, verifies the connection and runs
// pending migrations.
func NewStore(config storage.Config) (*Store, error) {
	db, err := sql.Open("postgres", config.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(config.PostgresMaxConns)
	db.SetMaxIdleConns(config.PostgresMaxConns / 4)
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), config.PostgresTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an existing database handle. Used by tests.
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// HealthCheck verifies the database connection is alive.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for health probes.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Constraint names referenced when mapping unique violations onto
// sentinel errors. They must match the migration DDL.
const (
	constraintBuildingManager = "buildings_manager_id_key"
	constraintUnitNumber      = "units_building_id_unit_number_key"
	constraintReceiptPayment  = "receipts_payment_id_key"
	constraintUsername        = "users_username_key"
)

// mapUniqueViolation converts a pq unique-violation error into the
// matching sentinel error; other errors pass through unchanged.
func mapUniqueViolation(err error) error {
	pqErr, ok := err.(*pq.Error)
	if !ok || pqErr.Code != "23505" {
		return err
	}
	switch pqErr.Constraint {
	case constraintBuildingManager:
		return storage.ErrDuplicateManager
	case constraintReceiptPayment:
		return storage.ErrDuplicateReceipt
	default:
		return storage.ErrConflict
	}
}

// inTx runs fn inside a transaction, rolling back on error or panic.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// nullString converts an optional string into a sql NullString.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullTime converts an optional time into a sql NullTime.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// timePtr converts a sql NullTime back into an optional time.
func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
