// Package storage is the Postgres implementation of the scheduling stores.
// Every write that changes holds or bookings also inserts its outbox event in
// the same transaction.
package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/bookpro/libs/db"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/bookpro/services/scheduling-service/internal/storage/pgerr"
)

type Store struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func New(pool *db.Pool, outboxRepo *outbox.Repository) *Store {
	return &Store{pool: pool, outbox: outboxRepo}
}

// notFound maps pgx.ErrNoRows to model.ErrNotFound.
func notFound(err error, what string, args ...any) error {
	if pgerr.IsNotFound(err) {
		return fmt.Errorf("%w: %s", model.ErrNotFound, fmt.Sprintf(what, args...))
	}
	return err
}

// lock takes a transaction-scoped advisory lock on name.
func lock(ctx context.Context, tx pgx.Tx, name string) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, name)
	return err
}

func nullIfEmpty(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
