// Package postgres implements domain.Database/domain.Tx on top of pgx,
// backing the sequence allocator and entity store with SERIALIZABLE
// transactions (spec §4.3, §4.6).
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/serbia-gov/platform/internal/domain"
	"github.com/serbia-gov/platform/internal/shared/errors"
)

// DB wraps a pgx pool and implements domain.Database.
type DB struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *DB {
	return &DB{Pool: pool}
}

// Begin opens a SERIALIZABLE transaction, per spec §4.6's requirement that
// the entire inbound pipeline runs in one serializable transaction.
func (db *DB) Begin(ctx context.Context) (domain.Tx, error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin serializable transaction")
	}
	return &txStore{tx: tx}, nil
}

// txStore implements domain.Tx by running queries against a live pgx.Tx.
type txStore struct {
	tx pgx.Tx
}

func (s *txStore) Commit(ctx context.Context) error {
	if err := s.tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

func (s *txStore) Rollback(ctx context.Context) error {
	err := s.tx.Rollback(ctx)
	if err != nil && err != pgx.ErrTxClosed {
		return errors.Wrap(err, "failed to roll back transaction")
	}
	return nil
}
