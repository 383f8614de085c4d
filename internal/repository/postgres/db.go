package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/cinetix/internal/repository"
)

// maxTxAttempts bounds how often RunTx re-runs a transaction aborted by a
// serialization failure or deadlock.
const maxTxAttempts = 3

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
	}
}

// RunTx runs fn inside a transaction, retrying it when postgres reports a
// retryable conflict.
func (s *Store) RunTx(
	ctx context.Context,
	opts *pgx.TxOptions,
	fn func(ctx context.Context, tx DB) error,
) error {
	txOpts := pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	}

	if opts != nil {
		txOpts.IsoLevel = opts.IsoLevel
		txOpts.AccessMode = opts.AccessMode
		txOpts.DeferrableMode = opts.DeferrableMode
	}

	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.runTxOnce(ctx, txOpts, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}
	}

	return err
}

func (s *Store) runTxOnce(
	ctx context.Context,
	txOpts pgx.TxOptions,
	fn func(ctx context.Context, tx DB) error,
) error {
	tx, err := s.pool.BeginTx(ctx, txOpts)
	if err != nil {
		return err
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

func (s *Store) Catalog() repository.Catalog { return &CatalogRepo{pool: s.pool, store: s} }
func (s *Store) Ledger() repository.Ledger   { return &LedgerRepo{pool: s.pool, store: s} }
