package postgres

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kirinyoku/cinetix/internal/repository"
)

func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError

	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
			return true
		}
	}

	return false
}

// translateDBErr maps driver errors to repository-level errors. Retryable
// errors pass through untouched so RunTx can still recognize them.
func translateDBErr(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}

	var pge *pgconn.PgError
	if errors.As(err, &pge) {
		switch pge.Code {
		case pgerrcode.UniqueViolation, pgerrcode.ExclusionViolation:
			return repository.ErrConflict
		case pgerrcode.ForeignKeyViolation:
			return repository.ErrNotFound
		}
	}

	return err
}
