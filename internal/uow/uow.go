package uow

import (
	"context"

	"github.com/kirinyoku/cinetix/internal/repository"
)

// AfterCommit is a function that runs after a successful transaction commit.
type AfterCommit func(ctx context.Context)

// UoW runs ledger units of work scoped to one session.
type UoW struct {
	ledger repository.Ledger
}

func NewUoW(ledger repository.Ledger) *UoW {
	return &UoW{ledger: ledger}
}

// Do runs fn with exclusive access to the session's claim set. After a
// successful commit, it executes all after-commit hooks registered by the
// final attempt of fn.
func (u *UoW) Do(
	ctx context.Context,
	sessionID int64,
	fn func(ctx context.Context, tx repository.LedgerTx, after func(AfterCommit)) error,
) error {
	var hooks []AfterCommit

	err := u.ledger.WithinSession(ctx, sessionID, func(ctx context.Context, tx repository.LedgerTx) error {
		// the store may run fn more than once when it retries a transaction
		hooks = hooks[:0]

		return fn(ctx, tx, func(h AfterCommit) {
			hooks = append(hooks, h)
		})
	})
	if err != nil {
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}
