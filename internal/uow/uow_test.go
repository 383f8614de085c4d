package uow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/repository"
	"github.com/kirinyoku/cinetix/internal/repository/memory"
	"github.com/kirinyoku/cinetix/internal/uow"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(t *testing.T, store *memory.Store) int64 {
	t.Helper()

	ctx := context.Background()

	room, err := store.Catalog().CreateRoom(ctx, domain.Room{Name: "Hall 1", Type: "2D", Rows: 1, SeatsPerRow: 2})
	require.NoError(t, err)

	start := time.Date(2026, 1, 1, 18, 0, 0, 0, time.UTC)
	s, err := store.Catalog().CreateSession(ctx, domain.Session{
		FilmID:   1,
		RoomID:   room.ID,
		StartsAt: start,
		EndsAt:   start.Add(2 * time.Hour),
		Price:    decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	return s.ID
}

func TestDo_RunsHooksAfterCommit(t *testing.T) {
	store := memory.New()
	sessionID := newSession(t, store)
	u := uow.NewUoW(store.Ledger())

	var calls int
	err := u.Do(context.Background(), sessionID, func(
		ctx context.Context,
		tx repository.LedgerTx,
		after func(uow.AfterCommit),
	) error {
		after(func(context.Context) { calls++ })
		assert.Zero(t, calls)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_SkipsHooksOnError(t *testing.T) {
	store := memory.New()
	sessionID := newSession(t, store)
	u := uow.NewUoW(store.Ledger())

	boom := errors.New("boom")
	var calls int

	err := u.Do(context.Background(), sessionID, func(
		ctx context.Context,
		tx repository.LedgerTx,
		after func(uow.AfterCommit),
	) error {
		after(func(context.Context) { calls++ })
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.Zero(t, calls)
}

func TestDo_UnknownSession(t *testing.T) {
	u := uow.NewUoW(memory.New().Ledger())

	err := u.Do(context.Background(), 42, func(
		ctx context.Context,
		tx repository.LedgerTx,
		after func(uow.AfterCommit),
	) error {
		t.Fatal("fn must not run for an unknown session")
		return nil
	})

	require.ErrorIs(t, err, repository.ErrNotFound)
}
