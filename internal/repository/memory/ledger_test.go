package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Store, int64, []domain.Seat) {
	t.Helper()

	ctx := context.Background()
	s := New()

	room, err := s.Catalog().CreateRoom(ctx, domain.Room{Name: "Hall", Rows: 2, SeatsPerRow: 3})
	require.NoError(t, err)

	seats, err := s.Catalog().SeatsForRoom(ctx, room.ID)
	require.NoError(t, err)

	session, err := s.Catalog().CreateSession(ctx, domain.Session{
		FilmID:   1,
		RoomID:   room.ID,
		StartsAt: now.Add(time.Hour),
		EndsAt:   now.Add(3 * time.Hour),
		Price:    decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	return s, session.ID, seats
}

func held(sessionID int64, seats ...int64) *domain.Reservation {
	return &domain.Reservation{
		ID:        uuid.New(),
		SessionID: sessionID,
		UserID:    1,
		SeatIDs:   seats,
		Status:    domain.ReservationHeld,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Minute),
		UpdatedAt: now,
	}
}

func TestCreateRoomGrid(t *testing.T) {
	_, _, seats := setup(t)

	labels := make([]string, 0, len(seats))
	for _, s := range seats {
		labels = append(labels, s.Label)
	}
	assert.Equal(t, []string{"A1", "A2", "A3", "B1", "B2", "B3"}, labels)
}

func TestWithinSessionRollsBackOnError(t *testing.T) {
	s, sessionID, seats := setup(t)
	ctx := context.Background()
	ledger := s.Ledger()

	kept := held(sessionID, seats[0].ID)
	require.NoError(t, ledger.WithinSession(ctx, sessionID, func(ctx context.Context, tx repository.LedgerTx) error {
		return tx.InsertReservation(ctx, kept)
	}))

	boom := errors.New("boom")
	dropped := held(sessionID, seats[1].ID)

	err := ledger.WithinSession(ctx, sessionID, func(ctx context.Context, tx repository.LedgerTx) error {
		if err := tx.InsertReservation(ctx, dropped); err != nil {
			return err
		}
		if err := tx.SetReservationStatus(ctx, kept.ID, domain.ReservationReleased, now); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, &domain.Transaction{
			ID:            uuid.New(),
			ReservationID: dropped.ID,
			Amount:        decimal.NewFromInt(100),
			Status:        domain.TransactionPending,
			CreatedAt:     now,
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = ledger.GetReservation(ctx, dropped.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	r, err := ledger.GetReservation(ctx, kept.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationHeld, r.Status)

	statuses, err := ledger.SeatStatuses(ctx, sessionID, now)
	require.NoError(t, err)
	assert.Equal(t, map[int64]domain.SeatStatus{seats[0].ID: domain.SeatHeld}, statuses)
}

func TestInsertReservationRejectsClaimedSeat(t *testing.T) {
	s, sessionID, seats := setup(t)
	ctx := context.Background()

	err := s.Ledger().WithinSession(ctx, sessionID, func(ctx context.Context, tx repository.LedgerTx) error {
		if err := tx.InsertReservation(ctx, held(sessionID, seats[0].ID)); err != nil {
			return err
		}
		return tx.InsertReservation(ctx, held(sessionID, seats[1].ID, seats[0].ID))
	})
	require.ErrorIs(t, err, repository.ErrConflict)

	statuses, err := s.Ledger().SeatStatuses(ctx, sessionID, now)
	require.NoError(t, err)
	assert.Empty(t, statuses)
}

func TestExpireElapsedHolds(t *testing.T) {
	s, sessionID, seats := setup(t)
	ctx := context.Background()
	ledger := s.Ledger()

	r := held(sessionID, seats[0].ID, seats[1].ID)
	require.NoError(t, ledger.WithinSession(ctx, sessionID, func(ctx context.Context, tx repository.LedgerTx) error {
		return tx.InsertReservation(ctx, r)
	}))

	ids, err := ledger.SessionsWithElapsedHolds(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, ids)

	later := now.Add(time.Minute)
	ids, err = ledger.SessionsWithElapsedHolds(ctx, later)
	require.NoError(t, err)
	assert.Equal(t, []int64{sessionID}, ids)

	var expired []uuid.UUID
	require.NoError(t, ledger.WithinSession(ctx, sessionID, func(ctx context.Context, tx repository.LedgerTx) error {
		var err error
		expired, err = tx.ExpireElapsedHolds(ctx, later)
		return err
	}))
	assert.Equal(t, []uuid.UUID{r.ID}, expired)

	got, err := ledger.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationExpired, got.Status)

	require.NoError(t, ledger.WithinSession(ctx, sessionID, func(ctx context.Context, tx repository.LedgerTx) error {
		claimed, err := tx.ClaimedSeats(ctx, []int64{seats[0].ID, seats[1].ID}, later)
		assert.Empty(t, claimed)
		return err
	}))
}

func TestSettleTransactionOnce(t *testing.T) {
	s, sessionID, seats := setup(t)
	ctx := context.Background()
	ledger := s.Ledger()

	r := held(sessionID, seats[0].ID)
	tr := &domain.Transaction{
		ID:            uuid.New(),
		ReservationID: r.ID,
		Amount:        decimal.NewFromInt(100),
		Status:        domain.TransactionPending,
		CreatedAt:     now,
	}

	require.NoError(t, ledger.WithinSession(ctx, sessionID, func(ctx context.Context, tx repository.LedgerTx) error {
		if err := tx.InsertReservation(ctx, r); err != nil {
			return err
		}
		return tx.InsertTransaction(ctx, tr)
	}))

	sid, err := ledger.SessionOfTransaction(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, sessionID, sid)

	settle := func() error {
		return ledger.WithinSession(ctx, sessionID, func(ctx context.Context, tx repository.LedgerTx) error {
			return tx.SettleTransaction(ctx, tr.ID, domain.TransactionSucceeded, now)
		})
	}

	require.NoError(t, settle())
	assert.ErrorIs(t, settle(), repository.ErrConflict)

	got, err := ledger.GetTransaction(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionSucceeded, got.Status)
	require.NotNil(t, got.SettledAt)
	assert.Equal(t, now, *got.SettledAt)
}

func TestCreateSessionOverlap(t *testing.T) {
	s, sessionID, _ := setup(t)
	ctx := context.Background()

	existing, err := s.Catalog().GetSession(ctx, sessionID)
	require.NoError(t, err)

	clash := *existing
	clash.StartsAt = existing.EndsAt.Add(-time.Minute)
	clash.EndsAt = existing.EndsAt.Add(time.Hour)

	_, err = s.Catalog().CreateSession(ctx, clash)
	assert.ErrorIs(t, err, repository.ErrConflict)

	_, err = s.Ledger().GetReservation(ctx, uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)

	err = s.Ledger().WithinSession(ctx, 999, func(ctx context.Context, tx repository.LedgerTx) error { return nil })
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
