package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/repository"
)

// sessionLedger is the claim set of one session. mu is the per-session
// exclusion every WithinSession call takes.
type sessionLedger struct {
	mu sync.Mutex

	claims        map[int64]uuid.UUID // seat -> active reservation
	reservations  map[uuid.UUID]*domain.Reservation
	transactions  map[uuid.UUID]*domain.Transaction
	byReservation map[uuid.UUID]uuid.UUID // reservation -> transaction
}

type LedgerRepo struct {
	s *Store
}

func (r *LedgerRepo) WithinSession(
	ctx context.Context,
	sessionID int64,
	fn func(ctx context.Context, tx repository.LedgerTx) error,
) error {
	const op = "memory.LedgerRepo.WithinSession"

	e, ok := r.s.session(sessionID)
	if !ok {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	e.ledger.mu.Lock()
	defer e.ledger.mu.Unlock()

	tx := &ledgerTx{s: r.s, entry: e}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}

	return nil
}

func (r *LedgerRepo) GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	r.s.mu.RLock()
	sid, ok := r.s.reservationIdx[id]
	r.s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("memory.LedgerRepo.GetReservation:%w", repository.ErrNotFound)
	}

	e, _ := r.s.session(sid)

	e.ledger.mu.Lock()
	defer e.ledger.mu.Unlock()

	return cloneReservation(e.ledger.reservations[id]), nil
}

func (r *LedgerRepo) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.s.mu.RLock()
	sid, ok := r.s.transactionIdx[id]
	r.s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("memory.LedgerRepo.GetTransaction:%w", repository.ErrNotFound)
	}

	e, _ := r.s.session(sid)

	e.ledger.mu.Lock()
	defer e.ledger.mu.Unlock()

	return cloneTransaction(e.ledger.transactions[id]), nil
}

func (r *LedgerRepo) SessionOfTransaction(ctx context.Context, id uuid.UUID) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	sid, ok := r.s.transactionIdx[id]
	if !ok {
		return 0, fmt.Errorf("memory.LedgerRepo.SessionOfTransaction:%w", repository.ErrNotFound)
	}

	return sid, nil
}

func (r *LedgerRepo) SessionsWithElapsedHolds(ctx context.Context, now time.Time) ([]int64, error) {
	r.s.mu.RLock()
	entries := make([]*sessionEntry, 0, len(r.s.sessions))
	for _, e := range r.s.sessions {
		entries = append(entries, e)
	}
	r.s.mu.RUnlock()

	var out []int64
	for _, e := range entries {
		e.ledger.mu.Lock()
		for _, res := range e.ledger.reservations {
			if res.HoldElapsed(now) {
				out = append(out, e.session.ID)
				break
			}
		}
		e.ledger.mu.Unlock()
	}

	slices.Sort(out)
	return out, nil
}

func (r *LedgerRepo) SeatStatuses(ctx context.Context, sessionID int64, now time.Time) (map[int64]domain.SeatStatus, error) {
	e, ok := r.s.session(sessionID)
	if !ok {
		return nil, fmt.Errorf("memory.LedgerRepo.SeatStatuses:%w", repository.ErrNotFound)
	}

	e.ledger.mu.Lock()
	defer e.ledger.mu.Unlock()

	out := make(map[int64]domain.SeatStatus, len(e.ledger.claims))
	for seatID, resID := range e.ledger.claims {
		res := e.ledger.reservations[resID]
		if !res.Active(now) {
			continue
		}
		if res.Status == domain.ReservationConfirmed {
			out[seatID] = domain.SeatSold
		} else {
			out[seatID] = domain.SeatHeld
		}
	}

	return out, nil
}

// ledgerTx mutates the session ledger in place and records an undo step for
// every write so a failed unit of work leaves no trace.
type ledgerTx struct {
	s     *Store
	entry *sessionEntry
	undo  []func()
}

func (t *ledgerTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *ledgerTx) Session(ctx context.Context) (*domain.Session, error) {
	out := t.entry.session
	return &out, nil
}

func (t *ledgerTx) ClaimedSeats(ctx context.Context, seatIDs []int64, now time.Time) ([]int64, error) {
	l := t.entry.ledger

	var out []int64
	for _, id := range seatIDs {
		resID, ok := l.claims[id]
		if !ok {
			continue
		}
		if l.reservations[resID].Active(now) {
			out = append(out, id)
		}
	}

	slices.Sort(out)
	return out, nil
}

func (t *ledgerTx) ExpireElapsedHolds(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	var expired []uuid.UUID
	for id, res := range t.entry.ledger.reservations {
		if res.HoldElapsed(now) {
			expired = append(expired, id)
		}
	}

	for _, id := range expired {
		if err := t.SetReservationStatus(ctx, id, domain.ReservationExpired, now); err != nil {
			return nil, err
		}
	}

	return expired, nil
}

func (t *ledgerTx) InsertReservation(ctx context.Context, r *domain.Reservation) error {
	const op = "memory.ledgerTx.InsertReservation"

	l := t.entry.ledger

	if _, ok := l.reservations[r.ID]; ok {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}
	for _, seatID := range r.SeatIDs {
		if _, ok := l.claims[seatID]; ok {
			return fmt.Errorf("%s:%w", op, repository.ErrConflict)
		}
	}

	l.reservations[r.ID] = cloneReservation(r)
	for _, seatID := range r.SeatIDs {
		l.claims[seatID] = r.ID
	}

	t.s.mu.Lock()
	t.s.reservationIdx[r.ID] = r.SessionID
	t.s.mu.Unlock()

	id, seats := r.ID, slices.Clone(r.SeatIDs)
	t.undo = append(t.undo, func() {
		delete(l.reservations, id)
		for _, seatID := range seats {
			delete(l.claims, seatID)
		}
		t.s.mu.Lock()
		delete(t.s.reservationIdx, id)
		t.s.mu.Unlock()
	})

	return nil
}

func (t *ledgerTx) Reservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	res, ok := t.entry.ledger.reservations[id]
	if !ok {
		return nil, fmt.Errorf("memory.ledgerTx.Reservation:%w", repository.ErrNotFound)
	}

	return cloneReservation(res), nil
}

func (t *ledgerTx) SetReservationStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.ReservationStatus,
	at time.Time,
) error {
	l := t.entry.ledger

	res, ok := l.reservations[id]
	if !ok {
		return fmt.Errorf("memory.ledgerTx.SetReservationStatus:%w", repository.ErrNotFound)
	}

	prev := *res
	res.Status = status
	res.UpdatedAt = at

	var freed []int64
	if status == domain.ReservationReleased || status == domain.ReservationExpired {
		for _, seatID := range res.SeatIDs {
			if l.claims[seatID] == id {
				delete(l.claims, seatID)
				freed = append(freed, seatID)
			}
		}
	}

	t.undo = append(t.undo, func() {
		*res = prev
		for _, seatID := range freed {
			l.claims[seatID] = id
		}
	})

	return nil
}

func (t *ledgerTx) InsertTransaction(ctx context.Context, tr *domain.Transaction) error {
	l := t.entry.ledger

	if _, ok := l.byReservation[tr.ReservationID]; ok {
		return fmt.Errorf("memory.ledgerTx.InsertTransaction:%w", repository.ErrConflict)
	}

	l.transactions[tr.ID] = cloneTransaction(tr)
	l.byReservation[tr.ReservationID] = tr.ID

	t.s.mu.Lock()
	t.s.transactionIdx[tr.ID] = t.entry.session.ID
	t.s.mu.Unlock()

	id, resID := tr.ID, tr.ReservationID
	t.undo = append(t.undo, func() {
		delete(l.transactions, id)
		delete(l.byReservation, resID)
		t.s.mu.Lock()
		delete(t.s.transactionIdx, id)
		t.s.mu.Unlock()
	})

	return nil
}

func (t *ledgerTx) Transaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	tr, ok := t.entry.ledger.transactions[id]
	if !ok {
		return nil, fmt.Errorf("memory.ledgerTx.Transaction:%w", repository.ErrNotFound)
	}

	return cloneTransaction(tr), nil
}

func (t *ledgerTx) TransactionByReservation(ctx context.Context, reservationID uuid.UUID) (*domain.Transaction, error) {
	id, ok := t.entry.ledger.byReservation[reservationID]
	if !ok {
		return nil, fmt.Errorf("memory.ledgerTx.TransactionByReservation:%w", repository.ErrNotFound)
	}

	return cloneTransaction(t.entry.ledger.transactions[id]), nil
}

func (t *ledgerTx) SettleTransaction(
	ctx context.Context,
	id uuid.UUID,
	status domain.TransactionStatus,
	at time.Time,
) error {
	const op = "memory.ledgerTx.SettleTransaction"

	tr, ok := t.entry.ledger.transactions[id]
	if !ok {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	if tr.Status != domain.TransactionPending {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	prev := *tr
	settled := at
	tr.Status = status
	tr.SettledAt = &settled

	t.undo = append(t.undo, func() { *tr = prev })

	return nil
}

func cloneReservation(r *domain.Reservation) *domain.Reservation {
	out := *r
	out.SeatIDs = slices.Clone(r.SeatIDs)
	return &out
}

func cloneTransaction(t *domain.Transaction) *domain.Transaction {
	out := *t
	if t.SettledAt != nil {
		at := *t.SettledAt
		out.SettledAt = &at
	}
	return &out
}
