package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/cinetix/internal/domain"
)

// Store groups the storage backends the services run on. Both the postgres
// and the in-memory implementations satisfy it.
type Store interface {
	Catalog() Catalog
	Ledger() Ledger
}

// Catalog holds rooms, their seats and scheduled sessions.
type Catalog interface {
	// CreateRoom stores a room together with its rows x seatsPerRow seat grid.
	CreateRoom(ctx context.Context, room domain.Room) (*domain.Room, error)
	GetRoom(ctx context.Context, id int64) (*domain.Room, error)
	// SeatsForRoom returns the seats ordered by row and number, or ErrNotFound
	// when the room does not exist.
	SeatsForRoom(ctx context.Context, roomID int64) ([]domain.Seat, error)
	// CreateSession stores s unless it overlaps another session of the same
	// room, in which case ErrConflict is returned.
	CreateSession(ctx context.Context, s domain.Session) (*domain.Session, error)
	GetSession(ctx context.Context, id int64) (*domain.Session, error)
	ListSessions(ctx context.Context, filmID int64) ([]domain.Session, error)
}

// Ledger persists reservations, seat claims and transactions.
type Ledger interface {
	// WithinSession runs fn with exclusive access to the claim set of one
	// session. Writes made through tx are committed together when fn returns
	// nil and discarded otherwise. Calls for different sessions do not block
	// each other.
	WithinSession(ctx context.Context, sessionID int64, fn func(ctx context.Context, tx LedgerTx) error) error

	GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	// SessionOfTransaction resolves the session a transaction's reservation
	// belongs to.
	SessionOfTransaction(ctx context.Context, id uuid.UUID) (int64, error)
	// SessionsWithElapsedHolds lists sessions having held reservations whose
	// expiry is at or before now.
	SessionsWithElapsedHolds(ctx context.Context, now time.Time) ([]int64, error)
	// SeatStatuses returns a consistent snapshot of claimed seats of a session.
	// Seats missing from the map are available.
	SeatStatuses(ctx context.Context, sessionID int64, now time.Time) (map[int64]domain.SeatStatus, error)
}

// LedgerTx is the view of one locked session inside WithinSession.
type LedgerTx interface {
	Session(ctx context.Context) (*domain.Session, error)
	// ClaimedSeats returns which of seatIDs are claimed by an active
	// reservation at now.
	ClaimedSeats(ctx context.Context, seatIDs []int64, now time.Time) ([]int64, error)
	// ExpireElapsedHolds moves held reservations with expiry at or before now
	// to expired and frees their seats.
	ExpireElapsedHolds(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	// InsertReservation stores r and claims its seats.
	InsertReservation(ctx context.Context, r *domain.Reservation) error
	Reservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)
	// SetReservationStatus changes the status. Moving to released or expired
	// frees the reservation's seats.
	SetReservationStatus(ctx context.Context, id uuid.UUID, status domain.ReservationStatus, at time.Time) error

	InsertTransaction(ctx context.Context, t *domain.Transaction) error
	Transaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	TransactionByReservation(ctx context.Context, reservationID uuid.UUID) (*domain.Transaction, error)
	// SettleTransaction moves a pending transaction to status. ErrConflict is
	// returned when it is no longer pending.
	SettleTransaction(ctx context.Context, id uuid.UUID, status domain.TransactionStatus, at time.Time) error
}
