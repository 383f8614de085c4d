package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/repository"
)

const reservationColumns = `r.id, r.session_id, r.user_id, r.status, r.created_at, r.expires_at, r.updated_at,
	COALESCE(
		(SELECT array_agg(rs.seat_id ORDER BY rs.seat_id)
		 FROM reservation_seats rs WHERE rs.reservation_id = r.id),
		'{}'::bigint[]
	)`

const transactionColumns = `id, reservation_id, amount, status, created_at, settled_at`

type LedgerRepo struct {
	pool  *pgxpool.Pool
	store *Store
}

// WithinSession locks the session row and runs fn in the same transaction.
// The row lock is the per-session exclusion: every ledger write for the
// session goes through it, while other sessions proceed in parallel.
//
// Returns:
//   - error: repository.ErrNotFound if the session does not exist.
//   - error: whatever fn returns; the transaction is rolled back in that case.
func (r *LedgerRepo) WithinSession(
	ctx context.Context,
	sessionID int64,
	fn func(ctx context.Context, tx repository.LedgerTx) error,
) error {
	const op = "postgres.LedgerRepo.WithinSession"

	return r.store.RunTx(ctx, nil, func(ctx context.Context, tx DB) error {
		s, err := scanSession(tx.QueryRow(ctx,
			`SELECT id, film_id, room_id, starts_at, ends_at, price
			 FROM sessions WHERE id = $1
			 FOR UPDATE`,
			sessionID,
		))
		if err != nil {
			return fmt.Errorf("%s:%w", op, translateDBErr(err))
		}

		return fn(ctx, &ledgerTx{db: tx, session: s})
	})
}

// GetReservation retrieves a reservation with its seat IDs.
//
// Returns:
//   - error: repository.ErrNotFound if the reservation does not exist.
func (r *LedgerRepo) GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	const op = "postgres.LedgerRepo.GetReservation"

	res, err := scanReservation(r.pool.QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM reservations r WHERE r.id = $1`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return res, nil
}

func (r *LedgerRepo) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	const op = "postgres.LedgerRepo.GetTransaction"

	t, err := scanTransaction(r.pool.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return t, nil
}

func (r *LedgerRepo) SessionOfTransaction(ctx context.Context, id uuid.UUID) (int64, error) {
	const op = "postgres.LedgerRepo.SessionOfTransaction"

	var sessionID int64
	err := r.pool.QueryRow(ctx,
		`SELECT r.session_id
		 FROM transactions t
		 JOIN reservations r ON r.id = t.reservation_id
		 WHERE t.id = $1`,
		id,
	).Scan(&sessionID)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return sessionID, nil
}

func (r *LedgerRepo) SessionsWithElapsedHolds(ctx context.Context, now time.Time) ([]int64, error) {
	const op = "postgres.LedgerRepo.SessionsWithElapsedHolds"

	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT session_id
		 FROM reservations
		 WHERE status = 'held' AND expires_at <= $1
		 ORDER BY session_id`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return ids, nil
}

// SeatStatuses reads the active claims of a session in a single statement, so
// the result is one snapshot: a concurrent hold is either fully visible or not
// at all.
//
// Returns:
//   - error: repository.ErrNotFound if the session does not exist.
func (r *LedgerRepo) SeatStatuses(ctx context.Context, sessionID int64, now time.Time) (map[int64]domain.SeatStatus, error) {
	const op = "postgres.LedgerRepo.SeatStatuses"

	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`,
		sessionID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}
	if !exists {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT rs.seat_id, r.status
		 FROM reservation_seats rs
		 JOIN reservations r ON r.id = rs.reservation_id
		 WHERE rs.session_id = $1
		 	AND rs.active
		 	AND (r.status = 'confirmed' OR (r.status = 'held' AND r.expires_at > $2))`,
		sessionID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	out := make(map[int64]domain.SeatStatus)
	for rows.Next() {
		var seatID int64
		var status string
		if err := rows.Scan(&seatID, &status); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}

		if domain.ReservationStatus(status) == domain.ReservationConfirmed {
			out[seatID] = domain.SeatSold
		} else {
			out[seatID] = domain.SeatHeld
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

type ledgerTx struct {
	db      DB
	session *domain.Session
}

func (t *ledgerTx) Session(ctx context.Context) (*domain.Session, error) {
	out := *t.session
	return &out, nil
}

func (t *ledgerTx) ClaimedSeats(ctx context.Context, seatIDs []int64, now time.Time) ([]int64, error) {
	const op = "postgres.ledgerTx.ClaimedSeats"

	rows, err := t.db.Query(ctx,
		`SELECT rs.seat_id
		 FROM reservation_seats rs
		 JOIN reservations r ON r.id = rs.reservation_id
		 WHERE rs.session_id = $1
		 	AND rs.active
		 	AND rs.seat_id = ANY($2)
		 	AND (r.status = 'confirmed' OR (r.status = 'held' AND r.expires_at > $3))
		 ORDER BY rs.seat_id`,
		t.session.ID, seatIDs, now,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	claimed, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return claimed, nil
}

func (t *ledgerTx) ExpireElapsedHolds(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	const op = "postgres.ledgerTx.ExpireElapsedHolds"

	rows, err := t.db.Query(ctx,
		`UPDATE reservations
		 SET status = 'expired', updated_at = $2
		 WHERE session_id = $1 AND status = 'held' AND expires_at <= $2
		 RETURNING id`,
		t.session.ID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if len(ids) == 0 {
		return nil, nil
	}

	if _, err := t.db.Exec(ctx,
		`UPDATE reservation_seats SET active = FALSE WHERE reservation_id = ANY($1)`,
		ids,
	); err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return ids, nil
}

// InsertReservation stores the reservation and claims its seats. The partial
// unique index on active claims rejects a double claim with ErrConflict.
func (t *ledgerTx) InsertReservation(ctx context.Context, r *domain.Reservation) error {
	const op = "postgres.ledgerTx.InsertReservation"

	if _, err := t.db.Exec(ctx,
		`INSERT INTO reservations(id, session_id, user_id, status, created_at, expires_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.SessionID, r.UserID, string(r.Status), r.CreatedAt, r.ExpiresAt, r.UpdatedAt,
	); err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if _, err := t.db.Exec(ctx,
		`INSERT INTO reservation_seats(reservation_id, session_id, seat_id)
		 SELECT $1, $2, unnest($3::bigint[])`,
		r.ID, r.SessionID, r.SeatIDs,
	); err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

func (t *ledgerTx) Reservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	const op = "postgres.ledgerTx.Reservation"

	res, err := scanReservation(t.db.QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM reservations r WHERE r.id = $1 AND r.session_id = $2`,
		id, t.session.ID,
	))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return res, nil
}

func (t *ledgerTx) SetReservationStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.ReservationStatus,
	at time.Time,
) error {
	const op = "postgres.ledgerTx.SetReservationStatus"

	tag, err := t.db.Exec(ctx,
		`UPDATE reservations SET status = $3, updated_at = $4
		 WHERE id = $1 AND session_id = $2`,
		id, t.session.ID, string(status), at,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	if status == domain.ReservationReleased || status == domain.ReservationExpired {
		if _, err := t.db.Exec(ctx,
			`UPDATE reservation_seats SET active = FALSE WHERE reservation_id = $1`,
			id,
		); err != nil {
			return fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
	}

	return nil
}

func (t *ledgerTx) InsertTransaction(ctx context.Context, tr *domain.Transaction) error {
	const op = "postgres.ledgerTx.InsertTransaction"

	if _, err := t.db.Exec(ctx,
		`INSERT INTO transactions(id, reservation_id, amount, status, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		tr.ID, tr.ReservationID, tr.Amount, string(tr.Status), tr.CreatedAt,
	); err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

func (t *ledgerTx) Transaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	const op = "postgres.ledgerTx.Transaction"

	tr, err := scanTransaction(t.db.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return tr, nil
}

func (t *ledgerTx) TransactionByReservation(ctx context.Context, reservationID uuid.UUID) (*domain.Transaction, error) {
	const op = "postgres.ledgerTx.TransactionByReservation"

	tr, err := scanTransaction(t.db.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE reservation_id = $1`,
		reservationID,
	))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return tr, nil
}

func (t *ledgerTx) SettleTransaction(
	ctx context.Context,
	id uuid.UUID,
	status domain.TransactionStatus,
	at time.Time,
) error {
	const op = "postgres.ledgerTx.SettleTransaction"

	tag, err := t.db.Exec(ctx,
		`UPDATE transactions SET status = $2, settled_at = $3
		 WHERE id = $1 AND status = 'pending'`,
		id, string(status), at,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		if err := t.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM transactions WHERE id = $1)`,
			id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		if !exists {
			return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
		}
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	return nil
}

func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	var r domain.Reservation
	var status string

	if err := row.Scan(
		&r.ID,
		&r.SessionID,
		&r.UserID,
		&status,
		&r.CreatedAt,
		&r.ExpiresAt,
		&r.UpdatedAt,
		&r.SeatIDs,
	); err != nil {
		return nil, err
	}

	r.Status = domain.ReservationStatus(status)
	return &r, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	var status string

	if err := row.Scan(
		&t.ID,
		&t.ReservationID,
		&t.Amount,
		&status,
		&t.CreatedAt,
		&t.SettledAt,
	); err != nil {
		return nil, err
	}

	t.Status = domain.TransactionStatus(status)
	return &t, nil
}
