package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/repository"
)

type CatalogRepo struct {
	pool  *pgxpool.Pool
	store *Store
}

// CreateRoom inserts a room and generates its seat grid in one transaction.
//
// Returns:
//   - *domain.Room: the stored room with its ID and seat total.
//   - error: repository.ErrConflict if a room with the same name exists.
func (r *CatalogRepo) CreateRoom(ctx context.Context, room domain.Room) (*domain.Room, error) {
	const op = "postgres.CatalogRepo.CreateRoom"

	room.TotalSeats = room.Rows * room.SeatsPerRow

	err := r.store.RunTx(ctx, nil, func(ctx context.Context, tx DB) error {
		if err := tx.QueryRow(ctx,
			`INSERT INTO rooms(name, type, rows, seats_per_row, total_seats)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id`,
			room.Name, room.Type, room.Rows, room.SeatsPerRow, room.TotalSeats,
		).Scan(&room.ID); err != nil {
			return translateDBErr(err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO seats(room_id, seat_row, seat_number, label)
			 SELECT $1, r, n, chr(64 + r) || n
			 FROM generate_series(1, $2::int) AS r, generate_series(1, $3::int) AS n`,
			room.ID, room.Rows, room.SeatsPerRow,
		); err != nil {
			return translateDBErr(err)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &room, nil
}

// GetRoom retrieves a room by its ID.
//
// Returns:
//   - error: repository.ErrNotFound if the room does not exist.
func (r *CatalogRepo) GetRoom(ctx context.Context, id int64) (*domain.Room, error) {
	const op = "postgres.CatalogRepo.GetRoom"

	var room domain.Room
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, type, rows, seats_per_row, total_seats
		 FROM rooms WHERE id = $1`,
		id,
	).Scan(&room.ID, &room.Name, &room.Type, &room.Rows, &room.SeatsPerRow, &room.TotalSeats)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &room, nil
}

// SeatsForRoom lists the seats of a room ordered by row and number.
//
// Returns:
//   - error: repository.ErrNotFound if the room does not exist.
func (r *CatalogRepo) SeatsForRoom(ctx context.Context, roomID int64) ([]domain.Seat, error) {
	const op = "postgres.CatalogRepo.SeatsForRoom"

	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM rooms WHERE id = $1)`,
		roomID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}
	if !exists {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, room_id, seat_row, seat_number, label
		 FROM seats
		 WHERE room_id = $1
		 ORDER BY seat_row, seat_number`,
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	out := []domain.Seat{}
	for rows.Next() {
		var s domain.Seat
		if err := rows.Scan(&s.ID, &s.RoomID, &s.Row, &s.Number, &s.Label); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// CreateSession schedules a session. The room row is locked so concurrent
// schedulers for the same room run the overlap check one at a time; the
// exclusion constraint on sessions backs the check up.
//
// Returns:
//   - error: repository.ErrNotFound if the room does not exist.
//   - error: repository.ErrConflict if the session overlaps another one in the room.
func (r *CatalogRepo) CreateSession(ctx context.Context, s domain.Session) (*domain.Session, error) {
	const op = "postgres.CatalogRepo.CreateSession"

	err := r.store.RunTx(ctx, nil, func(ctx context.Context, tx DB) error {
		var roomID int64
		if err := tx.QueryRow(ctx,
			`SELECT id FROM rooms WHERE id = $1 FOR UPDATE`,
			s.RoomID,
		).Scan(&roomID); err != nil {
			return translateDBErr(err)
		}

		var overlaps bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (
			 	SELECT 1 FROM sessions
			 	WHERE room_id = $1 AND starts_at < $3 AND $2 < ends_at
			 )`,
			s.RoomID, s.StartsAt, s.EndsAt,
		).Scan(&overlaps); err != nil {
			return translateDBErr(err)
		}
		if overlaps {
			return repository.ErrConflict
		}

		if err := tx.QueryRow(ctx,
			`INSERT INTO sessions(film_id, room_id, starts_at, ends_at, price)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id`,
			s.FilmID, s.RoomID, s.StartsAt, s.EndsAt, s.Price,
		).Scan(&s.ID); err != nil {
			return translateDBErr(err)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &s, nil
}

// GetSession retrieves a session by its ID.
//
// Returns:
//   - error: repository.ErrNotFound if the session does not exist.
func (r *CatalogRepo) GetSession(ctx context.Context, id int64) (*domain.Session, error) {
	const op = "postgres.CatalogRepo.GetSession"

	s, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT id, film_id, room_id, starts_at, ends_at, price
		 FROM sessions WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return s, nil
}

// ListSessions lists sessions ordered by start time. A zero filmID lists the
// sessions of every film.
func (r *CatalogRepo) ListSessions(ctx context.Context, filmID int64) ([]domain.Session, error) {
	const op = "postgres.CatalogRepo.ListSessions"

	rows, err := r.pool.Query(ctx,
		`SELECT id, film_id, room_id, starts_at, ends_at, price
		 FROM sessions
		 WHERE $1 = 0 OR film_id = $1
		 ORDER BY starts_at, id`,
		filmID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	out := []domain.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	if err := row.Scan(&s.ID, &s.FilmID, &s.RoomID, &s.StartsAt, &s.EndsAt, &s.Price); err != nil {
		return nil, err
	}
	return &s, nil
}
