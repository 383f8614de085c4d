package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/repository"
	redisrepo "github.com/kirinyoku/cinetix/internal/repository/redis"
)

const (
	maxRows        = 26
	maxSeatsPerRow = 100
)

type Config struct {
	SessionTTL  time.Duration
	RoomSeatTTL time.Duration
	SeatMapTTL  time.Duration

	Now func() time.Time
}

type Service struct {
	catalog repository.Catalog
	ledger  repository.Ledger
	cache   *redisrepo.Cache
	logger  *slog.Logger
	cfg     Config
}

// New builds the catalog service. cache may be nil, in which case every read
// goes to the store.
func New(store repository.Store, cache *redisrepo.Cache, logger *slog.Logger, cfg Config) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 60 * time.Second
	}

	if cfg.RoomSeatTTL <= 0 {
		cfg.RoomSeatTTL = 10 * time.Minute
	}

	if cfg.SeatMapTTL <= 0 {
		cfg.SeatMapTTL = 5 * time.Second
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		catalog: store.Catalog(),
		ledger:  store.Ledger(),
		cache:   cache,
		logger:  logger.With("component", "catalog"),
		cfg:     cfg,
	}
}

// CreateRoom registers a room and its rows x seatsPerRow seat grid.
//
// Returns:
//   - *domain.Room: the created room.
//   - error: catalog.ErrInvalidRoom if the name is blank or the grid is out of range.
//   - error: catalog.ErrRoomConflict if the name is taken.
func (s *Service) CreateRoom(ctx context.Context, name, roomType string, rows, seatsPerRow int) (*domain.Room, error) {
	const op = "service.catalog.CreateRoom"

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%s: %w: empty name", op, ErrInvalidRoom)
	}

	if rows < 1 || rows > maxRows || seatsPerRow < 1 || seatsPerRow > maxSeatsPerRow {
		return nil, fmt.Errorf("%s: %w: rows must be 1..%d and seats per row 1..%d",
			op, ErrInvalidRoom, maxRows, maxSeatsPerRow)
	}

	room, err := s.catalog.CreateRoom(ctx, domain.Room{
		Name:        name,
		Type:        strings.TrimSpace(roomType),
		Rows:        rows,
		SeatsPerRow: seatsPerRow,
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%s: %w", op, ErrRoomConflict)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Info("room created", slog.Int64("room_id", room.ID), slog.Int("seats", room.TotalSeats))

	return room, nil
}

func (s *Service) GetRoom(ctx context.Context, id int64) (*domain.Room, error) {
	const op = "service.catalog.GetRoom"

	room, err := s.catalog.GetRoom(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrRoomNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return room, nil
}

// SeatsForRoom lists the seats of a room ordered by row and number. Rooms are
// immutable, so the list is cached for a long time.
//
// Returns:
//   - error: catalog.ErrRoomNotFound if the room does not exist.
func (s *Service) SeatsForRoom(ctx context.Context, roomID int64) ([]domain.Seat, error) {
	const op = "service.catalog.SeatsForRoom"

	seats, err := cached(ctx, s.cache, redisrepo.KeyRoomSeats(roomID), s.cfg.RoomSeatTTL,
		func(ctx context.Context) ([]domain.Seat, error) {
			seats, err := s.catalog.SeatsForRoom(ctx, roomID)
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrRoomNotFound
			}
			return seats, err
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return seats, nil
}

// CreateSession schedules a film in a room. The session occupies the room for
// the half-open interval [StartsAt, EndsAt); Price is per seat.
//
// Returns:
//   - *domain.Session: the scheduled session.
//   - error: catalog.ErrInvalidSession if startsAt is not before endsAt or the price is negative.
//   - error: catalog.ErrRoomNotFound if the room does not exist.
//   - error: catalog.ErrSessionConflict if the interval overlaps another session of the room.
func (s *Service) CreateSession(ctx context.Context, session domain.Session) (*domain.Session, error) {
	const op = "service.catalog.CreateSession"

	if !session.StartsAt.Before(session.EndsAt) {
		return nil, fmt.Errorf("%s: %w: start must be before end", op, ErrInvalidSession)
	}

	if session.Price.IsNegative() {
		return nil, fmt.Errorf("%s: %w: negative price", op, ErrInvalidSession)
	}

	if !domain.HasCents(session.Price) {
		return nil, fmt.Errorf("%s: %w: price has more than %d decimal places", op, ErrInvalidSession, domain.MoneyPlaces)
	}

	session.ID = 0
	session.StartsAt = session.StartsAt.UTC()
	session.EndsAt = session.EndsAt.UTC()

	created, err := s.catalog.CreateSession(ctx, session)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("%s: %w", op, ErrRoomNotFound)
		case errors.Is(err, repository.ErrConflict):
			return nil, fmt.Errorf("%s: %w", op, ErrSessionConflict)
		default:
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	if s.cache != nil {
		if err := s.cache.InvalidateFilmSessions(ctx, created.FilmID); err != nil {
			s.logger.Warn("failed to invalidate session list", slog.Int64("film_id", created.FilmID), slog.Any("error", err))
		}
	}

	return created, nil
}

// GetSession retrieves a session by its ID through the cache.
//
// Returns:
//   - error: catalog.ErrSessionNotFound if the session does not exist.
func (s *Service) GetSession(ctx context.Context, id int64) (*domain.Session, error) {
	const op = "service.catalog.GetSession"

	session, err := cached(ctx, s.cache, redisrepo.KeySession(id), s.cfg.SessionTTL,
		func(ctx context.Context) (domain.Session, error) {
			session, err := s.catalog.GetSession(ctx, id)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return domain.Session{}, ErrSessionNotFound
				}
				return domain.Session{}, err
			}
			return *session, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &session, nil
}

// ListSessions lists sessions ordered by start time. filmID 0 lists all films.
func (s *Service) ListSessions(ctx context.Context, filmID int64) ([]domain.Session, error) {
	const op = "service.catalog.ListSessions"

	sessions, err := cached(ctx, s.cache, redisrepo.KeyFilmSessions(filmID), s.cfg.SessionTTL,
		func(ctx context.Context) ([]domain.Session, error) {
			return s.catalog.ListSessions(ctx, filmID)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return sessions, nil
}

// SeatMap returns every seat of the session's room with its status in the
// session.
//
// Returns:
//   - error: catalog.ErrSessionNotFound if the session does not exist.
func (s *Service) SeatMap(ctx context.Context, sessionID int64) ([]domain.SeatWithStatus, error) {
	const op = "service.catalog.SeatMap"

	seats, err := cached(ctx, s.cache, redisrepo.KeySessionSeatMap(sessionID), s.cfg.SeatMapTTL,
		func(ctx context.Context) ([]domain.SeatWithStatus, error) {
			return s.seatMap(ctx, sessionID)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return seats, nil
}

// Availability counts the session's seats by status.
//
// Returns:
//   - error: catalog.ErrSessionNotFound if the session does not exist.
func (s *Service) Availability(ctx context.Context, sessionID int64) (*domain.SessionAvailability, error) {
	const op = "service.catalog.Availability"

	seats, err := s.SeatMap(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var out domain.SessionAvailability
	for _, seat := range seats {
		switch seat.Status {
		case domain.SeatHeld:
			out.Held++
		case domain.SeatSold:
			out.Sold++
		default:
			out.Available++
		}
	}
	out.Total = int64(len(seats))

	return &out, nil
}

func (s *Service) seatMap(ctx context.Context, sessionID int64) ([]domain.SeatWithStatus, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	seats, err := s.SeatsForRoom(ctx, session.RoomID)
	if err != nil {
		return nil, err
	}

	statuses, err := s.ledger.SeatStatuses(ctx, sessionID, s.cfg.Now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	out := make([]domain.SeatWithStatus, 0, len(seats))
	for _, seat := range seats {
		status, ok := statuses[seat.ID]
		if !ok {
			status = domain.SeatAvailable
		}
		out = append(out, domain.SeatWithStatus{Seat: seat, Status: status})
	}

	return out, nil
}

// cached loads through the redis cache when one is configured.
func cached[T any](
	ctx context.Context,
	c *redisrepo.Cache,
	key string,
	ttl time.Duration,
	loader func(ctx context.Context) (T, error),
) (T, error) {
	if c == nil {
		return loader(ctx)
	}

	return redisrepo.ReadThrough(ctx, c, key, ttl, loader)
}
