package reservation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/repository"
	"github.com/kirinyoku/cinetix/internal/uow"
)

type Config struct {
	DefaultHoldTTL time.Duration
	MinHoldTTL     time.Duration
	MaxHoldTTL     time.Duration
	SweepInterval  time.Duration

	// Now is the clock used for hold expiry. Defaults to time.Now.
	Now func() time.Time
}

type SeatsCache interface {
	InvalidateSessionSeats(ctx context.Context, sessionID int64) error
}

type ChangePublisher interface {
	PublishSessionChanged(ctx context.Context, sessionID int64) error
}

type ConfirmationPublisher interface {
	PublishReservationConfirmed(ctx context.Context, r domain.Reservation) error
}

type Limiter interface {
	Allow(ctx context.Context, scope, id string) (bool, int64, time.Duration, error)
}

// Deps are the optional collaborators notified after a ledger change commits.
// Nil members are skipped.
type Deps struct {
	Cache   SeatsCache
	PubSub  ChangePublisher
	Queue   ConfirmationPublisher
	Limiter Limiter
}

// Service is the reservation ledger. Every write to a session's claims goes
// through a unit of work that holds the session's exclusion, so a
// check-and-claim is never interleaved with another write on the same session.
type Service struct {
	catalog repository.Catalog
	ledger  repository.Ledger
	uow     *uow.UoW
	deps    Deps
	logger  *slog.Logger
	cfg     Config
}

func New(store repository.Store, deps Deps, logger *slog.Logger, cfg Config) *Service {
	if cfg.MinHoldTTL <= 0 {
		cfg.MinHoldTTL = time.Second
	}

	if cfg.MaxHoldTTL <= 0 || cfg.MaxHoldTTL < cfg.MinHoldTTL {
		cfg.MaxHoldTTL = 30 * time.Minute
	}

	if cfg.DefaultHoldTTL <= 0 {
		cfg.DefaultHoldTTL = 10 * time.Minute
	}

	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Second
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
		uow:     uow.NewUoW(store.Ledger()),
		deps:    deps,
		logger:  logger.With("component", "reservation"),
		cfg:     cfg,
	}
}

// CheckRate records a hold attempt for key against the configured limiter.
//
// Returns:
//   - error: *RateLimitedError (matching ErrRateLimited) when over the limit.
func (s *Service) CheckRate(ctx context.Context, key string) error {
	const op = "service.reservation.CheckRate"

	if s.deps.Limiter == nil || key == "" {
		return nil
	}

	ok, _, retry, err := s.deps.Limiter.Allow(ctx, "holds", key)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", op, &RateLimitedError{RetryAfter: retry})
	}

	return nil
}

// Hold reserves seatIDs in a session for userID until now+ttl. Either every
// seat is claimed or none is.
//
// Parameters:
//   - ctx: request-scoped context.
//   - sessionID: ID of the session the seats are for.
//   - seatIDs: IDs of the seats to hold; non-empty, distinct, in the session's room.
//   - userID: ID of the user creating the hold.
//   - ttl: hold lifetime; zero selects the default, values are clamped to the configured bounds.
//
// Returns:
//   - *domain.Reservation: the held reservation.
//   - error: reservation.ErrInvalidSeatSet if the seat list is empty, has duplicates or foreign seats.
//   - error: reservation.ErrSessionNotFound if the session does not exist.
//   - error: *reservation.SeatsUnavailableError (matching ErrSeatsUnavailable) naming the taken seats.
func (s *Service) Hold(
	ctx context.Context,
	sessionID int64,
	seatIDs []int64,
	userID int64,
	ttl time.Duration,
) (*domain.Reservation, error) {
	const op = "service.reservation.Hold"

	seats, err := normalizeSeats(seatIDs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	session, err := s.catalog.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrSessionNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	roomSeats, err := s.catalog.SeatsForRoom(ctx, session.RoomID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if foreign := foreignSeats(seats, roomSeats); len(foreign) > 0 {
		return nil, fmt.Errorf("%s: %w: seats %v are not in room %d", op, ErrInvalidSeatSet, foreign, session.RoomID)
	}

	ttl = s.clampTTL(ttl)

	var held *domain.Reservation

	err = s.uow.Do(ctx, sessionID, func(
		ctx context.Context,
		tx repository.LedgerTx,
		after func(uow.AfterCommit),
	) error {
		now := s.cfg.Now()

		if _, err := tx.ExpireElapsedHolds(ctx, now); err != nil {
			return err
		}

		claimed, err := tx.ClaimedSeats(ctx, seats, now)
		if err != nil {
			return err
		}
		if len(claimed) > 0 {
			return &SeatsUnavailableError{SeatIDs: claimed}
		}

		r := &domain.Reservation{
			ID:        uuid.New(),
			SessionID: sessionID,
			UserID:    userID,
			SeatIDs:   seats,
			Status:    domain.ReservationHeld,
			CreatedAt: now,
			ExpiresAt: now.Add(ttl),
			UpdatedAt: now,
		}

		if err := tx.InsertReservation(ctx, r); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("%w: %w", ErrSeatsUnavailable, err)
			}
			return err
		}

		held = r

		after(func(ctx context.Context) {
			s.notifyChanged(ctx, sessionID)
		})

		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrSessionNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Debug("seats held",
		slog.String("reservation_id", held.ID.String()),
		slog.Int64("session_id", sessionID),
		slog.Int("seats", len(seats)),
	)

	return held, nil
}

// Confirm turns a held reservation into a confirmed one. Its seats stay
// claimed for the session from then on.
//
// Returns:
//   - *domain.Reservation: the reservation after the call.
//   - error: reservation.ErrReservationNotFound if the reservation does not exist.
//   - error: reservation.ErrExpired if the hold elapsed; the reservation is expired as a side effect.
//   - error: reservation.ErrInvalidState if the reservation is not held.
func (s *Service) Confirm(ctx context.Context, reservationID uuid.UUID) (*domain.Reservation, error) {
	const op = "service.reservation.Confirm"

	r, err := s.ledger.GetReservation(ctx, reservationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrReservationNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var out *domain.Reservation
	var expired bool

	err = s.uow.Do(ctx, r.SessionID, func(
		ctx context.Context,
		tx repository.LedgerTx,
		after func(uow.AfterCommit),
	) error {
		now := s.cfg.Now()

		cur, err := tx.Reservation(ctx, reservationID)
		if err != nil {
			return err
		}

		switch {
		case cur.HoldElapsed(now):
			if err := tx.SetReservationStatus(ctx, cur.ID, domain.ReservationExpired, now); err != nil {
				return err
			}
			cur.Status, cur.UpdatedAt = domain.ReservationExpired, now
			out, expired = cur, true

			after(func(ctx context.Context) {
				s.notifyChanged(ctx, cur.SessionID)
			})
			return nil
		case cur.Status == domain.ReservationExpired:
			out, expired = cur, true
			return nil
		case cur.Status != domain.ReservationHeld:
			return fmt.Errorf("%w: reservation is %s", ErrInvalidState, cur.Status)
		}

		if err := tx.SetReservationStatus(ctx, cur.ID, domain.ReservationConfirmed, now); err != nil {
			return err
		}
		cur.Status, cur.UpdatedAt = domain.ReservationConfirmed, now
		out = cur

		after(func(ctx context.Context) {
			s.notifyChanged(ctx, cur.SessionID)
			s.publishConfirmed(ctx, *cur)
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if expired {
		return out, fmt.Errorf("%s: %w", op, ErrExpired)
	}

	return out, nil
}

// Release cancels a held or confirmed reservation and frees its seats.
// Releasing a reservation that is already released or expired is a no-op.
//
// Returns:
//   - error: reservation.ErrReservationNotFound if the reservation does not exist.
func (s *Service) Release(ctx context.Context, reservationID uuid.UUID) error {
	const op = "service.reservation.Release"

	r, err := s.ledger.GetReservation(ctx, reservationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrReservationNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	err = s.uow.Do(ctx, r.SessionID, func(
		ctx context.Context,
		tx repository.LedgerTx,
		after func(uow.AfterCommit),
	) error {
		cur, err := tx.Reservation(ctx, reservationID)
		if err != nil {
			return err
		}

		if cur.Status == domain.ReservationReleased || cur.Status == domain.ReservationExpired {
			return nil
		}

		if err := tx.SetReservationStatus(ctx, cur.ID, domain.ReservationReleased, s.cfg.Now()); err != nil {
			return err
		}

		after(func(ctx context.Context) {
			s.notifyChanged(ctx, cur.SessionID)
		})

		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// SweepExpired expires every hold that elapsed at or before now and frees its
// seats. Sessions are swept one at a time under their own exclusion; a failing
// session does not stop the others.
//
// Returns:
//   - int: the number of reservations that were expired.
//   - error: the joined per-session failures, if any.
func (s *Service) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	const op = "service.reservation.SweepExpired"

	sessions, err := s.ledger.SessionsWithElapsedHolds(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	var total int
	var errs []error

	for _, sessionID := range sessions {
		var n int

		err := s.uow.Do(ctx, sessionID, func(
			ctx context.Context,
			tx repository.LedgerTx,
			after func(uow.AfterCommit),
		) error {
			ids, err := tx.ExpireElapsedHolds(ctx, now)
			if err != nil {
				return err
			}

			n = len(ids)
			if n > 0 {
				after(func(ctx context.Context) {
					s.notifyChanged(ctx, sessionID)
				})
			}

			return nil
		})
		if err != nil {
			s.logger.Warn("failed to sweep session",
				slog.Int64("session_id", sessionID),
				slog.Any("error", err),
			)
			errs = append(errs, fmt.Errorf("session %d: %w", sessionID, err))
			continue
		}

		total += n
	}

	if err := errors.Join(errs...); err != nil {
		return total, fmt.Errorf("%s: %w", op, err)
	}

	return total, nil
}

// RunSweeper calls SweepExpired every SweepInterval until ctx is cancelled.
// Sweep failures are logged and retried on the next tick.
func (s *Service) RunSweeper(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	s.logger.Info("expiry sweeper started", slog.Duration("interval", s.cfg.SweepInterval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopped")
			return nil
		case <-ticker.C:
			n, err := s.SweepExpired(ctx, s.cfg.Now())
			if err != nil {
				s.logger.Error("expiry sweep failed", slog.Any("error", err))
			}
			if n > 0 {
				s.logger.Info("expired holds released", slog.Int("count", n))
			}
		}
	}
}

// Get returns a reservation by ID.
//
// Returns:
//   - error: reservation.ErrReservationNotFound if the reservation does not exist.
func (s *Service) Get(ctx context.Context, reservationID uuid.UUID) (*domain.Reservation, error) {
	const op = "service.reservation.Get"

	r, err := s.ledger.GetReservation(ctx, reservationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrReservationNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return r, nil
}

func (s *Service) clampTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = s.cfg.DefaultHoldTTL
	}

	if ttl < s.cfg.MinHoldTTL {
		return s.cfg.MinHoldTTL
	}

	if ttl > s.cfg.MaxHoldTTL {
		return s.cfg.MaxHoldTTL
	}

	return ttl
}

func (s *Service) notifyChanged(ctx context.Context, sessionID int64) {
	if s.deps.Cache != nil {
		if err := s.deps.Cache.InvalidateSessionSeats(ctx, sessionID); err != nil {
			s.logger.Warn("failed to invalidate seat map", slog.Int64("session_id", sessionID), slog.Any("error", err))
		}
	}

	if s.deps.PubSub != nil {
		if err := s.deps.PubSub.PublishSessionChanged(ctx, sessionID); err != nil {
			s.logger.Warn("failed to publish session change", slog.Int64("session_id", sessionID), slog.Any("error", err))
		}
	}
}

func (s *Service) publishConfirmed(ctx context.Context, r domain.Reservation) {
	if s.deps.Queue == nil {
		return
	}

	if err := s.deps.Queue.PublishReservationConfirmed(ctx, r); err != nil {
		s.logger.Warn("failed to publish confirmation", slog.String("reservation_id", r.ID.String()), slog.Any("error", err))
	}
}

// normalizeSeats returns a sorted copy of seatIDs after checking it is
// non-empty and free of duplicates.
func normalizeSeats(seatIDs []int64) ([]int64, error) {
	if len(seatIDs) == 0 {
		return nil, fmt.Errorf("%w: no seats selected", ErrInvalidSeatSet)
	}

	seats := slices.Clone(seatIDs)
	slices.Sort(seats)

	for i := 1; i < len(seats); i++ {
		if seats[i] == seats[i-1] {
			return nil, fmt.Errorf("%w: seat %d selected more than once", ErrInvalidSeatSet, seats[i])
		}
	}

	return seats, nil
}

func foreignSeats(seats []int64, roomSeats []domain.Seat) []int64 {
	inRoom := make(map[int64]struct{}, len(roomSeats))
	for _, s := range roomSeats {
		inRoom[s.ID] = struct{}{}
	}

	var foreign []int64
	for _, id := range seats {
		if _, ok := inRoom[id]; !ok {
			foreign = append(foreign, id)
		}
	}

	return foreign
}
