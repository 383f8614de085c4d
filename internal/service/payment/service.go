package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/repository"
	"github.com/kirinyoku/cinetix/internal/uow"
	"github.com/shopspring/decimal"
)

// Reservations is the part of the reservation ledger a settlement drives.
type Reservations interface {
	Confirm(ctx context.Context, reservationID uuid.UUID) (*domain.Reservation, error)
	Release(ctx context.Context, reservationID uuid.UUID) error
}

type Config struct {
	Now func() time.Time
}

type Service struct {
	ledger       repository.Ledger
	reservations Reservations
	uow          *uow.UoW
	logger       *slog.Logger
	cfg          Config
}

func New(store repository.Store, reservations Reservations, logger *slog.Logger, cfg Config) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		ledger:       store.Ledger(),
		reservations: reservations,
		uow:          uow.NewUoW(store.Ledger()),
		logger:       logger.With("component", "payment"),
		cfg:          cfg,
	}
}

// Initiate opens a pending transaction for a held reservation.
//
// Parameters:
//   - ctx: request-scoped context.
//   - reservationID: ID of the reservation being paid for.
//   - amount: amount the client intends to pay; must equal price x seat count exactly.
//
// Returns:
//   - *domain.Transaction: the pending transaction.
//   - error: payment.ErrReservationNotFound if the reservation does not exist.
//   - error: payment.ErrExpired if the hold is still held but elapsed; the reservation is expired as a side effect.
//   - error: payment.ErrInvalidState if the reservation is not held (an already expired one included) or
//     already has a transaction.
//   - error: *payment.AmountMismatchError (matching ErrAmountMismatch) if the amount is wrong.
func (s *Service) Initiate(ctx context.Context, reservationID uuid.UUID, amount decimal.Decimal) (*domain.Transaction, error) {
	const op = "service.payment.Initiate"

	r, err := s.ledger.GetReservation(ctx, reservationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrReservationNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var out *domain.Transaction
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
			expired = true
			return tx.SetReservationStatus(ctx, cur.ID, domain.ReservationExpired, now)
		case cur.Status != domain.ReservationHeld:
			return fmt.Errorf("%w: reservation is %s", ErrInvalidState, cur.Status)
		}

		if _, err := tx.TransactionByReservation(ctx, cur.ID); err == nil {
			return fmt.Errorf("%w: reservation already has a transaction", ErrInvalidState)
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		session, err := tx.Session(ctx)
		if err != nil {
			return err
		}

		expected := session.Price.Mul(decimal.NewFromInt(int64(len(cur.SeatIDs))))
		if !amount.Equal(expected) {
			return &AmountMismatchError{Expected: expected, Got: amount}
		}

		t := &domain.Transaction{
			ID:            uuid.New(),
			ReservationID: cur.ID,
			Amount:        amount,
			Status:        domain.TransactionPending,
			CreatedAt:     now,
		}

		if err := tx.InsertTransaction(ctx, t); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("%w: reservation already has a transaction", ErrInvalidState)
			}
			return err
		}

		out = t
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if expired {
		return nil, fmt.Errorf("%s: %w", op, ErrExpired)
	}

	return out, nil
}

// Settle records the payment outcome of a pending transaction, then confirms
// (succeeded) or releases (failed) its reservation. The transaction's terminal
// state is committed before the reservation is touched.
//
// Returns:
//   - *domain.Transaction: the settled transaction, also returned with a *SettlementError.
//   - error: payment.ErrTransactionNotFound if the transaction does not exist.
//   - error: payment.ErrInvalidState if the transaction was already settled.
//   - error: *payment.SettlementError wrapping the ledger error when the reservation could not follow.
func (s *Service) Settle(ctx context.Context, transactionID uuid.UUID, succeeded bool) (*domain.Transaction, error) {
	const op = "service.payment.Settle"

	sessionID, err := s.ledger.SessionOfTransaction(ctx, transactionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrTransactionNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	status := domain.TransactionFailed
	if succeeded {
		status = domain.TransactionSucceeded
	}

	var settled *domain.Transaction

	err = s.uow.Do(ctx, sessionID, func(
		ctx context.Context,
		tx repository.LedgerTx,
		after func(uow.AfterCommit),
	) error {
		t, err := tx.Transaction(ctx, transactionID)
		if err != nil {
			return err
		}

		if t.Status != domain.TransactionPending {
			return fmt.Errorf("%w: transaction is %s", ErrInvalidState, t.Status)
		}

		now := s.cfg.Now()
		if err := tx.SettleTransaction(ctx, t.ID, status, now); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("%w: transaction is no longer pending", ErrInvalidState)
			}
			return err
		}

		t.Status = status
		t.SettledAt = &now
		settled = t

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if succeeded {
		_, err = s.reservations.Confirm(ctx, settled.ReservationID)
	} else {
		err = s.reservations.Release(ctx, settled.ReservationID)
	}
	if err != nil {
		s.logger.Error("transaction settled but reservation did not follow",
			slog.String("transaction_id", settled.ID.String()),
			slog.String("reservation_id", settled.ReservationID.String()),
			slog.String("status", string(status)),
			slog.Any("error", err),
		)
		return settled, fmt.Errorf("%s: %w", op, &SettlementError{TransactionID: settled.ID, Err: err})
	}

	return settled, nil
}

// Get returns a transaction by ID.
//
// Returns:
//   - error: payment.ErrTransactionNotFound if the transaction does not exist.
func (s *Service) Get(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	const op = "service.payment.Get"

	t, err := s.ledger.GetTransaction(ctx, transactionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrTransactionNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return t, nil
}
