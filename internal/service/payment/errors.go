package payment

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrReservationNotFound = errors.New("reservation not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInvalidState        = errors.New("not in the required state")
	ErrExpired             = errors.New("reservation hold has expired")
	ErrAmountMismatch      = errors.New("amount does not match the reservation price")
)

type AmountMismatchError struct {
	Expected decimal.Decimal
	Got      decimal.Decimal
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("amount %s does not match required %s", e.Got.String(), e.Expected.String())
}

func (e *AmountMismatchError) Is(target error) bool {
	return target == ErrAmountMismatch
}

// SettlementError reports that a transaction reached its terminal state but
// the reservation could not follow it.
type SettlementError struct {
	TransactionID uuid.UUID
	Err           error
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("transaction %s settled but reservation was not updated: %v", e.TransactionID, e.Err)
}

func (e *SettlementError) Unwrap() error {
	return e.Err
}
