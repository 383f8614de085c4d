package reservation

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrInvalidSeatSet      = errors.New("invalid seat set")
	ErrSeatsUnavailable    = errors.New("some seats are unavailable")
	ErrInvalidState        = errors.New("reservation is not in the required state")
	ErrExpired             = errors.New("reservation hold has expired")
	ErrRateLimited         = errors.New("rate limited")
)

// SeatsUnavailableError lists the requested seats that already have an active
// reservation in the session, in ascending order.
type SeatsUnavailableError struct {
	SeatIDs []int64
}

func (e *SeatsUnavailableError) Error() string {
	return fmt.Sprintf("some or all seats are unavailable: %v", e.SeatIDs)
}

func (e *SeatsUnavailableError) Is(target error) bool {
	return target == ErrSeatsUnavailable
}

type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.RetryAfter)
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}
