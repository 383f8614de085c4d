package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of decimal places prices and amounts are stored
// with.
const MoneyPlaces = 2

// HasCents reports whether d is representable with MoneyPlaces decimal places.
// Trailing zeros beyond them are fine.
func HasCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(MoneyPlaces))
}

type SeatStatus string

const (
	SeatAvailable SeatStatus = "available"
	SeatHeld      SeatStatus = "held"
	SeatSold      SeatStatus = "sold"
)

type ReservationStatus string

const (
	ReservationHeld      ReservationStatus = "held"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationReleased  ReservationStatus = "released"
	ReservationExpired   ReservationStatus = "expired"
)

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionSucceeded TransactionStatus = "succeeded"
	TransactionFailed    TransactionStatus = "failed"
)

type Room struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Rows        int    `json:"rows"`
	SeatsPerRow int    `json:"seats_per_row"`
	TotalSeats  int    `json:"total_seats"`
}

type Seat struct {
	ID     int64  `json:"id"`
	RoomID int64  `json:"room_id"`
	Row    int    `json:"row"`
	Number int    `json:"number"`
	Label  string `json:"label"`
}

// SeatLabel renders a seat position as row letter plus number, e.g. "A1".
func SeatLabel(row, number int) string {
	return fmt.Sprintf("%c%d", rune('A'+row-1), number)
}

type Session struct {
	ID       int64           `json:"id"`
	FilmID   int64           `json:"film_id"`
	RoomID   int64           `json:"room_id"`
	StartsAt time.Time       `json:"starts_at"`
	EndsAt   time.Time       `json:"ends_at"`
	Price    decimal.Decimal `json:"price"`
}

// Overlaps reports whether the half-open intervals [StartsAt, EndsAt) of s and
// other intersect.
func (s Session) Overlaps(other Session) bool {
	return s.StartsAt.Before(other.EndsAt) && other.StartsAt.Before(s.EndsAt)
}

type SeatWithStatus struct {
	Seat
	Status SeatStatus `json:"status"`
}

type SessionAvailability struct {
	Available int64 `json:"available"`
	Held      int64 `json:"held"`
	Sold      int64 `json:"sold"`
	Total     int64 `json:"total"`
}

type Reservation struct {
	ID        uuid.UUID         `json:"id"`
	SessionID int64             `json:"session_id"`
	UserID    int64             `json:"user_id"`
	SeatIDs   []int64           `json:"seat_ids"`
	Status    ReservationStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Active reports whether r occupies its seats at now.
func (r *Reservation) Active(now time.Time) bool {
	switch r.Status {
	case ReservationConfirmed:
		return true
	case ReservationHeld:
		return now.Before(r.ExpiresAt)
	default:
		return false
	}
}

// HoldElapsed reports whether r is still held but its hold timer has run out.
func (r *Reservation) HoldElapsed(now time.Time) bool {
	return r.Status == ReservationHeld && !now.Before(r.ExpiresAt)
}

type Transaction struct {
	ID            uuid.UUID         `json:"id"`
	ReservationID uuid.UUID         `json:"reservation_id"`
	Amount        decimal.Decimal   `json:"amount"`
	Status        TransactionStatus `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	SettledAt     *time.Time        `json:"settled_at,omitempty"`
}
