package httpgin

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/shopspring/decimal"
)

type CreateRoomRequest struct {
	Name        string `json:"name" binding:"required"`
	Type        string `json:"type"`
	Rows        int    `json:"rows" binding:"required,min=1,max=26"`
	SeatsPerRow int    `json:"seats_per_row" binding:"required,min=1,max=100"`
}

type CreateSessionRequest struct {
	FilmID   int64            `json:"film_id" binding:"required,gt=0"`
	RoomID   int64            `json:"room_id" binding:"required,gt=0"`
	StartsAt string           `json:"starts_at" binding:"required,rfc3339"`
	EndsAt   string           `json:"ends_at" binding:"required,rfc3339"`
	Price    *decimal.Decimal `json:"price" binding:"required" swaggertype:"string" example:"150.00"`
}

type CreateHoldRequest struct {
	SeatIDs []int64 `json:"seat_ids" binding:"required,min=1,dive,gt=0"`
	TTLSec  int     `json:"ttl_sec" binding:"min=0,max=86400"`
}

type InitiateTransactionRequest struct {
	Amount *decimal.Decimal `json:"amount" binding:"required" swaggertype:"string" example:"450.00"`
}

type SettleTransactionRequest struct {
	Succeeded *bool `json:"succeeded" binding:"required"`
}

type ErrorResponse struct {
	Error   string  `json:"error"`
	SeatIDs []int64 `json:"seat_ids,omitempty"`
}

// SettlementErrorResponse is returned when a transaction settled but its
// reservation could not follow.
type SettlementErrorResponse struct {
	Error       string              `json:"error"`
	Transaction *domain.Transaction `json:"transaction"`
}

type AvailabilityResponse struct {
	SessionID int64 `json:"session_id"`
	domain.SessionAvailability
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func validateRFC3339(fl validator.FieldLevel) bool {
	_, err := parseRFC3339(fl.Field().String())
	return err == nil
}
