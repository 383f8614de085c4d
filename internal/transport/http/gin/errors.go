package httpgin

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/cinetix/internal/service/catalog"
	"github.com/kirinyoku/cinetix/internal/service/payment"
	"github.com/kirinyoku/cinetix/internal/service/reservation"
)

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var rl *reservation.RateLimitedError
	if errors.As(err, &rl) {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(rl.RetryAfter.Seconds()))))
	}

	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}

	resp := ErrorResponse{Error: msg}

	var su *reservation.SeatsUnavailableError
	if errors.As(err, &su) {
		resp.SeatIDs = su.SeatIDs
	}

	c.JSON(status, resp)
}

// statusFor maps service errors to an HTTP status and a client-facing message.
func statusFor(err error) (int, string) {
	switch {
	// reservation ledger
	case errors.Is(err, reservation.ErrSeatsUnavailable):
		return http.StatusConflict, "seats unavailable"
	case errors.Is(err, reservation.ErrInvalidSeatSet):
		return http.StatusBadRequest, invalidMessage(err, reservation.ErrInvalidSeatSet)
	case errors.Is(err, reservation.ErrSessionNotFound):
		return http.StatusNotFound, "session not found"
	case errors.Is(err, reservation.ErrReservationNotFound):
		return http.StatusNotFound, "reservation not found"
	case errors.Is(err, reservation.ErrExpired):
		return http.StatusGone, "reservation expired"
	case errors.Is(err, reservation.ErrInvalidState):
		return http.StatusConflict, "reservation is not in the required state"
	case errors.Is(err, reservation.ErrRateLimited):
		return http.StatusTooManyRequests, "too many hold attempts"

	// payments
	case errors.Is(err, payment.ErrAmountMismatch):
		var am *payment.AmountMismatchError
		if errors.As(err, &am) {
			return http.StatusBadRequest, am.Error()
		}
		return http.StatusBadRequest, "amount mismatch"
	case errors.Is(err, payment.ErrReservationNotFound):
		return http.StatusNotFound, "reservation not found"
	case errors.Is(err, payment.ErrTransactionNotFound):
		return http.StatusNotFound, "transaction not found"
	case errors.Is(err, payment.ErrExpired):
		return http.StatusGone, "reservation expired"
	case errors.Is(err, payment.ErrInvalidState):
		return http.StatusConflict, "not in the required state"

	// catalog
	case errors.Is(err, catalog.ErrRoomNotFound):
		return http.StatusNotFound, "room not found"
	case errors.Is(err, catalog.ErrSessionNotFound):
		return http.StatusNotFound, "session not found"
	case errors.Is(err, catalog.ErrRoomConflict):
		return http.StatusConflict, "room name taken"
	case errors.Is(err, catalog.ErrSessionConflict):
		return http.StatusConflict, "session overlaps another session in the room"
	case errors.Is(err, catalog.ErrInvalidRoom):
		return http.StatusBadRequest, invalidMessage(err, catalog.ErrInvalidRoom)
	case errors.Is(err, catalog.ErrInvalidSession):
		return http.StatusBadRequest, invalidMessage(err, catalog.ErrInvalidSession)
	}

	return http.StatusInternalServerError, "internal error"
}

// invalidMessage trims the operation prefixes off a validation error so the
// client sees the sentinel and its detail only.
func invalidMessage(err, sentinel error) string {
	msg := err.Error()
	if i := strings.Index(msg, sentinel.Error()); i >= 0 {
		return msg[i:]
	}
	return sentinel.Error()
}
