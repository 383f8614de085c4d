package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReservationConfirmed(t *testing.T) {
	id := uuid.New()
	at := time.Date(2026, 3, 1, 18, 30, 0, 0, time.FixedZone("X", 3600))

	msg := NewReservationConfirmed(domain.Reservation{
		ID:        id,
		SessionID: 7,
		UserID:    42,
		SeatIDs:   []int64{3, 4},
		Status:    domain.ReservationConfirmed,
		UpdatedAt: at,
	})

	b, err := json.Marshal(msg)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"reservation_id": "`+id.String()+`",
		"session_id": 7,
		"user_id": 42,
		"seat_ids": [3, 4],
		"confirmed_at": "2026-03-01T17:30:00Z"
	}`, string(b))
}
