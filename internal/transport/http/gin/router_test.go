package httpgin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/logger"
	"github.com/kirinyoku/cinetix/internal/repository/memory"
	"github.com/kirinyoku/cinetix/internal/service"
	"github.com/kirinyoku/cinetix/internal/service/reservation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const testSecret = "test-secret"

type RouterSuite struct {
	suite.Suite

	router *gin.Engine
	admin  string
	alice  string
	bob    string
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	log := logger.New(io.Discard, "error", "text")
	svcs := service.NewServices(memory.New(), nil, reservation.Deps{}, log, service.Config{})

	s.router = NewRouter(Deps{Services: svcs, JWTSecret: testSecret}, log)
	s.admin = s.token(1, RoleAdmin)
	s.alice = s.token(2, RoleUser)
	s.bob = s.token(3, RoleUser)
}

func (s *RouterSuite) token(userID int64, role string) string {
	tok, err := newToken(testSecret, userID, role, time.Hour)
	s.Require().NoError(err)
	return tok
}

func (s *RouterSuite) do(method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		s.Require().NoError(err)
		r = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// scheduleSession creates a 1x5 room and a session priced at 100.
func (s *RouterSuite) scheduleSession() (domain.Session, []domain.SeatWithStatus) {
	w := s.do(http.MethodPost, "/admin/rooms", s.admin, gin.H{"name": "Hall 1", "type": "2D", "rows": 1, "seats_per_row": 5})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	room := decode[domain.Room](s.T(), w)

	start := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	w = s.do(http.MethodPost, "/admin/sessions", s.admin, gin.H{
		"film_id":   7,
		"room_id":   room.ID,
		"starts_at": start.Format(time.RFC3339),
		"ends_at":   start.Add(2 * time.Hour).Format(time.RFC3339),
		"price":     "100.00",
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	session := decode[domain.Session](s.T(), w)

	w = s.do(http.MethodGet, fmt.Sprintf("/sessions/%d/seats", session.ID), "", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	seats := decode[[]domain.SeatWithStatus](s.T(), w)
	s.Require().Len(seats, 5)

	return session, seats
}

func (s *RouterSuite) TestHealthz() {
	w := s.do(http.MethodGet, "/healthz", "", nil)
	s.Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"status":"ok"}`, w.Body.String())
}

func (s *RouterSuite) TestAuth() {
	body := gin.H{"name": "Hall", "rows": 1, "seats_per_row": 1}

	s.Equal(http.StatusUnauthorized, s.do(http.MethodPost, "/admin/rooms", "", body).Code)
	s.Equal(http.StatusUnauthorized, s.do(http.MethodPost, "/admin/rooms", "garbage", body).Code)

	forged, err := newToken("other-secret", 1, RoleAdmin, time.Hour)
	s.Require().NoError(err)
	s.Equal(http.StatusUnauthorized, s.do(http.MethodPost, "/admin/rooms", forged, body).Code)

	s.Equal(http.StatusForbidden, s.do(http.MethodPost, "/admin/rooms", s.alice, body).Code)
	s.Equal(http.StatusUnauthorized, s.do(http.MethodPost, "/sessions/1/reservations", "", gin.H{"seat_ids": []int64{1}}).Code)
}

func (s *RouterSuite) TestCreateSessionValidation() {
	w := s.do(http.MethodPost, "/admin/sessions", s.admin, gin.H{
		"film_id":   1,
		"room_id":   1,
		"starts_at": "tomorrow",
		"ends_at":   "2026-01-01T20:00:00Z",
		"price":     "100",
	})
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/admin/sessions", s.admin, gin.H{
		"film_id":   1,
		"room_id":   42,
		"starts_at": "2026-01-01T18:00:00Z",
		"ends_at":   "2026-01-01T20:00:00Z",
		"price":     "100",
	})
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *RouterSuite) TestSeatMapETag() {
	session, _ := s.scheduleSession()
	path := fmt.Sprintf("/sessions/%d/seats", session.ID)

	w := s.do(http.MethodGet, path, "", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	tag := w.Header().Get("ETag")
	s.NotEmpty(tag)

	w = s.do(http.MethodGet, path, "", nil, "If-None-Match", tag)
	s.Equal(http.StatusNotModified, w.Code)
	s.Empty(w.Body.Bytes())

	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/sessions/abc/seats", "", nil).Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/sessions/999/seats", "", nil).Code)
}

func (s *RouterSuite) TestEventsDisabledWithoutRedis() {
	session, _ := s.scheduleSession()

	w := s.do(http.MethodGet, fmt.Sprintf("/sessions/%d/events", session.ID), "", nil)
	s.Equal(http.StatusServiceUnavailable, w.Code)
}

func (s *RouterSuite) TestBookingFlow() {
	session, seats := s.scheduleSession()
	holdPath := fmt.Sprintf("/sessions/%d/reservations", session.ID)

	w := s.do(http.MethodPost, holdPath, s.alice, gin.H{"seat_ids": []int64{seats[0].ID, seats[1].ID}})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	res := decode[domain.Reservation](s.T(), w)
	s.Equal(domain.ReservationHeld, res.Status)
	s.Equal(int64(2), res.UserID)

	w = s.do(http.MethodPost, holdPath, s.bob, gin.H{"seat_ids": []int64{seats[1].ID, seats[2].ID}})
	s.Require().Equal(http.StatusConflict, w.Code)
	conflict := decode[ErrorResponse](s.T(), w)
	s.Equal([]int64{seats[1].ID}, conflict.SeatIDs)

	w = s.do(http.MethodGet, fmt.Sprintf("/sessions/%d/availability", session.ID), "", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	counts := decode[AvailabilityResponse](s.T(), w)
	s.Equal(int64(2), counts.Held)
	s.Equal(int64(3), counts.Available)

	resPath := "/reservations/" + res.ID.String()
	s.Equal(http.StatusForbidden, s.do(http.MethodGet, resPath, s.bob, nil).Code)
	s.Equal(http.StatusOK, s.do(http.MethodGet, resPath, s.admin, nil).Code)

	w = s.do(http.MethodPost, resPath+"/transactions", s.alice, gin.H{"amount": "150"})
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, resPath+"/transactions", s.alice, gin.H{"amount": "200.004"})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Contains(decode[ErrorResponse](s.T(), w).Error, "decimal places")

	w = s.do(http.MethodPost, resPath+"/transactions", s.alice, gin.H{"amount": "200.00"})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	tr := decode[domain.Transaction](s.T(), w)
	s.Equal(domain.TransactionPending, tr.Status)

	trPath := "/transactions/" + tr.ID.String()
	s.Equal(http.StatusOK, s.do(http.MethodGet, trPath, s.alice, nil).Code)
	s.Equal(http.StatusForbidden, s.do(http.MethodPost, trPath+"/settle", s.bob, gin.H{"succeeded": true}).Code)
	// buyers cannot mark their own payment as succeeded
	s.Equal(http.StatusForbidden, s.do(http.MethodPost, trPath+"/settle", s.alice, gin.H{"succeeded": true}).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, trPath+"/settle", s.admin, gin.H{}).Code)

	w = s.do(http.MethodGet, resPath, s.alice, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(domain.ReservationHeld, decode[domain.Reservation](s.T(), w).Status)

	w = s.do(http.MethodPost, trPath+"/settle", s.admin, gin.H{"succeeded": true})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal(domain.TransactionSucceeded, decode[domain.Transaction](s.T(), w).Status)

	s.Equal(http.StatusConflict, s.do(http.MethodPost, trPath+"/settle", s.admin, gin.H{"succeeded": false}).Code)

	w = s.do(http.MethodGet, resPath, s.alice, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(domain.ReservationConfirmed, decode[domain.Reservation](s.T(), w).Status)

	// a refunded booking gives its seats back
	s.Equal(http.StatusNoContent, s.do(http.MethodDelete, resPath, s.alice, nil).Code)
	w = s.do(http.MethodPost, holdPath, s.bob, gin.H{"seat_ids": []int64{seats[0].ID, seats[1].ID}})
	s.Equal(http.StatusCreated, w.Code, w.Body.String())
}

func (s *RouterSuite) TestReleaseFreesSeats() {
	session, seats := s.scheduleSession()
	holdPath := fmt.Sprintf("/sessions/%d/reservations", session.ID)

	w := s.do(http.MethodPost, holdPath, s.alice, gin.H{"seat_ids": []int64{seats[4].ID}, "ttl_sec": 60})
	s.Require().Equal(http.StatusCreated, w.Code)
	res := decode[domain.Reservation](s.T(), w)

	s.Equal(http.StatusNoContent, s.do(http.MethodDelete, "/reservations/"+res.ID.String(), s.alice, nil).Code)
	s.Equal(http.StatusNoContent, s.do(http.MethodDelete, "/reservations/"+res.ID.String(), s.alice, nil).Code)

	w = s.do(http.MethodPost, holdPath, s.bob, gin.H{"seat_ids": []int64{seats[4].ID}})
	s.Equal(http.StatusCreated, w.Code)

	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, holdPath, s.bob, gin.H{"seat_ids": []int64{}}).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, holdPath, s.bob, gin.H{"seat_ids": []int64{seats[3].ID}, "ttl_sec": int64(1) << 40}).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, holdPath, s.bob, gin.H{"seat_ids": []int64{seats[3].ID}, "ttl_sec": 86401}).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/reservations/not-a-uuid", s.bob, nil).Code)
}

func TestEtagMatches(t *testing.T) {
	tag := `W/"abc"`

	assert.False(t, etagMatches("", tag))
	assert.True(t, etagMatches(`W/"abc"`, tag))
	assert.True(t, etagMatches(`"abc"`, tag))
	assert.True(t, etagMatches(`"x", W/"abc"`, tag))
	assert.True(t, etagMatches("*", tag))
	assert.False(t, etagMatches(`"abd"`, tag))
}
