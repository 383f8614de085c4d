package httpgin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kirinyoku/cinetix/internal/domain"
	redisrepo "github.com/kirinyoku/cinetix/internal/repository/redis"
	"github.com/kirinyoku/cinetix/internal/service"
	"github.com/kirinyoku/cinetix/internal/service/payment"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const (
	idemLockTTL      = 60 * time.Second
	sseKeepAlive     = 15 * time.Second
	sseBufferedTicks = 16
)

// Deps are the collaborators of the router. Idem and PubSub may be nil, which
// disables idempotent replays and the event stream.
type Deps struct {
	Services  *service.Services
	Idem      *redisrepo.IdempotencyStore
	PubSub    *redisrepo.SessionsPubSub
	JWTSecret string

	// Streams is cancelled when the server shuts down to end open event
	// streams. Nil means streams end only when the client goes away.
	Streams context.Context
}

func NewRouter(deps Deps, logger *slog.Logger, middlewares ...gin.HandlerFunc) *gin.Engine {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("rfc3339", validateRFC3339)
	}

	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	svcs := deps.Services

	// public
	r.GET("/rooms/:id/seats", handleRoomSeats(svcs))
	r.GET("/sessions", handleListSessions(svcs))
	r.GET("/sessions/:id", handleGetSession(svcs))
	r.GET("/sessions/:id/seats", handleSeatMap(svcs))
	r.GET("/sessions/:id/availability", handleAvailability(svcs))
	r.GET("/sessions/:id/events", handleSessionEvents(svcs, deps.PubSub, deps.Streams, logger))

	authed := r.Group("/", AuthMiddleware(deps.JWTSecret))
	{
		authed.POST("/sessions/:id/reservations", handleHold(svcs, deps.Idem))
		authed.GET("/reservations/:id", handleGetReservation(svcs))
		authed.DELETE("/reservations/:id", handleReleaseReservation(svcs))
		authed.POST("/reservations/:id/transactions", handleInitiateTransaction(svcs))
		authed.GET("/transactions/:id", handleGetTransaction(svcs))
		// settlement carries the payment provider's outcome
		authed.POST("/transactions/:id/settle", RequireRole(RoleAdmin), handleSettleTransaction(svcs))
	}

	admin := r.Group("/admin", AuthMiddleware(deps.JWTSecret), RequireRole(RoleAdmin))
	{
		admin.POST("/rooms", handleCreateRoom(svcs))
		admin.POST("/sessions", handleCreateSession(svcs))
	}

	return r
}

// @Summary  Create room with its seat grid
// @Tags     admin
// @Security BearerAuth
// @Param    req body  CreateRoomRequest true "payload"
// @Success  201 {object} domain.Room
// @Failure  400 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "name taken"
// @Router   /admin/rooms [post]
func handleCreateRoom(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateRoomRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		room, err := svcs.Catalog.CreateRoom(c.Request.Context(), req.Name, req.Type, req.Rows, req.SeatsPerRow)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, room)
	}
}

// @Summary  List seats of a room
// @Tags     catalog
// @Param    id  path  int  true  "Room ID"
// @Success  200 {array}  domain.Seat
// @Failure  404 {object} ErrorResponse
// @Router   /rooms/{id}/seats [get]
func handleRoomSeats(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		seats, err := svcs.Catalog.SeatsForRoom(c.Request.Context(), roomID)
		if err != nil {
			respondErr(c, err)
			return
		}

		writeCachedJSON(c, http.StatusOK, seats, "public, max-age=600")
	}
}

// @Summary  Schedule a session
// @Tags     admin
// @Security BearerAuth
// @Param    req body  CreateSessionRequest true "payload"
// @Success  201 {object} domain.Session
// @Failure  400 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse "room not found"
// @Failure  409 {object} ErrorResponse "overlaps another session"
// @Router   /admin/sessions [post]
func handleCreateSession(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		// both parse: the binding already checked rfc3339
		starts, _ := parseRFC3339(req.StartsAt)
		ends, _ := parseRFC3339(req.EndsAt)

		session, err := svcs.Catalog.CreateSession(c.Request.Context(), domain.Session{
			FilmID:   req.FilmID,
			RoomID:   req.RoomID,
			StartsAt: starts,
			EndsAt:   ends,
			Price:    *req.Price,
		})
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, session)
	}
}

// @Summary  List sessions
// @Tags     catalog
// @Param    film_id query int false "Film ID"
// @Success  200 {array} domain.Session
// @Router   /sessions [get]
func handleListSessions(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var filmID int64
		if s := c.Query("film_id"); s != "" {
			v, err := strconv.ParseInt(s, 10, 64)
			if err != nil || v < 0 {
				badRequest(c, "invalid film_id")
				return
			}
			filmID = v
		}

		sessions, err := svcs.Catalog.ListSessions(c.Request.Context(), filmID)
		if err != nil {
			respondErr(c, err)
			return
		}

		writeCachedJSON(c, http.StatusOK, sessions, "public, max-age=30")
	}
}

// @Summary  Get session
// @Tags     catalog
// @Param    id  path  int  true  "Session ID"
// @Success  200 {object} domain.Session
// @Failure  404 {object} ErrorResponse
// @Router   /sessions/{id} [get]
func handleGetSession(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		session, err := svcs.Catalog.GetSession(c.Request.Context(), sessionID)
		if err != nil {
			respondErr(c, err)
			return
		}

		writeCachedJSON(c, http.StatusOK, session, "public, max-age=60")
	}
}

// @Summary  Seat map of a session
// @Tags     catalog
// @Param    id  path  int  true  "Session ID"
// @Success  200 {array}  domain.SeatWithStatus
// @Failure  404 {object} ErrorResponse
// @Router   /sessions/{id}/seats [get]
func handleSeatMap(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		seats, err := svcs.Catalog.SeatMap(c.Request.Context(), sessionID)
		if err != nil {
			respondErr(c, err)
			return
		}

		writeCachedJSON(c, http.StatusOK, seats, "no-cache")
	}
}

// @Summary  Availability counters of a session
// @Tags     catalog
// @Param    id  path  int  true  "Session ID"
// @Success  200 {object} AvailabilityResponse
// @Failure  404 {object} ErrorResponse
// @Router   /sessions/{id}/availability [get]
func handleAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		counts, err := svcs.Catalog.Availability(c.Request.Context(), sessionID)
		if err != nil {
			respondErr(c, err)
			return
		}

		writeCachedJSON(c, http.StatusOK, AvailabilityResponse{
			SessionID:           sessionID,
			SessionAvailability: *counts,
		}, "public, max-age=5")
	}
}

// @Summary  Stream seat map changes of a session
// @Tags     catalog
// @Produce  text/event-stream
// @Param    id  path  int  true  "Session ID"
// @Success  200 {object} redisrepo.SessionChanged
// @Failure  404 {object} ErrorResponse
// @Failure  503 {object} ErrorResponse "notifications disabled"
// @Router   /sessions/{id}/events [get]
func handleSessionEvents(
	svcs *service.Services,
	pubsub *redisrepo.SessionsPubSub,
	streams context.Context,
	logger *slog.Logger,
) gin.HandlerFunc {
	if streams == nil {
		streams = context.Background()
	}

	return func(c *gin.Context) {
		sessionID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		if pubsub == nil {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "notifications are disabled"})
			return
		}

		if _, err := svcs.Catalog.GetSession(c.Request.Context(), sessionID); err != nil {
			respondErr(c, err)
			return
		}

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		stop := context.AfterFunc(streams, cancel)
		defer stop()

		events := make(chan redisrepo.SessionChanged, sseBufferedTicks)
		go func() {
			err := pubsub.Subscribe(ctx, func(ctx context.Context, msg redisrepo.SessionChanged) {
				if msg.SessionID != sessionID {
					return
				}
				select {
				case events <- msg:
				default:
					// the client is behind; it refetches on the next event anyway
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("session event subscription ended", slog.Int64("session_id", sessionID), slog.Any("error", err))
			}
			cancel()
		}()

		keepAlive := time.NewTicker(sseKeepAlive)
		defer keepAlive.Stop()

		c.Header("Cache-Control", "no-cache")
		c.Header("X-Accel-Buffering", "no")

		c.Stream(func(w io.Writer) bool {
			select {
			case <-ctx.Done():
				return false
			case msg := <-events:
				c.SSEvent(msg.Type, msg)
				return true
			case <-keepAlive.C:
				c.SSEvent("ping", gin.H{"ts_unix": time.Now().Unix()})
				return true
			}
		})
	}
}

// @Summary  Hold seats (idempotent)
// @Tags     reservations
// @Security BearerAuth
// @Param    id  path  int  true  "Session ID"
// @Param    Idempotency-Key header string false "replays the first successful response"
// @Param    req body  CreateHoldRequest true "payload"
// @Success  201 {object} domain.Reservation
// @Failure  400 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "seats unavailable, with seat_ids"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /sessions/{id}/reservations [post]
func handleHold(svcs *service.Services, idem *redisrepo.IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		var req CreateHoldRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		ctx := c.Request.Context()
		userID := claimsFrom(c).UserID

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemHold(sessionID, userID, idemKey)

			if replayIdem(c, idem, idemStorageKey, idemKey) {
				return
			}

			locked, err := idem.AcquireLock(ctx, idemStorageKey, idemLockTTL)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if replayIdem(c, idem, idemStorageKey, idemKey) {
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			}
		}

		res, err := holdSeats(c, svcs, sessionID, userID, req)
		if err != nil {
			if idemStorageKey != "" {
				_ = idem.Release(ctx, idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		if idemStorageKey != "" {
			if b, err := json.Marshal(res); err == nil {
				_ = idem.SaveResult(ctx, idemStorageKey, string(b))
			}
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, res)
	}
}

func holdSeats(
	c *gin.Context,
	svcs *service.Services,
	sessionID, userID int64,
	req CreateHoldRequest,
) (*domain.Reservation, error) {
	ctx := c.Request.Context()

	if err := svcs.Reservation.CheckRate(ctx, "user:"+strconv.FormatInt(userID, 10)); err != nil {
		return nil, err
	}

	return svcs.Reservation.Hold(ctx, sessionID, req.SeatIDs, userID, time.Duration(req.TTLSec)*time.Second)
}

func replayIdem(c *gin.Context, idem *redisrepo.IdempotencyStore, storageKey, idemKey string) bool {
	payload, ok, _ := idem.GetResult(c.Request.Context(), storageKey)
	if !ok {
		return false
	}

	c.Header("Idempotency-Key", idemKey)
	c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
	return true
}

// @Summary  Get reservation
// @Tags     reservations
// @Security BearerAuth
// @Param    id  path  string  true  "Reservation ID (uuid)"
// @Success  200 {object} domain.Reservation
// @Failure  403 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Router   /reservations/{id} [get]
func handleGetReservation(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, ok := ownedReservation(c, svcs)
		if !ok {
			return
		}

		c.JSON(http.StatusOK, res)
	}
}

// @Summary  Release reservation
// @Tags     reservations
// @Security BearerAuth
// @Param    id  path  string  true  "Reservation ID (uuid)"
// @Success  204
// @Failure  403 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Router   /reservations/{id} [delete]
func handleReleaseReservation(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, ok := ownedReservation(c, svcs)
		if !ok {
			return
		}

		if err := svcs.Reservation.Release(c.Request.Context(), res.ID); err != nil {
			respondErr(c, err)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// @Summary  Start payment of a reservation
// @Tags     payments
// @Security BearerAuth
// @Param    id  path  string  true  "Reservation ID (uuid)"
// @Param    req body  InitiateTransactionRequest true "payload"
// @Success  201 {object} domain.Transaction
// @Failure  400 {object} ErrorResponse "amount mismatch"
// @Failure  409 {object} ErrorResponse "reservation not held"
// @Failure  410 {object} ErrorResponse "hold expired"
// @Router   /reservations/{id}/transactions [post]
func handleInitiateTransaction(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req InitiateTransactionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		if !domain.HasCents(*req.Amount) {
			badRequest(c, fmt.Sprintf("amount has more than %d decimal places", domain.MoneyPlaces))
			return
		}

		res, ok := ownedReservation(c, svcs)
		if !ok {
			return
		}

		tr, err := svcs.Payment.Initiate(c.Request.Context(), res.ID, *req.Amount)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, tr)
	}
}

// @Summary  Get transaction
// @Tags     payments
// @Security BearerAuth
// @Param    id  path  string  true  "Transaction ID (uuid)"
// @Success  200 {object} domain.Transaction
// @Failure  404 {object} ErrorResponse
// @Router   /transactions/{id} [get]
func handleGetTransaction(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		tr, ok := ownedTransaction(c, svcs)
		if !ok {
			return
		}

		c.JSON(http.StatusOK, tr)
	}
}

// @Summary  Settle transaction
// @Tags     payments
// @Security BearerAuth
// @Param    id  path  string  true  "Transaction ID (uuid)"
// @Param    req body  SettleTransactionRequest true "payload"
// @Success  200 {object} domain.Transaction
// @Failure  403 {object} ErrorResponse "admin only"
// @Failure  409 {object} ErrorResponse "already settled"
// @Failure  410 {object} SettlementErrorResponse "reservation expired before settlement"
// @Router   /transactions/{id}/settle [post]
func handleSettleTransaction(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SettleTransactionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		tr, ok := ownedTransaction(c, svcs)
		if !ok {
			return
		}

		settled, err := svcs.Payment.Settle(c.Request.Context(), tr.ID, *req.Succeeded)
		if err != nil {
			var se *payment.SettlementError
			if errors.As(err, &se) && settled != nil {
				_ = c.Error(err)
				status, msg := statusFor(se.Err)
				c.JSON(status, SettlementErrorResponse{Error: msg, Transaction: settled})
				return
			}
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, settled)
	}
}

// --- Helpers ---

func ownedReservation(c *gin.Context, svcs *service.Services) (*domain.Reservation, bool) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return nil, false
	}

	res, err := svcs.Reservation.Get(c.Request.Context(), id)
	if err != nil {
		respondErr(c, err)
		return nil, false
	}

	if !canAccess(c, res.UserID) {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "reservation belongs to another user"})
		return nil, false
	}

	return res, true
}

func ownedTransaction(c *gin.Context, svcs *service.Services) (*domain.Transaction, bool) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return nil, false
	}

	tr, err := svcs.Payment.Get(c.Request.Context(), id)
	if err != nil {
		respondErr(c, err)
		return nil, false
	}

	res, err := svcs.Reservation.Get(c.Request.Context(), tr.ReservationID)
	if err != nil {
		respondErr(c, err)
		return nil, false
	}

	if !canAccess(c, res.UserID) {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "transaction belongs to another user"})
		return nil, false
	}

	return tr, true
}

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	v, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return v, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}
