package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kirinyoku/cinetix/internal/config"
	"github.com/kirinyoku/cinetix/internal/postgres"
	"github.com/kirinyoku/cinetix/internal/queue"
	"github.com/kirinyoku/cinetix/internal/redis"
	"github.com/kirinyoku/cinetix/internal/repository"
	"github.com/kirinyoku/cinetix/internal/repository/memory"
	postgresrepo "github.com/kirinyoku/cinetix/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/cinetix/internal/repository/redis"
	"github.com/kirinyoku/cinetix/internal/service"
	"github.com/kirinyoku/cinetix/internal/service/reservation"
	httpgin "github.com/kirinyoku/cinetix/internal/transport/http/gin"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	services   *service.Services
	httpServer *http.Server
	closers    []io.Closer
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	store, err := a.initStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	var (
		rdb    *goredis.Client
		cache  *redisrepo.Cache
		idem   *redisrepo.IdempotencyStore
		pubsub *redisrepo.SessionsPubSub
		deps   reservation.Deps
	)

	if cfg.Redis.Addr != "" {
		rdb, err = redis.New(ctx, redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		a.closers = append(a.closers, rdb)

		cache = redisrepo.New(rdb)
		pubsub = redisrepo.NewSessionsPubSub(rdb)
		idem = redisrepo.NewIdempotencyStore(rdb, cfg.Reservation.IdempotencyTTL)

		deps.Cache = cache
		deps.PubSub = pubsub
		deps.Limiter = redisrepo.NewSlidingWindowLimiter(rdb, "holds", cfg.Reservation.RateLimitHolds, cfg.Reservation.RateLimitWindow)
	} else {
		logger.Warn("REDIS_ADDR is empty: caching, rate limiting, idempotency and seat events are disabled")
	}

	if cfg.RabbitMQ.URL != "" {
		pub, err := queue.Dial(cfg.RabbitMQ.URL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to initialize rabbitmq: %w", err)
		}
		a.closers = append(a.closers, pub)
		deps.Queue = pub
	}

	a.services = service.NewServices(store, cache, deps, logger, service.Config{
		Reservation: reservation.Config{
			DefaultHoldTTL: cfg.Reservation.DefaultHoldTTL,
			MinHoldTTL:     cfg.Reservation.MinHoldTTL,
			MaxHoldTTL:     cfg.Reservation.MaxHoldTTL,
			SweepInterval:  cfg.Reservation.SweepInterval,
		},
	})

	streams, stopStreams := context.WithCancel(context.Background())

	router := httpgin.NewRouter(httpgin.Deps{
		Services:  a.services,
		Idem:      idem,
		PubSub:    pubsub,
		Streams:   streams,
		JWTSecret: cfg.Auth.JWTSecret,
	}, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	// Shutdown does not cancel request contexts; event streams are told separately
	a.httpServer.RegisterOnShutdown(stopStreams)

	return a, nil
}

func (a *App) initStore(ctx context.Context) (repository.Store, error) {
	if a.cfg.Storage.Driver == config.DriverMemory {
		a.logger.Warn("using in-memory storage; data is lost on restart")
		return memory.New(), nil
	}

	pgCfg := postgres.Config{
		User:     a.cfg.Postgres.User,
		Password: a.cfg.Postgres.Password,
		Host:     a.cfg.Postgres.Host,
		Port:     a.cfg.Postgres.Port,
		Name:     a.cfg.Postgres.Name,
		SSLMode:  a.cfg.Postgres.SSLMode,
	}
	dsn := pgCfg.DSN()

	if a.cfg.Storage.MigrateOnStart {
		if err := postgres.Migrate(dsn); err != nil {
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
		a.logger.Info("database migrations applied")
	}

	pool, err := postgres.New(ctx, dsn, a.cfg.Postgres.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}
	a.closers = append(a.closers, closerFunc(func() error {
		pool.Close()
		return nil
	}))

	return postgresrepo.NewStore(pool), nil
}

// Run serves HTTP and sweeps expired holds until ctx is cancelled or the
// process receives SIGINT/SIGTERM.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer a.close()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.services.Reservation.RunSweeper(gCtx)
	})

	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("failed to close resource", slog.Any("error", err))
		}
	}
	a.closers = nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
