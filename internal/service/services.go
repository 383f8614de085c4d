package service

import (
	"log/slog"

	"github.com/kirinyoku/cinetix/internal/repository"
	redisrepo "github.com/kirinyoku/cinetix/internal/repository/redis"
	"github.com/kirinyoku/cinetix/internal/service/catalog"
	"github.com/kirinyoku/cinetix/internal/service/payment"
	"github.com/kirinyoku/cinetix/internal/service/reservation"
)

type Services struct {
	Catalog     *catalog.Service
	Reservation *reservation.Service
	Payment     *payment.Service
}

type Config struct {
	Catalog     catalog.Config
	Reservation reservation.Config
	Payment     payment.Config
}

// NewServices wires the services over one store. cache and deps members may
// be nil when redis or the broker are not configured.
func NewServices(
	store repository.Store,
	cache *redisrepo.Cache,
	deps reservation.Deps,
	logger *slog.Logger,
	cfg Config,
) *Services {
	res := reservation.New(store, deps, logger, cfg.Reservation)

	return &Services{
		Catalog:     catalog.New(store, cache, logger, cfg.Catalog),
		Reservation: res,
		Payment:     payment.New(store, res, logger, cfg.Payment),
	}
}
