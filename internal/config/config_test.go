package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"SERVER_HOST", "SERVER_PORT", "STORAGE_DRIVER", "MIGRATE_ON_START",
	"POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB", "POSTGRES_HOST", "POSTGRES_PORT",
	"POSTGRES_SSLMODE", "POSTGRES_MAX_CONNS",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"HOLD_TTL_DEFAULT", "HOLD_TTL_MIN", "HOLD_TTL_MAX", "SWEEP_INTERVAL",
	"RATE_LIMIT_HOLDS", "RATE_LIMIT_WINDOW", "IDEMPOTENCY_TTL",
	"JWT_SECRET", "RABBITMQ_URL", "LOG_LEVEL", "LOG_FORMAT",
}

func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()

	for _, k := range configKeys {
		t.Setenv(k, "")
	}
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

func TestNewMemoryDefaults(t *testing.T) {
	setEnv(t, map[string]string{
		"STORAGE_DRIVER": "memory",
		"JWT_SECRET":     "secret",
	})

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, ServerConfig{Host: "localhost", Port: 8080}, cfg.Server)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, 10*time.Minute, cfg.Reservation.DefaultHoldTTL)
	assert.Equal(t, 30*time.Second, cfg.Reservation.SweepInterval)
	assert.Equal(t, 10, cfg.Reservation.RateLimitHolds)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.RabbitMQ.URL)
}

func TestNewPostgres(t *testing.T) {
	setEnv(t, map[string]string{
		"POSTGRES_USER":      "cinetix",
		"POSTGRES_PASSWORD":  "pw",
		"POSTGRES_DB":        "cinetix",
		"POSTGRES_PORT":      "6543",
		"POSTGRES_MAX_CONNS": "20",
		"HOLD_TTL_DEFAULT":   "5m",
		"JWT_SECRET":         "secret",
	})

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.True(t, cfg.Storage.MigrateOnStart)
	assert.Equal(t, 6543, cfg.Postgres.Port)
	assert.Equal(t, int32(20), cfg.Postgres.MaxConns)
	assert.Equal(t, "disable", cfg.Postgres.SSLMode)
	assert.Equal(t, 5*time.Minute, cfg.Reservation.DefaultHoldTTL)
}

func TestNewErrors(t *testing.T) {
	base := map[string]string{"STORAGE_DRIVER": "memory", "JWT_SECRET": "secret"}

	tests := []struct {
		name string
		env  map[string]string
		msg  string
	}{
		{"missing postgres user", map[string]string{"STORAGE_DRIVER": "postgres"}, "POSTGRES_USER"},
		{"unknown driver", map[string]string{"STORAGE_DRIVER": "sqlite"}, "STORAGE_DRIVER"},
		{"missing secret", map[string]string{"JWT_SECRET": ""}, "JWT_SECRET"},
		{"bad port", map[string]string{"SERVER_PORT": "http"}, "SERVER_PORT"},
		{"bad duration", map[string]string{"SWEEP_INTERVAL": "soon"}, "SWEEP_INTERVAL"},
		{"negative duration", map[string]string{"HOLD_TTL_MAX": "-1m"}, "HOLD_TTL_MAX"},
		{"min above max", map[string]string{"HOLD_TTL_MIN": "1h"}, "HOLD_TTL_MIN"},
		{"default out of range", map[string]string{"HOLD_TTL_DEFAULT": "2h"}, "HOLD_TTL_DEFAULT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := map[string]string{}
			for k, v := range base {
				env[k] = v
			}
			for k, v := range tt.env {
				env[k] = v
			}
			setEnv(t, env)

			_, err := New()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
