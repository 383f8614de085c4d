package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Server      ServerConfig
	Storage     StorageConfig
	Postgres    PostgresConfig
	Redis       RedisConfig
	Reservation ReservationConfig
	Auth        AuthConfig
	RabbitMQ    RabbitMQConfig
	Log         LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type StorageConfig struct {
	// Driver is postgres or memory.
	Driver         string
	MigrateOnStart bool
}

type RedisConfig struct {
	// Addr empty disables caching, rate limiting, idempotency and pub/sub.
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
	MaxConns int32
}

type ReservationConfig struct {
	DefaultHoldTTL  time.Duration
	MinHoldTTL      time.Duration
	MaxHoldTTL      time.Duration
	SweepInterval   time.Duration
	RateLimitHolds  int
	RateLimitWindow time.Duration
	IdempotencyTTL  time.Duration
}

type AuthConfig struct {
	JWTSecret string
}

type RabbitMQConfig struct {
	// URL empty disables confirmation messages.
	URL string
}

type LogConfig struct {
	Level  string
	Format string
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	serverPort, err := intEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	serverCfg := ServerConfig{
		Host: stringEnv("SERVER_HOST", "localhost"),
		Port: serverPort,
	}

	migrateOnStart, err := boolEnv("MIGRATE_ON_START", true)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	storageCfg := StorageConfig{
		Driver:         stringEnv("STORAGE_DRIVER", DriverPostgres),
		MigrateOnStart: migrateOnStart,
	}

	var postgresCfg PostgresConfig

	switch storageCfg.Driver {
	case DriverPostgres:
		postgresCfg, err = postgresFromEnv()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	case DriverMemory:
	default:
		return nil, fmt.Errorf("%s: invalid STORAGE_DRIVER %q", op, storageCfg.Driver)
	}

	redisDB, err := intEnv("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	redisCfg := RedisConfig{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       redisDB,
	}

	reservationCfg, err := reservationFromEnv()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("%s: missing JWT_SECRET", op)
	}

	return &Config{
		Server:      serverCfg,
		Storage:     storageCfg,
		Postgres:    postgresCfg,
		Redis:       redisCfg,
		Reservation: reservationCfg,
		Auth:        AuthConfig{JWTSecret: jwtSecret},
		RabbitMQ:    RabbitMQConfig{URL: os.Getenv("RABBITMQ_URL")},
		Log: LogConfig{
			Level:  stringEnv("LOG_LEVEL", "info"),
			Format: stringEnv("LOG_FORMAT", "text"),
		},
	}, nil
}

func postgresFromEnv() (PostgresConfig, error) {
	port, err := intEnv("POSTGRES_PORT", 5432)
	if err != nil {
		return PostgresConfig{}, err
	}

	maxConns, err := intEnv("POSTGRES_MAX_CONNS", 0)
	if err != nil {
		return PostgresConfig{}, err
	}

	cfg := PostgresConfig{
		User:     os.Getenv("POSTGRES_USER"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		Name:     os.Getenv("POSTGRES_DB"),
		Host:     stringEnv("POSTGRES_HOST", "localhost"),
		Port:     port,
		SSLMode:  stringEnv("POSTGRES_SSLMODE", "disable"),
		MaxConns: int32(maxConns),
	}

	if cfg.User == "" {
		return PostgresConfig{}, fmt.Errorf("missing POSTGRES_USER")
	}

	if cfg.Password == "" {
		return PostgresConfig{}, fmt.Errorf("missing POSTGRES_PASSWORD")
	}

	if cfg.Name == "" {
		return PostgresConfig{}, fmt.Errorf("missing POSTGRES_DB")
	}

	return cfg, nil
}

func reservationFromEnv() (ReservationConfig, error) {
	var cfg ReservationConfig
	var err error

	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"HOLD_TTL_DEFAULT", 10 * time.Minute, &cfg.DefaultHoldTTL},
		{"HOLD_TTL_MIN", 30 * time.Second, &cfg.MinHoldTTL},
		{"HOLD_TTL_MAX", 30 * time.Minute, &cfg.MaxHoldTTL},
		{"SWEEP_INTERVAL", 30 * time.Second, &cfg.SweepInterval},
		{"RATE_LIMIT_WINDOW", time.Minute, &cfg.RateLimitWindow},
		{"IDEMPOTENCY_TTL", 2 * time.Hour, &cfg.IdempotencyTTL},
	}

	for _, d := range durations {
		if *d.dest, err = durationEnv(d.key, d.def); err != nil {
			return ReservationConfig{}, err
		}
	}

	if cfg.RateLimitHolds, err = intEnv("RATE_LIMIT_HOLDS", 10); err != nil {
		return ReservationConfig{}, err
	}

	if cfg.MinHoldTTL > cfg.MaxHoldTTL {
		return ReservationConfig{}, fmt.Errorf("HOLD_TTL_MIN %s exceeds HOLD_TTL_MAX %s", cfg.MinHoldTTL, cfg.MaxHoldTTL)
	}

	if cfg.DefaultHoldTTL < cfg.MinHoldTTL || cfg.DefaultHoldTTL > cfg.MaxHoldTTL {
		return ReservationConfig{}, fmt.Errorf("HOLD_TTL_DEFAULT %s outside [%s, %s]",
			cfg.DefaultHoldTTL, cfg.MinHoldTTL, cfg.MaxHoldTTL)
	}

	return cfg, nil
}

func stringEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return n, nil
}

func boolEnv(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}

	return b, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}

	return d, nil
}
