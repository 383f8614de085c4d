package redis

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idemLocked = "LOCK"
	idemResult = "RES:"
)

// IdempotencyStore remembers the response of a request keyed by the client's
// Idempotency-Key. A key is first locked while the request runs and then
// replaced by the response payload.
type IdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewIdempotencyStore(rdb *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

// AcquireLock marks key as in progress. It reports false when the key is
// already locked or already holds a result.
func (s *IdempotencyStore) AcquireLock(ctx context.Context, key string, lockTTL time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, key, idemLocked, lockTTL).Result()
}

func (s *IdempotencyStore) SaveResult(ctx context.Context, key string, jsonPayload string) error {
	return s.rdb.Set(ctx, key, idemResult+jsonPayload, s.ttl).Err()
}

func (s *IdempotencyStore) GetResult(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	if payload, ok := strings.CutPrefix(v, idemResult); ok {
		return payload, true, nil
	}

	return "", false, nil
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
