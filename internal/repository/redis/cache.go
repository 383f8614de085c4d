package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// loadTimeout bounds a shared load, which no single caller can cancel.
const loadTimeout = 5 * time.Second

// Cache is a read-through JSON cache for catalog reads. A failing redis never
// fails a read; the loader result is served instead.
type Cache struct {
	rdb   *redis.Client
	group singleflight.Group
}

func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// lookup decodes the value under key into dst and reports whether it was
// there. Undecodable values are dropped and count as a miss.
func (c *Cache) lookup(ctx context.Context, key string, dst any) (bool, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := json.Unmarshal(b, dst); err != nil {
		_ = c.rdb.Del(ctx, key).Err()
		return false, nil
	}

	return true, nil
}

func (c *Cache) store(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return c.rdb.Set(ctx, key, b, ttl).Err()
}

// Invalidate drops keys.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	return c.rdb.Del(ctx, keys...).Err()
}

// InvalidateSessionSeats drops the cached seat map of a session. Called after
// every committed change to the session's claims.
func (c *Cache) InvalidateSessionSeats(ctx context.Context, sessionID int64) error {
	return c.Invalidate(ctx, KeySessionSeatMap(sessionID))
}

// InvalidateFilmSessions drops the cached session lists that include filmID.
func (c *Cache) InvalidateFilmSessions(ctx context.Context, filmID int64) error {
	return c.Invalidate(ctx, KeyFilmSessions(filmID), KeyFilmSessions(0))
}

// ReadThrough returns the value cached under key, or loads it, caches it for
// ttl and returns it. Concurrent misses of one key share a single load, which
// runs detached from the caller that started it: a caller giving up only stops
// its own wait. Loader errors are returned as is and never cached.
//
// A load racing an invalidation may store the value it read before the change;
// it lives at most ttl, so callers keep ttl short for data that changes.
func ReadThrough[T any](
	ctx context.Context,
	c *Cache,
	key string,
	ttl time.Duration,
	load func(ctx context.Context) (T, error),
) (T, error) {
	var out T
	if hit, err := c.lookup(ctx, key, &out); err == nil && hit {
		return out, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		loaded, err := load(loadCtx)
		if err != nil {
			return nil, err
		}

		_ = c.store(loadCtx, key, loaded, ttl)
		return loaded, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return out, ctx.Err()
	case res = <-ch:
	}

	if res.Err != nil {
		return out, res.Err
	}

	loaded, ok := res.Val.(T)
	if !ok {
		return out, fmt.Errorf("redis.ReadThrough: unexpected %T for %s", res.Val, key)
	}

	return loaded, nil
}
