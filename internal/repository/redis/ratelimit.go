package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindow keeps one sorted-set member per accepted call, scored by its
// time in milliseconds. Rejected calls are not recorded, so a client that
// keeps retrying is let in as soon as the oldest call leaves the window.
//
//	KEYS[1]  window key
//	ARGV     now_ms, window_ms, limit, member
//	returns  {allowed 0|1, calls in window, retry_after_ms}
var slidingWindow = redis.NewScript(`
local now, window, limit = tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local calls = redis.call('ZCARD', KEYS[1])

if calls >= limit then
  local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
  local retry = window
  if oldest[2] then
    retry = math.max(tonumber(oldest[2]) + window - now, 1)
  end
  return {0, calls, retry}
end

redis.call('ZADD', KEYS[1], now, ARGV[4])
redis.call('PEXPIRE', KEYS[1], window)
return {1, calls + 1, 0}
`)

// SlidingWindowLimiter allows at most limit calls per scope and id within a
// rolling window.
type SlidingWindowLimiter struct {
	rdb    *redis.Client
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewSlidingWindowLimiter(rdb *redis.Client, prefix string, limit int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		rdb:    rdb,
		prefix: prefix,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func (l *SlidingWindowLimiter) key(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s:%s", ns, l.prefix, scope, id)
}

// Allow records one call for scope/id when it fits the limit. calls is the
// number of calls in the window including this one when allowed. When the
// call is rejected, retryAfter tells how long until the oldest call leaves the
// window.
func (l *SlidingWindowLimiter) Allow(
	ctx context.Context,
	scope, id string,
) (allowed bool, calls int64, retryAfter time.Duration, err error) {
	const op = "redis.SlidingWindowLimiter.Allow"

	res, err := slidingWindow.Run(ctx, l.rdb,
		[]string{l.key(scope, id)},
		l.now().UnixMilli(), l.window.Milliseconds(), l.limit, member(),
	).Int64Slice()
	if err != nil {
		return false, 0, 0, fmt.Errorf("%s:%w", op, err)
	}
	if len(res) != 3 {
		return false, 0, 0, fmt.Errorf("%s: unexpected script result %v", op, res)
	}

	return res[0] == 1, res[1], time.Duration(res[2]) * time.Millisecond, nil
}

// member makes sorted-set entries of calls landing in the same millisecond
// distinct.
func member() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
