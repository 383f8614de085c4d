//go:build integration

package redis_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/kirinyoku/cinetix/internal/redis"
	redisrepo "github.com/kirinyoku/cinetix/internal/repository/redis"
)

const cacheImage = "redis:7"

type RedisSuite struct {
	suite.Suite

	container *tcredis.RedisContainer
	rdb       *goredis.Client
}

func TestRedisSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	suite.Run(t, new(RedisSuite))
}

func (s *RedisSuite) SetupSuite() {
	ctx := context.Background()

	container, err := tcredis.Run(ctx, cacheImage)
	s.Require().NoError(err)
	s.container = container

	host, err := container.Host(ctx)
	s.Require().NoError(err)
	port, err := container.MappedPort(ctx, "6379")
	s.Require().NoError(err)

	s.rdb, err = redis.New(ctx, redis.Config{Addr: host + ":" + port.Port()})
	s.Require().NoError(err)
}

func (s *RedisSuite) TearDownSuite() {
	if s.rdb != nil {
		_ = s.rdb.Close()
	}
	if s.container != nil {
		_ = testcontainers.TerminateContainer(s.container)
	}
}

func (s *RedisSuite) SetupTest() {
	s.Require().NoError(s.rdb.FlushDB(context.Background()).Err())
}

type seatView struct {
	SessionID int64   `json:"session_id"`
	Free      []int64 `json:"free"`
}

func (s *RedisSuite) TestReadThrough() {
	ctx := context.Background()
	cache := redisrepo.New(s.rdb)

	var loads atomic.Int32
	loader := func(ctx context.Context) (seatView, error) {
		loads.Add(1)
		return seatView{SessionID: 9, Free: []int64{1, 2}}, nil
	}

	for range 3 {
		v, err := redisrepo.ReadThrough(ctx, cache, redisrepo.KeySessionSeatMap(9), time.Minute, loader)
		s.Require().NoError(err)
		s.Equal([]int64{1, 2}, v.Free)
	}
	s.Equal(int32(1), loads.Load())

	s.Require().NoError(cache.InvalidateSessionSeats(ctx, 9))

	_, err := redisrepo.ReadThrough(ctx, cache, redisrepo.KeySessionSeatMap(9), time.Minute, loader)
	s.Require().NoError(err)
	s.Equal(int32(2), loads.Load())

	boom := errors.New("boom")
	_, err = redisrepo.ReadThrough(ctx, cache, redisrepo.KeySession(1), time.Minute, func(ctx context.Context) (seatView, error) {
		return seatView{}, boom
	})
	s.ErrorIs(err, boom)

	n, err := s.rdb.Exists(ctx, redisrepo.KeySession(1)).Result()
	s.Require().NoError(err)
	s.Zero(n, "loader errors are not cached")

	// a value that no longer decodes is treated as a miss
	s.Require().NoError(s.rdb.Set(ctx, redisrepo.KeySessionSeatMap(9), "{", time.Minute).Err())
	v, err := redisrepo.ReadThrough(ctx, cache, redisrepo.KeySessionSeatMap(9), time.Minute, loader)
	s.Require().NoError(err)
	s.Equal(int64(9), v.SessionID)
	s.Equal(int32(3), loads.Load())
}

func (s *RedisSuite) TestReadThroughSurvivesFirstCallerLeaving() {
	cache := redisrepo.New(s.rdb)
	key := redisrepo.KeySessionSeatMap(11)

	started := make(chan struct{})
	proceed := make(chan struct{})
	var (
		loadErr atomic.Value
		once    sync.Once
	)

	loader := func(ctx context.Context) (seatView, error) {
		once.Do(func() { close(started) })
		<-proceed
		if err := ctx.Err(); err != nil {
			loadErr.Store(err)
			return seatView{}, err
		}
		return seatView{SessionID: 11}, nil
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() {
		_, err := redisrepo.ReadThrough(firstCtx, cache, key, time.Minute, loader)
		firstDone <- err
	}()
	<-started

	secondDone := make(chan seatView, 1)
	go func() {
		v, err := redisrepo.ReadThrough(context.Background(), cache, key, time.Minute, loader)
		s.NoError(err)
		secondDone <- v
	}()

	cancelFirst()
	s.ErrorIs(<-firstDone, context.Canceled)

	close(proceed)
	s.Equal(int64(11), (<-secondDone).SessionID)
	s.Nil(loadErr.Load())

	n, err := s.rdb.Exists(context.Background(), key).Result()
	s.Require().NoError(err)
	s.Equal(int64(1), n)
}

func (s *RedisSuite) TestIdempotency() {
	ctx := context.Background()
	idem := redisrepo.NewIdempotencyStore(s.rdb, time.Minute)
	key := redisrepo.KeyIdemHold(1, 2, "k1")

	locked, err := idem.AcquireLock(ctx, key, time.Minute)
	s.Require().NoError(err)
	s.True(locked)

	locked, err = idem.AcquireLock(ctx, key, time.Minute)
	s.Require().NoError(err)
	s.False(locked)

	_, ok, err := idem.GetResult(ctx, key)
	s.Require().NoError(err)
	s.False(ok, "a lock is not a result")

	s.Require().NoError(idem.SaveResult(ctx, key, `{"id":"r1"}`))

	payload, ok, err := idem.GetResult(ctx, key)
	s.Require().NoError(err)
	s.True(ok)
	s.JSONEq(`{"id":"r1"}`, payload)

	s.Require().NoError(idem.Release(ctx, key))
	locked, err = idem.AcquireLock(ctx, key, time.Minute)
	s.Require().NoError(err)
	s.True(locked)
}

func (s *RedisSuite) TestSlidingWindowLimiter() {
	ctx := context.Background()
	limiter := redisrepo.NewSlidingWindowLimiter(s.rdb, "holds", 2, time.Minute)

	for i := range 2 {
		allowed, current, _, err := limiter.Allow(ctx, "hold", "user:1")
		s.Require().NoError(err)
		s.True(allowed)
		s.Equal(int64(i+1), current)
	}

	allowed, _, retryAfter, err := limiter.Allow(ctx, "hold", "user:1")
	s.Require().NoError(err)
	s.False(allowed)
	s.Greater(retryAfter, time.Duration(0))
	s.LessOrEqual(retryAfter, time.Minute)

	allowed, _, _, err = limiter.Allow(ctx, "hold", "user:2")
	s.Require().NoError(err)
	s.True(allowed)
}

func (s *RedisSuite) TestPubSub() {
	ps := redisrepo.NewSessionsPubSub(s.rdb)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	got := make(chan redisrepo.SessionChanged, 1)
	done := make(chan error, 1)
	go func() {
		done <- ps.Subscribe(ctx, func(ctx context.Context, msg redisrepo.SessionChanged) {
			select {
			case got <- msg:
			default:
			}
		})
	}()

	// the subscription is asynchronous; publish until it is seen
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case msg := <-got:
			s.Equal(int64(5), msg.SessionID)
			s.Equal("session_changed", msg.Type)
			cancel()
			s.ErrorIs(<-done, context.Canceled)
			return
		case <-tick.C:
			s.Require().NoError(ps.PublishSessionChanged(ctx, 5))
		case <-ctx.Done():
			s.FailNow("no notification received")
		}
	}
}
