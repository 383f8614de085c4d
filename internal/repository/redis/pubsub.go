package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionsPubSub broadcasts "session changed" notifications so seat maps can
// refresh without polling.
type SessionsPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewSessionsPubSub(rdb *redis.Client) *SessionsPubSub {
	return &SessionsPubSub{
		rdb:     rdb,
		channel: ChannelSessionsChanged(),
	}
}

type SessionChanged struct {
	Type      string `json:"type"`
	SessionID int64  `json:"session_id"`
	TsUnix    int64  `json:"ts_unix"`
}

func (p *SessionsPubSub) PublishSessionChanged(ctx context.Context, sessionID int64) error {
	msg := SessionChanged{
		Type:      "session_changed",
		SessionID: sessionID,
		TsUnix:    time.Now().Unix(),
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

// Subscribe calls handler for every notification until ctx is done.
func (p *SessionsPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, msg SessionChanged)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg SessionChanged
			if err := json.Unmarshal([]byte(m.Payload), &msg); err == nil &&
				msg.SessionID != 0 {
				handler(ctx, msg)
			}
		}
	}
}
