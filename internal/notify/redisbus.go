package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/chess-sync/internal/match"
	"github.com/park285/chess-sync/pkg/chessdto"
)

const channelPrefix = "chess:events:"

func channel(gameID string) string { return channelPrefix + strings.TrimSpace(gameID) }

// RedisBus publishes events to Redis and, while Run is active, forwards
// every replica's events into the local Hub.
type RedisBus struct {
	rdb    *redis.Client
	hub    *Hub
	logger *zap.Logger
}

var _ match.Publisher = (*RedisBus)(nil)

func NewRedisBus(rdb *redis.Client, hub *Hub, logger *zap.Logger) *RedisBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBus{rdb: rdb, hub: hub, logger: logger}
}

func (b *RedisBus) PublishGame(ctx context.Context, g *match.Game) error {
	return b.publish(ctx, GameEvent(g))
}

func (b *RedisBus) PublishMove(ctx context.Context, gameID string, mv *match.MoveRecord) error {
	return b.publish(ctx, MoveEvent(gameID, mv))
}

func (b *RedisBus) publish(ctx context.Context, ev chessdto.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channel(ev.GameID), raw).Err()
}

// Run subscribes to all game channels and blocks until ctx is done.
// ready, if non-nil, is closed once the subscription is confirmed.
func (b *RedisBus) Run(ctx context.Context, ready chan<- struct{}) error {
	ps := b.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}
	b.logger.Info("notify_bus_subscribed", zap.String("pattern", channelPrefix+"*"))
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("notify: redis subscription closed")
			}
			var ev chessdto.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Warn("notify_bus_bad_payload", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			b.hub.Broadcast(ev)
		}
	}
}
