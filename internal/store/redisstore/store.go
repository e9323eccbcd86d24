// Package redisstore keeps games in Redis: the row as JSON under one key
// and the move log as a list. Writes use WATCH on the row key so only one
// writer observing a given ply can commit.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/chess-sync/internal/match"
	"github.com/park285/chess-sync/internal/rules"
)

const DefaultTTL = 24 * time.Hour

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ match.Store = (*Store)(nil)

func New(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

// Connect opens and pings a client for a redis:// or rediss:// URL.
func Connect(ctx context.Context, rawURL string) (*redis.Client, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("redis url required")
	}
	opts, err := parseRedisURL(rawURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func parseRedisURL(raw string) (*redis.Options, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return opts, nil
}

func gameKey(id string) string  { return "chess:game:" + strings.TrimSpace(id) }
func movesKey(id string) string { return "chess:moves:" + strings.TrimSpace(id) }

func (s *Store) GetGame(ctx context.Context, id string) (*match.Game, error) {
	return readGame(ctx, s.rdb, id)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readGame(ctx context.Context, c getter, id string) (*match.Game, error) {
	raw, err := c.Get(ctx, gameKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, match.ErrStoreNotFound
	}
	if err != nil {
		return nil, err
	}
	var g match.Game
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("decode game %s: %w", id, err)
	}
	return &g, nil
}

func (s *Store) ListMoves(ctx context.Context, gameID string) ([]match.MoveRecord, error) {
	raws, err := s.rdb.LRange(ctx, movesKey(gameID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]match.MoveRecord, 0, len(raws))
	for _, raw := range raws {
		var mv match.MoveRecord
		if err := json.Unmarshal([]byte(raw), &mv); err != nil {
			return nil, fmt.Errorf("decode move of %s: %w", gameID, err)
		}
		out = append(out, mv)
	}
	return out, nil
}

func (s *Store) CreateGame(ctx context.Context, g *match.Game) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetNX(ctx, gameKey(g.ID), raw, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("redisstore: duplicate game %s", g.ID)
	}
	return nil
}

func (s *Store) WriteGameAndAppendMove(ctx context.Context, g *match.Game, expect match.Expect, mv *match.MoveRecord) error {
	rawMove, err := json.Marshal(mv)
	if err != nil {
		return err
	}
	return s.swap(ctx, g, expect, func(pipe redis.Pipeliner) {
		pipe.RPush(ctx, movesKey(g.ID), rawMove)
		pipe.Expire(ctx, movesKey(g.ID), s.ttl)
	})
}

func (s *Store) UpdateGame(ctx context.Context, g *match.Game, expect match.Expect) error {
	return s.swap(ctx, g, expect, nil)
}

// swap writes g if the stored row still matches expect. extra queues more
// commands into the same MULTI block.
func (s *Store) swap(ctx context.Context, g *match.Game, expect match.Expect, extra func(redis.Pipeliner)) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return err
	}
	key := gameKey(g.ID)
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := readGame(ctx, tx, g.ID)
		if err != nil {
			return err
		}
		if cur.Ply != expect.Ply || cur.Status != expect.Status {
			return match.ErrConflictStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, s.ttl)
			if extra != nil {
				extra(pipe)
			}
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return match.ErrConflictStale
	}
	return err
}

func (s *Store) FillSeat(ctx context.Context, gameID string, seat rules.Color, userID string, startedAt time.Time) (*match.Game, error) {
	key := gameKey(gameID)
	for attempt := 0; attempt < 3; attempt++ {
		var out *match.Game
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := readGame(ctx, tx, gameID)
			if err != nil {
				return err
			}
			if err := cur.TakeSeat(seat, userID, startedAt); err != nil {
				return err
			}
			raw, err := json.Marshal(cur)
			if err != nil {
				return err
			}
			if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, raw, s.ttl)
				return nil
			}); err != nil {
				return err
			}
			out = cur
			return nil
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			// Re-read: the next TakeSeat reports who won.
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, match.ErrConflictFull
}
