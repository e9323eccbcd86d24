// Package notify fans game changes out to feed subscribers, in process
// through Hub and across replicas through RedisBus.
package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/park285/chess-sync/internal/match"
	"github.com/park285/chess-sync/pkg/chessdto"
)

const DefaultBuffer = 32

// Hub delivers events to per-game subscribers. A subscriber whose buffer
// is full misses the event; clients recover through a sync.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
	logger *zap.Logger
}

var _ match.Publisher = (*Hub)(nil)

func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{subs: make(map[string]map[*Subscription]struct{}), buffer: buffer, logger: logger}
}

type Subscription struct {
	hub    *Hub
	gameID string
	ch     chan chessdto.Event
	once   sync.Once
}

// C yields events until Close.
func (s *Subscription) C() <-chan chessdto.Event { return s.ch }

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		if set, ok := s.hub.subs[s.gameID]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(s.hub.subs, s.gameID)
			}
		}
		s.hub.mu.Unlock()
		close(s.ch)
	})
}

func (h *Hub) Subscribe(gameID string) *Subscription {
	sub := &Subscription{hub: h, gameID: gameID, ch: make(chan chessdto.Event, h.buffer)}
	h.mu.Lock()
	set, ok := h.subs[gameID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[gameID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Subscribers reports the number of open subscriptions for gameID.
func (h *Hub) Subscribers(gameID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[gameID])
}

// Broadcast hands ev to every subscriber of its game without blocking.
func (h *Hub) Broadcast(ev chessdto.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[ev.GameID] {
		select {
		case sub.ch <- ev:
		default:
			h.logger.Warn("notify_drop_slow_subscriber", zap.String("game_id", ev.GameID), zap.String("type", ev.Type))
		}
	}
}

func (h *Hub) PublishGame(_ context.Context, g *match.Game) error {
	h.Broadcast(GameEvent(g))
	return nil
}

func (h *Hub) PublishMove(_ context.Context, gameID string, mv *match.MoveRecord) error {
	h.Broadcast(MoveEvent(gameID, mv))
	return nil
}

func GameEvent(g *match.Game) chessdto.Event {
	return chessdto.Event{Type: chessdto.EventGame, GameID: g.ID, Game: match.GameDTO(g)}
}

func MoveEvent(gameID string, mv *match.MoveRecord) chessdto.Event {
	return chessdto.Event{Type: chessdto.EventMove, GameID: gameID, Move: match.MoveDTO(mv)}
}
