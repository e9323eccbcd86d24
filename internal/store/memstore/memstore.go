// Package memstore is an in-memory match.Store for development and tests.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/park285/chess-sync/internal/match"
	"github.com/park285/chess-sync/internal/rules"
)

// Store keeps rows behind one mutex. Every read hands out a copy.
type Store struct {
	mu sync.RWMutex

	games map[string]*match.Game
	moves map[string][]match.MoveRecord
}

var _ match.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		games: make(map[string]*match.Game),
		moves: make(map[string][]match.MoveRecord),
	}
}

func (s *Store) GetGame(ctx context.Context, id string) (*match.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[id]
	if !ok {
		return nil, match.ErrStoreNotFound
	}
	return g.Clone(), nil
}

func (s *Store) ListMoves(ctx context.Context, gameID string) ([]match.MoveRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]match.MoveRecord{}, s.moves[gameID]...), nil
}

func (s *Store) CreateGame(ctx context.Context, g *match.Game) error {
	if g == nil || g.ID == "" {
		return fmt.Errorf("memstore: game id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.games[g.ID]; exists {
		return fmt.Errorf("memstore: duplicate game %s", g.ID)
	}
	s.games[g.ID] = g.Clone()
	return nil
}

func (s *Store) WriteGameAndAppendMove(ctx context.Context, g *match.Game, expect match.Expect, mv *match.MoveRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(g.ID, expect); err != nil {
		return err
	}
	if log := s.moves[g.ID]; len(log) > 0 && log[len(log)-1].Ply >= mv.Ply {
		return match.ErrConflictStale
	}
	s.games[g.ID] = g.Clone()
	s.moves[g.ID] = append(s.moves[g.ID], *mv)
	return nil
}

func (s *Store) UpdateGame(ctx context.Context, g *match.Game, expect match.Expect) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(g.ID, expect); err != nil {
		return err
	}
	s.games[g.ID] = g.Clone()
	return nil
}

func (s *Store) FillSeat(ctx context.Context, gameID string, seat rules.Color, userID string, startedAt time.Time) (*match.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.games[gameID]
	if !ok {
		return nil, match.ErrStoreNotFound
	}
	next := cur.Clone()
	if err := next.TakeSeat(seat, userID, startedAt); err != nil {
		return nil, err
	}
	s.games[gameID] = next
	return next.Clone(), nil
}

// Corrupt replaces the stored move log. Tests use it to simulate a damaged
// history.
func (s *Store) Corrupt(gameID string, moves []match.MoveRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moves[gameID] = append([]match.MoveRecord{}, moves...)
}

func (s *Store) check(id string, expect match.Expect) error {
	cur, ok := s.games[id]
	if !ok {
		return match.ErrStoreNotFound
	}
	if cur.Ply != expect.Ply || cur.Status != expect.Status {
		return match.ErrConflictStale
	}
	return nil
}
