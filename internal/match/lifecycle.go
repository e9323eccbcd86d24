package match

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-sync/internal/rules"
)

// mutation derives the next row from the current one. Returning changed
// false leaves the row untouched and hands cur back to the caller.
type mutation func(cur *Game, now time.Time) (next *Game, changed bool, err error)

// updateWithRetry applies fn under compare-and-swap on (ply, status). A
// concurrent move only bumps the ply, so the mutation is re-derived from a
// fresh read and retried.
func (s *Service) updateWithRetry(ctx context.Context, gameID string, op string, fn mutation) (*Game, bool, error) {
	for attempt := 0; attempt < s.cfg.MaxCASRetries; attempt++ {
		cur, err := s.load(ctx, gameID)
		if err != nil {
			return nil, false, err
		}
		next, changed, err := fn(cur, s.now())
		if err != nil {
			return nil, false, err
		}
		if !changed {
			return cur, false, nil
		}
		err = s.store.UpdateGame(ctx, next, Expect{Ply: cur.Ply, Status: cur.Status})
		if err == nil {
			return next, true, nil
		}
		if !errors.Is(err, ErrConflictStale) {
			return nil, false, fmt.Errorf("%s: %w", op, err)
		}
		s.logger.Debug("match_update_retry", zap.String("op", op), zap.String("game_id", gameID), zap.Int("attempt", attempt+1))
	}
	return nil, false, s.conflictOutOfSync(ctx, gameID)
}

// settled reports a row that just changed state.
func (s *Service) settled(ctx context.Context, g *Game, event string, actor string) {
	s.logger.Info(event,
		zap.String("game_id", g.ID),
		zap.String("actor_id", actor),
		zap.String("status", string(g.Status)),
		zap.String("result", string(g.Result)),
		zap.String("termination", string(g.Termination)),
		zap.Int("ply", g.Ply),
	)
	s.publishGame(ctx, g)
	s.persistIfFinal(ctx, g)
}

// Resign ends the game in the opponent's favour. Resigning a game that is
// already over returns it as is.
func (s *Service) Resign(ctx context.Context, gameID, actorID string) (*Game, error) {
	actor := strings.TrimSpace(actorID)
	g, changed, err := s.updateWithRetry(ctx, gameID, "resign", func(cur *Game, now time.Time) (*Game, bool, error) {
		color := cur.ColorOf(actor)
		if color == rules.NoColor {
			return nil, false, ErrNotParticipant
		}
		if cur.Status.Terminal() {
			return cur, false, nil
		}
		if cur.Status != StatusActive {
			return nil, false, ErrGameNotActive
		}
		next := cur.Clone()
		finish(next, WinFor(color.Other()), TerminationResign, now)
		return next, true, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.settled(ctx, g, "match_resigned", actor)
	}
	return g, nil
}

// Join seats actorID in the open seat of a waiting game. A participant
// joining again gets the game back unchanged.
func (s *Service) Join(ctx context.Context, gameID, actorID string) (*Game, error) {
	actor := strings.TrimSpace(actorID)
	if actor == "" {
		return nil, badRequest("actor required")
	}
	g, err := s.load(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g.IsParticipant(actor) {
		return g, nil
	}
	seat := g.OpenSeat()
	if seat == rules.NoColor {
		return nil, ErrGameFull
	}
	if g.Status != StatusWaiting {
		return nil, ErrGameNotActive
	}

	joined, err := s.store.FillSeat(ctx, g.ID, seat, actor, s.now())
	switch {
	case errors.Is(err, ErrConflictFull):
		return nil, ErrGameFull
	case errors.Is(err, ErrConflictStale):
		return nil, ErrGameNotActive
	case errors.Is(err, ErrStoreNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("fill seat: %w", err)
	}
	s.logger.Info("match_joined",
		zap.String("game_id", joined.ID),
		zap.String("actor_id", actor),
		zap.String("seat", string(seat)),
	)
	s.publishGame(ctx, joined)
	return joined, nil
}

// OfferDraw records a draw offer, or accepts the opponent's standing one.
func (s *Service) OfferDraw(ctx context.Context, gameID, actorID string) (*Game, error) {
	actor := strings.TrimSpace(actorID)
	g, changed, err := s.updateWithRetry(ctx, gameID, "offer draw", func(cur *Game, now time.Time) (*Game, bool, error) {
		if cur.Status != StatusActive {
			return nil, false, ErrGameNotActive
		}
		color := cur.ColorOf(actor)
		if color == rules.NoColor || cur.Mode == ModeBot {
			return nil, false, ErrNotParticipant
		}
		switch cur.DrawOfferBy {
		case color:
			return cur, false, nil
		case color.Other():
			next := cur.Clone()
			finish(next, ResultDraw, TerminationDrawAgreement, now)
			return next, true, nil
		}
		next := cur.Clone()
		next.DrawOfferBy = color
		next.UpdatedAt = now
		return next, true, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		event := "match_draw_offered"
		if g.Status == StatusFinished {
			event = "match_draw_agreed"
		}
		s.settled(ctx, g, event, actor)
	}
	return g, nil
}

// ClaimTimeout ends the game when the side to move has run out of time.
func (s *Service) ClaimTimeout(ctx context.Context, gameID, actorID string) (*Game, error) {
	actor := strings.TrimSpace(actorID)
	g, _, err := s.updateWithRetry(ctx, gameID, "claim timeout", func(cur *Game, now time.Time) (*Game, bool, error) {
		if cur.Status != StatusActive {
			return nil, false, ErrGameNotActive
		}
		if !cur.IsParticipant(actor) {
			return nil, false, ErrNotParticipant
		}
		if !cur.TimeControl.Timed() {
			return nil, false, ErrNoClock
		}
		st, err := s.reconstruct(ctx, cur)
		if err != nil {
			return nil, false, err
		}
		flagged := st.Position.Turn()
		if cur.clock(flagged)-now.Sub(cur.clockStart()).Milliseconds() > 0 {
			return nil, false, ErrClockRunning
		}
		winner := flagged.Other()
		res := WinFor(winner)
		if !st.Position.HasMatingMaterial(winner) {
			res = ResultDraw
		}
		next := cur.Clone()
		next.setClock(flagged, 0)
		finish(next, res, TerminationTimeout, now)
		return next, true, nil
	})
	if err != nil {
		return nil, err
	}
	s.settled(ctx, g, "match_timeout", actor)
	return g, nil
}

// Abort cancels a game before it properly starts: the creator may abort a
// waiting game, and either player may abort before both have moved.
func (s *Service) Abort(ctx context.Context, gameID, actorID string) (*Game, error) {
	actor := strings.TrimSpace(actorID)
	g, _, err := s.updateWithRetry(ctx, gameID, "abort", func(cur *Game, now time.Time) (*Game, bool, error) {
		switch cur.Status {
		case StatusWaiting:
			if actor == "" || actor != cur.CreatorID {
				return nil, false, ErrNotParticipant
			}
		case StatusActive:
			if !cur.IsParticipant(actor) {
				return nil, false, ErrNotParticipant
			}
			if cur.Ply >= 2 {
				return nil, false, ErrGameNotActive
			}
		default:
			return nil, false, ErrGameNotActive
		}
		next := cur.Clone()
		next.Status = StatusAborted
		next.Result = ResultNone
		next.Termination = TerminationNone
		next.DrawOfferBy = rules.NoColor
		at := now
		next.EndedAt = &at
		next.UpdatedAt = now
		return next, true, nil
	})
	if err != nil {
		return nil, err
	}
	s.settled(ctx, g, "match_aborted", actor)
	return g, nil
}
