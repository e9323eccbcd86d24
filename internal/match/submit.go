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

// SubmitMove is one client move proposal.
type SubmitMove struct {
	GameID     string
	ActorID    string
	Move       rules.MoveRequest
	ClaimedPly int
}

// Accepted is the result of an accepted move.
type Accepted struct {
	Game *Game
	Move *MoveRecord
	// Degraded reports that the stored history could not be replayed, so
	// ply-sync and repetition checks were skipped for this move.
	Degraded bool
}

// SubmitMove validates and persists one move. Rejections are returned as
// *ReasonError and have no side effects.
func (s *Service) SubmitMove(ctx context.Context, req SubmitMove) (*Accepted, error) {
	g, err := s.load(ctx, req.GameID)
	if err != nil {
		return nil, err
	}
	if g.Status != StatusActive {
		return nil, ErrGameNotActive
	}
	actor := strings.TrimSpace(req.ActorID)
	if !g.IsParticipant(actor) {
		return nil, ErrNotParticipant
	}

	st, err := s.reconstruct(ctx, g)
	if err != nil {
		return nil, err
	}
	pos := st.Position
	mover := pos.Turn()
	stale := !st.Degraded && req.ClaimedPly != st.Ply
	if !mayMoveFor(g, actor, mover) {
		// A retried submission that already landed reads as the wrong turn;
		// a stale ply tells the client to resync instead.
		if stale && req.ClaimedPly < st.Ply {
			return nil, outOfSync(st.Ply, pos.FEN())
		}
		return nil, ErrNotYourTurn
	}
	if stale {
		return nil, outOfSync(st.Ply, pos.FEN())
	}

	next, applied, err := pos.Apply(req.Move)
	if err != nil {
		return nil, reject(ReasonIllegalMove, err)
	}

	history := append(st.History, next)
	verdict := rules.Terminal(history, !st.Degraded)

	now := s.now()
	expect := Expect{Ply: g.Ply, Status: StatusActive}
	upd := g.Clone()
	upd.Ply = g.Ply + 1
	upd.CurrentFEN = next.FEN()
	upd.PGN = appendMovetext(g.PGN, pos, applied.SAN)
	upd.DrawOfferBy = rules.NoColor
	upd.UpdatedAt = now
	if upd.TimeControl.Timed() {
		elapsed := now.Sub(g.clockStart()).Milliseconds()
		remaining := g.clock(mover) - elapsed
		if remaining < 0 {
			remaining = 0
		}
		upd.setClock(mover, remaining+upd.TimeControl.IncrementMs)
	}
	moved := now
	upd.LastMoveAt = &moved
	if verdict.Over() {
		res, term := verdictResult(verdict)
		finish(upd, res, term, now)
	}

	mv := &MoveRecord{
		GameID:    g.ID,
		Ply:       upd.Ply,
		UCI:       applied.UCI,
		SAN:       applied.SAN,
		FENAfter:  upd.CurrentFEN,
		CreatedAt: now,
	}

	if err := s.store.WriteGameAndAppendMove(ctx, upd, expect, mv); err != nil {
		if errors.Is(err, ErrConflictStale) {
			return nil, s.conflictOutOfSync(ctx, g.ID)
		}
		return nil, fmt.Errorf("persist move: %w", err)
	}

	s.logger.Info("match_move_accepted",
		zap.String("game_id", upd.ID),
		zap.String("actor_id", actor),
		zap.String("color", string(mover)),
		zap.Int("ply", mv.Ply),
		zap.String("uci", mv.UCI),
		zap.String("san", mv.SAN),
		zap.String("status", string(upd.Status)),
		zap.String("termination", string(upd.Termination)),
		zap.Bool("degraded", st.Degraded),
	)
	s.publishMove(ctx, upd.ID, mv)
	s.publishGame(ctx, upd)
	s.persistIfFinal(ctx, upd)
	return &Accepted{Game: upd, Move: mv, Degraded: st.Degraded}, nil
}

// mayMoveFor reports whether actor may submit for color. A bot controller
// may submit only for the seat no human holds.
func mayMoveFor(g *Game, actor string, color rules.Color) bool {
	if g.ColorOf(actor) == color {
		return true
	}
	return g.BotController(actor) && g.BotColor() == color
}

// conflictOutOfSync re-reads the row after a lost compare-and-swap so the
// loser gets the authoritative ply and position.
func (s *Service) conflictOutOfSync(ctx context.Context, gameID string) error {
	cur, err := s.load(ctx, gameID)
	if err != nil {
		return err
	}
	s.logger.Debug("match_move_conflict", zap.String("game_id", gameID), zap.Int("ply", cur.Ply))
	return outOfSync(cur.Ply, cur.CurrentFEN)
}

func verdictResult(v rules.Verdict) (Result, Termination) {
	switch v.Ending {
	case rules.Checkmate:
		return WinFor(v.Winner), TerminationCheckmate
	case rules.Stalemate:
		return ResultDraw, TerminationStalemate
	case rules.ThreefoldRepetition:
		return ResultDraw, TerminationThreefoldRepetition
	case rules.InsufficientMaterial:
		return ResultDraw, TerminationInsufficientMaterial
	case rules.FiftyMoveRule:
		return ResultDraw, TerminationFiftyMoveRule
	}
	return ResultNone, TerminationNone
}

func finish(g *Game, res Result, term Termination, now time.Time) {
	g.Status = StatusFinished
	g.Result = res
	g.Termination = term
	g.DrawOfferBy = rules.NoColor
	at := now
	g.EndedAt = &at
	g.UpdatedAt = now
}

// appendMovetext extends SAN movetext with one move played from pos.
func appendMovetext(pgn string, pos *rules.Position, san string) string {
	var b strings.Builder
	b.WriteString(pgn)
	n := pos.FullmoveNumber()
	switch {
	case pos.Turn() == rules.White:
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d. %s", n, san)
	case b.Len() == 0:
		fmt.Fprintf(&b, "%d... %s", n, san)
	default:
		b.WriteByte(' ')
		b.WriteString(san)
	}
	return b.String()
}

// PlayBot asks the engine for the bot side's move and submits it through
// the same validation as a human move.
func (s *Service) PlayBot(ctx context.Context, gameID, actorID string) (*Accepted, error) {
	if s.bot == nil {
		return nil, badRequest("no bot engine configured")
	}
	g, err := s.load(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g.Status != StatusActive {
		return nil, ErrGameNotActive
	}
	if !g.BotController(actorID) {
		return nil, ErrNotParticipant
	}
	st, err := s.reconstruct(ctx, g)
	if err != nil {
		return nil, err
	}
	if st.Position.Turn() != g.BotColor() {
		return nil, ErrNotYourTurn
	}
	uci, err := s.bot.BestMove(ctx, st.Position.FEN(), g.Difficulty)
	if err != nil {
		return nil, fmt.Errorf("bot move: %w", err)
	}
	req, err := rules.ParseCoordinate(uci)
	if err != nil {
		s.logger.Warn("match_bot_bad_move", zap.String("game_id", g.ID), zap.String("uci", uci), zap.Error(err))
		return nil, reject(ReasonIllegalMove, err)
	}
	s.logger.Debug("match_bot_move", zap.String("game_id", g.ID), zap.String("uci", uci), zap.String("difficulty", g.Difficulty))
	return s.SubmitMove(ctx, SubmitMove{GameID: g.ID, ActorID: actorID, Move: req, ClaimedPly: st.Ply})
}
