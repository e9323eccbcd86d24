package match

import (
	"github.com/park285/chess-sync/pkg/chessdto"
)

// GameDTO converts a row into its wire form.
func GameDTO(g *Game) *chessdto.Game {
	if g == nil {
		return nil
	}
	return &chessdto.Game{
		ID:           g.ID,
		WhiteID:      g.WhiteID,
		BlackID:      g.BlackID,
		CreatorID:    g.CreatorID,
		Mode:         string(g.Mode),
		Status:       string(g.Status),
		InitialFEN:   g.InitialFEN,
		CurrentFEN:   g.CurrentFEN,
		PGN:          g.PGN,
		Result:       string(g.Result),
		Termination:  string(g.Termination),
		TimeControl:  chessdto.TimeControl{BaseMs: g.TimeControl.BaseMs, IncrementMs: g.TimeControl.IncrementMs},
		Ply:          g.Ply,
		Difficulty:   g.Difficulty,
		DrawOfferBy:  string(g.DrawOfferBy),
		WhiteClockMs: g.WhiteClockMs,
		BlackClockMs: g.BlackClockMs,
		CreatedAt:    g.CreatedAt,
		UpdatedAt:    g.UpdatedAt,
		StartedAt:    g.StartedAt,
		LastMoveAt:   g.LastMoveAt,
		EndedAt:      g.EndedAt,
	}
}

func MoveDTO(mv *MoveRecord) *chessdto.Move {
	if mv == nil {
		return nil
	}
	return &chessdto.Move{
		GameID:    mv.GameID,
		Ply:       mv.Ply,
		UCI:       mv.UCI,
		SAN:       mv.SAN,
		FENAfter:  mv.FENAfter,
		CreatedAt: mv.CreatedAt,
	}
}

func MovesDTO(moves []MoveRecord) []chessdto.Move {
	out := make([]chessdto.Move, 0, len(moves))
	for i := range moves {
		out = append(out, *MoveDTO(&moves[i]))
	}
	return out
}

func SyncDTO(v *SyncView) *chessdto.SyncResponse {
	return &chessdto.SyncResponse{
		Game:     GameDTO(v.Game),
		Moves:    MovesDTO(v.Moves),
		Ply:      v.Ply,
		FEN:      v.FEN,
		Turn:     string(v.Turn),
		Degraded: v.Degraded,
	}
}

// AcceptedDTO builds the response for an accepted move.
func AcceptedDTO(a *Accepted) *chessdto.MoveResponse {
	ply := a.Game.Ply
	return &chessdto.MoveResponse{
		Accepted:              true,
		AuthoritativePly:      &ply,
		AuthoritativePosition: a.Game.CurrentFEN,
		NewStatus:             string(a.Game.Status),
		Result:                string(a.Game.Result),
		Termination:           string(a.Game.Termination),
		Degraded:              a.Degraded,
		Move:                  MoveDTO(a.Move),
		Game:                  GameDTO(a.Game),
	}
}

// RejectionDTO builds the response body for an expected rejection.
func RejectionDTO(re *ReasonError) *chessdto.MoveResponse {
	resp := &chessdto.MoveResponse{
		DomainError: chessdto.DomainError{
			Code:      string(re.Reason),
			Message:   re.Error(),
			Retryable: re.Reason == ReasonOutOfSync,
		},
	}
	if re.Reason == ReasonOutOfSync {
		ply := re.Ply
		resp.AuthoritativePly = &ply
		resp.AuthoritativePosition = re.FEN
	}
	return resp
}
