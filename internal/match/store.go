package match

import (
	"context"
	"time"

	"github.com/park285/chess-sync/internal/rules"
)

// Expect is the state a conditional write was validated against.
type Expect struct {
	Ply    int
	Status Status
}

// Store persists games and their append-only move logs.
type Store interface {
	GetGame(ctx context.Context, id string) (*Game, error)
	ListMoves(ctx context.Context, gameID string) ([]MoveRecord, error)
	CreateGame(ctx context.Context, g *Game) error
	// WriteGameAndAppendMove replaces the game row and appends mv as one
	// atomic unit, only if the stored row still matches expect.
	WriteGameAndAppendMove(ctx context.Context, g *Game, expect Expect, mv *MoveRecord) error
	// UpdateGame replaces the game row only if it still matches expect.
	UpdateGame(ctx context.Context, g *Game, expect Expect) error
	// FillSeat seats userID as seat if that seat is still empty and the game
	// is waiting, activating the game. Returns the updated row.
	FillSeat(ctx context.Context, gameID string, seat rules.Color, userID string, startedAt time.Time) (*Game, error)
}

// Publisher fans row changes out to subscribers. Delivery is best effort.
type Publisher interface {
	PublishGame(ctx context.Context, g *Game) error
	PublishMove(ctx context.Context, gameID string, mv *MoveRecord) error
}

// Archiver stores a finished game for history.
type Archiver interface {
	SaveFinished(ctx context.Context, g *Game, moves []MoveRecord) error
}

// MoveSource proposes a move for the side to move in fen.
type MoveSource interface {
	BestMove(ctx context.Context, fen string, difficulty string) (string, error)
}

type nopPublisher struct{}

func (nopPublisher) PublishGame(context.Context, *Game) error { return nil }
func (nopPublisher) PublishMove(context.Context, string, *MoveRecord) error { return nil }
