package archive

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/chess-sync/internal/match"
	"github.com/park285/chess-sync/internal/rules"
	"github.com/park285/chess-sync/internal/store/pgstore"
)

func finishedGame() *match.Game {
	ended := time.Date(2025, 3, 1, 12, 10, 0, 0, time.UTC)
	started := ended.Add(-10 * time.Minute)
	return &match.Game{
		ID:          uuid.NewString(),
		WhiteID:     "alice",
		BlackID:     "bob",
		CreatorID:   "alice",
		Mode:        match.ModePvP,
		Status:      match.StatusFinished,
		InitialFEN:  rules.StartFEN,
		Result:      match.ResultBlackWins,
		Termination: match.TerminationCheckmate,
		TimeControl: match.TimeControl{BaseMs: 300_000, IncrementMs: 3_000},
		CreatedAt:   started,
		UpdatedAt:   ended,
		StartedAt:   &started,
		EndedAt:     &ended,
	}
}

func TestBuildPGN(t *testing.T) {
	g := finishedGame()
	pgn := BuildPGN(g, []string{"f3", "e5", "g4", "Qh4#"})

	assert.Contains(t, pgn, "[Date \"2025.03.01\"]\n")
	assert.Contains(t, pgn, "[White \"alice\"]\n")
	assert.Contains(t, pgn, "[Result \"0-1\"]\n")
	assert.Contains(t, pgn, "[TimeControl \"300+3\"]\n")
	assert.Contains(t, pgn, "[Termination \"checkmate\"]\n")
	assert.NotContains(t, pgn, "[SetUp")
	assert.True(t, strings.HasSuffix(pgn, "\n\n1. f3 e5 2. g4 Qh4# 0-1"), pgn)
}

func TestBuildPGN_CustomStartWithBlackToMove(t *testing.T) {
	g := finishedGame()
	g.Mode = match.ModeBot
	g.BlackID = ""
	g.Difficulty = "easy"
	g.InitialFEN = "4k3/8/8/8/8/8/4P3/4K3 b - - 0 12"
	g.Result = match.ResultDraw
	g.Termination = match.TerminationStalemate
	g.TimeControl = match.TimeControl{}

	pgn := BuildPGN(g, []string{"Kd7", "e4", "Ke6"})
	assert.Contains(t, pgn, "[Black \"Engine (easy)\"]\n")
	assert.Contains(t, pgn, "[TimeControl \"-\"]\n")
	assert.Contains(t, pgn, "[SetUp \"1\"]\n")
	assert.True(t, strings.HasSuffix(pgn, "12... Kd7 13. e4 Ke6 1/2-1/2"), pgn)
}

func TestSanitizePGN(t *testing.T) {
	assert.Equal(t, "a 'b'", sanitizePGN(` a "b"\`))
}

func TestRepository_SaveFinished(t *testing.T) {
	url := os.Getenv("CHESS_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CHESS_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := pgstore.Open(ctx, url, pgstore.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo, err := NewRepository(db)
	require.NoError(t, err)
	require.NoError(t, repo.Migrate(ctx))

	g := finishedGame()
	moves := []match.MoveRecord{{GameID: g.ID, Ply: 1, UCI: "f2f3", SAN: "f3"}}
	require.NoError(t, repo.SaveFinished(ctx, g, moves))
	require.NoError(t, repo.SaveFinished(ctx, g, moves))

	var pgn string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT pgn FROM chess_finished_games WHERE game_id = $1`, g.ID).Scan(&pgn))
	assert.Contains(t, pgn, "1. f3")
}
