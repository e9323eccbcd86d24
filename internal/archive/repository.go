// Package archive keeps a denormalised record of every finished game,
// including a complete PGN with headers.
package archive

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/park285/chess-sync/internal/match"
	"github.com/park285/chess-sync/internal/rules"
)

//go:embed schema.sql
var schema string

type Repository struct {
	db *sql.DB
}

var _ match.Archiver = (*Repository)(nil)

func NewRepository(db *sql.DB) (*Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle is required")
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("archive migrate: %w", err)
	}
	return nil
}

// SaveFinished upserts the final record of g.
func (r *Repository) SaveFinished(ctx context.Context, g *match.Game, moves []match.MoveRecord) error {
	if g == nil {
		return nil
	}
	uci := make([]string, len(moves))
	san := make([]string, len(moves))
	for i, mv := range moves {
		uci[i] = mv.UCI
		san[i] = mv.SAN
	}
	movesUCI, err := json.Marshal(uci)
	if err != nil {
		return fmt.Errorf("marshal moves_uci: %w", err)
	}
	movesSAN, err := json.Marshal(san)
	if err != nil {
		return fmt.Errorf("marshal moves_san: %w", err)
	}

	ended := g.UpdatedAt
	if g.EndedAt != nil {
		ended = *g.EndedAt
	}
	var started sql.NullTime
	if g.StartedAt != nil {
		started = sql.NullTime{Time: *g.StartedAt, Valid: true}
	}

	const q = `INSERT INTO chess_finished_games (
		game_id, white_id, black_id, mode, difficulty, time_control,
		result, termination, moves_uci, moves_san, pgn,
		started_at, ended_at, duration_ms
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9::jsonb,$10::jsonb,$11,$12,$13,$14
	) ON CONFLICT (game_id) DO UPDATE SET
		white_id=EXCLUDED.white_id,
		black_id=EXCLUDED.black_id,
		result=EXCLUDED.result,
		termination=EXCLUDED.termination,
		moves_uci=EXCLUDED.moves_uci,
		moves_san=EXCLUDED.moves_san,
		pgn=EXCLUDED.pgn,
		ended_at=EXCLUDED.ended_at,
		duration_ms=EXCLUDED.duration_ms`

	_, err = r.db.ExecContext(ctx, q,
		g.ID, g.WhiteID, g.BlackID, string(g.Mode), g.Difficulty, timeControlTag(g.TimeControl),
		string(g.Result), string(g.Termination), string(movesUCI), string(movesSAN), BuildPGN(g, san),
		started, ended, duration(g, ended).Milliseconds(),
	)
	return err
}

func duration(g *match.Game, ended time.Time) time.Duration {
	start := g.CreatedAt
	if g.StartedAt != nil {
		start = *g.StartedAt
	}
	if d := ended.Sub(start); d > 0 {
		return d
	}
	return 0
}

// timeControlTag renders the PGN TimeControl tag: "base+inc" in seconds,
// or "-" for untimed games.
func timeControlTag(tc match.TimeControl) string {
	if !tc.Timed() {
		return "-"
	}
	base := tc.BaseMs / 1000
	if tc.IncrementMs == 0 {
		return fmt.Sprintf("%d", base)
	}
	return fmt.Sprintf("%d+%d", base, tc.IncrementMs/1000)
}

// BuildPGN renders a complete PGN for g. Moves are numbered from the
// game's initial position; a SetUp/FEN pair is emitted for custom starts.
func BuildPGN(g *match.Game, san []string) string {
	var b strings.Builder
	date := g.CreatedAt
	if g.EndedAt != nil {
		date = *g.EndedAt
	}
	if date.IsZero() {
		date = time.Now()
	}
	white, black := player(g, rules.White), player(g, rules.Black)
	b.WriteString("[Event \"Online game\"]\n")
	b.WriteString("[Site \"chess-sync\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(white)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(black)))
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n", g.Result))
	b.WriteString(fmt.Sprintf("[TimeControl \"%s\"]\n", timeControlTag(g.TimeControl)))
	if g.Termination != match.TerminationNone {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(string(g.Termination))))
	}
	if g.InitialFEN != "" && g.InitialFEN != rules.StartFEN {
		b.WriteString("[SetUp \"1\"]\n")
		b.WriteString(fmt.Sprintf("[FEN \"%s\"]\n", g.InitialFEN))
	}
	b.WriteString("\n")

	number, blackToMove := 1, false
	if pos, err := rules.ParseFEN(g.InitialFEN); err == nil {
		number, blackToMove = pos.FullmoveNumber(), pos.Turn() == rules.Black
	}
	for i, m := range san {
		switch {
		case !blackToMove:
			b.WriteString(fmt.Sprintf("%d. %s ", number, strings.TrimSpace(m)))
		case i == 0:
			b.WriteString(fmt.Sprintf("%d... %s ", number, strings.TrimSpace(m)))
		default:
			b.WriteString(strings.TrimSpace(m) + " ")
		}
		if blackToMove {
			number++
		}
		blackToMove = !blackToMove
	}
	b.WriteString(string(g.Result))
	return b.String()
}

func player(g *match.Game, c rules.Color) string {
	if id := g.PlayerID(c); id != "" {
		return id
	}
	if g.Mode == match.ModeBot {
		return "Engine (" + g.Difficulty + ")"
	}
	return "?"
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
