// Package pgstore is the Postgres match.Store. Row writes are conditional
// UPDATEs on (ply, status); the move log's primary key (game_id, ply)
// rejects a second append at the same ply.
package pgstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/park285/chess-sync/internal/match"
	"github.com/park285/chess-sync/internal/rules"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type Store struct {
	db *sql.DB
}

var _ match.Store = (*Store)(nil)

// Open connects and pings the database.
func Open(ctx context.Context, databaseURL string, opts Options) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("database url is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 16
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 8
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = 30 * time.Minute
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func New(db *sql.DB) *Store { return &Store{db: db} }

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const selectGame = `
	SELECT id, white_id, black_id, creator_id, mode, status,
		initial_fen, current_fen, pgn, result, termination,
		base_ms, increment_ms, ply, difficulty, draw_offer_by,
		white_clock_ms, black_clock_ms,
		created_at, updated_at, started_at, last_move_at, ended_at
	FROM chess_games
	WHERE id = $1`

type scanner interface {
	Scan(dest ...any) error
}

func scanGame(row scanner) (*match.Game, error) {
	var (
		g                               match.Game
		white, black, term, diff, offer sql.NullString
		started, lastMove, ended        sql.NullTime
		mode, status, result            string
	)
	err := row.Scan(
		&g.ID, &white, &black, &g.CreatorID, &mode, &status,
		&g.InitialFEN, &g.CurrentFEN, &g.PGN, &result, &term,
		&g.TimeControl.BaseMs, &g.TimeControl.IncrementMs, &g.Ply, &diff, &offer,
		&g.WhiteClockMs, &g.BlackClockMs,
		&g.CreatedAt, &g.UpdatedAt, &started, &lastMove, &ended,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, match.ErrStoreNotFound
	}
	if err != nil {
		return nil, err
	}
	g.WhiteID = white.String
	g.BlackID = black.String
	g.Mode = match.Mode(mode)
	g.Status = match.Status(status)
	g.Result = match.Result(result)
	g.Termination = match.Termination(term.String)
	g.Difficulty = diff.String
	g.DrawOfferBy = rules.Color(offer.String)
	g.StartedAt = timePtr(started)
	g.LastMoveAt = timePtr(lastMove)
	g.EndedAt = timePtr(ended)
	return &g, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *Store) GetGame(ctx context.Context, id string) (*match.Game, error) {
	return scanGame(s.db.QueryRowContext(ctx, selectGame, id))
}

func (s *Store) ListMoves(ctx context.Context, gameID string) ([]match.MoveRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT game_id, ply, uci, san, fen_after, created_at
		FROM chess_moves
		WHERE game_id = $1
		ORDER BY ply ASC`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []match.MoveRecord{}
	for rows.Next() {
		var mv match.MoveRecord
		if err := rows.Scan(&mv.GameID, &mv.Ply, &mv.UCI, &mv.SAN, &mv.FENAfter, &mv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, mv)
	}
	return out, rows.Err()
}

func (s *Store) CreateGame(ctx context.Context, g *match.Game) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chess_games (
			id, white_id, black_id, creator_id, mode, status,
			initial_fen, current_fen, pgn, result, termination,
			base_ms, increment_ms, ply, difficulty, draw_offer_by,
			white_clock_ms, black_clock_ms,
			created_at, updated_at, started_at, last_move_at, ended_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`,
		g.ID, nullString(g.WhiteID), nullString(g.BlackID), g.CreatorID, string(g.Mode), string(g.Status),
		g.InitialFEN, g.CurrentFEN, g.PGN, string(g.Result), nullString(string(g.Termination)),
		g.TimeControl.BaseMs, g.TimeControl.IncrementMs, g.Ply, nullString(g.Difficulty), nullString(string(g.DrawOfferBy)),
		g.WhiteClockMs, g.BlackClockMs,
		g.CreatedAt, g.UpdatedAt, nullTime(g.StartedAt), nullTime(g.LastMoveAt), nullTime(g.EndedAt),
	)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// updateRow rewrites every mutable column when the row still matches
// expect. Returns ErrConflictStale when it does not.
func updateRow(ctx context.Context, ex execer, g *match.Game, expect match.Expect) error {
	res, err := ex.ExecContext(ctx, `
		UPDATE chess_games SET
			white_id = $2, black_id = $3, status = $4,
			current_fen = $5, pgn = $6, result = $7, termination = $8,
			ply = $9, draw_offer_by = $10,
			white_clock_ms = $11, black_clock_ms = $12,
			updated_at = $13, started_at = $14, last_move_at = $15, ended_at = $16
		WHERE id = $1 AND ply = $17 AND status = $18`,
		g.ID, nullString(g.WhiteID), nullString(g.BlackID), string(g.Status),
		g.CurrentFEN, g.PGN, string(g.Result), nullString(string(g.Termination)),
		g.Ply, nullString(string(g.DrawOfferBy)),
		g.WhiteClockMs, g.BlackClockMs,
		g.UpdatedAt, nullTime(g.StartedAt), nullTime(g.LastMoveAt), nullTime(g.EndedAt),
		expect.Ply, string(expect.Status),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return match.ErrConflictStale
	}
	return nil
}

func (s *Store) WriteGameAndAppendMove(ctx context.Context, g *match.Game, expect match.Expect, mv *match.MoveRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := updateRow(ctx, tx, g, expect); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chess_moves (game_id, ply, uci, san, fen_after, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			mv.GameID, mv.Ply, mv.UCI, mv.SAN, mv.FENAfter, mv.CreatedAt)
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return match.ErrConflictStale
		}
		return err
	})
}

func (s *Store) UpdateGame(ctx context.Context, g *match.Game, expect match.Expect) error {
	return updateRow(ctx, s.db, g, expect)
}

func (s *Store) FillSeat(ctx context.Context, gameID string, seat rules.Color, userID string, startedAt time.Time) (*match.Game, error) {
	var out *match.Game
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		cur, err := scanGame(tx.QueryRowContext(ctx, selectGame+` FOR UPDATE`, gameID))
		if err != nil {
			return err
		}
		expect := match.Expect{Ply: cur.Ply, Status: cur.Status}
		if err := cur.TakeSeat(seat, userID, startedAt); err != nil {
			return err
		}
		if err := updateRow(ctx, tx, cur, expect); err != nil {
			return err
		}
		out = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
