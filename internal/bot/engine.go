// Package bot supplies engine moves for bot games, from a pooled UCI
// engine or from a uniform random fallback.
package bot

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-sync/internal/match"
	"github.com/park285/chess-sync/internal/rules"
)

type EngineConfig struct {
	BinaryPath        string
	PerPresetCapacity int
	// Presets defaults to the embedded table.
	Presets *Presets
}

// Engine answers BestMove from a pool of UCI engine processes.
type Engine struct {
	pool    *Pool
	presets *Presets
	logger  *zap.Logger
}

var _ match.MoveSource = (*Engine)(nil)

func NewEngine(cfg EngineConfig, logger *zap.Logger) (*Engine, error) {
	if cfg.BinaryPath == "" {
		return nil, fmt.Errorf("binary path required")
	}
	if _, err := os.Stat(cfg.BinaryPath); err != nil {
		return nil, fmt.Errorf("stockfish binary check: %w", err)
	}
	dial := func(ctx context.Context, opt Options) (*Session, error) {
		return NewSession(ctx, cfg.BinaryPath, opt, logger)
	}
	return newEngine(dial, cfg, logger)
}

func newEngine(dial dialFunc, cfg EngineConfig, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	presets := cfg.Presets
	if presets == nil {
		var err error
		if presets, err = DefaultPresets(); err != nil {
			return nil, err
		}
	}
	return &Engine{
		pool:    newPool(dial, cfg.PerPresetCapacity, logger),
		presets: presets,
		logger:  logger,
	}, nil
}

func (e *Engine) Presets() *Presets { return e.presets }

func (e *Engine) BestMove(ctx context.Context, fen string, difficulty string) (string, error) {
	start := time.Now()
	preset, err := e.presets.Lookup(difficulty)
	if err != nil {
		return "", err
	}

	session, err := e.pool.Acquire(ctx, preset.options())
	if err != nil {
		return "", err
	}
	var releaseErr error
	defer func() { e.pool.Release(session, releaseErr) }()

	if err := session.NewGame(ctx); err != nil {
		releaseErr = err
		return "", err
	}
	move, err := session.Search(ctx, fen, nil, preset.limits())
	if err != nil {
		releaseErr = err
		return "", err
	}
	e.logger.Debug("bot_move_chosen",
		zap.String("difficulty", preset.Name),
		zap.String("uci", move),
		zap.Duration("took", time.Since(start)),
	)
	return move, nil
}

func (e *Engine) Close() error { return e.pool.Close() }

// Random picks uniformly among the legal moves. It needs no engine binary.
type Random struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

var _ match.MoveSource = (*Random)(nil)

func NewRandom(seed int64) *Random {
	return &Random{rnd: rand.New(rand.NewSource(seed))}
}

func (r *Random) BestMove(_ context.Context, fen string, _ string) (string, error) {
	pos, err := rules.ParseFEN(fen)
	if err != nil {
		return "", err
	}
	moves := pos.LegalMoves()
	if len(moves) == 0 {
		return "", ErrNoMove
	}
	r.mu.Lock()
	i := r.rnd.Intn(len(moves))
	r.mu.Unlock()
	return moves[i], nil
}
