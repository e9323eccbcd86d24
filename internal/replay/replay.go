// Package replay rebuilds the authoritative position of a game from its
// stored move log.
package replay

import (
	"errors"
	"fmt"
	"strings"

	"github.com/park285/chess-sync/internal/rules"
)

// ErrUnrecoverable is returned when neither the log nor the cached position
// yields a usable position.
var ErrUnrecoverable = errors.New("replay: no usable position")

// Step is one stored move.
type Step struct {
	Ply int
	UCI string
}

// Result is the outcome of a reconstruction.
//
// When Degraded is set the log could not be replayed and Position comes from
// the cached FEN; Ply and History are then only as reliable as the cache and
// callers must skip ply-sync and repetition checks.
type Result struct {
	Position *rules.Position
	Ply      int
	History  []*rules.Position

	Degraded bool
	// Cause explains why the replay degraded.
	Cause error
	// CacheStale reports that the cached FEN disagreed with a clean replay.
	CacheStale bool
}

// Reconstruct replays moves from initialFEN. An empty initialFEN means the
// standard starting position. cachedFEN is consulted only as a fallback and
// for staleness reporting; fallbackPly is the ply to report in degraded mode.
func Reconstruct(initialFEN string, moves []Step, cachedFEN string, fallbackPly int) (Result, error) {
	res, err := replayLog(initialFEN, moves)
	if err == nil {
		if c := strings.TrimSpace(cachedFEN); c != "" && !sameFEN(c, res.Position.FEN()) {
			res.CacheStale = true
		}
		return res, nil
	}

	cached, cerr := rules.ParseFEN(cachedFEN)
	if cerr != nil {
		return Result{}, fmt.Errorf("%w: %v; cached position: %v", ErrUnrecoverable, err, cerr)
	}
	return Result{
		Position: cached,
		Ply:      fallbackPly,
		History:  []*rules.Position{cached},
		Degraded: true,
		Cause:    err,
	}, nil
}

func replayLog(initialFEN string, moves []Step) (Result, error) {
	if strings.TrimSpace(initialFEN) == "" {
		initialFEN = rules.StartFEN
	}
	pos, err := rules.ParseFEN(initialFEN)
	if err != nil {
		return Result{}, fmt.Errorf("initial position: %w", err)
	}
	history := make([]*rules.Position, 0, len(moves)+1)
	history = append(history, pos)
	for i, st := range moves {
		if st.Ply != i+1 {
			return Result{}, fmt.Errorf("ply gap: move %d stored as ply %d", i+1, st.Ply)
		}
		req, err := rules.ParseCoordinate(st.UCI)
		if err != nil {
			return Result{}, fmt.Errorf("ply %d: %w", st.Ply, err)
		}
		next, _, err := pos.Apply(req)
		if err != nil {
			return Result{}, fmt.Errorf("ply %d %s: %w", st.Ply, st.UCI, err)
		}
		history = append(history, next)
		pos = next
	}
	return Result{Position: pos, Ply: len(moves), History: history}, nil
}

// sameFEN compares positions ignoring move counters, which older rows may
// not have kept in step.
func sameFEN(a, b string) bool {
	fa, fb := strings.Fields(a), strings.Fields(b)
	if len(fa) < 4 || len(fb) < 4 {
		return a == b
	}
	for i := 0; i < 4; i++ {
		if fa[i] != fb[i] {
			return false
		}
	}
	return true
}
