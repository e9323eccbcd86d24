package chessclient

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/park285/chess-sync/internal/rules"
	"github.com/park285/chess-sync/pkg/chessdto"
)

var (
	// ErrGap means a move event skipped plies; the mirror must resync.
	ErrGap = errors.New("mirror: event gap")
	// ErrPending means an optimistic move is still awaiting its answer.
	ErrPending  = errors.New("mirror: move already pending")
	ErrNotReady = errors.New("mirror: not loaded")
)

// Pending is an optimistic move applied locally before the server answered.
type Pending struct {
	Move      rules.MoveRequest
	ClientPly int
	SAN       string
	Position  *rules.Position
}

// Mirror is a client's advisory copy of one game. It never decides
// anything: it previews moves locally and adopts whatever the server says.
type Mirror struct {
	mu      sync.Mutex
	game    *chessdto.Game
	moves   []chessdto.Move
	ply     int
	pos     *rules.Position
	pending *Pending
	stale   bool
	resyncs int
}

func NewMirror() *Mirror { return &Mirror{} }

// Load replaces all state with a server sync view.
func (m *Mirror) Load(s *chessdto.SyncResponse) error {
	pos, err := rules.ParseFEN(s.FEN)
	if err != nil {
		return fmt.Errorf("mirror load: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.game = s.Game
	m.moves = append([]chessdto.Move(nil), s.Moves...)
	m.ply = s.Ply
	m.pos = pos
	m.pending = nil
	m.stale = false
	return nil
}

// Ply is the last confirmed authoritative ply.
func (m *Mirror) Ply() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ply
}

// FEN is the confirmed position.
func (m *Mirror) FEN() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pos == nil {
		return ""
	}
	return m.pos.FEN()
}

// DisplayFEN is the position to show: the pending move if any, else the
// confirmed position.
func (m *Mirror) DisplayFEN() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.pending != nil:
		return m.pending.Position.FEN()
	case m.pos != nil:
		return m.pos.FEN()
	}
	return ""
}

func (m *Mirror) Pending() *Pending {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

func (m *Mirror) Game() *chessdto.Game {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.game
}

func (m *Mirror) Moves() []chessdto.Move {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]chessdto.Move(nil), m.moves...)
}

// Stale reports that events were missed and Resync is due.
func (m *Mirror) Stale() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stale
}

// Resyncs counts completed Resync calls.
func (m *Mirror) Resyncs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resyncs
}

// TryLocal previews req against the confirmed position and records it as
// pending. It returns the request body to send.
func (m *Mirror) TryLocal(req rules.MoveRequest) (chessdto.SubmitMoveRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pos == nil {
		return chessdto.SubmitMoveRequest{}, ErrNotReady
	}
	if m.pending != nil {
		return chessdto.SubmitMoveRequest{}, ErrPending
	}
	next, applied, err := m.pos.Apply(req)
	if err != nil {
		return chessdto.SubmitMoveRequest{}, err
	}
	ply := m.ply
	m.pending = &Pending{Move: req, ClientPly: ply, SAN: applied.SAN, Position: next}
	return chessdto.SubmitMoveRequest{UCI: applied.UCI, ClientPly: &ply, DefaultQueen: req.DefaultQueen}, nil
}

// Confirm adopts an accepted move response.
func (m *Mirror) Confirm(resp *chessdto.MoveResponse) error {
	if resp == nil || !resp.Accepted || resp.AuthoritativePly == nil {
		return errors.New("mirror: response is not an acceptance")
	}
	pos, err := rules.ParseFEN(resp.AuthoritativePosition)
	if err != nil {
		return fmt.Errorf("mirror confirm: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = nil
	if *resp.AuthoritativePly < m.ply {
		return nil
	}
	if resp.Move != nil && resp.Move.Ply == m.ply+1 {
		m.moves = append(m.moves, *resp.Move)
	} else if *resp.AuthoritativePly != m.ply {
		m.stale = true
	}
	m.ply = *resp.AuthoritativePly
	m.pos = pos
	if resp.Game != nil {
		m.game = resp.Game
	}
	return nil
}

// Reject drops the pending move after a rejection. It reports whether the
// rejection means the mirror is behind and must Resync.
func (m *Mirror) Reject(err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = nil
	if ReasonOf(err) == chessdto.ReasonOutOfSync {
		m.stale = true
		return true
	}
	return false
}

// Apply folds a feed event in. Events at or behind the confirmed ply are
// ignored; a move event that skips plies marks the mirror stale.
func (m *Mirror) Apply(ev chessdto.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pos == nil {
		return ErrNotReady
	}
	switch ev.Type {
	case chessdto.EventMove:
		if ev.Move == nil || ev.Move.Ply <= m.ply {
			return nil
		}
		if ev.Move.Ply != m.ply+1 {
			m.stale = true
			return ErrGap
		}
		pos, err := rules.ParseFEN(ev.Move.FENAfter)
		if err != nil {
			return fmt.Errorf("mirror apply: %w", err)
		}
		m.moves = append(m.moves, *ev.Move)
		m.ply = ev.Move.Ply
		m.pos = pos
		m.pending = nil
	case chessdto.EventGame:
		if ev.Game == nil || ev.Game.Ply < m.ply {
			return nil
		}
		pos, err := rules.ParseFEN(ev.Game.CurrentFEN)
		if err != nil {
			return fmt.Errorf("mirror apply: %w", err)
		}
		if ev.Game.Ply > m.ply {
			// The row moved past moves this mirror never saw.
			m.stale = true
			m.pending = nil
		}
		m.game = ev.Game
		m.ply = ev.Game.Ply
		m.pos = pos
	}
	return nil
}

// Resync reloads from the server's sync view.
func (m *Mirror) Resync(ctx context.Context, c *Client, gameID string) error {
	s, err := c.Sync(ctx, gameID)
	if err != nil {
		return err
	}
	if err := m.Load(s); err != nil {
		return err
	}
	m.mu.Lock()
	m.resyncs++
	m.mu.Unlock()
	return nil
}

// Submit previews req locally, sends it and reconciles the answer. An
// OutOfSync rejection triggers a Resync before the error is returned.
func (m *Mirror) Submit(ctx context.Context, c *Client, gameID string, req rules.MoveRequest) (*chessdto.MoveResponse, error) {
	body, err := m.TryLocal(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.SubmitMove(ctx, gameID, body)
	if err != nil {
		if m.Reject(err) {
			if rerr := m.Resync(ctx, c, gameID); rerr != nil {
				return nil, errors.Join(err, rerr)
			}
		}
		return nil, err
	}
	if err := m.Confirm(resp); err != nil {
		return nil, err
	}
	return resp, nil
}
