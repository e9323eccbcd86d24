package match

import (
	"time"

	"github.com/park285/chess-sync/internal/rules"
)

// Status represents a game lifecycle state.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
	StatusAborted  Status = "aborted"
)

// Terminal reports whether no further actions are accepted.
func (s Status) Terminal() bool { return s == StatusFinished || s == StatusAborted }

type Mode string

const (
	ModeBot Mode = "bot"
	ModePvP Mode = "pvp"
)

// Result uses PGN result tokens; ResultNone marks a game without a result.
type Result string

const (
	ResultWhiteWins Result = "1-0"
	ResultBlackWins Result = "0-1"
	ResultDraw      Result = "1/2-1/2"
	ResultNone      Result = "*"
)

// WinFor returns the result token for a win by c.
func WinFor(c rules.Color) Result {
	if c == rules.White {
		return ResultWhiteWins
	}
	return ResultBlackWins
}

type Termination string

const (
	TerminationNone                 Termination = ""
	TerminationCheckmate            Termination = "checkmate"
	TerminationResign               Termination = "resign"
	TerminationTimeout              Termination = "timeout"
	TerminationStalemate            Termination = "stalemate"
	TerminationDrawAgreement        Termination = "draw_agreement"
	TerminationInsufficientMaterial Termination = "insufficient_material"
	TerminationThreefoldRepetition  Termination = "threefold_repetition"
	TerminationFiftyMoveRule        Termination = "fifty_move_rule"
	TerminationAborted              Termination = "aborted"
)

// TimeControl is a base budget plus per-move increment. A zero base means
// the game is untimed.
type TimeControl struct {
	BaseMs      int64 `json:"baseMs"`
	IncrementMs int64 `json:"incrementMs"`
}

func (tc TimeControl) Timed() bool { return tc.BaseMs > 0 }

// Game is one stored match row.
type Game struct {
	ID        string `json:"id"`
	WhiteID   string `json:"white_id,omitempty"`
	BlackID   string `json:"black_id,omitempty"`
	CreatorID string `json:"creator_id"`
	Mode      Mode   `json:"mode"`
	Status    Status `json:"status"`

	InitialFEN string `json:"initial_fen"`
	// CurrentFEN caches the position after the last move. The move log is
	// authoritative.
	CurrentFEN string `json:"current_fen"`
	PGN        string `json:"pgn"`

	Result      Result      `json:"result"`
	Termination Termination `json:"termination,omitempty"`
	TimeControl TimeControl `json:"time_control"`

	// Ply counts appended moves and doubles as the compare-and-swap token.
	Ply         int         `json:"ply"`
	Difficulty  string      `json:"difficulty,omitempty"`
	DrawOfferBy rules.Color `json:"draw_offer_by,omitempty"`

	WhiteClockMs int64 `json:"white_clock_ms,omitempty"`
	BlackClockMs int64 `json:"black_clock_ms,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	LastMoveAt *time.Time `json:"last_move_at,omitempty"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

// Clone returns a copy that can be mutated without touching g.
func (g *Game) Clone() *Game {
	if g == nil {
		return nil
	}
	c := *g
	return &c
}

// ColorOf returns the seat held by userID, or NoColor.
func (g *Game) ColorOf(userID string) rules.Color {
	switch {
	case userID == "":
		return rules.NoColor
	case g.WhiteID == userID:
		return rules.White
	case g.BlackID == userID:
		return rules.Black
	}
	return rules.NoColor
}

// PlayerID returns the user seated as c.
func (g *Game) PlayerID(c rules.Color) string {
	switch c {
	case rules.White:
		return g.WhiteID
	case rules.Black:
		return g.BlackID
	}
	return ""
}

// OpenSeat returns the first empty seat, white first.
func (g *Game) OpenSeat() rules.Color {
	switch {
	case g.WhiteID == "":
		return rules.White
	case g.BlackID == "":
		return rules.Black
	}
	return rules.NoColor
}

// BotController reports whether userID drives the engine side of a bot game.
func (g *Game) BotController(userID string) bool {
	return g.Mode == ModeBot && userID != "" && g.CreatorID == userID
}

// BotColor is the engine's side in a bot game: the seat no human holds.
func (g *Game) BotColor() rules.Color {
	if g.Mode != ModeBot {
		return rules.NoColor
	}
	return g.OpenSeat()
}

// IsParticipant reports whether userID may act on this game.
func (g *Game) IsParticipant(userID string) bool {
	return g.ColorOf(userID) != rules.NoColor || g.BotController(userID)
}

// Start moves the game to active and initialises the clocks.
func (g *Game) Start(now time.Time) {
	g.Status = StatusActive
	started := now
	g.StartedAt = &started
	g.UpdatedAt = now
	if g.TimeControl.Timed() {
		g.WhiteClockMs = g.TimeControl.BaseMs
		g.BlackClockMs = g.TimeControl.BaseMs
	}
}

// TakeSeat seats userID as seat and starts the game. Stores call it while
// holding whatever lock or transaction guards the row.
func (g *Game) TakeSeat(seat rules.Color, userID string, now time.Time) error {
	if seat == rules.NoColor || g.PlayerID(seat) != "" {
		return ErrConflictFull
	}
	if g.Status != StatusWaiting {
		return ErrConflictStale
	}
	if seat == rules.White {
		g.WhiteID = userID
	} else {
		g.BlackID = userID
	}
	g.Start(now)
	return nil
}

func (g *Game) clock(c rules.Color) int64 {
	if c == rules.White {
		return g.WhiteClockMs
	}
	return g.BlackClockMs
}

func (g *Game) setClock(c rules.Color, ms int64) {
	if c == rules.White {
		g.WhiteClockMs = ms
	} else {
		g.BlackClockMs = ms
	}
}

// clockStart is when the side to move began thinking.
func (g *Game) clockStart() time.Time {
	if g.LastMoveAt != nil {
		return *g.LastMoveAt
	}
	if g.StartedAt != nil {
		return *g.StartedAt
	}
	return g.CreatedAt
}

// MoveRecord is one appended ply.
type MoveRecord struct {
	GameID    string    `json:"game_id"`
	Ply       int       `json:"ply"`
	UCI       string    `json:"uci"`
	SAN       string    `json:"san"`
	FENAfter  string    `json:"fen_after"`
	CreatedAt time.Time `json:"created_at"`
}
