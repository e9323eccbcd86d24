package chessdto

import "time"

type TimeControl struct {
	BaseMs      int64 `json:"baseMs"`
	IncrementMs int64 `json:"incrementMs"`
}

// Game is the client view of one game row.
type Game struct {
	ID           string      `json:"id"`
	WhiteID      string      `json:"whiteId,omitempty"`
	BlackID      string      `json:"blackId,omitempty"`
	CreatorID    string      `json:"creatorId"`
	Mode         string      `json:"mode"`
	Status       string      `json:"status"`
	InitialFEN   string      `json:"initialFen"`
	CurrentFEN   string      `json:"currentFen"`
	PGN          string      `json:"pgn"`
	Result       string      `json:"result"`
	Termination  string      `json:"termination,omitempty"`
	TimeControl  TimeControl `json:"timeControl"`
	Ply          int         `json:"ply"`
	Difficulty   string      `json:"difficulty,omitempty"`
	DrawOfferBy  string      `json:"drawOfferBy,omitempty"`
	WhiteClockMs int64       `json:"whiteClockMs,omitempty"`
	BlackClockMs int64       `json:"blackClockMs,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
	StartedAt    *time.Time  `json:"startedAt,omitempty"`
	LastMoveAt   *time.Time  `json:"lastMoveAt,omitempty"`
	EndedAt      *time.Time  `json:"endedAt,omitempty"`
}

type Move struct {
	GameID    string    `json:"gameId"`
	Ply       int       `json:"ply"`
	UCI       string    `json:"uci"`
	SAN       string    `json:"san"`
	FENAfter  string    `json:"fenAfter"`
	CreatedAt time.Time `json:"createdAt"`
}

// SyncResponse is the full resync view of a game.
type SyncResponse struct {
	Game     *Game  `json:"game"`
	Moves    []Move `json:"moves"`
	Ply      int    `json:"ply"`
	FEN      string `json:"fen"`
	Turn     string `json:"turn"`
	Degraded bool   `json:"degraded,omitempty"`
}

type CreateGameRequest struct {
	Mode            string      `json:"mode"`
	ColorPreference string      `json:"colorPreference,omitempty"`
	TimeControl     TimeControl `json:"timeControl"`
	Difficulty      string      `json:"difficulty,omitempty"`
	InitialFEN      string      `json:"initialFen,omitempty"`
}

// SubmitMoveRequest carries either a coordinate move in UCI or separate
// squares. ClientPly is the ply the client believes the game is at.
type SubmitMoveRequest struct {
	UCI          string `json:"uci,omitempty"`
	From         string `json:"from,omitempty"`
	To           string `json:"to,omitempty"`
	Promotion    string `json:"promotion,omitempty"`
	ClientPly    *int   `json:"clientPly"`
	DefaultQueen bool   `json:"defaultQueen,omitempty"`
}

// MoveResponse answers a move submission. Rejections from any route use the
// same shape with Accepted false.
type MoveResponse struct {
	Accepted bool `json:"accepted"`
	DomainError
	AuthoritativePly      *int   `json:"authoritativePly,omitempty"`
	AuthoritativePosition string `json:"authoritativePosition,omitempty"`
	NewStatus             string `json:"newStatus,omitempty"`
	Result                string `json:"result,omitempty"`
	Termination           string `json:"termination,omitempty"`
	Degraded              bool   `json:"degraded,omitempty"`
	Move                  *Move  `json:"move,omitempty"`
	Game                  *Game  `json:"game,omitempty"`
}

type LegalMovesResponse struct {
	Square       string   `json:"square"`
	Destinations []string `json:"destinations"`
}
