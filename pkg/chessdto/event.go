package chessdto

// Event types pushed on the game feed.
const (
	EventGame = "game"
	EventMove = "move"
)

// Event is one fan-out message. Game events carry the full row; move events
// carry the appended move.
type Event struct {
	Type   string `json:"type"`
	GameID string `json:"gameId"`
	Game   *Game  `json:"game,omitempty"`
	Move   *Move  `json:"move,omitempty"`
}
