package chessdto

// DomainError is the wire form of an expected rejection.
type DomainError struct {
	Code      string `json:"reason"`
	Message   string `json:"message,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "chess service error"
}

// Reason codes shared by server and client.
const (
	ReasonNotFound       = "NotFound"
	ReasonGameNotActive  = "GameNotActive"
	ReasonNotParticipant = "NotParticipant"
	ReasonNotYourTurn    = "NotYourTurn"
	ReasonOutOfSync      = "OutOfSync"
	ReasonIllegalMove    = "IllegalMove"
	ReasonGameFull       = "GameFull"
	ReasonBadRequest     = "BadRequest"
	ReasonClockRunning   = "ClockRunning"
	ReasonNoClock        = "NoClock"
	ReasonUnauthorized   = "Unauthorized"
)
