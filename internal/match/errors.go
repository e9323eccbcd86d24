package match

import (
	"errors"
	"fmt"
)

// Reason is a stable, client-facing rejection code.
type Reason string

const (
	ReasonNotFound       Reason = "NotFound"
	ReasonGameNotActive  Reason = "GameNotActive"
	ReasonNotParticipant Reason = "NotParticipant"
	ReasonNotYourTurn    Reason = "NotYourTurn"
	ReasonOutOfSync      Reason = "OutOfSync"
	ReasonIllegalMove    Reason = "IllegalMove"
	ReasonGameFull       Reason = "GameFull"
	ReasonBadRequest     Reason = "BadRequest"
	ReasonClockRunning   Reason = "ClockRunning"
	ReasonNoClock        Reason = "NoClock"
)

// ReasonError is an expected rejection. OutOfSync rejections carry the
// authoritative ply and position so the caller can resynchronise.
type ReasonError struct {
	Reason Reason
	Ply    int
	FEN    string
	Err    error
}

func (e *ReasonError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return string(e.Reason)
}

func (e *ReasonError) Unwrap() error { return e.Err }

// Is matches on Reason so errors.Is(err, ErrOutOfSync) works for any
// instance carrying that reason.
func (e *ReasonError) Is(target error) bool {
	t, ok := target.(*ReasonError)
	return ok && t.Reason == e.Reason
}

var (
	ErrNotFound       = &ReasonError{Reason: ReasonNotFound}
	ErrGameNotActive  = &ReasonError{Reason: ReasonGameNotActive}
	ErrNotParticipant = &ReasonError{Reason: ReasonNotParticipant}
	ErrNotYourTurn    = &ReasonError{Reason: ReasonNotYourTurn}
	ErrOutOfSync      = &ReasonError{Reason: ReasonOutOfSync}
	ErrIllegalMove    = &ReasonError{Reason: ReasonIllegalMove}
	ErrGameFull       = &ReasonError{Reason: ReasonGameFull}
	ErrBadRequest     = &ReasonError{Reason: ReasonBadRequest}
	ErrClockRunning   = &ReasonError{Reason: ReasonClockRunning}
	ErrNoClock        = &ReasonError{Reason: ReasonNoClock}
)

func reject(r Reason, err error) *ReasonError { return &ReasonError{Reason: r, Err: err} }

func outOfSync(ply int, fen string) *ReasonError {
	return &ReasonError{Reason: ReasonOutOfSync, Ply: ply, FEN: fen}
}

func badRequest(format string, args ...any) *ReasonError {
	return &ReasonError{Reason: ReasonBadRequest, Err: fmt.Errorf(format, args...)}
}

// ReasonOf extracts the rejection reason, if err is one.
func ReasonOf(err error) (*ReasonError, bool) {
	var re *ReasonError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// Store-level conflicts. These never leave this package: the service maps
// them to OutOfSync and GameFull.
var (
	ErrStoreNotFound = errors.New("store: game not found")
	ErrConflictStale = errors.New("store: game changed since read")
	ErrConflictFull  = errors.New("store: seat already taken")
)
