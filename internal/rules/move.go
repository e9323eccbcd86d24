package rules

import (
	"errors"
	"fmt"
	"strings"
)

var ErrIllegalMove = errors.New("illegal move")

var (
	ErrNoPiece             = fmt.Errorf("%w: no piece on origin square", ErrIllegalMove)
	ErrWrongSide           = fmt.Errorf("%w: piece does not belong to side to move", ErrIllegalMove)
	ErrIllegalDestination  = fmt.Errorf("%w: destination not reachable", ErrIllegalMove)
	ErrPromotionRequired   = fmt.Errorf("%w: promotion piece required", ErrIllegalMove)
	ErrUnexpectedPromotion = fmt.Errorf("%w: promotion piece given for non-promoting move", ErrIllegalMove)
)

// MoveRequest is a typed move proposal. Promotion must be explicit unless
// DefaultQueen is set.
type MoveRequest struct {
	From         Square
	To           Square
	Promotion    PieceKind
	DefaultQueen bool
}

// Coordinate renders the compact form, e.g. "e7e8q".
func (m MoveRequest) Coordinate() string {
	return m.From.String() + m.To.String() + m.Promotion.String()
}

func (m MoveRequest) String() string { return m.Coordinate() }

// ParseCoordinate parses a 4-5 character coordinate move such as "g1f3" or "e7e8q".
func ParseCoordinate(s string) (MoveRequest, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 4 && len(s) != 5 {
		return MoveRequest{}, fmt.Errorf("invalid coordinate move %q", s)
	}
	from, err := ParseSquare(s[0:2])
	if err != nil {
		return MoveRequest{}, err
	}
	to, err := ParseSquare(s[2:4])
	if err != nil {
		return MoveRequest{}, err
	}
	var promo PieceKind
	if len(s) == 5 {
		promo, err = ParsePromotion(s[4:])
		if err != nil {
			return MoveRequest{}, err
		}
	}
	return MoveRequest{From: from, To: to, Promotion: promo}, nil
}

// NewMoveRequest builds a request from separate from/to/promotion fields.
func NewMoveRequest(from, to, promotion string) (MoveRequest, error) {
	f, err := ParseSquare(from)
	if err != nil {
		return MoveRequest{}, err
	}
	t, err := ParseSquare(to)
	if err != nil {
		return MoveRequest{}, err
	}
	p, err := ParsePromotion(promotion)
	if err != nil {
		return MoveRequest{}, err
	}
	return MoveRequest{From: f, To: t, Promotion: p}, nil
}

// Applied describes a move that was accepted by Apply.
type Applied struct {
	UCI     string
	SAN     string
	Color   Color
	Capture bool
}
