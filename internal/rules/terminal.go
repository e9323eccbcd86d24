package rules

import "strings"

// Ending classifies why a position is terminal.
type Ending string

const (
	NotOver              Ending = ""
	Checkmate            Ending = "checkmate"
	Stalemate            Ending = "stalemate"
	ThreefoldRepetition  Ending = "threefold_repetition"
	InsufficientMaterial Ending = "insufficient_material"
	FiftyMoveRule        Ending = "fifty_move_rule"
)

// Verdict is the terminal classification of the last position in a history.
type Verdict struct {
	Ending Ending
	// Winner is set only for checkmate.
	Winner Color
}

func (v Verdict) Over() bool { return v.Ending != NotOver }

func (p *Position) IsCheckmate() bool { return p.IsCheck() && !p.HasLegalMoves() }

func (p *Position) IsStalemate() bool { return !p.IsCheck() && !p.HasLegalMoves() }

// IsFiftyMoveRule reports 100 half-moves without a pawn move or capture.
func (p *Position) IsFiftyMoveRule() bool { return p.halfmove >= 100 }

// IsInsufficientMaterial reports K v K, K+minor v K, and positions where the
// only remaining non-king pieces are bishops all standing on one square colour.
func (p *Position) IsInsufficientMaterial() bool {
	var knights, bishops, others int
	light, dark := false, false
	for i, pc := range p.board {
		switch pc {
		case 0, 'K', 'k':
		case 'N', 'n':
			knights++
		case 'B', 'b':
			bishops++
			if Square(i).Light() {
				light = true
			} else {
				dark = true
			}
		default:
			others++
		}
	}
	if others > 0 {
		return false
	}
	switch {
	case knights == 0 && bishops == 0:
		return true
	case knights == 1 && bishops == 0:
		return true
	case knights == 0 && !(light && dark):
		return true
	}
	return false
}

// RepetitionKey identifies a position for repetition purposes: placement,
// side to move, castling rights and the en-passant square, which ParseFEN
// keeps only when the capture is legal.
func (p *Position) RepetitionKey() string {
	side := "w"
	if p.turn == Black {
		side = "b"
	}
	return strings.Join([]string{p.placement, side, p.castling, p.enPassant}, " ")
}

func (p *Position) enPassantCapturable() bool {
	target, err := ParseSquare(p.enPassant)
	if err != nil {
		return false
	}
	pawn := byte('P')
	if p.turn == Black {
		pawn = 'p'
	}
	for _, df := range []int{-1, 1} {
		from := NewSquare(target.File()+df, target.Rank()-pawnDir(p.turn))
		if !from.Valid() || p.board[from] != pawn {
			continue
		}
		for _, to := range p.LegalMovesFrom(from) {
			if to == target {
				return true
			}
		}
	}
	return false
}

func pawnDir(c Color) int {
	if c == Black {
		return -1
	}
	return 1
}

// IsThreefoldRepetition reports whether the last position of history has
// occurred at least three times.
func IsThreefoldRepetition(history []*Position) bool {
	if len(history) < 5 {
		return false
	}
	last := history[len(history)-1].RepetitionKey()
	n := 0
	for _, pos := range history {
		if pos.RepetitionKey() == last {
			n++
		}
	}
	return n >= 3
}

// Terminal classifies the last position of history. Precedence is
// checkmate, stalemate, threefold repetition, insufficient material, then
// the fifty-move rule. When checkRepetition is false the repetition test is
// skipped.
func Terminal(history []*Position, checkRepetition bool) Verdict {
	if len(history) == 0 {
		return Verdict{}
	}
	pos := history[len(history)-1]
	if !pos.HasLegalMoves() {
		if pos.IsCheck() {
			return Verdict{Ending: Checkmate, Winner: pos.turn.Other()}
		}
		return Verdict{Ending: Stalemate}
	}
	if checkRepetition && IsThreefoldRepetition(history) {
		return Verdict{Ending: ThreefoldRepetition}
	}
	if pos.IsInsufficientMaterial() {
		return Verdict{Ending: InsufficientMaterial}
	}
	if pos.IsFiftyMoveRule() {
		return Verdict{Ending: FiftyMoveRule}
	}
	return Verdict{}
}

// HasMatingMaterial reports whether side c could still deliver mate by
// some legal sequence. A single minor piece counts when the opponent has
// material that can block its own king, unless every piece left is a
// bishop on one square colour. Used to decide timeout claims.
func (p *Position) HasMatingMaterial(c Color) bool {
	ownMinors, oppMaterial := 0, 0
	light, dark, knights, others := false, false, false, false
	for i, pc := range p.board {
		switch pc {
		case 0, 'K', 'k':
			continue
		case 'N', 'n':
			knights = true
		case 'B', 'b':
			if Square(i).Light() {
				light = true
			} else {
				dark = true
			}
		default:
			if pieceColor(pc) == c {
				return true
			}
			others = true
		}
		if pieceColor(pc) != c {
			oppMaterial++
			continue
		}
		ownMinors++
	}
	switch {
	case ownMinors == 0:
		return false
	case !knights && !others && !(light && dark):
		return false
	case ownMinors >= 2:
		return true
	}
	return oppMaterial > 0
}
