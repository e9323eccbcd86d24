package rules

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Position is an immutable chess position. Legality and move generation are
// delegated to corentings/chess; placement, clocks and attack maps are kept
// locally so predicates do not depend on library move tags.
type Position struct {
	placement string
	turn      Color
	castling  string
	enPassant string
	halfmove  int
	fullmove  int

	board [64]byte
}

// StartingPosition returns the standard initial position.
func StartingPosition() *Position {
	p, err := ParseFEN(StartFEN)
	if err != nil {
		panic(err)
	}
	return p
}

// ParseFEN parses a FEN string. Move counters may be omitted.
func ParseFEN(fen string) (*Position, error) {
	fields := strings.Fields(strings.TrimSpace(fen))
	if len(fields) == 4 {
		fields = append(fields, "0", "1")
	}
	if len(fields) != 6 {
		return nil, fmt.Errorf("invalid fen %q: expected 6 fields", fen)
	}
	p := &Position{placement: fields[0], castling: fields[2], enPassant: fields[3]}
	if err := p.parsePlacement(); err != nil {
		return nil, fmt.Errorf("invalid fen %q: %w", fen, err)
	}
	switch fields[1] {
	case "w":
		p.turn = White
	case "b":
		p.turn = Black
	default:
		return nil, fmt.Errorf("invalid fen %q: side to move %q", fen, fields[1])
	}
	if p.castling != "-" && strings.Trim(p.castling, "KQkq") != "" {
		return nil, fmt.Errorf("invalid fen %q: castling %q", fen, p.castling)
	}
	if p.enPassant != "-" {
		if _, err := ParseSquare(p.enPassant); err != nil {
			return nil, fmt.Errorf("invalid fen %q: en passant %q", fen, p.enPassant)
		}
	}
	var err error
	if p.halfmove, err = strconv.Atoi(fields[4]); err != nil || p.halfmove < 0 {
		return nil, fmt.Errorf("invalid fen %q: halfmove clock %q", fen, fields[4])
	}
	if p.fullmove, err = strconv.Atoi(fields[5]); err != nil || p.fullmove < 1 {
		return nil, fmt.Errorf("invalid fen %q: fullmove number %q", fen, fields[5])
	}
	if p.count('K') != 1 || p.count('k') != 1 {
		return nil, fmt.Errorf("invalid fen %q: each side needs exactly one king", fen)
	}
	if p.attacked(p.kingSquare(p.turn.Other()), p.turn) {
		return nil, fmt.Errorf("invalid fen %q: side not to move is in check", fen)
	}
	p.castling = p.supportedCastling()
	if _, err := nchess.FEN(p.FEN()); err != nil {
		return nil, fmt.Errorf("invalid fen %q: %w", fen, err)
	}
	if p.enPassant != "-" && !p.enPassantCapturable() {
		p.enPassant = "-"
	}
	return p, nil
}

var castlingHomes = []struct {
	right      byte
	king, rook string
}{
	{'K', "e1", "h1"},
	{'Q', "e1", "a1"},
	{'k', "e8", "h8"},
	{'q', "e8", "a8"},
}

// supportedCastling keeps only the rights whose king and rook stand on
// their home squares, in KQkq order.
func (p *Position) supportedCastling() string {
	var b strings.Builder
	for _, h := range castlingHomes {
		if strings.IndexByte(p.castling, h.right) < 0 {
			continue
		}
		king, rook := byte('K'), byte('R')
		if h.right >= 'a' {
			king, rook = 'k', 'r'
		}
		ks, _ := ParseSquare(h.king)
		rs, _ := ParseSquare(h.rook)
		if p.board[ks] == king && p.board[rs] == rook {
			b.WriteByte(h.right)
		}
	}
	if b.Len() == 0 {
		return "-"
	}
	return b.String()
}

func (p *Position) parsePlacement() error {
	ranks := strings.Split(p.placement, "/")
	if len(ranks) != 8 {
		return fmt.Errorf("placement needs 8 ranks")
	}
	for i, row := range ranks {
		rank := 7 - i
		file := 0
		for _, ch := range row {
			switch {
			case ch >= '1' && ch <= '8':
				file += int(ch - '0')
			case strings.ContainsRune("pnbrqkPNBRQK", ch):
				if file > 7 {
					return fmt.Errorf("rank %d overflows", rank+1)
				}
				p.board[NewSquare(file, rank)] = byte(ch)
				file++
			default:
				return fmt.Errorf("unexpected %q in placement", ch)
			}
		}
		if file != 8 {
			return fmt.Errorf("rank %d has %d files", rank+1, file)
		}
	}
	return nil
}

// FEN renders the full FEN including clocks. The en-passant field is set
// only when the capture is legal.
func (p *Position) FEN() string {
	side := "w"
	if p.turn == Black {
		side = "b"
	}
	return fmt.Sprintf("%s %s %s %s %d %d", p.placement, side, p.castling, p.enPassant, p.halfmove, p.fullmove)
}

func (p *Position) String() string { return p.FEN() }

func (p *Position) Turn() Color { return p.turn }
func (p *Position) HalfmoveClock() int { return p.halfmove }
func (p *Position) FullmoveNumber() int { return p.fullmove }
func (p *Position) Castling() string { return p.castling }

// PieceAt returns the FEN letter of the piece on sq, or 0.
func (p *Position) PieceAt(sq Square) byte {
	if !sq.Valid() {
		return 0
	}
	return p.board[sq]
}

func pieceColor(pc byte) Color {
	switch {
	case pc == 0:
		return NoColor
	case pc >= 'a':
		return Black
	default:
		return White
	}
}

func (p *Position) game() *nchess.Game {
	opt, err := nchess.FEN(p.FEN())
	if err != nil {
		// ParseFEN already validated the same text.
		panic(err)
	}
	return nchess.NewGame(opt)
}

// LegalMovesFrom returns the sorted destinations reachable from sq.
func (p *Position) LegalMovesFrom(sq Square) []Square {
	if pieceColor(p.PieceAt(sq)) != p.turn {
		return nil
	}
	from := sq.String()
	seen := make(map[Square]bool)
	var out []Square
	for _, mv := range p.game().ValidMoves() {
		if mv.S1().String() != from {
			continue
		}
		to, err := ParseSquare(mv.S2().String())
		if err != nil || seen[to] {
			continue
		}
		seen[to] = true
		out = append(out, to)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// LegalMoves returns every legal move in coordinate form, sorted.
func (p *Position) LegalMoves() []string {
	valid := p.game().ValidMoves()
	out := make([]string, 0, len(valid))
	for _, mv := range valid {
		out = append(out, mv.S1().String()+mv.S2().String()+promoSuffix(mv.Promo()))
	}
	sort.Strings(out)
	return out
}

// HasLegalMoves reports whether the side to move can move at all.
func (p *Position) HasLegalMoves() bool { return len(p.game().ValidMoves()) > 0 }

// Apply validates and plays req, returning the resulting position.
func (p *Position) Apply(req MoveRequest) (*Position, Applied, error) {
	if !req.From.Valid() || !req.To.Valid() {
		return nil, Applied{}, ErrIllegalDestination
	}
	moving := p.PieceAt(req.From)
	if moving == 0 {
		return nil, Applied{}, ErrNoPiece
	}
	if pieceColor(moving) != p.turn {
		return nil, Applied{}, ErrWrongSide
	}

	game := p.game()
	from, to := req.From.String(), req.To.String()
	var candidates []nchess.Move
	for _, mv := range game.ValidMoves() {
		if mv.S1().String() == from && mv.S2().String() == to {
			candidates = append(candidates, mv)
		}
	}
	if len(candidates) == 0 {
		return nil, Applied{}, ErrIllegalDestination
	}

	promoting := candidates[0].Promo() != nchess.NoPieceType
	want := req.Promotion
	switch {
	case promoting && want == NoPromotion && req.DefaultQueen:
		want = Queen
	case promoting && want == NoPromotion:
		return nil, Applied{}, ErrPromotionRequired
	case !promoting && want != NoPromotion:
		return nil, Applied{}, ErrUnexpectedPromotion
	}

	var chosen *nchess.Move
	for i := range candidates {
		if promoSuffix(candidates[i].Promo()) == want.String() {
			chosen = &candidates[i]
			break
		}
	}
	if chosen == nil {
		return nil, Applied{}, ErrIllegalDestination
	}

	before := game.Position()
	san := nchess.AlgebraicNotation{}.Encode(before, chosen)
	if err := game.Move(chosen, nil); err != nil {
		return nil, Applied{}, fmt.Errorf("%w: %v", ErrIllegalDestination, err)
	}

	next, err := ParseFEN(game.FEN())
	if err != nil {
		return nil, Applied{}, fmt.Errorf("apply %s: %w", req.Coordinate(), err)
	}
	capture := p.PieceAt(req.To) != 0 || p.isEnPassantCapture(req)
	next.halfmove = p.halfmove + 1
	if moving == 'P' || moving == 'p' || capture {
		next.halfmove = 0
	}
	next.fullmove = p.fullmove
	if p.turn == Black {
		next.fullmove++
	}

	applied := Applied{
		UCI:     from + to + want.String(),
		SAN:     san,
		Color:   p.turn,
		Capture: capture,
	}
	return next, applied, nil
}

func (p *Position) isEnPassantCapture(req MoveRequest) bool {
	pc := p.PieceAt(req.From)
	if pc != 'P' && pc != 'p' {
		return false
	}
	return req.From.File() != req.To.File() && p.PieceAt(req.To) == 0
}

func promoSuffix(pt nchess.PieceType) string {
	switch pt {
	case nchess.Queen:
		return "q"
	case nchess.Rook:
		return "r"
	case nchess.Bishop:
		return "b"
	case nchess.Knight:
		return "n"
	default:
		return ""
	}
}

func (p *Position) count(pc byte) int {
	n := 0
	for _, b := range p.board {
		if b == pc {
			n++
		}
	}
	return n
}

func (p *Position) kingSquare(c Color) Square {
	k := byte('K')
	if c == Black {
		k = 'k'
	}
	for i, b := range p.board {
		if b == k {
			return Square(i)
		}
	}
	return NoSquare
}
