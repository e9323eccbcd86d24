package rules

import (
	"fmt"
	"strings"
)

// Color identifies a chess side.
type Color string

const (
	White   Color = "white"
	Black   Color = "black"
	NoColor Color = ""
)

// Other returns the opposing side.
func (c Color) Other() Color {
	switch c {
	case White:
		return Black
	case Black:
		return White
	default:
		return NoColor
	}
}

// ParseColor accepts "white", "black", "w" and "b" in any case.
func ParseColor(s string) (Color, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return White, nil
	case "black", "b":
		return Black, nil
	}
	return NoColor, fmt.Errorf("invalid color %q", s)
}

// Square is a board index, a1=0 .. h8=63.
type Square int8

const NoSquare Square = -1

func NewSquare(file, rank int) Square {
	if file < 0 || file > 7 || rank < 0 || rank > 7 {
		return NoSquare
	}
	return Square(rank*8 + file)
}

func (s Square) File() int { return int(s) % 8 }
func (s Square) Rank() int { return int(s) / 8 }
func (s Square) Valid() bool { return s >= 0 && s < 64 }

// Light reports whether the square is a light square (h1 is light).
func (s Square) Light() bool { return (s.File()+s.Rank())%2 == 1 }

func (s Square) String() string {
	if !s.Valid() {
		return "-"
	}
	return string([]byte{"abcdefgh"[s.File()], "12345678"[s.Rank()]})
}

// ParseSquare parses coordinates such as "e4".
func ParseSquare(s string) (Square, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 {
		return NoSquare, fmt.Errorf("invalid square %q", s)
	}
	sq := NewSquare(int(s[0])-'a', int(s[1])-'1')
	if !sq.Valid() {
		return NoSquare, fmt.Errorf("invalid square %q", s)
	}
	return sq, nil
}

// PieceKind is a promotion target. The zero value means no promotion.
type PieceKind byte

const (
	NoPromotion PieceKind = 0
	Queen       PieceKind = 'q'
	Rook        PieceKind = 'r'
	Bishop      PieceKind = 'b'
	Knight      PieceKind = 'n'
)

func (k PieceKind) String() string {
	if k == NoPromotion {
		return ""
	}
	return string(rune(k))
}

// ParsePromotion accepts q, r, b, n (and their full names). Empty input yields NoPromotion.
func ParsePromotion(s string) (PieceKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return NoPromotion, nil
	case "q", "queen":
		return Queen, nil
	case "r", "rook":
		return Rook, nil
	case "b", "bishop":
		return Bishop, nil
	case "n", "knight":
		return Knight, nil
	}
	return NoPromotion, fmt.Errorf("invalid promotion piece %q", s)
}
