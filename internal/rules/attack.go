package rules

var (
	knightSteps = [8][2]int{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}}
	kingSteps   = [8][2]int{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}
	rookDirs    = [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	bishopDirs  = [4][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
)

// attacked reports whether sq is attacked by any piece of side by.
func (p *Position) attacked(sq Square, by Color) bool {
	if !sq.Valid() {
		return false
	}
	f, r := sq.File(), sq.Rank()
	own := func(upper byte) byte {
		if by == Black {
			return upper + ('a' - 'A')
		}
		return upper
	}
	at := func(df, dr int) byte {
		s := NewSquare(f+df, r+dr)
		if !s.Valid() {
			return 0
		}
		return p.board[s]
	}

	// pawns attack diagonally forward, so look one rank back from sq
	dr := -1
	if by == Black {
		dr = 1
	}
	if at(-1, dr) == own('P') || at(1, dr) == own('P') {
		return true
	}
	for _, st := range knightSteps {
		if at(st[0], st[1]) == own('N') {
			return true
		}
	}
	for _, st := range kingSteps {
		if at(st[0], st[1]) == own('K') {
			return true
		}
	}
	if p.slides(f, r, rookDirs[:], own('R'), own('Q')) {
		return true
	}
	return p.slides(f, r, bishopDirs[:], own('B'), own('Q'))
}

func (p *Position) slides(f, r int, dirs [][2]int, a, b byte) bool {
	for _, d := range dirs {
		for i := 1; i < 8; i++ {
			s := NewSquare(f+d[0]*i, r+d[1]*i)
			if !s.Valid() {
				break
			}
			pc := p.board[s]
			if pc == 0 {
				continue
			}
			if pc == a || pc == b {
				return true
			}
			break
		}
	}
	return false
}

// IsCheck reports whether the side to move is in check.
func (p *Position) IsCheck() bool {
	return p.attacked(p.kingSquare(p.turn), p.turn.Other())
}
