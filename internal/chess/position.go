package chess

import (
	"fmt"
	"strings"
)

// Position is a square on the board. Row and Col both run 1..8; row 1 is
// White's back rank and col 1 is the a-file.
type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (p Position) Valid() bool {
	return p.Row >= 1 && p.Row <= 8 && p.Col >= 1 && p.Col <= 8
}

func (p Position) offset(dRow, dCol int) Position {
	return Position{Row: p.Row + dRow, Col: p.Col + dCol}
}

// String renders the square in algebraic form, e.g. "e4".
func (p Position) String() string {
	if !p.Valid() {
		return fmt.Sprintf("(%d,%d)", p.Row, p.Col)
	}
	return fmt.Sprintf("%c%d", 'a'+p.Col-1, p.Row)
}

// ParsePosition parses an algebraic square such as "e4" or "H8".
func ParsePosition(s string) (Position, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return Position{}, fmt.Errorf("invalid square %q", s)
	}
	return Position{Row: int(s[1]-'1') + 1, Col: int(s[0]-'a') + 1}, nil
}

// Move is a single piece movement. Promotion is set exactly when a pawn
// reaches the opponent's back rank.
type Move struct {
	Start     Position `json:"startPosition"`
	End       Position `json:"endPosition"`
	Promotion Kind     `json:"promotionPiece,omitempty"`
}

func (m Move) String() string {
	if m.Promotion != NoKind {
		return fmt.Sprintf("%s%s=%s", m.Start, m.End, m.Promotion)
	}
	return m.Start.String() + m.End.String()
}

// ParseMove parses long algebraic notation: "e2e4", "e7e8q".
func ParseMove(s string) (Move, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 4 && len(s) != 5 {
		return Move{}, fmt.Errorf("invalid move %q", s)
	}
	start, err := ParsePosition(s[0:2])
	if err != nil {
		return Move{}, err
	}
	end, err := ParsePosition(s[2:4])
	if err != nil {
		return Move{}, err
	}
	m := Move{Start: start, End: end}
	if len(s) == 5 {
		p, ok := pieceFromSymbol(rune(s[4]))
		if !ok || !p.Kind.Promotable() {
			return Move{}, fmt.Errorf("invalid promotion in %q", s)
		}
		m.Promotion = p.Kind
	}
	return m, nil
}
