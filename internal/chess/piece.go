package chess

import (
	"fmt"
	"strings"
	"unicode"
)

type Team string

const (
	White Team = "WHITE"
	Black Team = "BLACK"
)

func (t Team) Opponent() Team {
	if t == White {
		return Black
	}
	return White
}

func (t Team) Valid() bool {
	return t == White || t == Black
}

// pawnDirection is the row delta of a forward pawn step.
func (t Team) pawnDirection() int {
	if t == White {
		return 1
	}
	return -1
}

func (t Team) pawnStartRow() int {
	if t == White {
		return 2
	}
	return 7
}

// promotionRow is the opponent's back rank.
func (t Team) promotionRow() int {
	if t == White {
		return 8
	}
	return 1
}

// ParseTeam accepts "white"/"black" in any case.
func ParseTeam(s string) (Team, error) {
	switch Team(strings.ToUpper(strings.TrimSpace(s))) {
	case White:
		return White, nil
	case Black:
		return Black, nil
	}
	return "", fmt.Errorf("invalid team %q", s)
}

type Kind string

const (
	NoKind Kind = ""
	King   Kind = "KING"
	Queen  Kind = "QUEEN"
	Rook   Kind = "ROOK"
	Bishop Kind = "BISHOP"
	Knight Kind = "KNIGHT"
	Pawn   Kind = "PAWN"
)

// promotionKinds is also the expansion order of promoting pawn moves.
var promotionKinds = []Kind{Queen, Rook, Bishop, Knight}

func (k Kind) Promotable() bool {
	switch k {
	case Queen, Rook, Bishop, Knight:
		return true
	}
	return false
}

var kindSymbols = map[Kind]rune{
	King:   'k',
	Queen:  'q',
	Rook:   'r',
	Bishop: 'b',
	Knight: 'n',
	Pawn:   'p',
}

// Piece is an immutable value. The zero Piece marks an empty square.
type Piece struct {
	Team Team `json:"team"`
	Kind Kind `json:"kind"`
}

func (p Piece) Empty() bool {
	return p.Kind == NoKind
}

// Symbol is the FEN letter: upper case for White, lower case for Black.
func (p Piece) Symbol() rune {
	r, ok := kindSymbols[p.Kind]
	if !ok {
		return '.'
	}
	if p.Team == White {
		return unicode.ToUpper(r)
	}
	return r
}

func (p Piece) String() string {
	if p.Empty() {
		return "empty"
	}
	return strings.ToLower(string(p.Team)) + " " + strings.ToLower(string(p.Kind))
}

func pieceFromSymbol(r rune) (Piece, bool) {
	team := Black
	if unicode.IsUpper(r) {
		team = White
	}
	lower := unicode.ToLower(r)
	for k, s := range kindSymbols {
		if s == lower {
			return Piece{Team: team, Kind: k}, true
		}
	}
	return Piece{}, false
}
