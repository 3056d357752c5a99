package chess

import (
	"fmt"
	"strings"
)

// Board is an 8x8 grid indexed [row-1][col-1]. It is a plain value, so
// assigning a Board copies every square.
type Board struct {
	squares [8][8]Piece
}

var backRank = [8]Kind{Rook, Knight, Bishop, Queen, King, Bishop, Knight, Rook}

// StartingBoard returns the standard initial arrangement.
func StartingBoard() Board {
	var b Board
	for col := 1; col <= 8; col++ {
		b.Set(Position{Row: 1, Col: col}, Piece{Team: White, Kind: backRank[col-1]})
		b.Set(Position{Row: 2, Col: col}, Piece{Team: White, Kind: Pawn})
		b.Set(Position{Row: 7, Col: col}, Piece{Team: Black, Kind: Pawn})
		b.Set(Position{Row: 8, Col: col}, Piece{Team: Black, Kind: backRank[col-1]})
	}
	return b
}

// Get returns the piece at pos; off-board squares read as empty.
func (b *Board) Get(pos Position) Piece {
	if !pos.Valid() {
		return Piece{}
	}
	return b.squares[pos.Row-1][pos.Col-1]
}

// Set places p at pos, replacing whatever was there. Off-board positions are
// ignored.
func (b *Board) Set(pos Position, p Piece) {
	if !pos.Valid() {
		return
	}
	b.squares[pos.Row-1][pos.Col-1] = p
}

func (b *Board) Clear(pos Position) {
	b.Set(pos, Piece{})
}

// Occupied lists every position holding a piece of team, a1..h8 order.
func (b *Board) Occupied(team Team) []Position {
	var out []Position
	for row := 1; row <= 8; row++ {
		for col := 1; col <= 8; col++ {
			pos := Position{Row: row, Col: col}
			if p := b.Get(pos); !p.Empty() && p.Team == team {
				out = append(out, pos)
			}
		}
	}
	return out
}

// King finds team's king.
func (b *Board) King(team Team) (Position, bool) {
	for _, pos := range b.Occupied(team) {
		if b.Get(pos).Kind == King {
			return pos, true
		}
	}
	return Position{}, false
}

// Attacked reports whether any piece of by has a pseudo-legal move ending
// on target.
func (b *Board) Attacked(target Position, by Team) bool {
	for _, pos := range b.Occupied(by) {
		for _, m := range PseudoMoves(b, pos) {
			if m.End == target {
				return true
			}
		}
	}
	return false
}

// MarshalText encodes the FEN piece-placement field, rank 8 first.
func (b Board) MarshalText() ([]byte, error) {
	var sb strings.Builder
	for row := 8; row >= 1; row-- {
		empty := 0
		for col := 1; col <= 8; col++ {
			p := b.Get(Position{Row: row, Col: col})
			if p.Empty() {
				empty++
				continue
			}
			if empty > 0 {
				fmt.Fprintf(&sb, "%d", empty)
				empty = 0
			}
			sb.WriteRune(p.Symbol())
		}
		if empty > 0 {
			fmt.Fprintf(&sb, "%d", empty)
		}
		if row > 1 {
			sb.WriteByte('/')
		}
	}
	return []byte(sb.String()), nil
}

func (b *Board) UnmarshalText(text []byte) error {
	ranks := strings.Split(string(text), "/")
	if len(ranks) != 8 {
		return fmt.Errorf("board: want 8 ranks, got %d", len(ranks))
	}
	var out Board
	for i, rank := range ranks {
		row := 8 - i
		col := 1
		for _, r := range rank {
			if r >= '1' && r <= '8' {
				col += int(r - '0')
				continue
			}
			p, ok := pieceFromSymbol(r)
			if !ok {
				return fmt.Errorf("board: invalid piece %q in rank %d", r, row)
			}
			if col > 8 {
				return fmt.Errorf("board: rank %d overflows", row)
			}
			out.Set(Position{Row: row, Col: col}, p)
			col++
		}
		if col != 9 {
			return fmt.Errorf("board: rank %d has %d squares", row, col-1)
		}
	}
	*b = out
	return nil
}

// ParseBoard builds a board from FEN piece placement.
func ParseBoard(placement string) (Board, error) {
	var b Board
	err := b.UnmarshalText([]byte(placement))
	return b, err
}

// String draws the board for logs, rank 8 on top.
func (b Board) String() string {
	var sb strings.Builder
	for row := 8; row >= 1; row-- {
		fmt.Fprintf(&sb, "%d ", row)
		for col := 1; col <= 8; col++ {
			sb.WriteRune(b.Get(Position{Row: row, Col: col}).Symbol())
		}
		sb.WriteByte('\n')
	}
	sb.WriteString("  abcdefgh")
	return sb.String()
}
