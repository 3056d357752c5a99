package chess

import (
	"fmt"
	"slices"
)

type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusCheckmate  Status = "CHECKMATE"
	StatusStalemate  Status = "STALEMATE"
	StatusResigned   Status = "RESIGNED"
)

func (s Status) Terminal() bool {
	return s != StatusInProgress && s != ""
}

// Game is the authoritative state of one match. Like Board it is a value:
// copy it, mutate the copy, and keep the original if the copy is rejected.
type Game struct {
	Board  Board  `json:"board"`
	Turn   Team   `json:"turn"`
	Status Status `json:"status"`
	Winner Team   `json:"winner,omitempty"`
}

// NewGame starts from the standard position with White to move.
func NewGame() Game {
	return Game{
		Board:  StartingBoard(),
		Turn:   White,
		Status: StatusInProgress,
	}
}

// NewGameFrom wraps an arbitrary position, e.g. a restored snapshot or a
// puzzle. The terminal state is evaluated for the side to move.
func NewGameFrom(b Board, turn Team) Game {
	g := Game{Board: b, Turn: turn, Status: StatusInProgress}
	g.updateStatus()
	return g
}

func (g *Game) Over() bool {
	return g.Status.Terminal()
}

// LegalMoves returns the legal moves of the piece at pos. It is empty when
// the square is empty or holds a piece of the side not to move.
func (g *Game) LegalMoves(pos Position) []Move {
	p := g.Board.Get(pos)
	if p.Empty() || p.Team != g.Turn {
		return nil
	}
	return g.validMoves(pos)
}

// validMoves filters the pseudo-moves of the piece at pos down to those that
// do not leave that piece's own king attacked.
func (g *Game) validMoves(pos Position) []Move {
	p := g.Board.Get(pos)
	if p.Empty() {
		return nil
	}
	var legal []Move
	for _, m := range PseudoMoves(&g.Board, pos) {
		after := g.Board
		after.apply(m)
		if !kingAttacked(&after, p.Team) {
			legal = append(legal, m)
		}
	}
	return legal
}

// AllLegalMoves collects the legal moves of every piece of team, whether or
// not it is team's turn.
func (g *Game) AllLegalMoves(team Team) []Move {
	var out []Move
	for _, pos := range g.Board.Occupied(team) {
		out = append(out, g.validMoves(pos)...)
	}
	return out
}

func (g *Game) hasLegalMove(team Team) bool {
	for _, pos := range g.Board.Occupied(team) {
		if len(g.validMoves(pos)) > 0 {
			return true
		}
	}
	return false
}

// MakeMove validates and applies m for the side to move, then flips the turn
// and evaluates checkmate and stalemate for the new side to move. A rejected
// move leaves g untouched.
func (g *Game) MakeMove(m Move) error {
	if g.Over() {
		return fmt.Errorf("%w: %w", ErrIllegalMove, ErrGameOver)
	}
	p := g.Board.Get(m.Start)
	if p.Empty() {
		return fmt.Errorf("%w: no piece at %s", ErrIllegalMove, m.Start)
	}
	if p.Team != g.Turn {
		return fmt.Errorf("%w: it is %s's turn", ErrIllegalMove, g.Turn)
	}
	if !slices.Contains(g.validMoves(m.Start), m) {
		return fmt.Errorf("%w: %s cannot move %s", ErrIllegalMove, p, m)
	}

	g.Board.apply(m)
	g.Turn = g.Turn.Opponent()
	g.updateStatus()
	return nil
}

// Resign ends the game in favour of team's opponent.
func (g *Game) Resign(team Team) error {
	if !team.Valid() {
		return ErrInvalidTeam
	}
	if g.Over() {
		return ErrGameOver
	}
	g.Status = StatusResigned
	g.Winner = team.Opponent()
	return nil
}

func (g *Game) IsInCheck(team Team) bool {
	return kingAttacked(&g.Board, team)
}

func (g *Game) IsInCheckmate(team Team) bool {
	return g.IsInCheck(team) && !g.hasLegalMove(team)
}

func (g *Game) IsInStalemate(team Team) bool {
	return !g.IsInCheck(team) && !g.hasLegalMove(team)
}

func (g *Game) updateStatus() {
	switch {
	case g.IsInCheckmate(g.Turn):
		g.Status = StatusCheckmate
		g.Winner = g.Turn.Opponent()
	case g.IsInStalemate(g.Turn):
		g.Status = StatusStalemate
	}
}

// apply moves the piece without any validation.
func (b *Board) apply(m Move) {
	p := b.Get(m.Start)
	if m.Promotion != NoKind {
		p = Piece{Team: p.Team, Kind: m.Promotion}
	}
	b.Clear(m.Start)
	b.Set(m.End, p)
}

func kingAttacked(b *Board, team Team) bool {
	king, ok := b.King(team)
	if !ok {
		return false
	}
	return b.Attacked(king, team.Opponent())
}
