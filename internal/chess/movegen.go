package chess

type direction struct{ dRow, dCol int }

var (
	orthogonal = []direction{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	diagonal   = []direction{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
	allAround  = append(append([]direction{}, orthogonal...), diagonal...)
	knightHops = []direction{{2, 1}, {2, -1}, {-2, 1}, {-2, -1}, {1, 2}, {1, -2}, {-1, 2}, {-1, -2}}
)

type generator func(b *Board, from Position, p Piece) []Move

// generators holds one move strategy per piece kind.
var generators = map[Kind]generator{
	King:   stepper(allAround),
	Queen:  slider(allAround),
	Rook:   slider(orthogonal),
	Bishop: slider(diagonal),
	Knight: stepper(knightHops),
	Pawn:   pawnMoves,
}

// PseudoMoves returns the moves the piece at from could make by its movement
// pattern, ignoring whether they leave its own king attacked. An empty
// square yields no moves.
func PseudoMoves(b *Board, from Position) []Move {
	p := b.Get(from)
	gen, ok := generators[p.Kind]
	if !ok {
		return nil
	}
	return gen(b, from, p)
}

func slider(dirs []direction) generator {
	return func(b *Board, from Position, p Piece) []Move {
		var moves []Move
		for _, d := range dirs {
			to := from.offset(d.dRow, d.dCol)
			for to.Valid() {
				target := b.Get(to)
				if target.Empty() {
					moves = append(moves, Move{Start: from, End: to})
					to = to.offset(d.dRow, d.dCol)
					continue
				}
				if target.Team != p.Team {
					moves = append(moves, Move{Start: from, End: to})
				}
				break
			}
		}
		return moves
	}
}

func stepper(offsets []direction) generator {
	return func(b *Board, from Position, p Piece) []Move {
		var moves []Move
		for _, d := range offsets {
			to := from.offset(d.dRow, d.dCol)
			if !to.Valid() {
				continue
			}
			if target := b.Get(to); target.Empty() || target.Team != p.Team {
				moves = append(moves, Move{Start: from, End: to})
			}
		}
		return moves
	}
}

func pawnMoves(b *Board, from Position, p Piece) []Move {
	var moves []Move
	dir := p.Team.pawnDirection()

	steps := 1
	if from.Row == p.Team.pawnStartRow() {
		steps = 2
	}
	to := from
	for i := 0; i < steps; i++ {
		to = to.offset(dir, 0)
		if !to.Valid() || !b.Get(to).Empty() {
			break
		}
		moves = appendPawnMove(moves, p.Team, from, to)
	}

	for _, dCol := range []int{-1, 1} {
		to := from.offset(dir, dCol)
		if !to.Valid() {
			continue
		}
		if target := b.Get(to); !target.Empty() && target.Team != p.Team {
			moves = appendPawnMove(moves, p.Team, from, to)
		}
	}
	return moves
}

// appendPawnMove expands a move onto the back rank into one move per
// promotion kind.
func appendPawnMove(moves []Move, team Team, from, to Position) []Move {
	if to.Row != team.promotionRow() {
		return append(moves, Move{Start: from, End: to})
	}
	for _, k := range promotionKinds {
		moves = append(moves, Move{Start: from, End: to, Promotion: k})
	}
	return moves
}
