package chess

import "errors"

var (
	ErrIllegalMove = errors.New("illegal move")
	ErrGameOver    = errors.New("game is already over")
	ErrInvalidTeam = errors.New("invalid team")
)
