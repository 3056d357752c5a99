// Package store persists users, auth tokens and game records. Every backend
// satisfies the same Store interface and returns ErrNotFound and
// ErrAlreadyExists for the corresponding conditions.
package store

import (
	"context"
	"errors"
	"time"

	"chess-server/internal/chess"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

type User struct {
	Username     string
	PasswordHash string
	Email        string
	CreatedAt    time.Time
}

type Auth struct {
	Token     string
	Username  string
	CreatedAt time.Time
}

// GameRecord is the persisted game: its id, seat assignments and the full
// engine state. It is also the LOAD_GAME payload.
type GameRecord struct {
	ID            string     `json:"gameID"`
	Name          string     `json:"gameName"`
	WhiteUsername string     `json:"whiteUsername,omitempty"`
	BlackUsername string     `json:"blackUsername,omitempty"`
	Game          chess.Game `json:"game"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// SeatOf returns the team username plays, or "" for an observer.
func (r GameRecord) SeatOf(username string) chess.Team {
	switch {
	case username == "":
		return ""
	case r.WhiteUsername == username:
		return chess.White
	case r.BlackUsername == username:
		return chess.Black
	}
	return ""
}

// Seat returns the username holding team's seat.
func (r GameRecord) Seat(team chess.Team) string {
	switch team {
	case chess.White:
		return r.WhiteUsername
	case chess.Black:
		return r.BlackUsername
	}
	return ""
}

// SetSeat assigns (or with "" vacates) team's seat.
func (r *GameRecord) SetSeat(team chess.Team, username string) {
	switch team {
	case chess.White:
		r.WhiteUsername = username
	case chess.Black:
		r.BlackUsername = username
	}
}

type UserStore interface {
	CreateUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, username string) (User, error)
}

type AuthStore interface {
	CreateAuth(ctx context.Context, a Auth) error
	GetAuth(ctx context.Context, token string) (Auth, error)
	DeleteAuth(ctx context.Context, token string) error
}

type GameStore interface {
	CreateGame(ctx context.Context, g GameRecord) error
	GetGame(ctx context.Context, id string) (GameRecord, error)
	ListGames(ctx context.Context) ([]GameRecord, error)
	// UpdateGame overwrites the record with the same id. Last write wins.
	UpdateGame(ctx context.Context, g GameRecord) error
	// DeleteFinishedGames removes terminal games last updated before the cutoff.
	DeleteFinishedGames(ctx context.Context, before time.Time) (int64, error)
}

type Store interface {
	UserStore
	AuthStore
	GameStore
	// Clear removes every user, token and game.
	Clear(ctx context.Context) error
	Health(ctx context.Context) map[string]string
	Close() error
}
