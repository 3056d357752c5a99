// Package account implements registration, sessions and the game lobby on top
// of a store.Store.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chess-server/internal/chess"
	"chess-server/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrAlreadyTaken = errors.New("already taken")
	ErrNotFound     = errors.New("not found")
)

const maxGameIDAttempts = 16

type Service struct {
	store      store.Store
	bcryptCost int
}

func NewService(st store.Store, bcryptCost int) *Service {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{store: st, bcryptCost: bcryptCost}
}

func ValidateUsername(username string) error {
	if len(username) == 0 {
		return fmt.Errorf("%w: username cannot be empty", ErrBadRequest)
	}
	if len(username) > 20 {
		return fmt.Errorf("%w: username too long (max 20 characters)", ErrBadRequest)
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return fmt.Errorf("%w: username cannot contain whitespace", ErrBadRequest)
	}
	return nil
}

// Register creates the user and logs them in.
func (s *Service) Register(ctx context.Context, username, password, email string) (store.Auth, error) {
	if err := ValidateUsername(username); err != nil {
		return store.Auth{}, err
	}
	if password == "" {
		return store.Auth{}, fmt.Errorf("%w: password cannot be empty", ErrBadRequest)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return store.Auth{}, fmt.Errorf("hash password: %w", err)
	}
	err = s.store.CreateUser(ctx, store.User{Username: username, PasswordHash: string(hash), Email: email})
	if errors.Is(err, store.ErrAlreadyExists) {
		return store.Auth{}, fmt.Errorf("%w: username %q", ErrAlreadyTaken, username)
	}
	if err != nil {
		return store.Auth{}, err
	}

	log.Info().Str("user", username).Msg("user registered")
	return s.newSession(ctx, username)
}

func (s *Service) Login(ctx context.Context, username, password string) (store.Auth, error) {
	if username == "" || password == "" {
		return store.Auth{}, fmt.Errorf("%w: username and password are required", ErrBadRequest)
	}
	u, err := s.store.GetUser(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return store.Auth{}, ErrUnauthorized
	}
	if err != nil {
		return store.Auth{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return store.Auth{}, ErrUnauthorized
	}
	return s.newSession(ctx, username)
}

func (s *Service) newSession(ctx context.Context, username string) (store.Auth, error) {
	a := store.Auth{Token: uuid.NewString(), Username: username}
	if err := s.store.CreateAuth(ctx, a); err != nil {
		return store.Auth{}, err
	}
	return a, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return ErrUnauthorized
	}
	err := s.store.DeleteAuth(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return ErrUnauthorized
	}
	return err
}

// Authenticate resolves token to a username.
func (s *Service) Authenticate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrUnauthorized
	}
	a, err := s.store.GetAuth(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrUnauthorized
	}
	if err != nil {
		return "", err
	}
	return a.Username, nil
}

// CreateGame stores a fresh game under a new id and returns the id.
func (s *Service) CreateGame(ctx context.Context, token, name string) (string, error) {
	if _, err := s.Authenticate(ctx, token); err != nil {
		return "", err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: game name cannot be empty", ErrBadRequest)
	}

	for attempt := 0; attempt < maxGameIDAttempts; attempt++ {
		rec := store.GameRecord{ID: NewGameID(), Name: name, Game: chess.NewGame()}
		err := s.store.CreateGame(ctx, rec)
		if errors.Is(err, store.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return "", err
		}
		log.Info().Str("game", rec.ID).Str("name", name).Msg("game created")
		return rec.ID, nil
	}
	return "", fmt.Errorf("no free game id after %d attempts", maxGameIDAttempts)
}

func (s *Service) ListGames(ctx context.Context, token string) ([]store.GameRecord, error) {
	if _, err := s.Authenticate(ctx, token); err != nil {
		return nil, err
	}
	return s.store.ListGames(ctx)
}

// JoinGame claims color's seat in the game for the token's user. Reclaiming a
// seat the user already holds succeeds.
func (s *Service) JoinGame(ctx context.Context, token, color, gameID string) error {
	username, err := s.Authenticate(ctx, token)
	if err != nil {
		return err
	}
	team, err := chess.ParseTeam(color)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	gameID = NormalizeGameID(gameID)
	if err := ValidateGameID(gameID); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	rec, err := s.store.GetGame(ctx, gameID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: game %s", ErrNotFound, gameID)
	}
	if err != nil {
		return err
	}

	if held := rec.SeatOf(username); held != "" && held != team {
		return fmt.Errorf("%w: %s already plays %s in game %s", ErrAlreadyTaken, username, strings.ToLower(string(held)), gameID)
	}

	switch holder := rec.Seat(team); holder {
	case username:
		return nil
	case "":
	default:
		return fmt.Errorf("%w: %s seat in game %s", ErrAlreadyTaken, strings.ToLower(string(team)), gameID)
	}

	rec.SetSeat(team, username)
	if err := s.store.UpdateGame(ctx, rec); err != nil {
		return err
	}
	log.Info().Str("game", gameID).Str("user", username).Str("seat", string(team)).Msg("seat claimed")
	return nil
}

func (s *Service) Clear(ctx context.Context) error {
	return s.store.Clear(ctx)
}
