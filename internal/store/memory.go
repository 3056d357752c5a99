package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type memory struct {
	mu    sync.RWMutex
	users map[string]User
	auths map[string]Auth
	games map[string]GameRecord
}

// NewMemory returns a Store that keeps everything in process memory.
func NewMemory() Store {
	return &memory{
		users: make(map[string]User),
		auths: make(map[string]Auth),
		games: make(map[string]GameRecord),
	}
}

func (m *memory) CreateUser(ctx context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.Username]; ok {
		return fmt.Errorf("user %q: %w", u.Username, ErrAlreadyExists)
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	m.users[u.Username] = u
	return nil
}

func (m *memory) GetUser(ctx context.Context, username string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[username]
	if !ok {
		return User{}, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	return u, nil
}

func (m *memory) CreateAuth(ctx context.Context, a Auth) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[a.Username]; !ok {
		return fmt.Errorf("user %q: %w", a.Username, ErrNotFound)
	}
	if _, ok := m.auths[a.Token]; ok {
		return fmt.Errorf("auth token: %w", ErrAlreadyExists)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	m.auths[a.Token] = a
	return nil
}

func (m *memory) GetAuth(ctx context.Context, token string) (Auth, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.auths[token]
	if !ok {
		return Auth{}, fmt.Errorf("auth token: %w", ErrNotFound)
	}
	return a, nil
}

func (m *memory) DeleteAuth(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.auths[token]; !ok {
		return fmt.Errorf("auth token: %w", ErrNotFound)
	}
	delete(m.auths, token)
	return nil
}

func (m *memory) CreateGame(ctx context.Context, g GameRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[g.ID]; ok {
		return fmt.Errorf("game %s: %w", g.ID, ErrAlreadyExists)
	}
	m.games[g.ID] = stamp(g)
	return nil
}

func (m *memory) GetGame(ctx context.Context, id string) (GameRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[id]
	if !ok {
		return GameRecord{}, fmt.Errorf("game %s: %w", id, ErrNotFound)
	}
	return g, nil
}

func (m *memory) ListGames(ctx context.Context) ([]GameRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]GameRecord, 0, len(m.games))
	for _, g := range m.games {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memory) UpdateGame(ctx context.Context, g GameRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.games[g.ID]
	if !ok {
		return fmt.Errorf("game %s: %w", g.ID, ErrNotFound)
	}
	g.CreatedAt = old.CreatedAt
	g.UpdatedAt = time.Time{}
	m.games[g.ID] = stamp(g)
	return nil
}

func (m *memory) DeleteFinishedGames(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, g := range m.games {
		if g.Game.Over() && g.UpdatedAt.Before(before) {
			delete(m.games, id)
			n++
		}
	}
	return n, nil
}

func (m *memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.users)
	clear(m.auths)
	clear(m.games)
	return nil
}

func (m *memory) Health(ctx context.Context) map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]string{
		"status":  "up",
		"driver":  "memory",
		"message": "It's healthy",
		"games":   fmt.Sprint(len(m.games)),
	}
}

func (m *memory) Close() error { return nil }

// stamp fills in zero timestamps with the current time.
func stamp(g GameRecord) GameRecord {
	now := time.Now().UTC()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	if g.UpdatedAt.IsZero() {
		g.UpdatedAt = now
	}
	g.CreatedAt = g.CreatedAt.UTC()
	g.UpdatedAt = g.UpdatedAt.UTC()
	return g
}
