package server

import "sync"

// Connection is a live outbound channel to one client. Send must not block on
// a slow peer. Closed reports whether the transport has gone away.
type Connection interface {
	ID() string
	Send(msg ServerMessage) error
	Closed() bool
}

// Binding is one (game, token) registration.
type Binding struct {
	GameID string
	Token  string
}

// Registry maps game id -> auth token -> connection. Games with no
// connections are pruned.
type Registry struct {
	mu    sync.RWMutex
	games map[string]map[string]Connection
}

func NewRegistry() *Registry {
	return &Registry{games: make(map[string]map[string]Connection)}
}

// Add binds token to conn in gameID and returns the connection it replaced, if any.
func (r *Registry) Add(gameID, token string, conn Connection) Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns, ok := r.games[gameID]
	if !ok {
		conns = make(map[string]Connection)
		r.games[gameID] = conns
	}
	prev := conns[token]
	conns[token] = conn
	return prev
}

func (r *Registry) Remove(gameID, token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(gameID, token)
}

func (r *Registry) removeLocked(gameID, token string) {
	conns, ok := r.games[gameID]
	if !ok {
		return
	}
	delete(conns, token)
	if len(conns) == 0 {
		delete(r.games, gameID)
	}
}

// RemoveByConnection drops every binding held by conn and returns them.
// It is a no-op for an unknown connection.
func (r *Registry) RemoveByConnection(conn Connection) []Binding {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []Binding
	for gameID, conns := range r.games {
		for token, c := range conns {
			if c.ID() == conn.ID() {
				removed = append(removed, Binding{GameID: gameID, Token: token})
			}
		}
	}
	for _, b := range removed {
		r.removeLocked(b.GameID, b.Token)
	}
	return removed
}

// Snapshot returns a copy of the game's bindings that is safe to iterate
// while the registry changes.
func (r *Registry) Snapshot(gameID string) map[string]Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := r.games[gameID]
	out := make(map[string]Connection, len(conns))
	for token, c := range conns {
		out[token] = c
	}
	return out
}

// Has reports whether token is bound to any connection in gameID.
func (r *Registry) Has(gameID, token string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.games[gameID][token]
	return ok
}

func (r *Registry) Games() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.games)
}
