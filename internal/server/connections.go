package server

import (
	"sync"

	"github.com/coder/websocket"
)

// ConnectionManager tracks every live WebSocket client, whether or not it
// has joined a game.
type ConnectionManager struct {
	clients map[string]*Client // connectionID → client
	mu      sync.RWMutex
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		clients: make(map[string]*Client),
	}
}

func (cm *ConnectionManager) AddConnection(c *Client) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.clients[c.ID()] = c
}

func (cm *ConnectionManager) RemoveConnection(id string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.clients, id)
}

func (cm *ConnectionManager) GetConnection(id string) (*Client, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	c, ok := cm.clients[id]
	return c, ok
}

func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.clients)
}

// All returns a snapshot of the live clients.
func (cm *ConnectionManager) All() []*Client {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	out := make([]*Client, 0, len(cm.clients))
	for _, c := range cm.clients {
		out = append(out, c)
	}
	return out
}

// CloseAll tells every client why it is being dropped and closes it.
func (cm *ConnectionManager) CloseAll(code websocket.StatusCode, reason string) {
	for _, c := range cm.All() {
		_ = c.Send(notification("%s", reason))
		c.Close(code, reason)
	}
}
