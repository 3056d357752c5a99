package server

import (
	"context"
	"sync"
)

// command is one unit of work for a room. Exactly one of msg or fn is used.
type command struct {
	conn Connection
	msg  ClientMessage
	fn   func(ctx context.Context) error
	done chan error
}

// Hub owns one Room goroutine per game with pending work. Commands for the
// same game run one at a time in submission order; different games run in
// parallel.
type Hub struct {
	mu     sync.Mutex
	rooms  map[string]*Room
	closed bool
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	handle func(ctx context.Context, gameID string, cmd command)
}

func NewHub(handle func(ctx context.Context, gameID string, cmd command)) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		rooms:  make(map[string]*Room),
		ctx:    ctx,
		cancel: cancel,
		handle: handle,
	}
}

// Room serializes the commands of a single game. It exits once its inbox is
// drained; the next command for the game starts a new one.
type Room struct {
	gameID  string
	inbox   chan command
	pending int // guarded by Hub.mu
}

const roomInboxSize = 64

// Submit queues cmd for gameID, starting the room if needed.
func (h *Hub) Submit(gameID string, cmd command) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHubClosed
	}
	r, ok := h.rooms[gameID]
	if !ok {
		r = &Room{gameID: gameID, inbox: make(chan command, roomInboxSize)}
		h.rooms[gameID] = r
		h.wg.Add(1)
		go h.run(r)
	}
	r.pending++
	h.mu.Unlock()

	r.inbox <- cmd
	return nil
}

// Do runs fn inside gameID's room and waits for its result.
func (h *Hub) Do(ctx context.Context, gameID string, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	if err := h.Submit(gameID, command{fn: fn, done: done}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) run(r *Room) {
	defer h.wg.Done()
	for cmd := range r.inbox {
		h.handle(h.ctx, r.gameID, cmd)

		h.mu.Lock()
		r.pending--
		if r.pending == 0 {
			delete(h.rooms, r.gameID)
			h.mu.Unlock()
			return
		}
		h.mu.Unlock()
	}
}

// Rooms reports how many games currently have queued work.
func (h *Hub) Rooms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Close stops accepting commands and waits for queued ones to finish or ctx
// to expire.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		h.cancel()
		return ctx.Err()
	}
}
