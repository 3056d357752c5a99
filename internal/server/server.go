package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"chess-server/internal/account"
	"chess-server/internal/config"
	"chess-server/internal/store"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"
)

const (
	cleanupInterval  = time.Hour
	finishedGameTTL  = 24 * time.Hour
	maxSweepInterval = 30 * time.Second
)

type Server struct {
	cfg               config.Config
	store             store.Store
	accounts          *account.Service
	connectionManager *ConnectionManager
	gameManager       *GameManager
	rateLimiter       *RateLimiter
	health            *ConnectionHealth

	stop     chan struct{}
	stopOnce sync.Once
	tasks    sync.WaitGroup
}

// New wires the server's components without starting background tasks.
func New(cfg config.Config, st store.Store) *Server {
	accounts := account.NewService(st, cfg.BcryptCost)
	return &Server{
		cfg:               cfg,
		store:             st,
		accounts:          accounts,
		connectionManager: NewConnectionManager(),
		gameManager:       NewGameManager(accounts, st),
		rateLimiter:       NewRateLimiter(cfg.RateLimit, cfg.RateWindow),
		health:            NewConnectionHealth(),
		stop:              make(chan struct{}),
	}
}

// NewServer builds the server, starts its background tasks and returns the
// http.Server that serves it.
func NewServer(cfg config.Config, st store.Store) (*Server, *http.Server) {
	s := New(cfg, st)
	s.Start()

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.RegisterRoutes(),
		IdleTimeout:       time.Minute,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, httpServer
}

func (s *Server) Start() {
	s.tasks.Add(2)
	go s.cleanupTask()
	go s.sweepTask()
}

// cleanupTask deletes finished games that have not changed for a day.
func (s *Server) cleanupTask() {
	defer s.tasks.Done()
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.cleanupFinishedGames(context.Background())
		}
	}
}

func (s *Server) cleanupFinishedGames(ctx context.Context) {
	deleted, err := s.store.DeleteFinishedGames(ctx, time.Now().Add(-finishedGameTTL))
	if err != nil {
		log.Error().Err(err).Msg("cleanup of finished games failed")
		return
	}
	if deleted > 0 {
		log.Info().Int64("deleted", deleted).Msg("deleted finished games")
	}
}

// sweepTask closes connections that have been silent past the inactivity
// timeout and trims rate limiter state.
func (s *Server) sweepTask() {
	defer s.tasks.Done()
	interval := s.cfg.InactivityTimeout / 2
	if interval > maxSweepInterval {
		interval = maxSweepInterval
	}
	if interval <= 0 {
		interval = maxSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweepInactive()
		}
	}
}

func (s *Server) sweepInactive() {
	for _, id := range s.health.GetInactiveConnections(s.cfg.InactivityTimeout) {
		if c, ok := s.connectionManager.GetConnection(id); ok {
			log.Info().Str("conn", id).Msg("closing inactive connection")
			_ = c.Send(notification("closing inactive connection"))
			c.Close(websocket.StatusPolicyViolation, "inactive")
		}
		s.health.RemoveConnection(id)
	}
	s.rateLimiter.Cleanup()
}

// Shutdown stops background tasks, drains queued game commands and closes
// every client with a going-away status.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.tasks.Wait()

	err := s.gameManager.Close(ctx)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	clients := s.connectionManager.All()
	s.connectionManager.CloseAll(websocket.StatusGoingAway, "server is shutting down")
	for _, c := range clients {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.finished:
		}
	}
	log.Info().Int("clients", len(clients)).Msg("server shut down")
	return err
}
