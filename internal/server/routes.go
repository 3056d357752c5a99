package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"chess-server/internal/account"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func (s *Server) RegisterRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	r.Get("/health", s.healthHandler)
	r.Get("/ws", s.websocketHandler)

	r.Post("/user", s.registerHandler)
	r.Post("/session", s.loginHandler)
	r.Delete("/session", s.logoutHandler)

	r.Get("/game", s.listGamesHandler)
	r.Post("/game", s.createGameHandler)
	r.Put("/game", s.joinGameHandler)

	r.Delete("/db", s.clearHandler)
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("http request")
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowedOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowedOrigin(origin string) string {
	if slices.Contains(s.cfg.AllowedOrigins, "*") {
		return "*"
	}
	if origin != "" && slices.Contains(s.cfg.AllowedOrigins, origin) {
		return origin
	}
	return ""
}

// originPatterns converts configured origins to the host patterns
// websocket.Accept matches against.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimPrefix(o, "https://")
		o = strings.TrimPrefix(o, "http://")
		out = append(out, strings.TrimSuffix(o, "/"))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, account.ErrBadRequest):
		status, code = http.StatusBadRequest, string(KindInvalidInput)
	case errors.Is(err, account.ErrUnauthorized):
		status, code = http.StatusUnauthorized, string(KindUnauthorized)
	case errors.Is(err, account.ErrAlreadyTaken):
		status, code = http.StatusForbidden, "ALREADY_TAKEN"
	case errors.Is(err, account.ErrNotFound):
		status, code = http.StatusNotFound, string(KindNotFound)
	default:
		log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, ErrorMessage{Message: "Error: " + err.Error(), Code: code})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", account.ErrBadRequest, err)
	}
	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	stats := s.store.Health(r.Context())
	stats["connections"] = strconv.Itoa(s.connectionManager.Count())
	stats["live_games"] = strconv.Itoa(s.gameManager.Registry().Games())
	stats["busy_rooms"] = strconv.Itoa(s.gameManager.Rooms())
	status := http.StatusOK
	if stats["status"] != "up" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, stats)
}

func (s *Server) registerHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	auth, err := s.accounts.Register(r.Context(), req.Username, req.Password, req.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthResponse{Username: auth.Username, AuthToken: auth.Token})
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	auth, err := s.accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthResponse{Username: auth.Username, AuthToken: auth.Token})
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.accounts.Logout(r.Context(), r.Header.Get("Authorization")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) listGamesHandler(w http.ResponseWriter, r *http.Request) {
	games, err := s.accounts.ListGames(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summarize(games))
}

func (s *Server) createGameHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateGameRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	id, err := s.accounts.CreateGame(r.Context(), r.Header.Get("Authorization"), req.GameName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CreateGameResponse{GameID: id})
}

// joinGameHandler claims a seat. It runs inside the game's room so it cannot
// interleave with a move or a leave on the same game.
func (s *Server) joinGameHandler(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	var req JoinGameRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	gameID := account.NormalizeGameID(req.GameID)
	if err := account.ValidateGameID(gameID); err != nil {
		writeError(w, fmt.Errorf("%w: %v", account.ErrBadRequest, err))
		return
	}

	err := s.gameManager.Do(r.Context(), gameID, func(ctx context.Context) error {
		return s.accounts.JoinGame(ctx, token, req.PlayerColor, gameID)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) clearHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.accounts.Clear(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{OriginPatterns: originPatterns(s.cfg.AllowedOrigins)}
	if slices.Contains(s.cfg.AllowedOrigins, "*") {
		opts.InsecureSkipVerify = true
	}
	socket, err := websocket.Accept(w, r, opts)
	if err != nil {
		log.Warn().Err(err).Msg("websocket accept failed")
		return
	}

	client := NewClient(uuid.NewString(), socket, s.cfg.SendQueueSize, s.cfg.WriteTimeout)
	go client.writePump()
	s.connectionManager.AddConnection(client)
	s.health.UpdateActivity(client.ID())
	log.Info().Str("conn", client.ID()).Str("remote", r.RemoteAddr).Msg("connection opened")

	defer func() {
		client.Close(websocket.StatusNormalClosure, "")
		s.gameManager.Disconnect(client)
		s.connectionManager.RemoveConnection(client.ID())
		s.rateLimiter.RemoveConnection(client.ID())
		s.health.RemoveConnection(client.ID())
		client.Wait()
		log.Info().Str("conn", client.ID()).Msg("connection closed")
	}()

	ctx := r.Context()
	for {
		msgType, data, err := socket.Read(ctx)
		if err != nil {
			log.Debug().Err(err).Str("conn", client.ID()).Msg("read ended")
			return
		}
		s.health.UpdateActivity(client.ID())

		if !s.rateLimiter.Allow(client.ID()) {
			s.gameManager.replyError(client, commandError(KindRateLimited, "too many messages, slow down"))
			continue
		}
		if msgType != websocket.MessageText {
			s.gameManager.replyError(client, commandError(KindInvalidInput, "expected a text frame"))
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.gameManager.replyError(client, commandError(KindInvalidInput, "invalid JSON: %v", err))
			continue
		}
		log.Debug().Str("conn", client.ID()).Str("type", msg.Type).Str("game", msg.GameID).Msg("command received")
		s.gameManager.Handle(client, msg)
	}
}
