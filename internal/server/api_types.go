package server

import "chess-server/internal/store"

// ============================================================================
// WEBSOCKET PAYLOADS
// ============================================================================
// tygo:generate
type ErrorMessage struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// tygo:generate
type Notification struct {
	Message string `json:"message"`
}

// LOAD_GAME carries the full store.GameRecord.

// ============================================================================
// REGISTER (POST /user)
// ============================================================================
// tygo:generate
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

// ============================================================================
// LOGIN (POST /session)
// ============================================================================
// tygo:generate
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// tygo:generate
type AuthResponse struct {
	Username  string `json:"username"`
	AuthToken string `json:"authToken"`
}

// ============================================================================
// GAMES (GET/POST/PUT /game)
// ============================================================================
// tygo:generate
type CreateGameRequest struct {
	GameName string `json:"gameName"`
}

// tygo:generate
type CreateGameResponse struct {
	GameID string `json:"gameID"`
}

// tygo:generate
type JoinGameRequest struct {
	PlayerColor string `json:"playerColor"`
	GameID      string `json:"gameID"`
}

// tygo:generate
type GameSummary struct {
	GameID        string `json:"gameID"`
	GameName      string `json:"gameName"`
	WhiteUsername string `json:"whiteUsername,omitempty"`
	BlackUsername string `json:"blackUsername,omitempty"`
	Status        string `json:"status"`
}

// tygo:generate
type ListGamesResponse struct {
	Games []GameSummary `json:"games"`
}

func summarize(games []store.GameRecord) ListGamesResponse {
	out := ListGamesResponse{Games: make([]GameSummary, 0, len(games))}
	for _, g := range games {
		out.Games = append(out.Games, GameSummary{
			GameID:        g.ID,
			GameName:      g.Name,
			WhiteUsername: g.WhiteUsername,
			BlackUsername: g.BlackUsername,
			Status:        string(g.Game.Status),
		})
	}
	return out
}
