package server

import (
	"fmt"

	"chess-server/internal/chess"
)

// Inbound command types.
const (
	MsgConnect  = "CONNECT"
	MsgMakeMove = "MAKE_MOVE"
	MsgLeave    = "LEAVE"
	MsgResign   = "RESIGN"
	MsgPing     = "PING"
)

// Outbound message types.
const (
	MsgLoadGame     = "LOAD_GAME"
	MsgNotification = "NOTIFICATION"
	MsgError        = "ERROR"
	MsgPong         = "PONG"
)

// msgDisconnect is queued by the transport, never sent by clients.
const msgDisconnect = "DISCONNECT"

type ClientMessage struct {
	Type      string      `json:"type"`
	AuthToken string      `json:"authToken"`
	GameID    string      `json:"gameID"`
	Move      *chess.Move `json:"move,omitempty"`
}

type ServerMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

func notification(format string, args ...any) ServerMessage {
	return ServerMessage{Type: MsgNotification, Payload: Notification{Message: fmt.Sprintf(format, args...)}}
}

func errorMessage(ce *CommandError) ServerMessage {
	return ServerMessage{Type: MsgError, Payload: ErrorMessage{Message: ce.Error(), Code: string(ce.Kind)}}
}
