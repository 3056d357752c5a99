package server

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindInvalidInput     ErrorKind = "INVALID_INPUT"
	KindUnauthorized     ErrorKind = "UNAUTHORIZED"
	KindNotFound         ErrorKind = "NOT_FOUND"
	KindForbidden        ErrorKind = "FORBIDDEN"
	KindOutOfTurn        ErrorKind = "OUT_OF_TURN"
	KindGameOver         ErrorKind = "GAME_OVER"
	KindIllegalMove      ErrorKind = "ILLEGAL_MOVE"
	KindStorageFailure   ErrorKind = "STORAGE_FAILURE"
	KindTransportFailure ErrorKind = "TRANSPORT_FAILURE"
	KindRateLimited      ErrorKind = "RATE_LIMITED"
)

// CommandError rejects a single command. It is reported to the originating
// connection only and never changes the registry or the stored game.
type CommandError struct {
	Kind    ErrorKind
	Message string
}

func (e *CommandError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

func commandError(kind ErrorKind, format string, args ...any) *CommandError {
	return &CommandError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// asCommandError converts err to a CommandError, treating anything unknown as
// a storage failure.
func asCommandError(err error) *CommandError {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce
	}
	return commandError(KindStorageFailure, "%v", err)
}

var (
	ErrClientClosed  = errors.New("client closed")
	ErrSendQueueFull = errors.New("send queue full")
	ErrHubClosed     = errors.New("hub closed")
)
