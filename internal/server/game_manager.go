package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chess-server/internal/account"
	"chess-server/internal/chess"
	"chess-server/internal/store"

	"github.com/rs/zerolog/log"
)

// Identities resolves auth tokens to usernames.
type Identities interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// Games is the slice of the store the coordinator reads and writes.
type Games interface {
	GetGame(ctx context.Context, id string) (store.GameRecord, error)
	UpdateGame(ctx context.Context, g store.GameRecord) error
}

const commandTimeout = 5 * time.Second

// GameManager turns client commands into engine calls and broadcasts. Every
// command for a game runs inside that game's room.
type GameManager struct {
	identities Identities
	games      Games
	registry   *Registry
	hub        *Hub
}

func NewGameManager(identities Identities, games Games) *GameManager {
	gm := &GameManager{
		identities: identities,
		games:      games,
		registry:   NewRegistry(),
	}
	gm.hub = NewHub(gm.dispatch)
	return gm
}

func (gm *GameManager) Registry() *Registry { return gm.registry }

// Handle validates msg and queues it on its game's room. Rejections that need
// no game state are answered immediately.
func (gm *GameManager) Handle(conn Connection, msg ClientMessage) {
	if msg.Type == MsgPing {
		gm.reply(conn, ServerMessage{Type: MsgPong, Payload: struct{}{}})
		return
	}
	if err := ValidateMessageType(msg.Type); err != nil {
		gm.replyError(conn, commandError(KindInvalidInput, "%v", err))
		return
	}

	msg.GameID = account.NormalizeGameID(msg.GameID)
	if msg.AuthToken == "" {
		gm.replyError(conn, commandError(KindInvalidInput, "authToken is required"))
		return
	}
	if msg.GameID == "" {
		gm.replyError(conn, commandError(KindInvalidInput, "gameID is required"))
		return
	}
	if msg.Type == MsgMakeMove && msg.Move == nil {
		gm.replyError(conn, commandError(KindInvalidInput, "move is required"))
		return
	}

	if err := gm.hub.Submit(msg.GameID, command{conn: conn, msg: msg}); err != nil {
		gm.replyError(conn, commandError(KindStorageFailure, "server is shutting down"))
	}
}

// Disconnect drops conn from every game and tells the remaining participants.
// Call it once conn reports Closed.
func (gm *GameManager) Disconnect(conn Connection) {
	for _, b := range gm.registry.RemoveByConnection(conn) {
		msg := ClientMessage{Type: msgDisconnect, AuthToken: b.Token, GameID: b.GameID}
		if err := gm.hub.Submit(b.GameID, command{conn: conn, msg: msg}); err != nil {
			return
		}
	}
}

// Do runs fn serialized with the commands of gameID.
func (gm *GameManager) Do(ctx context.Context, gameID string, fn func(ctx context.Context) error) error {
	return gm.hub.Do(ctx, account.NormalizeGameID(gameID), fn)
}

// Rooms reports how many games have commands queued or running.
func (gm *GameManager) Rooms() int {
	return gm.hub.Rooms()
}

// Close finishes queued commands and refuses new ones.
func (gm *GameManager) Close(ctx context.Context) error {
	return gm.hub.Close(ctx)
}

func (gm *GameManager) dispatch(ctx context.Context, gameID string, cmd command) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if cmd.fn != nil {
		cmd.done <- cmd.fn(ctx)
		return
	}

	var err error
	switch cmd.msg.Type {
	case MsgConnect:
		err = gm.handleConnect(ctx, cmd.conn, cmd.msg)
	case MsgMakeMove:
		err = gm.handleMakeMove(ctx, cmd.conn, cmd.msg)
	case MsgLeave:
		err = gm.handleLeave(ctx, cmd.conn, cmd.msg)
	case MsgResign:
		err = gm.handleResign(ctx, cmd.conn, cmd.msg)
	case msgDisconnect:
		gm.handleDisconnect(ctx, cmd.msg)
	}
	if err != nil {
		ce := asCommandError(err)
		log.Info().
			Str("game", gameID).
			Str("conn", cmd.conn.ID()).
			Str("type", cmd.msg.Type).
			Str("kind", string(ce.Kind)).
			Msg(ce.Message)
		gm.replyError(cmd.conn, ce)
	}
}

// resolve authenticates the command and loads its game.
func (gm *GameManager) resolve(ctx context.Context, msg ClientMessage) (string, store.GameRecord, error) {
	username, err := gm.identities.Authenticate(ctx, msg.AuthToken)
	if errors.Is(err, account.ErrUnauthorized) {
		return "", store.GameRecord{}, commandError(KindUnauthorized, "invalid auth token")
	}
	if err != nil {
		return "", store.GameRecord{}, commandError(KindStorageFailure, "resolve identity: %v", err)
	}

	rec, err := gm.games.GetGame(ctx, msg.GameID)
	if errors.Is(err, store.ErrNotFound) {
		return "", store.GameRecord{}, commandError(KindNotFound, "game %s does not exist", msg.GameID)
	}
	if err != nil {
		return "", store.GameRecord{}, commandError(KindStorageFailure, "load game %s: %v", msg.GameID, err)
	}
	return username, rec, nil
}

func (gm *GameManager) handleConnect(ctx context.Context, conn Connection, msg ClientMessage) error {
	username, rec, err := gm.resolve(ctx, msg)
	if err != nil {
		return err
	}

	prev := gm.registry.Add(rec.ID, msg.AuthToken, conn)
	// A socket closed while this CONNECT was queued must not stay bound.
	if conn.Closed() {
		gm.registry.RemoveByConnection(conn)
		log.Debug().Str("game", rec.ID).Str("conn", conn.ID()).Msg("connect from closed connection dropped")
		return nil
	}
	if prev != nil && prev.ID() != conn.ID() {
		log.Info().Str("game", rec.ID).Str("user", username).Str("replaced", prev.ID()).Str("conn", conn.ID()).Msg("connection replaced")
	}
	gm.reply(conn, ServerMessage{Type: MsgLoadGame, Payload: rec})

	gm.broadcast(rec.ID, msg.AuthToken, notification("%s joined the game as %s", username, role(rec.SeatOf(username))))
	log.Info().Str("game", rec.ID).Str("user", username).Str("conn", conn.ID()).Msg("connected")
	return nil
}

func (gm *GameManager) handleMakeMove(ctx context.Context, conn Connection, msg ClientMessage) error {
	username, rec, err := gm.resolve(ctx, msg)
	if err != nil {
		return err
	}

	seat := rec.SeatOf(username)
	if seat == "" {
		return commandError(KindForbidden, "observers cannot make moves")
	}
	if rec.Game.Over() {
		return commandError(KindGameOver, "the game is over (%s)", strings.ToLower(string(rec.Game.Status)))
	}
	if seat != rec.Game.Turn {
		return commandError(KindOutOfTurn, "it is %s's turn", teamName(rec.Game.Turn))
	}

	next := rec.Game
	if err := next.MakeMove(*msg.Move); err != nil {
		return commandError(KindIllegalMove, "%v", err)
	}
	rec.Game = next
	if err := gm.games.UpdateGame(ctx, rec); err != nil {
		return commandError(KindStorageFailure, "save game %s: %v", rec.ID, err)
	}

	load := ServerMessage{Type: MsgLoadGame, Payload: rec}
	gm.broadcast(rec.ID, "", load)
	if !gm.registry.Has(rec.ID, msg.AuthToken) {
		gm.reply(conn, load)
	}
	gm.broadcast(rec.ID, msg.AuthToken, notification("%s", describeMove(username, *msg.Move)))
	if status := describeOutcome(rec); status != "" {
		gm.broadcast(rec.ID, "", notification("%s", status))
	}

	log.Info().Str("game", rec.ID).Str("user", username).Str("move", msg.Move.String()).Msg("move applied")
	return nil
}

func (gm *GameManager) handleLeave(ctx context.Context, conn Connection, msg ClientMessage) error {
	username, rec, err := gm.resolve(ctx, msg)
	if err != nil {
		return err
	}

	gm.registry.Remove(rec.ID, msg.AuthToken)

	if seat := rec.SeatOf(username); seat != "" && !rec.Game.Over() {
		rec.SetSeat(seat, "")
		if err := gm.games.UpdateGame(ctx, rec); err != nil {
			log.Error().Err(err).Str("game", rec.ID).Str("user", username).Msg("release seat failed")
		}
	}

	gm.broadcast(rec.ID, msg.AuthToken, notification("%s left the game", username))
	log.Info().Str("game", rec.ID).Str("user", username).Str("conn", conn.ID()).Msg("left")
	return nil
}

func (gm *GameManager) handleResign(ctx context.Context, conn Connection, msg ClientMessage) error {
	username, rec, err := gm.resolve(ctx, msg)
	if err != nil {
		return err
	}

	seat := rec.SeatOf(username)
	if seat == "" {
		return commandError(KindForbidden, "observers cannot resign")
	}
	if err := rec.Game.Resign(seat); err != nil {
		if errors.Is(err, chess.ErrGameOver) {
			return commandError(KindGameOver, "the game is already over")
		}
		return commandError(KindInvalidInput, "%v", err)
	}
	if err := gm.games.UpdateGame(ctx, rec); err != nil {
		return commandError(KindStorageFailure, "save game %s: %v", rec.ID, err)
	}

	gm.broadcast(rec.ID, "", notification("%s resigned. %s wins", username, playerName(rec, rec.Game.Winner)))
	log.Info().Str("game", rec.ID).Str("user", username).Msg("resigned")
	return nil
}

func (gm *GameManager) handleDisconnect(ctx context.Context, msg ClientMessage) {
	name := "a participant"
	if username, err := gm.identities.Authenticate(ctx, msg.AuthToken); err == nil {
		name = username
	}
	gm.broadcast(msg.GameID, msg.AuthToken, notification("%s disconnected", name))
}

// broadcast sends msg to every connection of gameID except the one bound to
// excludeToken. Failures are logged per recipient and never stop the fan-out.
func (gm *GameManager) broadcast(gameID, excludeToken string, msg ServerMessage) {
	for token, conn := range gm.registry.Snapshot(gameID) {
		if excludeToken != "" && token == excludeToken {
			continue
		}
		if err := conn.Send(msg); err != nil {
			log.Warn().
				Err(err).
				Str("game", gameID).
				Str("conn", conn.ID()).
				Str("kind", string(KindTransportFailure)).
				Str("type", msg.Type).
				Msg("broadcast send failed")
		}
	}
}

func (gm *GameManager) reply(conn Connection, msg ServerMessage) {
	if err := conn.Send(msg); err != nil {
		log.Warn().Err(err).Str("conn", conn.ID()).Str("type", msg.Type).Msg("send failed")
	}
}

func (gm *GameManager) replyError(conn Connection, ce *CommandError) {
	gm.reply(conn, errorMessage(ce))
}

func teamName(t chess.Team) string {
	return strings.ToLower(string(t))
}

func role(seat chess.Team) string {
	if seat == "" {
		return "an observer"
	}
	return teamName(seat)
}

// playerName is the username in team's seat, or the team itself when the
// seat is empty.
func playerName(rec store.GameRecord, team chess.Team) string {
	if name := rec.Seat(team); name != "" {
		return name
	}
	return teamName(team)
}

func describeMove(username string, m chess.Move) string {
	s := fmt.Sprintf("%s moved %s to %s", username, m.Start, m.End)
	if m.Promotion != chess.NoKind {
		s += fmt.Sprintf(", promoting to %s", m.Promotion)
	}
	return s
}

// describeOutcome reports check, checkmate or stalemate for the side to move.
func describeOutcome(rec store.GameRecord) string {
	g := rec.Game
	switch g.Status {
	case chess.StatusCheckmate:
		return fmt.Sprintf("%s is in checkmate. %s wins", playerName(rec, g.Turn), playerName(rec, g.Winner))
	case chess.StatusStalemate:
		return "stalemate: the game is a draw"
	}
	if g.IsInCheck(g.Turn) {
		return fmt.Sprintf("%s is in check", playerName(rec, g.Turn))
	}
	return ""
}
