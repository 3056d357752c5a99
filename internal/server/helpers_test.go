package server

import (
	"context"
	"errors"
	"sync"
	"testing"

	"chess-server/internal/account"
	"chess-server/internal/chess"
	"chess-server/internal/store"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// fakeConn records what the coordinator sends it.
type fakeConn struct {
	id   string
	mu   sync.Mutex
	msgs   []ServerMessage
	fail   bool
	closed bool
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(msg ServerMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("connection reset")
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeConn) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeConn) messages() []ServerMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ServerMessage(nil), f.msgs...)
}

func (f *fakeConn) types() []string {
	var out []string
	for _, m := range f.messages() {
		out = append(out, m.Type)
	}
	return out
}

func (f *fakeConn) count(msgType string) int {
	n := 0
	for _, m := range f.messages() {
		if m.Type == msgType {
			n++
		}
	}
	return n
}

func (f *fakeConn) notes() []string {
	var out []string
	for _, m := range f.messages() {
		if n, ok := m.Payload.(Notification); ok {
			out = append(out, n.Message)
		}
	}
	return out
}

func (f *fakeConn) lastError(t *testing.T) ErrorMessage {
	t.Helper()
	msgs := f.messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if e, ok := msgs[i].Payload.(ErrorMessage); ok {
			return e
		}
	}
	t.Fatalf("no ERROR received by %s", f.id)
	return ErrorMessage{}
}

func (f *fakeConn) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = nil
}

func (f *fakeConn) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

// fixture is a game with alice as white, bob as black and carol watching.
type fixture struct {
	t        *testing.T
	store    store.Store
	accounts *account.Service
	gm       *GameManager
	gameID   string

	alice, bob, carol string
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, store.NewMemory())
}

func newFixtureWith(t *testing.T, st store.Store) *fixture {
	t.Helper()
	ctx := context.Background()
	accounts := account.NewService(st, bcrypt.MinCost)

	token := func(name string) string {
		auth, err := accounts.Register(ctx, name, "pw", name+"@example.com")
		require.NoError(t, err)
		return auth.Token
	}
	f := &fixture{t: t, store: st, accounts: accounts, alice: token("alice"), bob: token("bob"), carol: token("carol")}

	id, err := accounts.CreateGame(ctx, f.alice, "test game")
	require.NoError(t, err)
	require.NoError(t, accounts.JoinGame(ctx, f.alice, "WHITE", id))
	require.NoError(t, accounts.JoinGame(ctx, f.bob, "BLACK", id))
	f.gameID = id

	f.gm = NewGameManager(accounts, st)
	t.Cleanup(func() { f.gm.Close(context.Background()) })
	return f
}

// sync waits until every command queued for the game has been handled.
func (f *fixture) sync() {
	f.t.Helper()
	require.NoError(f.t, f.gm.Do(context.Background(), f.gameID, func(context.Context) error { return nil }))
}

func (f *fixture) send(conn Connection, msgType, token string) {
	f.t.Helper()
	f.gm.Handle(conn, ClientMessage{Type: msgType, AuthToken: token, GameID: f.gameID})
	f.sync()
}

func (f *fixture) move(conn Connection, token, m string) {
	f.t.Helper()
	mv, err := chess.ParseMove(m)
	require.NoError(f.t, err)
	f.gm.Handle(conn, ClientMessage{Type: MsgMakeMove, AuthToken: token, GameID: f.gameID, Move: &mv})
	f.sync()
}

func (f *fixture) record() store.GameRecord {
	f.t.Helper()
	rec, err := f.store.GetGame(context.Background(), f.gameID)
	require.NoError(f.t, err)
	return rec
}

// connectAll connects alice, bob and carol and clears their inboxes.
func (f *fixture) connectAll() (alice, bob, carol *fakeConn) {
	alice, bob, carol = newFakeConn("conn-alice"), newFakeConn("conn-bob"), newFakeConn("conn-carol")
	f.send(alice, MsgConnect, f.alice)
	f.send(bob, MsgConnect, f.bob)
	f.send(carol, MsgConnect, f.carol)
	alice.reset()
	bob.reset()
	carol.reset()
	return alice, bob, carol
}
