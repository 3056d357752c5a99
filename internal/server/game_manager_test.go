package server

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"chess-server/internal/account"
	"chess-server/internal/chess"
	"chess-server/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectSendsStateAndAnnouncesJoin(t *testing.T) {
	f := newFixture(t)
	alice, bob, carol := newFakeConn("a"), newFakeConn("b"), newFakeConn("c")

	f.send(alice, MsgConnect, f.alice)
	require.Equal(t, []string{MsgLoadGame}, alice.types())
	rec, ok := alice.messages()[0].Payload.(store.GameRecord)
	require.True(t, ok)
	assert.Equal(t, f.gameID, rec.ID)
	assert.Equal(t, "alice", rec.WhiteUsername)
	assert.Equal(t, chess.NewGame(), rec.Game)

	f.send(bob, MsgConnect, f.bob)
	f.send(carol, MsgConnect, f.carol)

	assert.Equal(t, []string{"bob joined the game as black", "carol joined the game as an observer"}, alice.notes())
	assert.Equal(t, []string{"carol joined the game as an observer"}, bob.notes())
	assert.Empty(t, carol.notes())
	assert.Len(t, f.gm.Registry().Snapshot(f.gameID), 3)
}

func TestConnectRejections(t *testing.T) {
	f := newFixture(t)
	conn := newFakeConn("x")

	f.send(conn, MsgConnect, "not-a-token")
	assert.Equal(t, string(KindUnauthorized), conn.lastError(t).Code)

	f.gm.Handle(conn, ClientMessage{Type: MsgConnect, AuthToken: f.alice, GameID: "ZZZZ"})
	require.NoError(t, f.gm.Do(context.Background(), "ZZZZ", func(context.Context) error { return nil }))
	assert.Equal(t, string(KindNotFound), conn.lastError(t).Code)

	f.gm.Handle(conn, ClientMessage{Type: MsgConnect, GameID: f.gameID})
	assert.Equal(t, string(KindInvalidInput), conn.lastError(t).Code)

	f.gm.Handle(conn, ClientMessage{Type: MsgConnect, AuthToken: f.alice})
	assert.Equal(t, string(KindInvalidInput), conn.lastError(t).Code)

	f.gm.Handle(conn, ClientMessage{Type: "DANCE", AuthToken: f.alice, GameID: f.gameID})
	assert.Equal(t, string(KindInvalidInput), conn.lastError(t).Code)

	assert.Equal(t, 0, f.gm.Registry().Games())
	for _, m := range conn.messages() {
		assert.Equal(t, MsgError, m.Type)
	}
}

func TestGameIDIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	conn := newFakeConn("a")
	f.gm.Handle(conn, ClientMessage{Type: MsgConnect, AuthToken: f.alice, GameID: " " + strings.ToLower(f.gameID)})
	f.sync()
	assert.Equal(t, []string{MsgLoadGame}, conn.types())
}

func TestPingAnsweredWithPong(t *testing.T) {
	f := newFixture(t)
	conn := newFakeConn("a")
	f.gm.Handle(conn, ClientMessage{Type: MsgPing})
	assert.Equal(t, []string{MsgPong}, conn.types())
}

func TestMoveBroadcastExcludesMoverFromNotification(t *testing.T) {
	f := newFixture(t)
	alice, bob, carol := f.connectAll()

	f.move(alice, f.alice, "e2e4")

	assert.Equal(t, []string{MsgLoadGame}, alice.types())
	assert.Equal(t, []string{MsgLoadGame, MsgNotification}, bob.types())
	assert.Equal(t, []string{MsgLoadGame, MsgNotification}, carol.types())
	assert.Equal(t, []string{"alice moved e2 to e4"}, bob.notes())

	loaded := bob.messages()[0].Payload.(store.GameRecord)
	assert.Equal(t, chess.Black, loaded.Game.Turn)
	assert.Equal(t, loaded.Game, f.record().Game)
}

func TestMoveRejections(t *testing.T) {
	f := newFixture(t)
	alice, bob, carol := f.connectAll()
	before := f.record().Game

	f.move(carol, f.carol, "e2e4")
	assert.Equal(t, string(KindForbidden), carol.lastError(t).Code)

	f.move(bob, f.bob, "e7e5")
	assert.Equal(t, string(KindOutOfTurn), bob.lastError(t).Code)

	f.move(alice, f.alice, "e2e5")
	illegal := alice.lastError(t)
	assert.Equal(t, string(KindIllegalMove), illegal.Code)
	assert.Contains(t, illegal.Message, "ILLEGAL_MOVE: ")

	f.gm.Handle(alice, ClientMessage{Type: MsgMakeMove, AuthToken: f.alice, GameID: f.gameID})
	assert.Equal(t, string(KindInvalidInput), alice.lastError(t).Code)

	assert.Equal(t, before, f.record().Game)
	for _, conn := range []*fakeConn{alice, bob, carol} {
		assert.Zero(t, conn.count(MsgLoadGame), conn.id)
		assert.Zero(t, conn.count(MsgNotification), conn.id)
	}
}

func TestCheckmateIsAnnouncedToEveryone(t *testing.T) {
	f := newFixture(t)
	alice, bob, carol := f.connectAll()

	f.move(alice, f.alice, "f2f3")
	f.move(bob, f.bob, "e7e5")
	f.move(alice, f.alice, "g2g4")
	for _, c := range []*fakeConn{alice, bob, carol} {
		c.reset()
	}
	f.move(bob, f.bob, "d8h4")

	const mate = "alice is in checkmate. bob wins"
	assert.Equal(t, []string{mate}, bob.notes())
	assert.Equal(t, []string{"bob moved d8 to h4", mate}, alice.notes())
	assert.Equal(t, []string{"bob moved d8 to h4", mate}, carol.notes())

	rec := f.record()
	assert.Equal(t, chess.StatusCheckmate, rec.Game.Status)
	assert.Equal(t, chess.Black, rec.Game.Winner)

	f.move(alice, f.alice, "a2a3")
	assert.Equal(t, string(KindGameOver), alice.lastError(t).Code)
	f.move(bob, f.bob, "a7a6")
	assert.Equal(t, string(KindGameOver), bob.lastError(t).Code)
}

func TestCheckIsAnnounced(t *testing.T) {
	f := newFixture(t)
	alice, bob, _ := f.connectAll()

	f.move(alice, f.alice, "e2e4")
	f.move(bob, f.bob, "f7f6")
	f.move(alice, f.alice, "d1h5")

	assert.Contains(t, bob.notes(), "bob is in check")
	assert.Contains(t, alice.notes(), "bob is in check")
}

func TestConcurrentMovesApplyExactlyOnce(t *testing.T) {
	f := newFixture(t)
	alice, bob, carol := f.connectAll()
	second := newFakeConn("conn-alice-2")

	moves := map[*fakeConn]string{alice: "e2e4", second: "d2d4"}
	var wg sync.WaitGroup
	for conn, m := range moves {
		mv, err := chess.ParseMove(m)
		require.NoError(t, err)
		wg.Add(1)
		go func(conn *fakeConn) {
			defer wg.Done()
			f.gm.Handle(conn, ClientMessage{Type: MsgMakeMove, AuthToken: f.alice, GameID: f.gameID, Move: &mv})
		}(conn)
	}
	wg.Wait()
	f.sync()

	errs := alice.count(MsgError) + second.count(MsgError)
	assert.Equal(t, 1, errs, "exactly one move must be rejected")
	for _, conn := range []*fakeConn{alice, second} {
		if conn.count(MsgError) == 1 {
			code := conn.lastError(t).Code
			assert.Contains(t, []string{string(KindOutOfTurn), string(KindIllegalMove)}, code)
		}
	}

	assert.Equal(t, 1, bob.count(MsgLoadGame))
	assert.Equal(t, 1, carol.count(MsgLoadGame))
	assert.Equal(t, 1, bob.count(MsgNotification))
	assert.Equal(t, chess.Black, f.record().Game.Turn)
}

func TestUnregisteredMoverStillReceivesState(t *testing.T) {
	f := newFixture(t)
	bob := newFakeConn("conn-bob")
	f.send(bob, MsgConnect, f.bob)
	bob.reset()
	stray := newFakeConn("stray")

	f.move(stray, f.alice, "e2e4")
	assert.Equal(t, []string{MsgLoadGame}, stray.types())
	assert.Equal(t, []string{MsgLoadGame, MsgNotification}, bob.types())
}

func TestBroadcastSurvivesFailingRecipient(t *testing.T) {
	f := newFixture(t)
	alice, bob, carol := f.connectAll()
	carol.setFail(true)

	f.move(alice, f.alice, "e2e4")

	assert.Equal(t, []string{MsgLoadGame, MsgNotification}, bob.types())
	assert.Equal(t, chess.Black, f.record().Game.Turn)
	assert.Len(t, f.gm.Registry().Snapshot(f.gameID), 3)
}

func TestLeaveReleasesSeatWhileInProgress(t *testing.T) {
	f := newFixture(t)
	alice, bob, carol := f.connectAll()

	f.send(alice, MsgLeave, f.alice)

	assert.Empty(t, alice.messages())
	assert.Equal(t, []string{"alice left the game"}, bob.notes())
	assert.Equal(t, []string{"alice left the game"}, carol.notes())
	assert.False(t, f.gm.Registry().Has(f.gameID, f.alice))
	assert.Empty(t, f.record().WhiteUsername)
	assert.Equal(t, "bob", f.record().BlackUsername)

	// The seat can be reclaimed.
	require.NoError(t, f.accounts.JoinGame(context.Background(), f.carol, "white", f.gameID))
	assert.Equal(t, "carol", f.record().WhiteUsername)
}

func TestLeaveKeepsSeatAfterGameEnds(t *testing.T) {
	f := newFixture(t)
	alice, bob, _ := f.connectAll()

	f.send(bob, MsgResign, f.bob)
	f.send(alice, MsgLeave, f.alice)

	assert.Equal(t, "alice", f.record().WhiteUsername)
	assert.Contains(t, bob.notes(), "alice left the game")
}

func TestObserverLeaveKeepsSeats(t *testing.T) {
	f := newFixture(t)
	_, bob, carol := f.connectAll()

	f.send(carol, MsgLeave, f.carol)
	rec := f.record()
	assert.Equal(t, "alice", rec.WhiteUsername)
	assert.Equal(t, "bob", rec.BlackUsername)
	assert.Equal(t, []string{"carol left the game"}, bob.notes())
}

func TestResign(t *testing.T) {
	f := newFixture(t)
	alice, bob, carol := f.connectAll()

	f.send(carol, MsgResign, f.carol)
	assert.Equal(t, string(KindForbidden), carol.lastError(t).Code)
	assert.Equal(t, chess.StatusInProgress, f.record().Game.Status)

	f.send(bob, MsgResign, f.bob)
	const note = "bob resigned. alice wins"
	for _, c := range []*fakeConn{alice, bob, carol} {
		assert.Contains(t, c.notes(), note, c.id)
		assert.Zero(t, c.count(MsgLoadGame), c.id)
	}
	rec := f.record()
	assert.Equal(t, chess.StatusResigned, rec.Game.Status)
	assert.Equal(t, chess.White, rec.Game.Winner)

	f.send(alice, MsgResign, f.alice)
	assert.Equal(t, string(KindGameOver), alice.lastError(t).Code)
}

func TestDisconnectNotifiesRemainingParticipants(t *testing.T) {
	f := newFixture(t)
	alice, bob, carol := f.connectAll()

	bob.close()
	f.gm.Disconnect(bob)
	f.sync()

	assert.Equal(t, []string{"bob disconnected"}, alice.notes())
	assert.Equal(t, []string{"bob disconnected"}, carol.notes())
	assert.Empty(t, bob.messages())
	assert.False(t, f.gm.Registry().Has(f.gameID, f.bob))
	assert.Equal(t, "bob", f.record().BlackUsername, "disconnect does not release the seat")

	f.gm.Disconnect(bob)
	f.sync()
	assert.Len(t, alice.notes(), 1)
}

func TestDisconnectWhileConnectIsQueued(t *testing.T) {
	f := newFixture(t)
	alice := newFakeConn("conn-alice")
	f.send(alice, MsgConnect, f.alice)
	alice.reset()

	started, release := make(chan struct{}), make(chan struct{})
	blocked := make(chan error, 1)
	go func() {
		blocked <- f.gm.Do(context.Background(), f.gameID, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	dead := newFakeConn("dead")
	f.gm.Handle(dead, ClientMessage{Type: MsgConnect, AuthToken: f.carol, GameID: f.gameID})
	dead.close()
	f.gm.Disconnect(dead)
	close(release)
	require.NoError(t, <-blocked)
	f.sync()

	assert.False(t, f.gm.Registry().Has(f.gameID, f.carol))
	assert.Len(t, f.gm.Registry().Snapshot(f.gameID), 1)
	assert.Empty(t, dead.messages())
	assert.Empty(t, alice.notes())
}

func TestReconnectReplacesBinding(t *testing.T) {
	f := newFixture(t)
	first, second := newFakeConn("first"), newFakeConn("second")
	f.send(first, MsgConnect, f.alice)
	f.send(second, MsgConnect, f.alice)

	snap := f.gm.Registry().Snapshot(f.gameID)
	require.Len(t, snap, 1)
	assert.Equal(t, "second", snap[f.alice].ID())
}

func TestSoloPlayerCannotHoldBothSeats(t *testing.T) {
	f := newFixture(t)
	err := f.accounts.JoinGame(context.Background(), f.alice, "BLACK", f.gameID)
	assert.ErrorIs(t, err, account.ErrAlreadyTaken)
	assert.Equal(t, "bob", f.record().BlackUsername)
}

type failingGames struct {
	store.Store
}

func (failingGames) UpdateGame(context.Context, store.GameRecord) error {
	return errors.New("disk full")
}

func TestStorageFailureIsReportedAndNotBroadcast(t *testing.T) {
	st := store.NewMemory()
	f := newFixtureWith(t, st)
	f.gm = NewGameManager(f.accounts, failingGames{st})
	t.Cleanup(func() { f.gm.Close(context.Background()) })
	alice, bob, _ := f.connectAll()

	f.move(alice, f.alice, "e2e4")

	assert.Equal(t, string(KindStorageFailure), alice.lastError(t).Code)
	assert.Empty(t, bob.messages())
	assert.Equal(t, chess.White, f.record().Game.Turn)
}

func TestCommandsAfterCloseAreRejected(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.gm.Close(context.Background()))

	conn := newFakeConn("late")
	f.gm.Handle(conn, ClientMessage{Type: MsgConnect, AuthToken: f.alice, GameID: f.gameID})
	assert.Equal(t, []string{MsgError}, conn.types())
}
