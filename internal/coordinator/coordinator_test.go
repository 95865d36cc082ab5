package coordinator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/cheese-wager/internal/journal"
	"github.com/park285/cheese-wager/internal/ledger"
	"github.com/park285/cheese-wager/internal/rules"
	"github.com/park285/cheese-wager/internal/session"
)

func TestCasualCreateAndJoin(t *testing.T) {
	c, _ := newCoord(t, nil, WithIDSource(func() string { return "01TEST" }))
	ctx := context.Background()

	cr, err := c.CreateSession(ctx, "x", CreateRequest{})
	require.NoError(t, err)
	assert.Equal(t, "game_01TEST", cr.Session.ID)
	assert.Equal(t, rules.White, cr.Side)
	assert.Equal(t, session.StatusWaiting, cr.Session.Status)

	jr, err := c.JoinSession(ctx, "y", JoinRequest{SessionID: cr.Session.ID, Identity: addrP2})
	require.NoError(t, err)
	assert.Equal(t, rules.Black, jr.Side)
	assert.Equal(t, session.StatusActive, jr.Session.Status)
	assert.Equal(t, "x", jr.CreatorConn)
	assert.Equal(t, addrP2, jr.OpponentIdentity)
	assert.Equal(t, []string{"x", "y"}, jr.Recipients)

	got, err := c.Session(cr.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, got.Status)
	require.NoError(t, c.CheckConsistency())
}

func TestCasualCheckmateHasNoSettlement(t *testing.T) {
	lc := newFakeLedger()
	c, l := newCoord(t, lc)
	id := startMatch(t, c, "", "", "")

	last := playMoves(t, c, scholarsMate)
	assert.True(t, last.Over)
	assert.Equal(t, "Qxf7#", last.Move.SAN)
	assert.Equal(t, session.StatusCompleted, last.Session.Status)
	assert.Equal(t, session.WinnerWhite, last.Session.Winner)
	assert.Equal(t, session.ReasonCheckmate, last.Session.Reason)
	require.NotNil(t, last.Session.EndedAt)

	l.none(t)
	assert.Empty(t, lc.declareCalls())
	s, err := c.Session(id)
	require.NoError(t, err)
	assert.Equal(t, session.SettlementNone, s.Settlement)
}

func TestJoinRejectsNonParticipant(t *testing.T) {
	lc := newFakeLedger()
	lc.addBet("7", ledger.BetActive, addrP1, addrP2)
	c, _ := newCoord(t, lc)
	ctx := context.Background()

	cr, err := c.CreateSession(ctx, "x", CreateRequest{BetID: "7", Identity: addrP1})
	require.NoError(t, err)
	assert.Equal(t, "game_7", cr.Session.ID)
	assert.Equal(t, "0xhash7", cr.Session.GameHash)

	_, err = c.JoinSession(ctx, "z", JoinRequest{SessionID: "game_7", Identity: addrP3})
	assert.ErrorIs(t, err, ErrNotBetParticipant)

	s, err := c.Session("game_7")
	require.NoError(t, err)
	assert.False(t, s.Slots[1].Occupied())
	assert.Equal(t, session.StatusWaiting, s.Status)
	_, bound := c.SessionForConnection("z")
	assert.False(t, bound)
}

func TestSettlementFailureKeepsResult(t *testing.T) {
	lc := newFakeLedger()
	lc.addBet("7", ledger.BetActive, addrP1, addrP2)
	lc.declareErr = errRPC
	alerts := &fakeAlerter{}
	jr := journal.NewMemory()
	c, l := newCoord(t, lc, WithAlerter(alerts), WithJournal(jr))
	id := startMatch(t, c, "7", addrP1, addrP2)

	last := playMoves(t, c, scholarsMate)
	assert.True(t, last.Over)
	assert.Equal(t, session.WinnerWhite, last.Session.Winner)

	st := l.next(t)
	assert.Equal(t, OutcomeFailed, st.Outcome)
	assert.ErrorIs(t, st.Err, errRPC)
	assert.Equal(t, "7", st.BetID)
	assert.Equal(t, addrP1, st.WinnerAddress)
	assert.Equal(t, []string{"x", "y"}, st.Recipients)
	assert.Equal(t, 1, alerts.count())

	s, err := c.Session(id)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, s.Status)
	assert.Equal(t, session.SettlementFailed, s.Settlement)

	rec, err := jr.Get(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, journal.StateFailed, rec.State)
	assert.Contains(t, rec.Error, "reverted")
}

func TestAbandonedSessionIsPurged(t *testing.T) {
	c, _ := newCoord(t, nil, WithCleanupDelay(30*time.Millisecond))
	id := startMatch(t, c, "", "", "")

	res, err := c.Disconnect(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, res.Abandoned)
	assert.Equal(t, []string{"y"}, res.Recipients)
	assert.Equal(t, session.StatusAbandoned, res.Session.Status)
	assert.Equal(t, session.WinnerNone, res.Session.Winner)
	assert.Equal(t, session.ReasonNone, res.Session.Reason)
	require.NotNil(t, res.Session.AbandonedAt)
	require.NoError(t, c.CheckConsistency())

	assert.Eventually(t, func() bool {
		_, err := c.Session(id)
		return errors.Is(err, ErrSessionNotFound)
	}, 2*time.Second, 10*time.Millisecond)
	_, bound := c.SessionForConnection("y")
	assert.False(t, bound)
}

func TestTurnEnforcementLeavesPositionUntouched(t *testing.T) {
	c, _ := newCoord(t, nil)
	id := startMatch(t, c, "", "", "")
	before, err := c.Session(id)
	require.NoError(t, err)

	_, err = c.ApplyMove(context.Background(), "y", MoveRequest{From: "e7", To: "e5"})
	assert.ErrorIs(t, err, ErrNotYourTurn)

	after, err := c.Session(id)
	require.NoError(t, err)
	assert.Equal(t, before.Game.FEN(), after.Game.FEN())
	assert.Empty(t, after.Moves)
}

func TestIllegalMoveIsSideEffectFree(t *testing.T) {
	c, _ := newCoord(t, nil)
	id := startMatch(t, c, "", "", "")
	for i := 0; i < 3; i++ {
		_, err := c.ApplyMove(context.Background(), "x", MoveRequest{From: "e2", To: "e5"})
		assert.ErrorIs(t, err, ErrIllegalMove)
	}
	_, err := c.ApplyMove(context.Background(), "x", MoveRequest{From: "z9", To: "e4"})
	assert.ErrorIs(t, err, ErrIllegalMove)

	s, err := c.Session(id)
	require.NoError(t, err)
	assert.Empty(t, s.Moves)
	assert.Equal(t, rules.White, s.Game.Turn())
}

func TestMoveErrors(t *testing.T) {
	c, _ := newCoord(t, nil)
	ctx := context.Background()
	_, err := c.ApplyMove(ctx, "ghost", MoveRequest{From: "e2", To: "e4"})
	assert.ErrorIs(t, err, ErrNotInSession)

	_, err = c.CreateSession(ctx, "x", CreateRequest{})
	require.NoError(t, err)
	_, err = c.ApplyMove(ctx, "x", MoveRequest{From: "e2", To: "e4"})
	assert.ErrorIs(t, err, ErrSessionNotActive)
	_, err = c.Resign(ctx, "x")
	assert.ErrorIs(t, err, ErrSessionNotActive)
}

func TestCheckIsReported(t *testing.T) {
	c, _ := newCoord(t, nil)
	startMatch(t, c, "", "", "")
	last := playMoves(t, c, []string{"e2e4", "f7f6", "d1h5"})
	assert.True(t, last.Check)
	assert.False(t, last.Over)
	assert.Equal(t, 3, last.Move.Ply)
}

func TestStalemateSettlesAsDraw(t *testing.T) {
	lc := newFakeLedger()
	lc.addBet("12", ledger.BetActive, addrP1, addrP2)
	c, l := newCoord(t, lc)
	startMatch(t, c, "12", addrP1, addrP2)

	last := playMoves(t, c, stalemate)
	assert.True(t, last.Over)
	assert.Equal(t, session.WinnerDraw, last.Session.Winner)
	assert.Equal(t, session.ReasonDrawRule, last.Session.Reason)

	st := l.next(t)
	assert.Equal(t, OutcomeConfirmed, st.Outcome)
	assert.Equal(t, journal.KindDraw, st.Kind)
	assert.Equal(t, "0xtx12", st.TxHash)
	assert.Equal(t, []declareCall{{betID: "12", draw: true}}, lc.declareCalls())
}

func TestResignDeclaresOpponent(t *testing.T) {
	lc := newFakeLedger()
	lc.addBet("3", ledger.BetActive, addrP1, addrP2)
	c, l := newCoord(t, lc)
	startMatch(t, c, "3", addrP1, addrP2)

	res, err := c.Resign(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, session.WinnerBlack, res.Session.Winner)
	assert.Equal(t, session.ReasonResignation, res.Session.Reason)

	st := l.next(t)
	assert.Equal(t, OutcomeConfirmed, st.Outcome)
	assert.Equal(t, addrP2, st.WinnerAddress)
}

func TestAtMostOneSettlement(t *testing.T) {
	lc := newFakeLedger()
	lc.addBet("5", ledger.BetActive, addrP1, addrP2)
	lc.gate = make(chan struct{})
	c, l := newCoord(t, lc)
	startMatch(t, c, "5", addrP1, addrP2)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for _, conn := range []string{"x", "y", "x", "y"} {
		wg.Add(1)
		go func(conn string) {
			defer wg.Done()
			if _, err := c.Resign(context.Background(), conn); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, ErrSessionNotActive)
			}
		}(conn)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	_, err := c.ApplyMove(context.Background(), "x", MoveRequest{From: "e2", To: "e4"})
	assert.ErrorIs(t, err, ErrSessionNotActive)
	_, err = c.Disconnect(context.Background(), "y")
	require.NoError(t, err)

	close(lc.gate)
	l.next(t)
	l.none(t)
	assert.Len(t, lc.declareCalls(), 1)
}

func TestSharedJournalRefusesSecondClaim(t *testing.T) {
	lc := newFakeLedger()
	lc.addBet("9", ledger.BetActive, addrP1, addrP2)
	shared := journal.NewMemory()

	c1, l1 := newCoord(t, lc, WithJournal(shared))
	c2, l2 := newCoord(t, lc, WithJournal(shared))
	startMatch(t, c1, "9", addrP1, addrP2)
	startMatch(t, c2, "9", addrP1, addrP2)

	_, err := c1.Resign(context.Background(), "y")
	require.NoError(t, err)
	l1.next(t)
	_, err = c2.Resign(context.Background(), "y")
	require.NoError(t, err)

	st := l2.next(t)
	assert.Equal(t, OutcomeFailed, st.Outcome)
	assert.ErrorIs(t, st.Err, ErrSettlementClaimed)
	assert.Equal(t, []string{"x", "y"}, st.Recipients)
	assert.Len(t, lc.declareCalls(), 1)

	s, err := c2.Session("game_9")
	require.NoError(t, err)
	assert.Equal(t, session.SettlementFailed, s.Settlement)

	rec, err := shared.Get(context.Background(), "9")
	require.NoError(t, err)
	assert.Equal(t, journal.StateConfirmed, rec.State)
	assert.Equal(t, "game_9", rec.SessionID)
}

func TestCompletedSessionOutlivesCleanupDelay(t *testing.T) {
	c, _ := newCoord(t, nil, WithCleanupDelay(30*time.Millisecond))
	id := startMatch(t, c, "", "", "")
	last := playMoves(t, c, scholarsMate)
	require.True(t, last.Over)

	time.Sleep(200 * time.Millisecond)
	s, err := c.Session(id)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, s.Status)
	assert.Len(t, s.Moves, len(scholarsMate))

	_, err = c.Resign(context.Background(), "x")
	assert.ErrorIs(t, err, ErrSessionNotActive)
}

func TestCompletedBetSessionBlocksRecreate(t *testing.T) {
	c, l := newCoord(t, ledger.Offline{}, WithCleanupDelay(30*time.Millisecond))
	startMatch(t, c, "7", "", "")
	_, err := c.Resign(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, l.next(t).Outcome)

	time.Sleep(200 * time.Millisecond)
	_, err = c.CreateSession(context.Background(), "z", CreateRequest{BetID: "7"})
	assert.ErrorIs(t, err, ErrSessionAlreadyExists)
	l.none(t)
}

func TestOfflineBetSettlementIsSkipped(t *testing.T) {
	c, l := newCoord(t, ledger.Offline{})
	startMatch(t, c, "44", "", "")
	_, err := c.Resign(context.Background(), "y")
	require.NoError(t, err)

	st := l.next(t)
	assert.Equal(t, OutcomeSkipped, st.Outcome)
	assert.NoError(t, st.Err)
}

func TestUnknownWinnerAddressFailsSettlementOnly(t *testing.T) {
	lc := newFakeLedger()
	lc.addBet("46", ledger.BetActive, addrP1, addrP2)
	c, l := newCoord(t, lc)
	startMatch(t, c, "46", "", addrP2)

	res, err := c.Resign(context.Background(), "y")
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, res.Session.Status)

	st := l.next(t)
	assert.Equal(t, OutcomeFailed, st.Outcome)
	assert.ErrorIs(t, st.Err, ErrWinnerAddressUnknown)
	assert.Empty(t, lc.declareCalls())
}

func TestOfflineDrawIsSkipped(t *testing.T) {
	c, l := newCoord(t, ledger.Offline{})
	startMatch(t, c, "45", "", "")
	playMoves(t, c, stalemate)
	st := l.next(t)
	assert.Equal(t, OutcomeSkipped, st.Outcome)
	assert.NoError(t, st.Err)
}

func TestJoinTwiceIsRejected(t *testing.T) {
	c, _ := newCoord(t, nil)
	ctx := context.Background()
	id := startMatch(t, c, "", "", "")

	_, err := c.JoinSession(ctx, "y", JoinRequest{SessionID: id})
	assert.ErrorIs(t, err, ErrSessionFull)
	_, err = c.JoinSession(ctx, "z", JoinRequest{SessionID: id})
	assert.ErrorIs(t, err, ErrSessionFull)

	s, err := c.Session(id)
	require.NoError(t, err)
	assert.Equal(t, "y", s.Slots[1].ConnID)
}

func TestJoinErrors(t *testing.T) {
	c, _ := newCoord(t, nil)
	ctx := context.Background()
	_, err := c.JoinSession(ctx, "y", JoinRequest{SessionID: "game_missing"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = c.JoinSession(ctx, "y", JoinRequest{})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	cr, err := c.CreateSession(ctx, "x", CreateRequest{Identity: addrP1})
	require.NoError(t, err)
	_, err = c.JoinSession(ctx, "x", JoinRequest{SessionID: cr.Session.ID})
	assert.ErrorIs(t, err, ErrCannotJoinOwnSession)
	_, err = c.JoinSession(ctx, "y", JoinRequest{SessionID: cr.Session.ID, Identity: strings.ToLower(addrP1)})
	assert.ErrorIs(t, err, ErrCannotJoinOwnSession)

	_, err = c.CreateSession(ctx, "x", CreateRequest{})
	assert.ErrorIs(t, err, ErrAlreadyInSession)
}

func TestCreateWithBetErrors(t *testing.T) {
	lc := newFakeLedger()
	lc.addBet("1", ledger.BetCreated, addrP1, "")
	lc.addBet("2", ledger.BetCompleted, addrP1, addrP2)
	c, _ := newCoord(t, lc)
	ctx := context.Background()

	_, err := c.CreateSession(ctx, "a", CreateRequest{BetID: "404"})
	assert.ErrorIs(t, err, ErrBetNotFound)
	_, err = c.CreateSession(ctx, "a", CreateRequest{BetID: "2"})
	assert.ErrorIs(t, err, ErrBetNotActive)
	_, err = c.CreateSession(ctx, "a", CreateRequest{BetID: "1", Identity: addrP3})
	assert.ErrorIs(t, err, ErrNotBetParticipant)

	_, err = c.CreateSession(ctx, "a", CreateRequest{BetID: "1", Identity: addrP1})
	require.NoError(t, err)
	_, err = c.CreateSession(ctx, "b", CreateRequest{BetID: "1"})
	assert.ErrorIs(t, err, ErrSessionAlreadyExists)

	lc.getErr = errors.New("dial tcp: connection refused")
	_, err = c.CreateSession(ctx, "c", CreateRequest{BetID: "8"})
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
}

func TestJoinRereadsBet(t *testing.T) {
	lc := newFakeLedger()
	lc.addBet("4", ledger.BetCreated, addrP1, "")
	c, _ := newCoord(t, lc)
	ctx := context.Background()
	_, err := c.CreateSession(ctx, "x", CreateRequest{BetID: "4", Identity: addrP1})
	require.NoError(t, err)

	_, err = c.JoinSession(ctx, "y", JoinRequest{SessionID: "game_4", Identity: addrP2})
	assert.ErrorIs(t, err, ErrNotBetParticipant)

	// joiner's funding transaction confirms
	lc.addBet("4", ledger.BetActive, addrP1, addrP2)
	jr, err := c.JoinSession(ctx, "y", JoinRequest{SessionID: "game_4", Identity: addrP2})
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, jr.Session.Status)
}

func TestWaitingDisconnectRemovesSession(t *testing.T) {
	c, _ := newCoord(t, nil)
	cr, err := c.CreateSession(context.Background(), "x", CreateRequest{BetID: "77"})
	require.NoError(t, err)

	res, err := c.Disconnect(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, res.Removed)
	assert.Empty(t, res.Recipients)
	_, err = c.Session(cr.Session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, ok := c.SessionForBet("77")
	assert.False(t, ok)

	res, err = c.Disconnect(context.Background(), "x")
	require.NoError(t, err)
	assert.Nil(t, res.Session)
	require.NoError(t, c.CheckConsistency())
}

func TestFinishedConnectionCanStartAgain(t *testing.T) {
	c, _ := newCoord(t, nil)
	startMatch(t, c, "", "", "")
	_, err := c.Resign(context.Background(), "x")
	require.NoError(t, err)

	cr, err := c.CreateSession(context.Background(), "x", CreateRequest{})
	require.NoError(t, err)
	s, ok := c.SessionForConnection("x")
	require.True(t, ok)
	assert.Equal(t, cr.Session.ID, s.ID)
	require.NoError(t, c.CheckConsistency())
}

func TestBetCancelledClosesWaitingSession(t *testing.T) {
	c, _ := newCoord(t, nil)
	_, err := c.CreateSession(context.Background(), "x", CreateRequest{BetID: "31", Identity: addrP1})
	require.NoError(t, err)

	res := c.HandleLedgerEvent(ledger.Event{Kind: ledger.EventBetCancelled, BetID: "31", Address: addrP1})
	assert.True(t, res.Cancelled)
	assert.Equal(t, "game_31", res.SessionID)
	assert.Equal(t, []string{"x"}, res.Recipients)
	_, ok := c.SessionForBet("31")
	assert.False(t, ok)
	require.NoError(t, c.CheckConsistency())
}

func TestLedgerEventRoutesToIdentity(t *testing.T) {
	c, _ := newCoord(t, nil)
	_, err := c.CreateSession(context.Background(), "x", CreateRequest{Identity: addrP1})
	require.NoError(t, err)

	res := c.HandleLedgerEvent(ledger.Event{Kind: ledger.EventBetCreated, BetID: "50", Address: strings.ToLower(addrP1)})
	assert.False(t, res.Cancelled)
	assert.Empty(t, res.SessionID)
	assert.Equal(t, []string{"x"}, res.Recipients)
}

func TestStatsAndCode(t *testing.T) {
	c, _ := newCoord(t, nil)
	startMatch(t, c, "", "", "")
	_, err := c.CreateSession(context.Background(), "z", CreateRequest{})
	require.NoError(t, err)

	st := c.Stats()
	assert.Equal(t, Stats{Waiting: 1, Active: 1, Total: 2}, st)

	assert.Equal(t, "not_your_turn", Code(ErrNotYourTurn))
	assert.Equal(t, "illegal_move", Code(errors.Join(errors.New("x"), ErrIllegalMove)))
	assert.Equal(t, "internal", Code(errors.New("boom")))
	assert.Equal(t, "settlement_claimed", Code(ErrSettlementClaimed))
}

func TestCloseWaitsForArchiveAndRefusesLaterWork(t *testing.T) {
	lc := newFakeLedger()
	lc.addBet("21", ledger.BetActive, addrP1, addrP2)
	arc := &fakeArchiver{}
	c, l := newCoord(t, lc, WithArchiver(arc))
	startMatch(t, c, "", "", "")

	_, err := c.Resign(context.Background(), "x")
	require.NoError(t, err)
	c.Close()
	require.Len(t, arc.saved(), 1)
	assert.Equal(t, session.ReasonResignation, arc.saved()[0].Reason)

	// sockets torn down after Close still reach the coordinator
	ctx := context.Background()
	cr, err := c.CreateSession(ctx, "a", CreateRequest{})
	require.NoError(t, err)
	_, err = c.JoinSession(ctx, "b", JoinRequest{SessionID: cr.Session.ID})
	require.NoError(t, err)
	res, err := c.Disconnect(ctx, "a")
	require.NoError(t, err)
	assert.True(t, res.Abandoned)

	cr, err = c.CreateSession(ctx, "p", CreateRequest{BetID: "21", Identity: addrP1})
	require.NoError(t, err)
	_, err = c.JoinSession(ctx, "q", JoinRequest{SessionID: cr.Session.ID, Identity: addrP2})
	require.NoError(t, err)
	_, err = c.Resign(ctx, "q")
	require.NoError(t, err)

	c.Close()
	assert.Len(t, arc.saved(), 1)
	assert.Empty(t, lc.declareCalls())
	l.none(t)
}
