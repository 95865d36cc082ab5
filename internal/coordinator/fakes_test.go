package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/park285/cheese-wager/internal/archive"
	"github.com/park285/cheese-wager/internal/ledger"
	"github.com/park285/cheese-wager/internal/notify"
	"github.com/park285/cheese-wager/internal/session"
)

const (
	addrP1 = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	addrP2 = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
	addrP3 = "0x90F79bf6EB2c4f870365E785982E1f101E93b906"
)

var (
	scholarsMate = []string{"e2e4", "e7e5", "d1h5", "b8c6", "f1c4", "g8f6", "h5f7"}
	stalemate    = []string{
		"e2e3", "a7a5", "d1h5", "a8a6", "h5a5", "h7h5", "h2h4", "a6h6",
		"a5c7", "f7f6", "c7d7", "e8f7", "d7b7", "d8d3", "b7b8", "d3h7",
		"b8c8", "f7g6", "c8e6",
	}
)

type declareCall struct {
	betID  string
	winner string
	draw   bool
}

type fakeLedger struct {
	mu         sync.Mutex
	enabled    bool
	bets       map[string]*ledger.Bet
	getErr     error
	declareErr error
	calls      []declareCall
	gate       chan struct{}
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{enabled: true, bets: map[string]*ledger.Bet{}}
}

func (f *fakeLedger) addBet(id string, status ledger.BetStatus, p1, p2 string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p2 == "" {
		p2 = "0x0000000000000000000000000000000000000000"
	}
	f.bets[id] = &ledger.Bet{ID: id, Player1: p1, Player2: p2, Status: status, StatusName: status.String(), GameHash: "0xhash" + id}
}

func (f *fakeLedger) Enabled() bool { return f.enabled }

func (f *fakeLedger) GetBet(_ context.Context, id string) (*ledger.Bet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	b, ok := f.bets[id]
	if !ok {
		return nil, ledger.ErrBetNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeLedger) record(c declareCall) (*ledger.Receipt, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	if f.declareErr != nil {
		return nil, f.declareErr
	}
	if !f.enabled {
		return &ledger.Receipt{Skipped: true}, nil
	}
	return &ledger.Receipt{TxHash: "0xtx" + c.betID, Block: 1}, nil
}

func (f *fakeLedger) DeclareWinner(_ context.Context, id, winner string) (*ledger.Receipt, error) {
	return f.record(declareCall{betID: id, winner: winner})
}

func (f *fakeLedger) DeclareDraw(_ context.Context, id string) (*ledger.Receipt, error) {
	return f.record(declareCall{betID: id, draw: true})
}

func (f *fakeLedger) declareCalls() []declareCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]declareCall(nil), f.calls...)
}

type recordingListener struct {
	ch chan Settlement
}

func newListener() *recordingListener { return &recordingListener{ch: make(chan Settlement, 16)} }

func (l *recordingListener) SettlementResolved(s Settlement) { l.ch <- s }

func (l *recordingListener) next(t *testing.T) Settlement {
	t.Helper()
	select {
	case s := <-l.ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatalf("no settlement delivered")
		return Settlement{}
	}
}

func (l *recordingListener) none(t *testing.T) {
	t.Helper()
	select {
	case s := <-l.ch:
		t.Fatalf("unexpected settlement: %+v", s)
	case <-time.After(50 * time.Millisecond):
	}
}

type fakeAlerter struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (a *fakeAlerter) SettlementFailed(_ context.Context, al notify.Alert) error {
	a.mu.Lock()
	a.alerts = append(a.alerts, al)
	a.mu.Unlock()
	return nil
}

func (a *fakeAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.alerts)
}

type fakeArchiver struct {
	mu   sync.Mutex
	recs []archive.Record
}

func (a *fakeArchiver) SaveResult(_ context.Context, rec archive.Record) error {
	time.Sleep(20 * time.Millisecond)
	a.mu.Lock()
	a.recs = append(a.recs, rec)
	a.mu.Unlock()
	return nil
}

func (a *fakeArchiver) saved() []archive.Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]archive.Record(nil), a.recs...)
}

var errRPC = errors.New("execution reverted: bet not active")

func newCoord(t *testing.T, lc ledger.Client, opts ...Option) (*Coordinator, *recordingListener) {
	t.Helper()
	l := newListener()
	opts = append([]Option{WithListener(l)}, opts...)
	c := New(session.NewStore(), lc, opts...)
	t.Cleanup(c.Close)
	return c, l
}

// startMatch creates a session on "x" and joins it from "y".
func startMatch(t *testing.T, c *Coordinator, betID, idX, idY string) string {
	t.Helper()
	ctx := context.Background()
	cr, err := c.CreateSession(ctx, "x", CreateRequest{BetID: betID, Identity: idX})
	require.NoError(t, err)
	_, err = c.JoinSession(ctx, "y", JoinRequest{SessionID: cr.Session.ID, Identity: idY})
	require.NoError(t, err)
	return cr.Session.ID
}

// playMoves alternates x (white) and y (black) and returns the last result.
func playMoves(t *testing.T, c *Coordinator, moves []string) *MoveResult {
	t.Helper()
	var last *MoveResult
	for i, m := range moves {
		conn := "x"
		if i%2 == 1 {
			conn = "y"
		}
		res, err := c.ApplyMove(context.Background(), conn, MoveRequest{From: m[:2], To: m[2:4]})
		require.NoError(t, err, "move %d %s", i+1, m)
		last = res
	}
	return last
}
