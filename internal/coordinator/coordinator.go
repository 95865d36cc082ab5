package coordinator

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/park285/cheese-wager/internal/journal"
	"github.com/park285/cheese-wager/internal/ledger"
	"github.com/park285/cheese-wager/internal/obslog"
	"github.com/park285/cheese-wager/internal/session"
)

const (
	defaultCleanupDelay      = 5 * time.Minute
	defaultSettlementTimeout = 3 * time.Minute
	sessionPrefix            = "game_"
)

// Coordinator is the only writer of session state and the only caller of
// the ledger's declare operations.
type Coordinator struct {
	store  *session.Store
	ledger ledger.Client

	journal  Journal
	archiver Archiver
	alerter  Alerter

	listenerMu sync.RWMutex
	listener   Listener

	now   func() time.Time
	newID func() string

	cleanupDelay  time.Duration
	settleTimeout time.Duration

	timersMu sync.Mutex
	timers   map[string]*time.Timer
	closed   bool

	inflight sync.WaitGroup
}

type Option func(*Coordinator)

func WithCleanupDelay(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.cleanupDelay = d
		}
	}
}

func WithSettlementTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.settleTimeout = d
		}
	}
}

func WithJournal(j Journal) Option {
	return func(c *Coordinator) {
		if j != nil {
			c.journal = j
		}
	}
}

func WithArchiver(a Archiver) Option  { return func(c *Coordinator) { c.archiver = a } }
func WithAlerter(a Alerter) Option    { return func(c *Coordinator) { c.alerter = a } }
func WithListener(l Listener) Option  { return func(c *Coordinator) { c.listener = l } }
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDSource replaces the generator for sessions without a bet.
func WithIDSource(f func() string) Option {
	return func(c *Coordinator) {
		if f != nil {
			c.newID = f
		}
	}
}

// New wires a coordinator. A nil ledger runs in offline mode.
func New(store *session.Store, lc ledger.Client, opts ...Option) *Coordinator {
	if lc == nil {
		lc = ledger.Offline{}
	}
	c := &Coordinator{
		store:         store,
		ledger:        lc,
		journal:       journal.NewMemory(),
		now:           time.Now,
		newID:         func() string { return ulid.Make().String() },
		cleanupDelay:  defaultCleanupDelay,
		settleTimeout: defaultSettlementTimeout,
		timers:        make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetListener installs the settlement listener after construction.
func (c *Coordinator) SetListener(l Listener) {
	c.listenerMu.Lock()
	c.listener = l
	c.listenerMu.Unlock()
}

func (c *Coordinator) currentListener() Listener {
	c.listenerMu.RLock()
	defer c.listenerMu.RUnlock()
	return c.listener
}

// Close stops pending purges and waits for in-flight settlements and archive
// writes. Work finishing after Close is not started.
func (c *Coordinator) Close() {
	c.timersMu.Lock()
	c.closed = true
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
	c.timersMu.Unlock()
	c.inflight.Wait()
}

// track registers one background task; it fails once Close has begun.
func (c *Coordinator) track() bool {
	c.timersMu.Lock()
	defer c.timersMu.Unlock()
	if c.closed {
		return false
	}
	c.inflight.Add(1)
	return true
}

func (c *Coordinator) LedgerEnabled() bool { return c.ledger.Enabled() }

// Session returns a snapshot of the session.
func (c *Coordinator) Session(id string) (*session.Session, error) {
	s, err := c.store.Get(id)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Sessions snapshots every registered session, oldest first.
func (c *Coordinator) Sessions() []*session.Session { return c.store.ListActive() }

func (c *Coordinator) SessionForConnection(conn string) (*session.Session, bool) {
	id, ok := c.store.SessionIDForConnection(conn)
	if !ok {
		return nil, false
	}
	s, err := c.store.Get(id)
	return s, err == nil
}

func (c *Coordinator) SessionForBet(betID string) (*session.Session, bool) {
	id, ok := c.store.SessionIDForBet(betID)
	if !ok {
		return nil, false
	}
	s, err := c.store.Get(id)
	return s, err == nil
}

func (c *Coordinator) ConnectionForIdentity(identity string) (string, bool) {
	return c.store.ConnectionForIdentity(identity)
}

// Recipients lists the connections bound to a session.
func (c *Coordinator) Recipients(sessionID string) []string {
	var out []string
	_ = c.store.Atomic(func(tx *session.Tx) error {
		out = tx.Connections(sessionID)
		return nil
	})
	return out
}

func (c *Coordinator) Stats() Stats {
	var st Stats
	for _, s := range c.store.ListActive() {
		st.Total++
		switch s.Status {
		case session.StatusWaiting:
			st.Waiting++
		case session.StatusActive:
			st.Active++
		case session.StatusCompleted:
			st.Completed++
		case session.StatusAbandoned:
			st.Abandoned++
		}
	}
	return st
}

// CheckConsistency verifies the store indices.
func (c *Coordinator) CheckConsistency() error { return c.store.CheckConsistency() }

func (c *Coordinator) schedulePurge(id string) {
	c.timersMu.Lock()
	defer c.timersMu.Unlock()
	if c.closed {
		return
	}
	if t, ok := c.timers[id]; ok {
		t.Stop()
	}
	c.timers[id] = time.AfterFunc(c.cleanupDelay, func() { c.purge(id) })
}

func (c *Coordinator) purge(id string) {
	c.timersMu.Lock()
	delete(c.timers, id)
	c.timersMu.Unlock()

	removed := false
	_ = c.store.Atomic(func(tx *session.Tx) error {
		sess, err := tx.Get(id)
		if err != nil || !sess.Status.Terminal() {
			return nil
		}
		tx.Remove(id)
		removed = true
		return nil
	})
	if removed {
		obslog.L().Info("session_purged", zap.String("session_id", id))
	}
}
