package coordinator

import (
	"sort"

	"go.uber.org/zap"

	"github.com/park285/cheese-wager/internal/ledger"
	"github.com/park285/cheese-wager/internal/obslog"
	"github.com/park285/cheese-wager/internal/session"
)

// HandleLedgerEvent resolves who should hear about a contract event.
// A BetCancelled event closes a session still waiting for its opponent.
func (c *Coordinator) HandleLedgerEvent(ev ledger.Event) *LedgerEventResult {
	res := &LedgerEventResult{}
	seen := map[string]struct{}{}
	add := func(conns ...string) {
		for _, cn := range conns {
			if _, ok := seen[cn]; ok || cn == "" {
				continue
			}
			seen[cn] = struct{}{}
			res.Recipients = append(res.Recipients, cn)
		}
	}

	_ = c.store.Atomic(func(tx *session.Tx) error {
		if sess, ok := tx.SessionForBet(ev.BetID); ok {
			res.SessionID = sess.ID
			add(tx.Connections(sess.ID)...)
			if ev.Kind == ledger.EventBetCancelled && sess.Status == session.StatusWaiting {
				if sess.Transition(session.StatusCancelled) {
					res.Cancelled = true
					tx.Remove(sess.ID)
				}
			}
		}
		return nil
	})
	if ev.Address != "" {
		if conn, ok := c.store.ConnectionForIdentity(ev.Address); ok {
			add(conn)
		}
	}
	sort.Strings(res.Recipients)
	if res.Cancelled {
		obslog.L().Info("session_cancelled", zap.String("session_id", res.SessionID), zap.String("bet_id", ev.BetID))
	}
	return res
}
