package coordinator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/park285/cheese-wager/internal/journal"
	"github.com/park285/cheese-wager/internal/ledger"
	"github.com/park285/cheese-wager/internal/notify"
	"github.com/park285/cheese-wager/internal/obslog"
	"github.com/park285/cheese-wager/internal/session"
)

type settleJob struct {
	sessionID  string
	betID      string
	kind       journal.Kind
	winner     string
	recipients []string
}

func (c *Coordinator) settle(job settleJob) {
	ctx, cancel := context.WithTimeout(context.Background(), c.settleTimeout)
	defer cancel()

	res := Settlement{
		SessionID:     job.sessionID,
		BetID:         job.betID,
		Kind:          job.kind,
		WinnerAddress: job.winner,
	}
	log := obslog.L().With(zap.String("bet_id", job.betID), zap.String("session_id", job.sessionID))

	claimed, err := c.journal.Claim(ctx, journal.Record{
		BetID:     job.betID,
		SessionID: job.sessionID,
		Kind:      job.kind,
		Winner:    job.winner,
		ClaimedAt: c.now(),
	})
	switch {
	case err != nil:
		res.Outcome, res.Err = OutcomeFailed, fmt.Errorf("claim settlement: %w", err)
	case !claimed:
		// The journal entry belongs to the first claimant and is left as is.
		res.Outcome, res.Err = OutcomeFailed, ErrSettlementClaimed
	default:
		res = c.declare(ctx, job, res)
		out := journal.Outcome{State: journal.StateConfirmed, TxHash: res.TxHash}
		switch res.Outcome {
		case OutcomeSkipped:
			out.State = journal.StateSkipped
		case OutcomeFailed:
			out.State, out.Error = journal.StateFailed, res.Err.Error()
		}
		if err := c.journal.Resolve(ctx, job.betID, out); err != nil {
			log.Warn("settlement_journal_resolve_failed", zap.Error(err))
		}
	}

	state := session.SettlementConfirmed
	switch res.Outcome {
	case OutcomeSkipped:
		state = session.SettlementSkipped
	case OutcomeFailed:
		state = session.SettlementFailed
	}
	res.Recipients = c.markSettlement(job.sessionID, state)
	if res.Recipients == nil {
		res.Recipients = job.recipients
	}

	if res.Err != nil {
		log.Error("settlement_failed", zap.String("kind", string(job.kind)), zap.Error(res.Err))
		if c.alerter != nil {
			alert := notify.Alert{
				BetID:     job.betID,
				SessionID: job.sessionID,
				Kind:      string(job.kind),
				Winner:    job.winner,
				Error:     res.Err.Error(),
				At:        c.now(),
			}
			if err := c.alerter.SettlementFailed(ctx, alert); err != nil {
				log.Warn("settlement_alert_failed", zap.Error(err))
			}
		}
	} else {
		log.Info("settlement_resolved", zap.String("outcome", string(res.Outcome)), zap.String("tx", res.TxHash))
	}

	if l := c.currentListener(); l != nil {
		l.SettlementResolved(res)
	}
}

func (c *Coordinator) declare(ctx context.Context, job settleJob, res Settlement) Settlement {
	var (
		rcpt *ledger.Receipt
		err  error
	)
	switch job.kind {
	case journal.KindDraw:
		rcpt, err = c.ledger.DeclareDraw(ctx, job.betID)
	default:
		if job.winner == "" && c.ledger.Enabled() {
			res.Outcome, res.Err = OutcomeFailed, ErrWinnerAddressUnknown
			return res
		}
		rcpt, err = c.ledger.DeclareWinner(ctx, job.betID, job.winner)
	}
	switch {
	case err != nil:
		res.Outcome, res.Err = OutcomeFailed, err
	case rcpt == nil || rcpt.Skipped:
		res.Outcome = OutcomeSkipped
	default:
		res.Outcome, res.TxHash = OutcomeConfirmed, rcpt.TxHash
	}
	return res
}

// markSettlement records the final settlement state and returns the
// session's current connections, or nil if it was purged.
func (c *Coordinator) markSettlement(sessionID string, state session.SettlementState) []string {
	var recipients []string
	_ = c.store.Atomic(func(tx *session.Tx) error {
		sess, err := tx.Get(sessionID)
		if err != nil {
			return nil
		}
		sess.Settlement = state
		recipients = tx.Connections(sessionID)
		if recipients == nil {
			recipients = []string{}
		}
		return nil
	})
	return recipients
}
