package coordinator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-wager/internal/archive"
	"github.com/park285/cheese-wager/internal/journal"
	"github.com/park285/cheese-wager/internal/obslog"
	"github.com/park285/cheese-wager/internal/session"
)

// followUp collects work that must run after the store lock is released.
type followUp struct {
	settle  *settleJob
	archive *archive.Record
	purge   string
}

func (c *Coordinator) run(f followUp) {
	if f.purge != "" {
		c.schedulePurge(f.purge)
	}
	if f.archive != nil && c.archiver != nil {
		rec := *f.archive
		if c.track() {
			go func() {
				defer c.inflight.Done()
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := c.archiver.SaveResult(ctx, rec); err != nil {
					obslog.L().Warn("archive_save_failed", zap.String("session_id", rec.GameID), zap.Error(err))
				}
			}()
		} else {
			obslog.L().Warn("archive_dropped_after_close", zap.String("session_id", rec.GameID))
		}
	}
	if f.settle != nil {
		job := *f.settle
		if c.track() {
			go func() {
				defer c.inflight.Done()
				c.settle(job)
			}()
		} else {
			obslog.L().Error("settlement_dropped_after_close", zap.String("session_id", job.sessionID), zap.String("bet_id", job.betID))
		}
	}
}

// finish completes sess and queues its single settlement. Completed sessions
// stay in the store; only abandoned ones are purged. Caller holds the store lock.
func (c *Coordinator) finish(tx *session.Tx, sess *session.Session, w session.Winner, r session.Reason) followUp {
	var f followUp
	if !sess.Complete(w, r, c.now()) {
		return f
	}
	if sess.BetID != "" && sess.Settlement == session.SettlementNone {
		sess.Settlement = session.SettlementDispatched
		job := &settleJob{
			sessionID:  sess.ID,
			betID:      sess.BetID,
			kind:       journal.KindDraw,
			recipients: tx.Connections(sess.ID),
		}
		if w != session.WinnerDraw {
			job.kind = journal.KindWinner
			if idx := winnerSlot(w); idx >= 0 {
				job.winner = sess.Slots[idx].Identity
			}
		}
		f.settle = job
	}
	rec := archive.FromSession(sess)
	f.archive = &rec
	obslog.L().Info("session_over",
		zap.String("session_id", sess.ID),
		zap.String("winner", string(w)),
		zap.String("reason", string(r)),
		zap.Int("plies", len(sess.Moves)),
	)
	return f
}

func winnerSlot(w session.Winner) int {
	switch w {
	case session.WinnerWhite:
		return 0
	case session.WinnerBlack:
		return 1
	default:
		return -1
	}
}

// ApplyMove plays a move for the side bound to conn.
func (c *Coordinator) ApplyMove(_ context.Context, conn string, req MoveRequest) (*MoveResult, error) {
	from := strings.ToLower(strings.TrimSpace(req.From))
	to := strings.ToLower(strings.TrimSpace(req.To))
	promo := strings.ToLower(strings.TrimSpace(req.Promotion))

	var res *MoveResult
	var f followUp
	err := c.store.Atomic(func(tx *session.Tx) error {
		sess, ok := tx.SessionForConnection(conn)
		if !ok {
			return ErrNotInSession
		}
		if sess.Status != session.StatusActive {
			return ErrSessionNotActive
		}
		mover := sess.Game.Turn()
		if sess.Slots[sess.SlotForSide(mover)].ConnID != conn {
			return ErrNotYourTurn
		}
		applied, err := sess.Game.Apply(from, to, promo)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrIllegalMove, err)
		}
		rec := session.MoveRecord{
			Ply:       len(sess.Moves) + 1,
			From:      from,
			To:        to,
			SAN:       applied.SAN,
			UCI:       applied.UCI,
			Captured:  applied.Captured,
			Promotion: applied.Promotion,
			At:        c.now(),
		}
		sess.Game = applied.Next
		sess.Moves = append(sess.Moves, rec)

		res = &MoveResult{Move: rec}
		switch {
		case applied.Checkmate:
			f = c.finish(tx, sess, session.WinnerFor(mover), session.ReasonCheckmate)
			res.Over = true
		case applied.Draw:
			f = c.finish(tx, sess, session.WinnerDraw, session.ReasonDrawRule)
			res.Over = true
		case applied.Check:
			res.Check = true
		}
		res.Session = sess.Clone()
		res.Recipients = tx.Connections(sess.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.run(f)
	return res, nil
}

// Resign concedes the match for the side bound to conn.
func (c *Coordinator) Resign(_ context.Context, conn string) (*ResignResult, error) {
	var res *ResignResult
	var f followUp
	err := c.store.Atomic(func(tx *session.Tx) error {
		sess, ok := tx.SessionForConnection(conn)
		if !ok {
			return ErrNotInSession
		}
		if sess.Status != session.StatusActive {
			return ErrSessionNotActive
		}
		idx := sess.SlotFor(conn)
		if idx < 0 {
			return ErrNotInSession
		}
		winner := session.WinnerFor(sess.Slots[1-idx].Side)
		f = c.finish(tx, sess, winner, session.ReasonResignation)
		res = &ResignResult{Session: sess.Clone(), Recipients: tx.Connections(sess.ID)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.run(f)
	return res, nil
}

// Disconnect releases conn. An active match is abandoned without settlement;
// a waiting one is removed.
func (c *Coordinator) Disconnect(_ context.Context, conn string) (*DisconnectResult, error) {
	res := &DisconnectResult{}
	var f followUp
	err := c.store.Atomic(func(tx *session.Tx) error {
		sess, ok := tx.SessionForConnection(conn)
		tx.UnbindConnection(conn)
		if !ok {
			return nil
		}
		switch sess.Status {
		case session.StatusActive:
			if !sess.Transition(session.StatusAbandoned) {
				return nil
			}
			at := c.now()
			sess.AbandonedAt = &at
			res.Abandoned = true
			rec := archive.FromSession(sess)
			f.archive = &rec
			f.purge = sess.ID
		case session.StatusWaiting:
			tx.Remove(sess.ID)
			res.Removed = true
		}
		res.Session = sess.Clone()
		res.Recipients = tx.Connections(sess.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res.Session != nil {
		obslog.L().Info("session_disconnect",
			zap.String("session_id", res.Session.ID),
			zap.String("conn", conn),
			zap.Bool("abandoned", res.Abandoned),
			zap.Bool("removed", res.Removed),
		)
	}
	c.run(f)
	return res, nil
}
