package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/cheese-wager/internal/ledger"
	"github.com/park285/cheese-wager/internal/obslog"
	"github.com/park285/cheese-wager/internal/rules"
	"github.com/park285/cheese-wager/internal/session"
)

// SessionIDForBet is the deterministic session id of a bet-backed match.
func SessionIDForBet(betID string) string { return sessionPrefix + betID }

// CreateSession seats conn as white in a new waiting session.
func (c *Coordinator) CreateSession(ctx context.Context, conn string, req CreateRequest) (*CreateResult, error) {
	conn = strings.TrimSpace(conn)
	if conn == "" {
		return nil, fmt.Errorf("%w: empty connection", ErrInvalidRequest)
	}
	betID := strings.TrimSpace(req.BetID)
	identity := strings.TrimSpace(req.Identity)

	id := ""
	gameHash := ""
	if betID != "" {
		id = SessionIDForBet(betID)
		if _, taken := c.store.SessionIDForBet(betID); taken {
			return nil, ErrSessionAlreadyExists
		}
		if c.ledger.Enabled() {
			bet, err := c.fetchBet(ctx, betID)
			if err != nil {
				return nil, err
			}
			if !bet.Status.Joinable() {
				return nil, ErrBetNotActive
			}
			if identity != "" && !bet.IsParticipant(identity) {
				return nil, ErrNotBetParticipant
			}
			gameHash = bet.GameHash
		}
	} else {
		id = sessionPrefix + c.newID()
	}

	var snap *session.Session
	err := c.store.Atomic(func(tx *session.Tx) error {
		if cur, ok := tx.SessionForConnection(conn); ok && !cur.Status.Terminal() {
			return ErrAlreadyInSession
		}
		sess := session.New(id, betID, conn, identity, c.now())
		sess.GameHash = gameHash
		if err := tx.Create(sess); err != nil {
			if errors.Is(err, session.ErrDuplicateSession) || errors.Is(err, session.ErrBetTaken) {
				return ErrSessionAlreadyExists
			}
			return err
		}
		tx.UnbindConnection(conn)
		if err := tx.BindConnection(conn, id, identity); err != nil {
			return err
		}
		snap = sess.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("session_create",
		zap.String("session_id", id),
		zap.String("bet_id", betID),
		zap.String("conn", conn),
	)
	return &CreateResult{Session: snap, Side: rules.White}, nil
}

// JoinSession seats conn as black and starts the match.
func (c *Coordinator) JoinSession(ctx context.Context, conn string, req JoinRequest) (*JoinResult, error) {
	conn = strings.TrimSpace(conn)
	id := strings.TrimSpace(req.SessionID)
	identity := strings.TrimSpace(req.Identity)
	if conn == "" || id == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidRequest)
	}

	pre, err := c.store.Get(id)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	if err := joinable(pre); err != nil {
		return nil, err
	}
	// The bet is re-read here: the joiner's own funding may have landed after creation.
	if pre.BetID != "" && identity != "" && c.ledger.Enabled() {
		bet, err := c.fetchBet(ctx, pre.BetID)
		if err != nil {
			return nil, err
		}
		if !bet.IsParticipant(identity) {
			return nil, ErrNotBetParticipant
		}
	}

	res := &JoinResult{Side: rules.Black, OpponentIdentity: identity}
	err = c.store.Atomic(func(tx *session.Tx) error {
		sess, err := tx.Get(id)
		if err != nil {
			return ErrSessionNotFound
		}
		if err := joinable(sess); err != nil {
			return err
		}
		creator := sess.Slots[0]
		if creator.ConnID == conn {
			return ErrCannotJoinOwnSession
		}
		if identity != "" && session.NormalizeIdentity(identity) == session.NormalizeIdentity(creator.Identity) {
			return ErrCannotJoinOwnSession
		}
		if cur, ok := tx.SessionForConnection(conn); ok && !cur.Status.Terminal() {
			return ErrAlreadyInSession
		}
		if !sess.Transition(session.StatusActive) {
			return ErrSessionNotJoinable
		}
		sess.Slots[1].ConnID = conn
		sess.Slots[1].Identity = identity
		tx.UnbindConnection(conn)
		if err := tx.BindConnection(conn, id, identity); err != nil {
			return err
		}
		res.Session = sess.Clone()
		res.CreatorConn = creator.ConnID
		res.Recipients = tx.Connections(id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("session_join",
		zap.String("session_id", id),
		zap.String("bet_id", res.Session.BetID),
		zap.String("conn", conn),
	)
	return res, nil
}

func joinable(s *session.Session) error {
	if s.Slots[1].Occupied() {
		return ErrSessionFull
	}
	if s.Status != session.StatusWaiting {
		return ErrSessionNotJoinable
	}
	return nil
}

func (c *Coordinator) fetchBet(ctx context.Context, betID string) (*ledger.Bet, error) {
	bet, err := c.ledger.GetBet(ctx, betID)
	switch {
	case errors.Is(err, ledger.ErrBetNotFound):
		return nil, ErrBetNotFound
	case errors.Is(err, ledger.ErrBadBetID):
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	case err != nil:
		obslog.L().Warn("ledger_get_bet_failed", zap.String("bet_id", betID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return bet, nil
}
