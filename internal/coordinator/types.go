package coordinator

import (
	"context"

	"github.com/park285/cheese-wager/internal/archive"
	"github.com/park285/cheese-wager/internal/journal"
	"github.com/park285/cheese-wager/internal/notify"
	"github.com/park285/cheese-wager/internal/rules"
	"github.com/park285/cheese-wager/internal/session"
)

type CreateRequest struct {
	BetID    string
	Identity string
}

type CreateResult struct {
	Session *session.Session
	Side    rules.Side
}

type JoinRequest struct {
	SessionID string
	Identity  string
}

type JoinResult struct {
	Session *session.Session
	Side    rules.Side
	// CreatorConn receives opponentJoined with OpponentIdentity.
	CreatorConn      string
	OpponentIdentity string
	Recipients       []string
}

type MoveRequest struct {
	From      string
	To        string
	Promotion string
}

type MoveResult struct {
	Session    *session.Session
	Move       session.MoveRecord
	Check      bool
	Over       bool
	Recipients []string
}

type ResignResult struct {
	Session    *session.Session
	Recipients []string
}

// DisconnectResult is empty when the connection held no session.
type DisconnectResult struct {
	Session    *session.Session
	Abandoned  bool
	Removed    bool
	Recipients []string
}

// LedgerEventResult names the connections a ledger event concerns.
type LedgerEventResult struct {
	SessionID  string
	Cancelled  bool
	Recipients []string
}

type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Settlement reports the resolution of one ledger declare call.
type Settlement struct {
	SessionID     string
	BetID         string
	Kind          journal.Kind
	WinnerAddress string
	Outcome       Outcome
	TxHash        string
	Err           error
	Recipients    []string
}

// Listener receives settlement completions, off the caller's goroutine.
type Listener interface {
	SettlementResolved(s Settlement)
}

// Journal is the settlement claim log.
type Journal interface {
	Claim(ctx context.Context, rec journal.Record) (bool, error)
	Resolve(ctx context.Context, betID string, out journal.Outcome) error
}

type Archiver interface {
	SaveResult(ctx context.Context, rec archive.Record) error
}

type Alerter interface {
	SettlementFailed(ctx context.Context, a notify.Alert) error
}

type Stats struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Abandoned int `json:"abandoned"`
	Total     int `json:"total"`
}
