package journal

import (
	"context"
	"strings"
	"time"
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

var (
	ErrNotFound   = staticErr("settlement record not found")
	ErrNotClaimed = staticErr("settlement was never claimed")
)

type State string

const (
	StatePending   State = "pending"
	StateConfirmed State = "confirmed"
	StateSkipped   State = "skipped"
	StateFailed    State = "failed"
)

type Kind string

const (
	KindWinner Kind = "winner"
	KindDraw   Kind = "draw"
)

// Record is one settlement attempt for a bet.
type Record struct {
	BetID      string     `json:"betId"`
	SessionID  string     `json:"sessionId"`
	Kind       Kind       `json:"kind"`
	Winner     string     `json:"winner,omitempty"`
	State      State      `json:"state"`
	TxHash     string     `json:"txHash,omitempty"`
	Error      string     `json:"error,omitempty"`
	ClaimedAt  time.Time  `json:"claimedAt"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// Outcome is what Resolve writes back.
type Outcome struct {
	State  State
	TxHash string
	Error  string
}

// Journal records settlement claims so a bet is declared at most once,
// and stores the ledger poller cursor.
type Journal interface {
	// Claim stores rec as pending; false means the bet was already claimed.
	Claim(ctx context.Context, rec Record) (bool, error)
	Resolve(ctx context.Context, betID string, out Outcome) error
	Get(ctx context.Context, betID string) (*Record, error)
	LoadCursor(ctx context.Context) (uint64, bool, error)
	SaveCursor(ctx context.Context, block uint64) error
	Close() error
}

// Open returns a redis journal for a non-empty URL and a memory journal otherwise.
func Open(ctx context.Context, redisURL string) (Journal, error) {
	if strings.TrimSpace(redisURL) == "" {
		return NewMemory(), nil
	}
	return NewRedisFromURL(ctx, redisURL)
}
