package ledger

import (
	"context"
	"math/big"
	"strings"
	"time"
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

var (
	ErrBetNotFound = staticErr("bet not found")
	ErrDisabled    = staticErr("blockchain integration disabled")
	ErrBadBetID    = staticErr("bet id must be a non-negative integer")
	ErrBadAddress  = staticErr("invalid address")
	ErrReverted    = staticErr("transaction reverted")
)

// BetStatus mirrors the contract's BetStatus enum.
type BetStatus uint8

const (
	BetCreated BetStatus = iota // waiting for the second player
	BetActive
	BetCompleted
	BetCancelled
	BetDisputed
	BetDraw
)

func (s BetStatus) String() string {
	switch s {
	case BetCreated:
		return "created"
	case BetActive:
		return "active"
	case BetCompleted:
		return "completed"
	case BetCancelled:
		return "cancelled"
	case BetDisputed:
		return "disputed"
	case BetDraw:
		return "draw"
	default:
		return "unknown"
	}
}

// Joinable reports whether a match may still be played for the bet.
func (s BetStatus) Joinable() bool { return s == BetCreated || s == BetActive }

// GameResult mirrors the contract's GameResult enum.
type GameResult uint8

const (
	ResultPending GameResult = iota
	ResultPlayer1Wins
	ResultPlayer2Wins
	ResultDraw
)

func (r GameResult) String() string {
	switch r {
	case ResultPending:
		return "pending"
	case ResultPlayer1Wins:
		return "player1"
	case ResultPlayer2Wins:
		return "player2"
	case ResultDraw:
		return "draw"
	default:
		return "unknown"
	}
}

// Bet is the escrow record as read from the contract.
type Bet struct {
	ID          string     `json:"betId"`
	Player1     string     `json:"player1"`
	Player2     string     `json:"player2"`
	Amount      *big.Int   `json:"-"`
	AmountEther string     `json:"amount"`
	Winner      string     `json:"winner"`
	Status      BetStatus  `json:"-"`
	StatusName  string     `json:"status"`
	Result      GameResult `json:"-"`
	ResultName  string     `json:"result"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	GameHash    string     `json:"gameHash"`
	Expired     bool       `json:"expired"`
}

// IsParticipant compares addresses case-insensitively.
func (b *Bet) IsParticipant(address string) bool {
	a := strings.TrimSpace(address)
	if a == "" || b == nil {
		return false
	}
	return strings.EqualFold(a, b.Player1) || (b.Player2 != zeroAddress && strings.EqualFold(a, b.Player2))
}

type PlayerStats struct {
	Address    string `json:"address"`
	Wins       uint64 `json:"wins"`
	Losses     uint64 `json:"losses"`
	Draws      uint64 `json:"draws"`
	TotalGames uint64 `json:"totalGames"`
}

type ChainStatus struct {
	Enabled    bool   `json:"enabled"`
	TotalBets  uint64 `json:"totalBets"`
	ActiveBets uint64 `json:"activeBets"`
	ChainID    string `json:"chainId,omitempty"`
	Block      uint64 `json:"block,omitempty"`
	Contract   string `json:"contract,omitempty"`
}

// Receipt confirms a settlement transaction. Skipped is set in offline mode.
type Receipt struct {
	TxHash  string `json:"txHash,omitempty"`
	Block   uint64 `json:"block,omitempty"`
	GasUsed uint64 `json:"gasUsed,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
}

// Client is the ledger surface the coordinator depends on.
type Client interface {
	Enabled() bool
	GetBet(ctx context.Context, betID string) (*Bet, error)
	DeclareWinner(ctx context.Context, betID, winner string) (*Receipt, error)
	DeclareDraw(ctx context.Context, betID string) (*Receipt, error)
}

// Reader is the query surface used by the Read API.
type Reader interface {
	Enabled() bool
	GetBet(ctx context.Context, betID string) (*Bet, error)
	PlayerStats(ctx context.Context, address string) (*PlayerStats, error)
	Status(ctx context.Context) (*ChainStatus, error)
	AvailableBets(ctx context.Context, limit int) ([]*Bet, error)
}

// EventKind names a contract event.
type EventKind string

const (
	EventBetCreated   EventKind = "BetCreated"
	EventBetJoined    EventKind = "BetJoined"
	EventBetCompleted EventKind = "BetCompleted"
	EventDrawDeclared EventKind = "DrawDeclared"
	EventBetCancelled EventKind = "BetCancelled"
)

// Event is a decoded contract log. Address is the creator, joiner, winner or
// canceller depending on Kind; Amount is the amount, pool, payout or refund.
type Event struct {
	Kind     EventKind  `json:"kind"`
	BetID    string     `json:"betId"`
	Address  string     `json:"address,omitempty"`
	Amount   string     `json:"amount,omitempty"`
	Result   GameResult `json:"-"`
	GameHash string     `json:"gameHash,omitempty"`
	Block    uint64     `json:"block"`
	TxHash   string     `json:"txHash"`
	LogIndex uint       `json:"logIndex"`
}
