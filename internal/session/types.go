package session

import (
	"time"

	"github.com/park285/cheese-wager/internal/rules"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
	StatusCancelled Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusWaiting: {StatusActive, StatusCancelled},
	StatusActive:  {StatusCompleted, StatusAbandoned},
}

// CanTransition reports whether from→to is an edge of the lifecycle.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned || s == StatusCancelled
}

// Winner is empty until the session completes.
type Winner string

const (
	WinnerNone  Winner = ""
	WinnerWhite Winner = "white"
	WinnerBlack Winner = "black"
	WinnerDraw  Winner = "draw"
)

// WinnerFor maps a side to its Winner value.
func WinnerFor(s rules.Side) Winner {
	if s == rules.White {
		return WinnerWhite
	}
	return WinnerBlack
}

type Reason string

const (
	ReasonNone        Reason = ""
	ReasonCheckmate   Reason = "checkmate"
	ReasonDrawRule    Reason = "draw-rule"
	ReasonResignation Reason = "resignation"
	ReasonAbandonment Reason = "abandonment"
)

// MoveRecord is one applied half-move.
type MoveRecord struct {
	Ply       int       `json:"ply"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	SAN       string    `json:"san"`
	UCI       string    `json:"uci"`
	Captured  string    `json:"captured,omitempty"`
	Promotion string    `json:"promotion,omitempty"`
	At        time.Time `json:"at"`
}

// Slot is one participant seat. Slot 0 is always white.
type Slot struct {
	ConnID   string     `json:"-"`
	Identity string     `json:"identity,omitempty"`
	Side     rules.Side `json:"side"`
}

func (s Slot) Occupied() bool { return s.ConnID != "" }

// SettlementState tracks the single settlement dispatch of a session.
type SettlementState string

const (
	SettlementNone       SettlementState = ""
	SettlementDispatched SettlementState = "dispatched"
	SettlementConfirmed  SettlementState = "confirmed"
	SettlementSkipped    SettlementState = "skipped"
	SettlementFailed     SettlementState = "failed"
)

type Session struct {
	ID       string
	BetID    string
	GameHash string

	Game  *rules.Game
	Moves []MoveRecord
	Slots [2]Slot

	Status      Status
	Winner      Winner
	Reason      Reason
	StartedAt   time.Time
	EndedAt     *time.Time
	AbandonedAt *time.Time

	Settlement SettlementState
}

// New returns a waiting session with the creator seated as white.
func New(id, betID, connID, identity string, now time.Time) *Session {
	return &Session{
		ID:        id,
		BetID:     betID,
		Game:      rules.NewGame(),
		Moves:     []MoveRecord{},
		Status:    StatusWaiting,
		StartedAt: now,
		Slots: [2]Slot{
			{ConnID: connID, Identity: identity, Side: rules.White},
			{Side: rules.Black},
		},
	}
}

// SlotFor returns the index of the slot holding connID, or -1.
func (s *Session) SlotFor(connID string) int {
	if connID == "" {
		return -1
	}
	for i := range s.Slots {
		if s.Slots[i].ConnID == connID {
			return i
		}
	}
	return -1
}

// SlotForSide returns the slot index playing side.
func (s *Session) SlotForSide(side rules.Side) int {
	if side == rules.White {
		return 0
	}
	return 1
}

// Transition moves the session along a lifecycle edge.
func (s *Session) Transition(to Status) bool {
	if !CanTransition(s.Status, to) {
		return false
	}
	s.Status = to
	return true
}

// Complete records a final result; it is the only way into StatusCompleted.
func (s *Session) Complete(w Winner, r Reason, at time.Time) bool {
	if !s.Transition(StatusCompleted) {
		return false
	}
	s.Winner = w
	s.Reason = r
	s.EndedAt = &at
	return true
}

// Clone returns a copy safe to hand outside the store lock.
// The rules game is immutable and shared.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Moves = append([]MoveRecord(nil), s.Moves...)
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	if s.AbandonedAt != nil {
		t := *s.AbandonedAt
		c.AbandonedAt = &t
	}
	return &c
}

// Connections lists occupied slot connection ids.
func (s *Session) Connections() []string {
	var out []string
	for _, sl := range s.Slots {
		if sl.ConnID != "" {
			out = append(out, sl.ConnID)
		}
	}
	return out
}

// UCIMoves returns the move list in UCI form.
func (s *Session) UCIMoves() []string {
	out := make([]string, 0, len(s.Moves))
	for _, m := range s.Moves {
		out = append(out, m.UCI)
	}
	return out
}

// SANMoves returns the move list in SAN form.
func (s *Session) SANMoves() []string {
	out := make([]string, 0, len(s.Moves))
	for _, m := range s.Moves {
		out = append(out, m.SAN)
	}
	return out
}
