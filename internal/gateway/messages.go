package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/park285/cheese-wager/internal/ledger"
	"github.com/park285/cheese-wager/internal/rules"
	"github.com/park285/cheese-wager/internal/session"
)

// Envelope is the frame used in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

const (
	EventCreateSession = "createSession"
	EventJoinSession   = "joinSession"
	EventMove          = "move"
	EventResign        = "resign"

	EventSessionCreated       = "sessionCreated"
	EventSessionJoined        = "sessionJoined"
	EventOpponentJoined       = "opponentJoined"
	EventSessionStarted       = "sessionStarted"
	EventMoveApplied          = "moveApplied"
	EventCheck                = "check"
	EventSessionOver          = "sessionOver"
	EventSettlementResult     = "settlementResult"
	EventSettlementFailed     = "settlementFailed"
	EventIllegalMove          = "illegalMove"
	EventErrorNotice          = "errorNotice"
	EventOpponentDisconnected = "opponentDisconnected"
	EventLedger               = "ledgerEvent"
)

type CreateSessionIn struct {
	BetID            string `json:"betId,omitempty"`
	ExternalIdentity string `json:"externalIdentity,omitempty"`
}

// UnmarshalJSON accepts betId as a decimal string or a JSON number.
func (in *CreateSessionIn) UnmarshalJSON(b []byte) error {
	var raw struct {
		BetID            json.RawMessage `json:"betId"`
		ExternalIdentity string          `json:"externalIdentity"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	in.BetID, in.ExternalIdentity = "", raw.ExternalIdentity
	id := bytes.TrimSpace(raw.BetID)
	switch {
	case len(id) == 0 || string(id) == "null":
		return nil
	case id[0] == '"':
		return json.Unmarshal(id, &in.BetID)
	default:
		var n json.Number
		if err := json.Unmarshal(id, &n); err != nil {
			return fmt.Errorf("betId must be a string or a number")
		}
		in.BetID = n.String()
		return nil
	}
}

func (in *CreateSessionIn) validate() error {
	in.BetID = strings.TrimSpace(in.BetID)
	in.ExternalIdentity = strings.TrimSpace(in.ExternalIdentity)
	if in.BetID != "" {
		id, err := ledger.CanonicalBetID(in.BetID)
		if err != nil {
			return fmt.Errorf("betId must be a non-negative integer")
		}
		in.BetID = id
	}
	return validIdentity(in.ExternalIdentity)
}

type JoinSessionIn struct {
	SessionID        string `json:"sessionId"`
	ExternalIdentity string `json:"externalIdentity,omitempty"`
}

func (in *JoinSessionIn) validate() error {
	in.SessionID = strings.TrimSpace(in.SessionID)
	in.ExternalIdentity = strings.TrimSpace(in.ExternalIdentity)
	if in.SessionID == "" || len(in.SessionID) > 128 {
		return fmt.Errorf("sessionId is required")
	}
	return validIdentity(in.ExternalIdentity)
}

type MoveIn struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

func (in *MoveIn) validate() error {
	in.From = strings.ToLower(strings.TrimSpace(in.From))
	in.To = strings.ToLower(strings.TrimSpace(in.To))
	in.Promotion = strings.ToLower(strings.TrimSpace(in.Promotion))
	if !rules.ValidSquare(in.From) || !rules.ValidSquare(in.To) {
		return fmt.Errorf("from and to must be squares like e2")
	}
	switch in.Promotion {
	case "", "q", "r", "b", "n":
	default:
		return fmt.Errorf("promotion must be one of q, r, b, n")
	}
	return nil
}

func validIdentity(id string) error {
	if id != "" && !ledger.ValidAddress(id) {
		return fmt.Errorf("externalIdentity must be a 0x-prefixed address")
	}
	return nil
}

type SessionCreatedOut struct {
	SessionID string     `json:"sessionId"`
	Side      rules.Side `json:"side"`
	Position  string     `json:"position"`
	Status    string     `json:"status"`
	BetID     string     `json:"betId,omitempty"`
}

type OpponentJoinedOut struct {
	OpponentIdentity string `json:"opponentIdentity,omitempty"`
}

type SessionStartedOut struct {
	SessionID string `json:"sessionId"`
	BetID     string `json:"betId,omitempty"`
	Position  string `json:"position"`
}

type MoveAppliedOut struct {
	SessionID string             `json:"sessionId"`
	Move      session.MoveRecord `json:"move"`
	Position  string             `json:"position"`
	Turn      rules.Side         `json:"turn"`
}

type CheckOut struct {
	SessionID string `json:"sessionId"`
}

type SessionOverOut struct {
	SessionID  string  `json:"sessionId"`
	WinnerSide *string `json:"winnerSide"`
	Reason     string  `json:"reason"`
	BetID      string  `json:"betId,omitempty"`
}

type SettlementResultOut struct {
	BetID         string `json:"betId"`
	SessionID     string `json:"sessionId"`
	WinnerAddress string `json:"winnerAddress,omitempty"`
	Outcome       string `json:"outcome"`
	TxHash        string `json:"txHash,omitempty"`
}

type SettlementFailedOut struct {
	BetID   string `json:"betId"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

type IllegalMoveOut struct {
	AttemptedMove MoveIn `json:"attemptedMove"`
	Message       string `json:"message"`
}

type ErrorNoticeOut struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type OpponentDisconnectedOut struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type LedgerEventOut struct {
	SessionID string `json:"sessionId,omitempty"`
	Cancelled bool   `json:"cancelled,omitempty"`
	ledger.Event
	Result string `json:"result,omitempty"`
}

func sessionOver(s *session.Session) SessionOverOut {
	out := SessionOverOut{SessionID: s.ID, Reason: string(s.Reason), BetID: s.BetID}
	if s.Winner == session.WinnerWhite || s.Winner == session.WinnerBlack {
		w := string(s.Winner)
		out.WinnerSide = &w
	}
	return out
}
