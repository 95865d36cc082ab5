package coordinator

import "errors"

type staticErr string

func (e staticErr) Error() string { return string(e) }

var (
	ErrSessionAlreadyExists = staticErr("session already exists")
	ErrBetNotFound          = staticErr("bet not found")
	ErrBetNotActive         = staticErr("bet is not active")
	ErrNotBetParticipant    = staticErr("not a participant in this bet")
	ErrSessionNotFound      = staticErr("session not found")
	ErrSessionFull          = staticErr("session is full")
	ErrSessionNotJoinable   = staticErr("session is not joinable")
	ErrCannotJoinOwnSession = staticErr("cannot join own session")
	ErrAlreadyInSession     = staticErr("connection already in a live session")
	ErrNotInSession         = staticErr("connection is not in a session")
	ErrSessionNotActive     = staticErr("session is not active")
	ErrNotYourTurn          = staticErr("not your turn")
	ErrIllegalMove          = staticErr("illegal move")
	ErrLedgerUnavailable    = staticErr("ledger unavailable")
	ErrInvalidRequest       = staticErr("invalid request")

	ErrWinnerAddressUnknown = staticErr("winner has no ledger address")
	ErrSettlementClaimed    = staticErr("settlement already claimed for this bet")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrSessionAlreadyExists, "session_already_exists"},
	{ErrBetNotFound, "bet_not_found"},
	{ErrBetNotActive, "bet_not_active"},
	{ErrNotBetParticipant, "not_bet_participant"},
	{ErrSessionNotFound, "session_not_found"},
	{ErrSessionFull, "session_full"},
	{ErrSessionNotJoinable, "session_not_joinable"},
	{ErrCannotJoinOwnSession, "cannot_join_own"},
	{ErrAlreadyInSession, "already_in_session"},
	{ErrNotInSession, "not_in_session"},
	{ErrSessionNotActive, "session_not_active"},
	{ErrNotYourTurn, "not_your_turn"},
	{ErrIllegalMove, "illegal_move"},
	{ErrLedgerUnavailable, "ledger_unavailable"},
	{ErrInvalidRequest, "invalid_request"},
	{ErrSettlementClaimed, "settlement_claimed"},
}

// Code returns the stable wire code for a coordinator error, "internal" otherwise.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}
