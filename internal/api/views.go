package api

import (
	"time"

	"github.com/park285/cheese-wager/internal/rules"
	"github.com/park285/cheese-wager/internal/session"
)

type gameSummary struct {
	GameID    string         `json:"gameId"`
	BetID     string         `json:"betId,omitempty"`
	Status    session.Status `json:"status"`
	Player1   string         `json:"player1,omitempty"`
	Player2   string         `json:"player2,omitempty"`
	Moves     int            `json:"moves"`
	StartTime time.Time      `json:"startTime"`
}

type gameDetail struct {
	GameID      string                  `json:"gameId"`
	BetID       string                  `json:"betId,omitempty"`
	GameHash    string                  `json:"gameHash,omitempty"`
	Status      session.Status          `json:"status"`
	Player1     string                  `json:"player1,omitempty"`
	Player2     string                  `json:"player2,omitempty"`
	Moves       []session.MoveRecord    `json:"moves"`
	FEN         string                  `json:"fen"`
	Turn        rules.Side              `json:"turn"`
	Winner      session.Winner          `json:"winner,omitempty"`
	Reason      session.Reason          `json:"reason,omitempty"`
	StartTime   time.Time               `json:"startTime"`
	EndTime     *time.Time              `json:"endTime,omitempty"`
	AbandonedAt *time.Time              `json:"abandonedAt,omitempty"`
	Settlement  session.SettlementState `json:"settlement,omitempty"`
}

func summarize(s *session.Session) gameSummary {
	return gameSummary{
		GameID:    s.ID,
		BetID:     s.BetID,
		Status:    s.Status,
		Player1:   s.Slots[0].Identity,
		Player2:   s.Slots[1].Identity,
		Moves:     len(s.Moves),
		StartTime: s.StartedAt,
	}
}

func detail(s *session.Session) gameDetail {
	moves := s.Moves
	if moves == nil {
		moves = []session.MoveRecord{}
	}
	return gameDetail{
		GameID:      s.ID,
		BetID:       s.BetID,
		GameHash:    s.GameHash,
		Status:      s.Status,
		Player1:     s.Slots[0].Identity,
		Player2:     s.Slots[1].Identity,
		Moves:       moves,
		FEN:         s.Game.FEN(),
		Turn:        s.Game.Turn(),
		Winner:      s.Winner,
		Reason:      s.Reason,
		StartTime:   s.StartedAt,
		EndTime:     s.EndedAt,
		AbandonedAt: s.AbandonedAt,
		Settlement:  s.Settlement,
	}
}
