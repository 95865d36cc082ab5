package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/cheese-wager/internal/session"
)

// Record is a finished or abandoned match as stored in wager_games.
type Record struct {
	GameID    string
	BetID     string
	GameHash  string
	White     string
	Black     string
	Status    session.Status
	Result    string // white | black | draw | "" (abandoned)
	Reason    session.Reason
	MovesUCI  []string
	MovesSAN  []string
	StartedAt time.Time
	EndedAt   time.Time
}

// FromSession builds the archive row for a terminal session.
func FromSession(s *session.Session) Record {
	rec := Record{
		GameID:    s.ID,
		BetID:     s.BetID,
		GameHash:  s.GameHash,
		White:     s.Slots[0].Identity,
		Black:     s.Slots[1].Identity,
		Status:    s.Status,
		Result:    string(s.Winner),
		Reason:    s.Reason,
		MovesUCI:  s.UCIMoves(),
		MovesSAN:  s.SANMoves(),
		StartedAt: s.StartedAt,
	}
	switch {
	case s.EndedAt != nil:
		rec.EndedAt = *s.EndedAt
	case s.AbandonedAt != nil:
		rec.EndedAt = *s.AbandonedAt
		rec.Reason = session.ReasonAbandonment
	}
	return rec
}

const schema = `CREATE TABLE IF NOT EXISTS wager_games (
	game_id     TEXT PRIMARY KEY,
	bet_id      TEXT,
	game_hash   TEXT,
	white_addr  TEXT,
	black_addr  TEXT,
	status      TEXT NOT NULL,
	result      TEXT,
	reason      TEXT,
	moves_uci   JSONB NOT NULL DEFAULT '[]',
	moves_san   JSONB NOT NULL DEFAULT '[]',
	pgn         TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	ended_at    TIMESTAMPTZ,
	duration_ms BIGINT NOT NULL DEFAULT 0
)`

type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return nil
	}
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// SaveResult upserts rec; a nil repository is a no-op.
func (r *Repository) SaveResult(ctx context.Context, rec Record) error {
	if r == nil || r.db == nil {
		return nil
	}
	uciRaw, _ := json.Marshal(nonNil(rec.MovesUCI))
	sanRaw, _ := json.Marshal(nonNil(rec.MovesSAN))
	var ended any
	duration := int64(0)
	if !rec.EndedAt.IsZero() {
		ended = rec.EndedAt
		if d := rec.EndedAt.Sub(rec.StartedAt).Milliseconds(); d > 0 {
			duration = d
		}
	}

	q := `INSERT INTO wager_games (
		game_id, bet_id, game_hash, white_addr, black_addr,
		status, result, reason, moves_uci, moves_san, pgn,
		started_at, ended_at, duration_ms
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
	) ON CONFLICT (game_id) DO UPDATE SET
		bet_id=EXCLUDED.bet_id,
		game_hash=EXCLUDED.game_hash,
		white_addr=EXCLUDED.white_addr,
		black_addr=EXCLUDED.black_addr,
		status=EXCLUDED.status,
		result=EXCLUDED.result,
		reason=EXCLUDED.reason,
		moves_uci=EXCLUDED.moves_uci,
		moves_san=EXCLUDED.moves_san,
		pgn=EXCLUDED.pgn,
		started_at=EXCLUDED.started_at,
		ended_at=EXCLUDED.ended_at,
		duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		rec.GameID, nullable(rec.BetID), nullable(rec.GameHash),
		nullable(rec.White), nullable(rec.Black),
		string(rec.Status), nullable(rec.Result), nullable(string(rec.Reason)),
		string(uciRaw), string(sanRaw), BuildPGN(rec),
		rec.StartedAt, ended, duration,
	)
	return err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullable(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
