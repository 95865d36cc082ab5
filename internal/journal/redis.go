package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	ttlRecord = 30 * 24 * time.Hour
	keyPrefix = "wager:"
)

type Redis struct{ rdb *redis.Client }

func NewRedis(rdb *redis.Client) *Redis { return &Redis{rdb: rdb} }

// NewRedisFromURL dials and pings redis.
func NewRedisFromURL(ctx context.Context, raw string) (*Redis, error) {
	opts, err := parseRedisURL(raw)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{rdb: rdb}, nil
}

func (r *Redis) keySettle(betID string) string { return keyPrefix + "settle:" + strings.TrimSpace(betID) }
func (r *Redis) keyCursor() string             { return keyPrefix + "ledger:cursor" }

func (r *Redis) Claim(ctx context.Context, rec Record) (bool, error) {
	rec.State = StatePending
	if rec.ClaimedAt.IsZero() {
		rec.ClaimedAt = time.Now()
	}
	raw, err := json.Marshal(&rec)
	if err != nil {
		return false, err
	}
	return r.rdb.SetNX(ctx, r.keySettle(rec.BetID), raw, ttlRecord).Result()
}

// Resolve updates the record under WATCH so a concurrent writer cannot interleave.
func (r *Redis) Resolve(ctx context.Context, betID string, out Outcome) error {
	key := r.keySettle(betID)
	return r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotClaimed
		}
		if err != nil {
			return err
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		now := time.Now()
		rec.State = out.State
		rec.TxHash = out.TxHash
		rec.Error = out.Error
		rec.ResolvedAt = &now
		next, err := json.Marshal(&rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, ttlRecord)
			return nil
		})
		return err
	}, key)
}

func (r *Redis) Get(ctx context.Context, betID string) (*Record, error) {
	raw, err := r.rdb.Get(ctx, r.keySettle(betID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *Redis) LoadCursor(ctx context.Context) (uint64, bool, error) {
	v, err := r.rdb.Get(ctx, r.keyCursor()).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func (r *Redis) SaveCursor(ctx context.Context, block uint64) error {
	return r.rdb.Set(ctx, r.keyCursor(), strconv.FormatUint(block, 10), 0).Err()
}

func (r *Redis) Close() error {
	if r == nil || r.rdb == nil {
		return nil
	}
	return r.rdb.Close()
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("redis db %q: %w", p, err)
		}
		db = n
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Username: u.User.Username(), Password: pass, DB: db}, nil
}
