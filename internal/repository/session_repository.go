package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"comerse-go/internal/model"

	"github.com/go-redis/redis/v8"
)

// SessionRepository stores chat sessions as append-only per-turn logs in
// Redis, keyed by (tenant, sessionID). The current session is a fold over
// the log; entries are never rewritten, so concurrent turns in the same
// session cannot overwrite each other.
type SessionRepository interface {
	Append(ctx context.Context, tenantID uint, sessionID string, entries []model.SessionEntry) error
	// History returns up to limit most recent entries in log order, with
	// sequence numbers assigned from their position in the log.
	History(ctx context.Context, tenantID uint, sessionID string, limit int) ([]model.SessionEntry, error)
	// EnsureExpiry re-applies the retention TTL to any session log that
	// lost it. Run periodically.
	EnsureExpiry(ctx context.Context) (int, error)
}

type redisSessionRepository struct {
	rdb       *redis.Client
	retention time.Duration
}

// NewSessionRepository creates a Redis-backed SessionRepository with the
// given retention window.
func NewSessionRepository(rdb *redis.Client, retention time.Duration) SessionRepository {
	return &redisSessionRepository{rdb: rdb, retention: retention}
}

func sessionLogKey(tenantID uint, sessionID string) string {
	return fmt.Sprintf("session:%d:%s", tenantID, sessionID)
}

func (r *redisSessionRepository) Append(ctx context.Context, tenantID uint, sessionID string, entries []model.SessionEntry) error {
	key := sessionLogKey(tenantID, sessionID)

	values := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal session entry: %w", err)
		}
		values = append(values, data)
	}

	pipe := r.rdb.Pipeline()
	pipe.RPush(ctx, key, values...)
	pipe.Expire(ctx, key, r.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append session entries: %w", err)
	}
	return nil
}

func (r *redisSessionRepository) History(ctx context.Context, tenantID uint, sessionID string, limit int) ([]model.SessionEntry, error) {
	key := sessionLogKey(tenantID, sessionID)

	total, err := r.rdb.LLen(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read session log length: %w", err)
	}
	if total == 0 {
		return []model.SessionEntry{}, nil
	}

	raw, err := r.rdb.LRange(ctx, key, int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read session log: %w", err)
	}

	base := total - int64(len(raw))
	entries := make([]model.SessionEntry, 0, len(raw))
	for i, item := range raw {
		var e model.SessionEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session entry: %w", err)
		}
		e.Seq = base + int64(i)
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *redisSessionRepository) EnsureExpiry(ctx context.Context) (int, error) {
	keys, err := r.rdb.Keys(ctx, "session:*").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to scan session keys: %w", err)
	}

	touched := 0
	for _, key := range keys {
		ttl, err := r.rdb.TTL(ctx, key).Result()
		if err != nil {
			continue
		}
		if ttl < 0 {
			if err := r.rdb.Expire(ctx, key, r.retention).Err(); err == nil {
				touched++
			}
		}
	}
	return touched, nil
}
