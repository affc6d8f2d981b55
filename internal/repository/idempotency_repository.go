package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// IdempotencyStore hands out one-shot markers so a retried recorder task
// skips writes that already succeeded. Markers expire after the configured
// window; within it, Acquire returns true exactly once per key.
type IdempotencyStore interface {
	Acquire(ctx context.Context, key string) (bool, error)
	// Release drops a marker so the write can be retried after a failure
	// that happened between acquiring and committing.
	Release(ctx context.Context, key string) error
}

type redisIdempotencyStore struct {
	rdb    *redis.Client
	window time.Duration
}

// NewIdempotencyStore creates a Redis-backed IdempotencyStore.
func NewIdempotencyStore(rdb *redis.Client, window time.Duration) IdempotencyStore {
	return &redisIdempotencyStore{rdb: rdb, window: window}
}

func markerKey(key string) string {
	return fmt.Sprintf("turn:%s", key)
}

func (s *redisIdempotencyStore) Acquire(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, markerKey(key), 1, s.window).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire idempotency marker: %w", err)
	}
	return ok, nil
}

func (s *redisIdempotencyStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, markerKey(key)).Err()
}
