// Package idempotency deduplicates retried checkout requests. A key is
// claimed with SETNX: the first caller wins, replays within the TTL are
// rejected before any stock is touched.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Checker is the port used by the HTTP layer.
type Checker interface {
	// Seen claims the key and reports whether it had already been claimed.
	Seen(ctx context.Context, key string) (bool, error)

	// Release gives a claimed key back, so a checkout that failed (say,
	// insufficient stock) does not burn the key for a legitimate retry.
	Release(ctx context.Context, key string) error
}

const keyPrefix = "idem:orders:"

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, keyPrefix+key, "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency: claim %q: %w", key, err)
	}
	return !ok, nil
}

func (s *Store) Release(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("idempotency: release %q: %w", key, err)
	}
	return nil
}
