package ratelimiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store executes the atomic increment-with-expiry against Redis. It owns no
// counter state of its own; every counter lives in the store and is addressed
// purely by key, which is what keeps the limit correct across processes
// sharing one Redis.
//
// The client's connection pool handles concurrent callers: each Execute
// borrows a connection for the duration of one call and returns it whether
// the call succeeded or not.
type Store struct {
	client *redis.Client
	script *redis.Script
}

// NewStore wraps a Redis client with the fixed-window script.
func NewStore(client *redis.Client) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil: %w", ErrInvalidConfig)
	}
	return &Store{
		client: client,
		script: redis.NewScript(fixedWindowLua),
	}, nil
}

// Execute runs the scripted transaction for key in a single round trip
// (EVALSHA with a transparent EVAL fallback) and reports whether the request
// was admitted, the post-operation count and the window's remaining TTL.
func (s *Store) Execute(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, time.Duration, error) {
	values, err := s.script.Run(ctx, s.client, []string{key}, limit, window.Milliseconds()).Int64Slice()
	if err != nil {
		return false, 0, 0, classify(err)
	}
	if len(values) != 3 {
		return false, 0, 0, fmt.Errorf("%w: unexpected script reply %v", ErrStoreUnavailable, values)
	}
	return values[0] == 1, values[1], time.Duration(values[2]) * time.Millisecond, nil
}

// classify maps transport failures onto the error taxonomy callers switch on.
func classify(err error) error {
	if errors.Is(err, redis.ErrPoolTimeout) {
		return fmt.Errorf("%w: %v", ErrPoolExhausted, err)
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
