package ratelimiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"redis-rate-limiter/internal/log"
)

// FixedWindowLimiter meters each key with a fixed-window counter kept in a
// shared Redis store. The check and the increment happen in one server-side
// script, so concurrent callers for the same key are totally ordered and can
// never act on a stale count.
type FixedWindowLimiter struct {
	store   *Store
	limit   int64
	window  time.Duration
	prefix  string
	timeout time.Duration
	timeNow func() time.Time
}

var _ Limiter = (*FixedWindowLimiter)(nil)

// NewFixedWindowLimiter validates opts and builds a limiter on top of client.
// Configuration problems are reported here, never at request time.
func NewFixedWindowLimiter(client *redis.Client, opts Options) (*FixedWindowLimiter, error) {
	store, err := NewStore(client)
	if err != nil {
		return nil, err
	}
	if opts.Limit < 1 {
		return nil, fmt.Errorf("limit must be >= 1: %w", ErrInvalidConfig)
	}
	if opts.Window <= 0 {
		return nil, fmt.Errorf("window must be positive: %w", ErrInvalidConfig)
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	return &FixedWindowLimiter{
		store:   store,
		limit:   opts.Limit,
		window:  opts.Window,
		prefix:  opts.KeyPrefix,
		timeout: opts.Timeout,
		timeNow: time.Now,
	}, nil
}

// Allow consumes one slot for key and reports the decision. The store call is
// bounded by the configured timeout; if the downstream request is cancelled
// mid-call the increment still lands server-side and stays counted, since a
// compensating decrement would reopen the race the script exists to close.
//
// Store failures are returned as ErrStoreUnavailable or ErrPoolExhausted for
// the caller to convert per its fail-open or fail-closed policy; the limiter
// itself never picks one.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) (Result, error) {
	if key == "" {
		return Result{}, ErrEmptyKey
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	allowed, count, ttl, err := l.store.Execute(ctx, l.prefix+key, l.limit, l.window)
	if err != nil {
		log.Logger().Error("Failed to execute increment for key",
			zap.String("key", key), zap.Error(err))
		return Result{}, err
	}

	if ttl <= 0 || ttl > l.window {
		ttl = l.window
	}

	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}

	res := Result{
		Allowed:   allowed,
		Limit:     l.limit,
		Remaining: remaining,
		Reset:     l.timeNow().Add(ttl),
	}
	if !allowed {
		res.RetryAfter = ttl
	}
	return res, nil
}

// Window returns the configured window length.
func (l *FixedWindowLimiter) Window() time.Duration { return l.window }

// Limit returns the configured ceiling.
func (l *FixedWindowLimiter) Limit() int64 { return l.limit }
