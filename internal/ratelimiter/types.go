package ratelimiter

import (
	"context"
	"time"
)

const (
	// DefaultKeyPrefix namespaces counter keys in the store.
	DefaultKeyPrefix = "ratelimit:"

	// DefaultTimeout bounds a single store call, covering both the wait for a
	// pooled connection and the script round trip.
	DefaultTimeout = 2 * time.Second
)

// Options defines the configuration for a limiter. Limit and Window are
// validated when the limiter is built, so a bad configuration surfaces at
// startup and never at request time.
type Options struct {
	// Limit is the maximum number of requests allowed per window. Must be >= 1.
	Limit int64
	// Window is the fixed window length. Must be > 0.
	Window time.Duration
	// KeyPrefix namespaces counter keys. Defaults to DefaultKeyPrefix.
	KeyPrefix string
	// Timeout bounds each store call. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// Result is the admission decision for a single request.
type Result struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	// Reset is when the current window ends and the counter starts over.
	Reset time.Time
	// RetryAfter is how long the caller should wait before retrying. Only
	// meaningful when Allowed is false.
	RetryAfter time.Duration
}

// Limiter decides whether a request identified by key may proceed right now.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}
