package ratelimiter

import "errors"

var (
	// ErrInvalidConfig reports a limiter configuration rejected at construction.
	ErrInvalidConfig = errors.New("invalid rate limiter configuration")

	// ErrEmptyKey reports an empty rate limit key.
	ErrEmptyKey = errors.New("empty rate limit key")

	// ErrStoreUnavailable reports that the counter store could not serve the
	// decision: connection failure, timeout or script error.
	ErrStoreUnavailable = errors.New("counter store unavailable")

	// ErrPoolExhausted reports that no store connection became free within the
	// pool timeout. Treated like ErrStoreUnavailable for decision purposes.
	ErrPoolExhausted = errors.New("connection pool exhausted")
)
