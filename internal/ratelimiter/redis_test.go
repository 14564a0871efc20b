package ratelimiter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, opts Options) (*FixedWindowLimiter, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{
		Addr: server.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })

	limiter, err := NewFixedWindowLimiter(client, opts)
	require.NoError(t, err)
	return limiter, server
}

func TestNewFixedWindowLimiter_Validation(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	var tests = []struct {
		name   string
		client *redis.Client
		opts   Options
	}{
		{
			name:   "rejects nil client",
			client: nil,
			opts:   Options{Limit: 10, Window: time.Minute},
		},
		{
			name:   "rejects zero limit",
			client: client,
			opts:   Options{Limit: 0, Window: time.Minute},
		},
		{
			name:   "rejects negative limit",
			client: client,
			opts:   Options{Limit: -1, Window: time.Minute},
		},
		{
			name:   "rejects zero window",
			client: client,
			opts:   Options{Limit: 10, Window: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFixedWindowLimiter(tt.client, tt.opts)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestFixedWindowLimiter_QuickSuccession(t *testing.T) {
	limiter, _ := newTestLimiter(t, Options{Limit: 2, Window: 60 * time.Second})
	ctx := context.Background()

	r1, err := limiter.Allow(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, r1.Allowed)
	assert.Equal(t, int64(1), r1.Remaining)

	r2, err := limiter.Allow(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, r2.Allowed)
	assert.Equal(t, int64(0), r2.Remaining)

	r3, err := limiter.Allow(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, r3.Allowed)
	assert.Equal(t, int64(0), r3.Remaining)
	assert.Greater(t, r3.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, r3.RetryAfter, 60*time.Second)
}

func TestFixedWindowLimiter_RemainingStrictlyDecreases(t *testing.T) {
	limiter, _ := newTestLimiter(t, Options{Limit: 5, Window: time.Minute})
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		res, err := limiter.Allow(ctx, "user")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 5-i, res.Remaining)
	}
}

func TestFixedWindowLimiter_RejectDoesNotIncrement(t *testing.T) {
	limiter, server := newTestLimiter(t, Options{Limit: 1, Window: time.Minute})
	ctx := context.Background()

	res, err := limiter.Allow(ctx, "user")
	require.NoError(t, err)
	require.True(t, res.Allowed)

	for i := 0; i < 3; i++ {
		res, err = limiter.Allow(ctx, "user")
		require.NoError(t, err)
		assert.False(t, res.Allowed)
	}

	count, err := server.Get(DefaultKeyPrefix + "user")
	require.NoError(t, err)
	assert.Equal(t, "1", count)
}

func TestFixedWindowLimiter_WindowResets(t *testing.T) {
	limiter, server := newTestLimiter(t, Options{Limit: 2, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := limiter.Allow(ctx, "user")
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}

	res, err := limiter.Allow(ctx, "user")
	require.NoError(t, err)
	require.False(t, res.Allowed)

	server.FastForward(61 * time.Second)

	res, err = limiter.Allow(ctx, "user")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(1), res.Remaining)
}

func TestFixedWindowLimiter_IncrementKeepsExpiry(t *testing.T) {
	limiter, server := newTestLimiter(t, Options{Limit: 5, Window: time.Minute})
	ctx := context.Background()

	_, err := limiter.Allow(ctx, "user")
	require.NoError(t, err)

	server.FastForward(30 * time.Second)

	_, err = limiter.Allow(ctx, "user")
	require.NoError(t, err)

	// the second increment must not have restarted the window
	assert.Equal(t, 30*time.Second, server.TTL(DefaultKeyPrefix+"user"))
}

func TestFixedWindowLimiter_KeysAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t, Options{Limit: 1, Window: time.Minute})
	ctx := context.Background()

	// hammer key A to exhaustion
	for i := 0; i < 5; i++ {
		_, err := limiter.Allow(ctx, "a")
		require.NoError(t, err)
	}

	res, err := limiter.Allow(ctx, "b")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(0), res.Remaining)
}

func TestFixedWindowLimiter_ConcurrentCallersForSameKey(t *testing.T) {
	const (
		limit   = 5
		callers = 32
	)

	limiter, _ := newTestLimiter(t, Options{Limit: limit, Window: time.Minute})

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		allowed  int
		rejected int
	)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			res, err := limiter.Allow(context.Background(), "shared")
			if !assert.NoError(t, err) {
				return
			}

			mu.Lock()
			defer mu.Unlock()
			if res.Allowed {
				allowed++
			} else {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, limit, allowed)
	assert.Equal(t, callers-limit, rejected)
}

func TestFixedWindowLimiter_EmptyKey(t *testing.T) {
	limiter, _ := newTestLimiter(t, Options{Limit: 1, Window: time.Minute})

	_, err := limiter.Allow(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestFixedWindowLimiter_StoreUnavailable(t *testing.T) {
	limiter, server := newTestLimiter(t, Options{
		Limit:   1,
		Window:  time.Minute,
		Timeout: 200 * time.Millisecond,
	})
	server.Close()

	_, err := limiter.Allow(context.Background(), "user")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
