package ginmiddleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"redis-rate-limiter/internal/log"
	"redis-rate-limiter/internal/ratelimiter"
)

// KeyFunc resolves the rate-limiting key from the request. ok == false means
// the request bypasses rate limiting.
type KeyFunc func(c *gin.Context) (key string, ok bool)

// Options configure the gin middleware behavior.
type Options struct {
	// KeyHeader is the header DefaultKeyFunc tries first.
	KeyHeader string
	// FailOpen forwards requests when the counter store cannot serve a
	// decision; the default (false) rejects them.
	FailOpen bool
	// RetryAfter is the hint sent when a store failure is converted into a
	// rejection. Defaults to 1s.
	RetryAfter time.Duration
}

// RateLimiter enforces rate limits for incoming gin requests, mirroring the
// net/http handler: bypass without a key, headers on both outcomes, 429 on
// deny, store errors converted per the fail policy.
func RateLimiter(limiter ratelimiter.Limiter, keyFunc KeyFunc, opts Options) gin.HandlerFunc {
	if keyFunc == nil {
		keyFunc = DefaultKeyFunc(opts.KeyHeader)
	}
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = time.Second
	}

	return func(c *gin.Context) {
		key, ok := keyFunc(c)
		if !ok {
			c.Next()
			return
		}

		res, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			log.Logger().Error("Failed to run rate limiting for request",
				zap.String("path", c.Request.URL.Path),
				zap.Bool("failOpen", opts.FailOpen),
				zap.Error(err))
			if opts.FailOpen {
				c.Next()
				return
			}
			c.Header("Retry-After", strconv.FormatInt(seconds(opts.RetryAfter), 10))
			c.AbortWithStatus(http.StatusTooManyRequests)
			return
		}

		c.Header("X-Ratelimit-Limit", strconv.FormatInt(res.Limit, 10))
		c.Header("X-Ratelimit-Remaining", strconv.FormatInt(res.Remaining, 10))
		c.Header("X-Ratelimit-Reset", strconv.FormatInt(res.Reset.Unix(), 10))

		if !res.Allowed {
			c.Header("Retry-After", strconv.FormatInt(seconds(res.RetryAfter), 10))
			c.AbortWithStatus(http.StatusTooManyRequests)
			return
		}

		c.Next()
	}
}

// DefaultKeyFunc resolves a key using the given header, then a bearer token,
// then the client IP.
func DefaultKeyFunc(header string) KeyFunc {
	if header == "" {
		header = "X-API-Key"
	}
	return func(c *gin.Context) (string, bool) {
		if value := strings.TrimSpace(c.GetHeader(header)); value != "" {
			return value, true
		}

		if auth := strings.TrimSpace(c.GetHeader("Authorization")); auth != "" {
			parts := strings.Fields(auth)
			if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
				return parts[1], true
			}
			return auth, true
		}

		if ip := c.ClientIP(); ip != "" {
			return ip, true
		}
		return "", false
	}
}

// CookieKeyFunc keys requests by a session cookie; "sid" when name is empty.
// Requests without the cookie are not rate limited.
func CookieKeyFunc(name string) KeyFunc {
	if name == "" {
		name = "sid"
	}
	return func(c *gin.Context) (string, bool) {
		value, err := c.Cookie(name)
		if err != nil || value == "" {
			return "", false
		}
		return value, true
	}
}

func seconds(d time.Duration) int64 {
	secs := int64(d / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
