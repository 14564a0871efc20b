package main

import (
	"context"
	"flag"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"redis-rate-limiter/internal/config"
	"redis-rate-limiter/internal/log"
	"redis-rate-limiter/internal/ratelimiter"
	"redis-rate-limiter/internal/utils"
)

func HelloHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("Hello, World!"))
}

func main() {
	listenAddr := flag.String("listen", config.String("LISTEN_ADDR", "localhost:8080"), "listen address")
	redisAddr := flag.String("redis-addr", config.String("REDIS_ADDR", "localhost:6379"), "redis address")
	limit := flag.Int64("limit", config.Int64("RATE_LIMIT", 5000), "requests per window")
	window := flag.Duration("window", config.Duration("RATE_WINDOW", time.Hour), "window length")
	failMode := flag.String("fail-mode", config.String("FAIL_MODE", "closed"), "open or closed")
	keyHeader := flag.String("key-header", config.String("KEY_HEADER", ""), "key by this header instead of client IP")
	poolSize := flag.Int("pool-size", int(config.Int64("REDIS_POOL_SIZE", 10)), "redis connection pool size")
	poolTimeout := flag.Duration("pool-timeout", config.Duration("REDIS_POOL_TIMEOUT", time.Second), "wait for a free connection")
	flag.Parse()

	redisClient := redis.NewClient(&redis.Options{
		Addr:        *redisAddr,
		PoolSize:    *poolSize,
		PoolTimeout: *poolTimeout,
	})
	defer func() { _ = redisClient.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Logger().Fatal("Failed to connect to redis", zap.Error(err))
	}

	limiter, err := ratelimiter.NewFixedWindowLimiter(redisClient, ratelimiter.Options{
		Limit:  *limit,
		Window: *window,
	})
	if err != nil {
		log.Logger().Fatal("Failed to create rate limiter", zap.Error(err))
	}

	var byClient utils.Extractor = utils.NewClientIPExtractor()
	if *keyHeader != "" {
		byClient = utils.NewHTTPHeadersExtractor(*keyHeader)
	}
	// health checks are never metered
	extractor := utils.ExtractorFunc(func(r *http.Request) (string, bool) {
		if r.URL.Path == "/healthz" {
			return "", false
		}
		return byClient.Extract(r)
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/v1/hello", HelloHandler)

	wrappedMux := ratelimiter.NewHTTPRateLimiterHandler(mux, &ratelimiter.HandlerConfig{
		Extractor: extractor,
		Limiter:   limiter,
		FailOpen:  strings.EqualFold(*failMode, "open"),
	})

	// use wrappedMux instead of mux as root handler
	log.Logger().Info("Run a server", zap.String("addr", *listenAddr))
	if err := http.ListenAndServe(*listenAddr, requestID(wrappedMux)); err != nil {
		log.Logger().Fatal("Failed to serve handler", zap.Error(err))
	}
}

// requestID tags every request with an id so allowed and rejected decisions
// can be correlated in logs.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		log.Logger().Info("Incoming request",
			zap.String("id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path))
		next.ServeHTTP(w, r)
	})
}
