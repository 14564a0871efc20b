package ratelimiter

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"redis-rate-limiter/internal/log"
	"redis-rate-limiter/internal/utils"
)

const (
	rateLimitLimit     = "X-Ratelimit-Limit"
	rateLimitRemaining = "X-Ratelimit-Remaining"
	rateLimitReset     = "X-Ratelimit-Reset"
	retryAfter         = "Retry-After"
)

// HandlerConfig defines the configuration for the rate limiter handler.
type HandlerConfig struct {
	Extractor utils.Extractor
	Limiter   Limiter
	// FailOpen selects what happens when the counter store cannot serve a
	// decision: true forwards the request as if it were allowed, false (the
	// default) rejects it. No quota is consumed either way.
	FailOpen bool
	// RetryAfter is the Retry-After hint sent when a store failure is
	// converted into a rejection. Defaults to 1s.
	RetryAfter time.Duration
}

type httpRateLimiterHandler struct {
	handler http.Handler
	config  *HandlerConfig
}

// NewHTTPRateLimiterHandler wraps an existing http.Handler object performing rate
// limiting before sending the request to the wrapped handler. Requests for which the
// extractor yields no key are forwarded untouched, without a store call. If the request
// is denied, the rate limiting handler sends a 429 response to the client and the
// wrapped handler is never called.
func NewHTTPRateLimiterHandler(originalHandler http.Handler, config *HandlerConfig) http.Handler {
	if config.RetryAfter <= 0 {
		config.RetryAfter = time.Second
	}
	return &httpRateLimiterHandler{
		handler: originalHandler,
		config:  config,
	}
}

// ServeHTTP performs rate limiting with the configuration it was provided and if the
// request was allowed it is sent to the wrapped handler. It also adds rate limiting
// headers that will be sent to the client to make it aware of what state it is in
// terms of rate limiting.
func (h *httpRateLimiterHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	key, ok := h.config.Extractor.Extract(request)
	if !ok {
		// no key means this request is not metered (e.g. health checks)
		h.handler.ServeHTTP(writer, request)
		return
	}

	result, err := h.config.Limiter.Allow(request.Context(), key)
	if err != nil {
		h.serveFailure(writer, request, err)
		return
	}

	// set the rate limiting headers both on allow and deny results so the
	// client knows what is going on
	setRateLimitHeaders(writer.Header(), result)

	// when the request is denied, return a 429 response and stop the request
	// handling flow
	if !result.Allowed {
		writer.Header().Set(retryAfter, strconv.FormatInt(retryAfterSeconds(result.RetryAfter), 10))
		h.writeResponse(writer, http.StatusTooManyRequests, "too many requests")
		return
	}

	// the headers above are flushed together with the wrapped handler's
	// response, so downstream does not have to know any limiting happened
	h.handler.ServeHTTP(writer, request)
}

// serveFailure converts a store error into a decision per the configured policy.
// Errors never escape the middleware; a client only notices the fail-closed rejection.
func (h *httpRateLimiterHandler) serveFailure(writer http.ResponseWriter, request *http.Request, err error) {
	log.Logger().Error("Failed to run rate limiting for request",
		zap.String("path", request.URL.Path),
		zap.Bool("failOpen", h.config.FailOpen),
		zap.Error(err))

	if h.config.FailOpen {
		h.handler.ServeHTTP(writer, request)
		return
	}

	writer.Header().Set(retryAfter, strconv.FormatInt(retryAfterSeconds(h.config.RetryAfter), 10))
	h.writeResponse(writer, http.StatusTooManyRequests, "too many requests")
}

func (h *httpRateLimiterHandler) writeResponse(writer http.ResponseWriter, status int, msg string) {
	writer.Header().Set("Content-Type", "text/plain")
	writer.WriteHeader(status)
	if _, err := writer.Write([]byte(msg)); err != nil {
		log.Logger().Error("Failed to write body to HTTP response", zap.Error(err))
	}
}

func setRateLimitHeaders(header http.Header, result Result) {
	header.Set(rateLimitLimit, strconv.FormatInt(result.Limit, 10))
	header.Set(rateLimitRemaining, strconv.FormatInt(result.Remaining, 10))
	header.Set(rateLimitReset, strconv.FormatInt(result.Reset.Unix(), 10))
}

// retryAfterSeconds rounds a duration down to whole seconds, with a floor of 1
// so clients never receive a zero hint.
func retryAfterSeconds(d time.Duration) int64 {
	secs := int64(d / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
