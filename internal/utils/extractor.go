package utils

import (
	"net"
	"net/http"
	"strings"
)

// Extractor represents the way we will extract a key from an HTTP request, this could be
// a value from a header, a cookie, user authentication information, any information that
// is available at the HTTP request that wouldn't cause side effects if it was collected
// (this object shouldn't read the body of the request). The second return value reports
// whether a key was found; false means the request bypasses rate limiting entirely, for
// example internal health checks.
type Extractor interface {
	Extract(r *http.Request) (string, bool)
}

// ExtractorFunc adapts a plain function to the Extractor interface.
type ExtractorFunc func(r *http.Request) (string, bool)

func (f ExtractorFunc) Extract(r *http.Request) (string, bool) { return f(r) }

type httpHeaderExtractor struct {
	headers []string
}

// NewHTTPHeadersExtractor keys requests by a collection of http headers, joined in order.
// You should use headers that are guaranteed to be unique for a client. A request missing
// any of the headers yields no key and is not rate limited.
func NewHTTPHeadersExtractor(headers ...string) Extractor {
	return &httpHeaderExtractor{headers: headers}
}

func (h *httpHeaderExtractor) Extract(r *http.Request) (string, bool) {
	values := make([]string, 0, len(h.headers))

	for _, key := range h.headers {
		value := strings.TrimSpace(r.Header.Get(key))
		if value == "" {
			return "", false
		}
		values = append(values, value)
	}

	return strings.Join(values, "-"), true
}

type clientIPExtractor struct{}

// NewClientIPExtractor keys requests by client address: the first hop of
// X-Forwarded-For, then X-Real-IP, then the RemoteAddr host.
func NewClientIPExtractor() Extractor {
	return clientIPExtractor{}
}

func (clientIPExtractor) Extract(r *http.Request) (string, bool) {
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip, true
		}
	}

	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip, true
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host, true
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr, true
	}
	return "", false
}
