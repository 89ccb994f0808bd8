package middleware

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/lockplane/authcore/ratelimit"
)

// KeyFunc extracts the rate-limit caller key from a request.
type KeyFunc func(r *http.Request) string

type rateLimitOptions struct {
	keyFunc KeyFunc
}

// Option configures [RateLimit].
type Option func(*rateLimitOptions)

// WithKeyFunc overrides how the caller key is derived. Use this behind a
// trusted proxy to key on X-Forwarded-For or an API key instead of the
// socket address.
func WithKeyFunc(fn KeyFunc) Option {
	return func(o *rateLimitOptions) { o.keyFunc = fn }
}

// RateLimit returns middleware that charges each request against rules and
// rejects over-budget callers with 429. Allowed responses carry
// X-RateLimit-Limit and X-RateLimit-Remaining; rejections add Retry-After.
func RateLimit(rules *ratelimit.Rules, opts ...Option) func(http.Handler) http.Handler {
	options := rateLimitOptions{keyFunc: remoteIP}
	for _, opt := range opts {
		opt(&options)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rules == nil {
				next.ServeHTTP(w, r)
				return
			}

			decision := rules.Allow(options.keyFunc(r), r.URL.Path)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

			if !decision.Allowed {
				retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": "rate limit exceeded",
					"limit": decision.Limit,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
