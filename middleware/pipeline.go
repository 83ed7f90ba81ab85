package middleware

import (
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"

	"flowbackend/ratelimit"
	"flowbackend/services"
)

// RateLimitMiddleware applies a sliding-window limit class to a route. The
// rate-limit headers go on every response, allowed or not.
type RateLimitMiddleware struct {
	limiter      *ratelimit.Limiter
	tokenManager services.TokenManager
}

func NewRateLimitMiddleware(limiter *ratelimit.Limiter, tokenManager services.TokenManager) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter:      limiter,
		tokenManager: tokenManager,
	}
}

// WithRateLimit wraps a handler with the given limit class. Blocked requests
// get a 429 with Retry-After.
func (m *RateLimitMiddleware) WithRateLimit(class ratelimit.Class, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identifier := m.identify(r)
		result := m.limiter.Check(class, identifier)

		if result.Limit > 0 {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
		}

		if !result.Allowed {
			retryAfter := int(result.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			log.Printf("⚠️ Rate limit exceeded on %s (%s)", r.URL.Path, class)
			writeJSONError(w, http.StatusTooManyRequests, map[string]any{
				"error":       "rate_limit_exceeded",
				"message":     "too many requests, slow down",
				"retry_after": retryAfter,
			})
			return
		}

		next(w, r)
	}
}

// identify picks the limit key. Requests carrying a bearer token are keyed
// by the token's hash so limits follow the credential; everything else is
// keyed by client IP.
func (m *RateLimitMiddleware) identify(r *http.Request) string {
	parts := strings.Split(r.Header.Get("Authorization"), " ")
	if len(parts) == 2 && parts[0] == "Bearer" && parts[1] != "" {
		return m.tokenManager.HashToken(parts[1])
	}
	return clientIP(r)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.Index(fwd, ","); idx >= 0 {
			fwd = fwd[:idx]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
