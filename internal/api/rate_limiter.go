package api

import (
	"net"
	"net/http"
	"strconv"
	"sync"

	apperrors "github.com/portfolio-evaluator/internal/errors"
	"golang.org/x/time/rate"
)

// ClientIDHeader identifies a client for rate limiting. Requests without it
// are limited by remote IP.
const ClientIDHeader = "X-Client-ID"

// RateLimiter manages rate limiting for API requests
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex

	limit             rate.Limit
	requestsPerMinute int
	// Burst size (number of requests that can be made in a burst)
	burstSize int
}

// NewRateLimiter creates a rate limiter allowing requestsPerMinute per client
func NewRateLimiter(requestsPerMinute, burst int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 30
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiters:          make(map[string]*rate.Limiter),
		limit:             rate.Limit(float64(requestsPerMinute) / 60),
		requestsPerMinute: requestsPerMinute,
		burstSize:         burst,
	}
}

// getLimiter returns the rate limiter for a client
func (rl *RateLimiter) getLimiter(clientID string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[clientID]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check in case another goroutine created it
	if limiter, exists := rl.limiters[clientID]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rl.limit, rl.burstSize)
	rl.limiters[clientID] = limiter

	return limiter
}

// retryAfter is the number of seconds until a limited client regains one request
func (rl *RateLimiter) retryAfter() int {
	return (60 + rl.requestsPerMinute - 1) / rl.requestsPerMinute
}

// clientID returns the rate limiting key of a request
func clientID(r *http.Request) string {
	if id := r.Header.Get(ClientIDHeader); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitMiddleware creates a middleware that enforces rate limiting.
// Health and metrics probes are not limited.
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			if !rl.getLimiter(clientID(r)).Allow() {
				retryAfter := rl.retryAfter()
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				respondServiceError(w, r, apperrors.NewRateLimitError(retryAfter))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
