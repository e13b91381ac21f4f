package middleware

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/R3E-Network/applyflow/internal/errors"
	"github.com/R3E-Network/applyflow/internal/httputil"
	"github.com/R3E-Network/applyflow/internal/logging"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(r *http.Request) string

// UserKey charges the authenticated user, or the client IP when the request
// carries no user.
func UserKey(r *http.Request) string {
	if id := logging.GetUserID(r.Context()); id != "" {
		return "user:" + id
	}
	return IPKey(r)
}

// IPKey charges the client IP. It ignores forwarding headers.
func IPKey(r *http.Request) string {
	return "ip:" + clientIP(r)
}

// RateLimiter applies a token bucket per key.
type RateLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	key      KeyFunc
	logger   *logging.Logger
	now      func() time.Time
}

// NewRateLimiter creates a limiter keyed by UserKey.
func NewRateLimiter(requestsPerSecond float64, burst int, logger *logging.Logger) *RateLimiter {
	return NewKeyedRateLimiter(requestsPerSecond, burst, UserKey, logger)
}

// NewKeyedRateLimiter creates a limiter that buckets requests by key.
func NewKeyedRateLimiter(requestsPerSecond float64, burst int, key KeyFunc, logger *logging.Logger) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	if key == nil {
		key = UserKey
	}
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		key:      key,
		logger:   logger,
		now:      time.Now,
	}
}

// getLimiter returns a rate limiter for the given key (e.g., user ID or IP)
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, exists := rl.limiters[key]
	if !exists {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastSeen = rl.now()

	return entry.limiter
}

// Handler returns the rate limiting middleware handler
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rl.key(r)
		if !rl.getLimiter(key).Allow() {
			rl.logger.LogSecurityEvent(r.Context(), "rate_limit_exceeded", map[string]interface{}{
				"key":    key,
				"path":   r.URL.Path,
				"method": r.Method,
			})

			w.Header().Set("Retry-After", "1")
			httputil.WriteServiceError(w, errors.RateLimitExceeded(rl.burst, "1s"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Cleanup removes limiters idle for longer than maxIdle.
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-maxIdle)
	removed := 0
	for key, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
			removed++
		}
	}
	return removed
}

// StartCleanup periodically drops idle limiters until ctx is done.
func (rl *RateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.Cleanup(interval)
			}
		}
	}()
}
