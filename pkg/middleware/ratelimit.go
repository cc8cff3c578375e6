package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/kidega/apartments/pkg/httputil"
	"github.com/kidega/apartments/pkg/observability"
)

// RateLimiter applies a sliding-window limit per client IP. The auth
// endpoints share one instance so login and register draw from the same
// budget.
type RateLimiter struct {
	limit   int
	window  time.Duration
	mu      sync.Mutex
	clients map[string][]time.Time
	metrics *observability.Metrics
}

// NewRateLimiter creates a limiter allowing limit requests per window
// per client IP.
func NewRateLimiter(limit int, window time.Duration, metrics *observability.Metrics) *RateLimiter {
	rl := &RateLimiter{
		limit:   limit,
		window:  window,
		clients: make(map[string][]time.Time),
		metrics: metrics,
	}
	go rl.cleanupLoop()
	return rl
}

// Allow records an attempt for the client and reports whether it fits
// in the window.
func (rl *RateLimiter) Allow(clientIP string) bool {
	now := time.Now()
	cutoff := now.Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	attempts := rl.clients[clientIP]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(cutoff) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.clients[clientIP] = fresh
		return false
	}
	rl.clients[clientIP] = append(fresh, now)
	return true
}

// Middleware rejects over-limit requests with a 429.
func (rl *RateLimiter) Middleware(endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(httputil.ClientIP(r)) {
				if rl.metrics != nil {
					rl.metrics.RateLimitedTotal.WithLabelValues(endpoint).Inc()
				}
				httputil.WriteTooManyRequests(w, "Too many attempts, please try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// cleanupLoop drops idle clients so the map does not grow without bound.
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-rl.window)
		rl.mu.Lock()
		for ip, attempts := range rl.clients {
			live := false
			for _, t := range attempts {
				if t.After(cutoff) {
					live = true
					break
				}
			}
			if !live {
				delete(rl.clients, ip)
			}
		}
		rl.mu.Unlock()
	}
}
