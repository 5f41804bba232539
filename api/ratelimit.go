/*
ratelimit.go - Per-client request limiting for write endpoints

PURPOSE:
  Caps how many state-changing requests (contributions, loan applications,
  repayments, scenario loads) one client address may send per window, so
  a misbehaving payment callback cannot flood the ledger.

ALGORITHM:
  Fixed-window token bucket per client IP: each client gets Capacity
  tokens, refilled in full once Window has elapsed since the last refill.
  Idle buckets are swept periodically.

SEE ALSO:
  - server.go: Applied to POST routes
  - config/config.go: RATE_LIMIT, RATE_LIMIT_WINDOW
*/
package api

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	bucketIdleThreshold = 1 * time.Hour
	sweepInterval       = 30 * time.Minute
)

type clientBucket struct {
	tokens     int
	lastRefill time.Time
}

// RateLimiter tracks one bucket per client key.
type RateLimiter struct {
	mu       sync.Mutex
	capacity int
	window   time.Duration
	clients  map[string]*clientBucket
	now      func() time.Time

	stopOnce  sync.Once
	stopSweep chan struct{}
}

// NewRateLimiter starts a limiter allowing capacity requests per window.
// Call Stop to end the sweep goroutine.
func NewRateLimiter(capacity int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		capacity:  capacity,
		window:    window,
		clients:   make(map[string]*clientBucket),
		now:       time.Now,
		stopSweep: make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

func (rl *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.sweep()
		case <-rl.stopSweep:
			return
		}
	}
}

func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, bucket := range rl.clients {
		if now.Sub(bucket.lastRefill) > bucketIdleThreshold {
			delete(rl.clients, key)
		}
	}
}

// Stop ends the sweep goroutine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopSweep) })
}

// Allow consumes a token for key and reports whether the request may proceed.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	bucket, exists := rl.clients[key]
	if !exists {
		rl.clients[key] = &clientBucket{tokens: rl.capacity - 1, lastRefill: now}
		return rl.capacity > 0
	}

	if now.Sub(bucket.lastRefill) >= rl.window {
		bucket.tokens = rl.capacity
		bucket.lastRefill = now
	}
	if bucket.tokens <= 0 {
		return false
	}
	bucket.tokens--
	return true
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientKey(r)) {
			w.Header().Set("Retry-After", retryAfter(rl.window))
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey is the client IP. middleware.RealIP may already have replaced
// RemoteAddr with a bare address.
func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func retryAfter(window time.Duration) string {
	secs := int(window.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
