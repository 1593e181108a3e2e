package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimiter is a simple in-memory fixed-window limiter per client IP.
// Run chi's RealIP middleware in front of it so RemoteAddr is the client.
type RateLimiter struct {
	attempts map[string]*window
	mu       sync.Mutex
	limit    int
	period   time.Duration
	now      func() time.Time
}

type window struct {
	started time.Time
	count   int
}

// NewRateLimiter allows limit requests per period. Stale entries are swept
// until ctx is cancelled.
func NewRateLimiter(ctx context.Context, limit int, period time.Duration) *RateLimiter {
	rl := &RateLimiter{
		attempts: make(map[string]*window),
		limit:    limit,
		period:   period,
		now:      time.Now,
	}
	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.cleanup()
			}
		}
	}()
	return rl
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for ip, w := range rl.attempts {
		if now.Sub(w.started) > rl.period {
			delete(rl.attempts, ip)
		}
	}
}

// allow counts one request from ip and reports whether it is within limit.
func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	w, ok := rl.attempts[ip]
	if !ok || now.Sub(w.started) > rl.period {
		w = &window{started: now}
		rl.attempts[ip] = w
	}
	w.count++
	return w.count <= rl.limit
}

func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		if !rl.allow(ip) {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.period.Seconds())))
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
