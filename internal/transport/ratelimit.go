package transport

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ipRateLimiter keeps one token bucket per remote address, pruning
// buckets that have gone quiet.
type ipRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiterEntry
	rps      rate.Limit
	burst    int
}

type ipLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPRateLimiter(rps float64, burst int) *ipRateLimiter {
	rl := &ipRateLimiter{
		limiters: make(map[string]*ipLimiterEntry),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
	go rl.prune()
	return rl
}

func (rl *ipRateLimiter) get(addr string) *rate.Limiter {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	entry, ok := rl.limiters[host]
	if !ok {
		entry = &ipLimiterEntry{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.limiters[host] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

func (rl *ipRateLimiter) prune() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		rl.mu.Lock()
		for host, entry := range rl.limiters {
			if time.Since(entry.lastSeen) > 3*time.Minute {
				delete(rl.limiters, host)
			}
		}
		rl.mu.Unlock()
	}
}

// RateLimitMiddleware rejects clients that exceed rps sustained requests
// per second (with the given burst) with 429.
func RateLimitMiddleware(rps float64, burst int) func(http.Handler) http.Handler {
	rl := newIPRateLimiter(rps, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.get(r.RemoteAddr).Allow() {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
