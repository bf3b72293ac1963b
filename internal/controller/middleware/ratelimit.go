package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter limits requests per client address with a token bucket.
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time

	mu        sync.Mutex
	limiters  map[string]*cachedLimiter // client address -> bucket
	lastSweep time.Time
}

// Option configures a RateLimiter.
type Option func(*RateLimiter)

// WithTTL sets how long an idle client's bucket is kept.
func WithTTL(ttl time.Duration) Option {
	return func(l *RateLimiter) { l.ttl = ttl }
}

// NewRateLimiter allows limit requests per second with the given burst per
// client. A limit of 0 disables limiting.
func NewRateLimiter(limit float64, burst int, opts ...Option) *RateLimiter {
	l := &RateLimiter{
		limit: rate.Limit(limit),
		burst: burst,
		ttl:      5 * time.Minute,
		now:      time.Now,
		limiters: make(map[string]*cachedLimiter),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.burst < 1 {
		l.burst = 1
	}
	return l
}

// Middleware rejects requests over the limit with 429 and Retry-After.
func (l *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// RateLimit=0 means unlimited
			if l.limit > 0 && !l.limiterFor(clientAddr(r)).Allow() {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type cachedLimiter struct {
	limiter   *rate.Limiter
	expiresAt time.Time
}

// limiterFor returns the client's bucket. Each hit pushes the bucket's
// expiry out by ttl, so only clients idle for a full ttl start over.
func (l *RateLimiter) limiterFor(client string) *rate.Limiter {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.ttl {
		l.sweep(now)
	}

	cached, ok := l.limiters[client]
	if !ok || !now.Before(cached.expiresAt) {
		cached = &cachedLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[client] = cached
	}
	cached.expiresAt = now.Add(l.ttl)
	return cached.limiter
}

// sweep drops idle buckets. Caller holds l.mu.
func (l *RateLimiter) sweep(now time.Time) {
	for client, cached := range l.limiters {
		if !now.Before(cached.expiresAt) {
			delete(l.limiters, client)
		}
	}
	l.lastSweep = now
}

// clientAddr is the host part of the remote address.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
