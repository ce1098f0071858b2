// Package limits provides rate limiting and connection limiting for the
// wizard server.
package limits

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimitExceeded is returned when a key has used up its budget.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// RateLimiter limits the rate of operations per key.
type RateLimiter interface {
	// Allow returns true if the operation is allowed.
	Allow(key string) bool

	// AllowN returns true if n operations are allowed.
	AllowN(key string, n int) bool

	// Wait blocks until the operation is allowed or context is cancelled.
	Wait(ctx context.Context, key string) error
}

// TokenBucket is a keyed token bucket limiter built on rate.Limiter. Each
// key gets its own bucket of size burst refilled at rps tokens per second.
type TokenBucket struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewTokenBucket creates a limiter. A non-positive rps disables limiting.
func NewTokenBucket(rps float64, burst int) *TokenBucket {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &TokenBucket{
		limit:   limit,
		burst:   burst,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Allow checks if an operation is allowed for the given key.
func (tb *TokenBucket) Allow(key string) bool {
	return tb.AllowN(key, 1)
}

// AllowN checks if n operations are allowed for the given key.
func (tb *TokenBucket) AllowN(key string, n int) bool {
	now := tb.now()
	return tb.get(key, now).AllowN(now, n)
}

// Wait blocks until an operation is allowed or ctx is done.
func (tb *TokenBucket) Wait(ctx context.Context, key string) error {
	return tb.get(key, tb.now()).Wait(ctx)
}

// Forget drops the bucket for key.
func (tb *TokenBucket) Forget(key string) {
	tb.mu.Lock()
	delete(tb.buckets, key)
	tb.mu.Unlock()
}

// Prune drops buckets unused for longer than idle and returns how many
// were removed.
func (tb *TokenBucket) Prune(idle time.Duration) int {
	cutoff := tb.now().Add(-idle)

	tb.mu.Lock()
	defer tb.mu.Unlock()

	n := 0
	for key, b := range tb.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(tb.buckets, key)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (tb *TokenBucket) Len() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return len(tb.buckets)
}

func (tb *TokenBucket) get(key string, now time.Time) *rate.Limiter {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	b, ok := tb.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(tb.limit, tb.burst)}
		tb.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

// RateLimitMiddleware returns HTTP middleware for rate limiting.
func RateLimitMiddleware(limiter RateLimiter, keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(keyFunc(r)) {
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
