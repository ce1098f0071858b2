package limits

import (
	"net"
	"net/http"
	"strings"
	"sync"
)

// ConnectionLimiter caps how many live connections one client address may
// hold at once.
type ConnectionLimiter struct {
	max int

	mu     sync.Mutex
	active map[string]int
	stats  ConnStats
}

// ConnStats summarises limiter activity since creation.
type ConnStats struct {
	Active  int   // slots held right now, all addresses
	Allowed int64 // slots granted
	Blocked int64 // requests turned away
}

// NewConnectionLimiter creates a limiter. maxPerIP <= 0 means 100.
func NewConnectionLimiter(maxPerIP int) *ConnectionLimiter {
	if maxPerIP <= 0 {
		maxPerIP = 100
	}
	return &ConnectionLimiter{
		max:    maxPerIP,
		active: make(map[string]int),
	}
}

// Acquire takes a slot for addr. The returned release func gives it back
// and is safe to call more than once. ok is false when addr is at its cap.
func (cl *ConnectionLimiter) Acquire(addr string) (release func(), ok bool) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.active[addr] >= cl.max {
		cl.stats.Blocked++
		return func() {}, false
	}
	cl.active[addr]++
	cl.stats.Active++
	cl.stats.Allowed++

	var once sync.Once
	return func() { once.Do(func() { cl.release(addr) }) }, true
}

func (cl *ConnectionLimiter) release(addr string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	cl.stats.Active--
	if n := cl.active[addr]; n > 1 {
		cl.active[addr] = n - 1
	} else {
		delete(cl.active, addr)
	}
}

// Count returns the slots addr holds.
func (cl *ConnectionLimiter) Count(addr string) int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.active[addr]
}

func (cl *ConnectionLimiter) Stats() ConnStats {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.stats
}

// Middleware holds a slot for the lifetime of each request, which for a
// websocket upgrade is the lifetime of the connection.
func (cl *ConnectionLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := cl.Acquire(ClientIP(r))
			if !ok {
				http.Error(w, "too many connections", http.StatusTooManyRequests)
				return
			}
			defer release()
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop, else X-Real-IP, else the
// host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	if first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); strings.TrimSpace(first) != "" {
		return strings.TrimSpace(first)
	}
	if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); xr != "" {
		return xr
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
