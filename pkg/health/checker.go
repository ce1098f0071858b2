// Package health runs readiness checks for the wizard server.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
)

// Status represents the health status of a service.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the outcome of one check.
type CheckResult struct {
	Status     Status `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
	Details    any    `json:"details,omitempty"`
}

// Report is the combined outcome of all checks.
type Report struct {
	Status    Status                 `json:"status"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
}

// CheckFunc probes one dependency. Details, when non-nil, are reported
// whether or not the check failed.
type CheckFunc func(ctx context.Context) (details any, err error)

type check struct {
	name     string
	fn       CheckFunc
	timeout  time.Duration
	critical bool
}

// Checker holds the registered checks.
type Checker struct {
	version string

	mu     sync.RWMutex
	checks []check
}

// NewChecker creates a checker reporting version.
func NewChecker(version string) *Checker {
	return &Checker{version: version}
}

// Add registers a check. A failing critical check makes the report
// unhealthy; any other failure only degrades it. A zero timeout means 5s.
func (c *Checker) Add(name string, critical bool, timeout time.Duration, fn CheckFunc) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, check{name: name, fn: fn, timeout: timeout, critical: critical})
}

// Run executes every check concurrently.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := append([]check(nil), c.checks...)
	c.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	for i, ch := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = runOne(ctx, ch)
		}()
	}
	wg.Wait()

	report := Report{
		Status:    StatusHealthy,
		Checks:    make(map[string]CheckResult, len(checks)),
		Timestamp: time.Now().UTC(),
		Version:   c.version,
	}
	for i, ch := range checks {
		r := results[i]
		report.Checks[ch.name] = r
		if r.Status == StatusHealthy {
			continue
		}
		if ch.critical {
			report.Status = StatusUnhealthy
		} else if report.Status == StatusHealthy {
			report.Status = StatusDegraded
		}
	}
	return report
}

func runOne(ctx context.Context, ch check) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, ch.timeout)
	defer cancel()

	start := time.Now()
	details, err := ch.fn(ctx)
	r := CheckResult{
		Status:     StatusHealthy,
		DurationMS: time.Since(start).Milliseconds(),
		Details:    details,
	}
	if err != nil {
		r.Status = StatusUnhealthy
		r.Error = err.Error()
	}
	return r
}

// ReadinessHandler serves the report: 200 unless a critical check failed,
// 503 otherwise.
func (c *Checker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		status := http.StatusOK
		if report.Status == StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	})
}

// LivenessHandler answers 200 while the process is serving.
func (c *Checker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "alive", "timestamp": time.Now().UTC()})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// Pinger is implemented by state stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck checks that p answers.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) (any, error) {
		return nil, p.Ping(ctx)
	}
}

// CountCheck reports a gauge such as the number of live sessions. It fails
// once the count reaches max; a non-positive max never fails.
func CountCheck(key string, count func() int, max int) CheckFunc {
	return func(ctx context.Context) (any, error) {
		n := count()
		details := map[string]int{key: n}
		if max > 0 && n >= max {
			return details, &CapacityError{Key: key, Current: n, Max: max}
		}
		return details, nil
	}
}

// CapacityError reports a gauge at its limit.
type CapacityError struct {
	Key     string
	Current int
	Max     int
}

func (e *CapacityError) Error() string {
	return e.Key + " at capacity"
}
