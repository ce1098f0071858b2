// Package metrics collects wizard server metrics and exposes them in the
// Prometheus text format.
package metrics

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds the wizard server metrics.
type Metrics struct {
	namespace string

	// Live connections
	ConnectionsActive *Gauge
	ConnectionsTotal  *Counter

	// Events received, by event name, and their handling latency
	EventsTotal  *CounterVec
	EventErrors  *CounterVec
	EventLatency *Histogram

	// Frames sent over live connections, by message type
	MessagesSent *CounterVec
	PatchSize    *Histogram

	// Submission outcomes, by notification kind
	Submissions *CounterVec

	mu     sync.RWMutex
	gauges []gaugeFunc
}

type gaugeFunc struct {
	name string
	help string
	fn   func() int
}

// New creates a metrics set whose names are prefixed with namespace.
func New(namespace string) *Metrics {
	return &Metrics{
		namespace: namespace,

		ConnectionsActive: NewGauge("connections_active", "Open live connections"),
		ConnectionsTotal:  NewCounter("connections_total", "Live connections accepted"),

		EventsTotal:  NewCounterVec("events_total", "Wizard events received", "event"),
		EventErrors:  NewCounterVec("event_errors_total", "Wizard events rejected", "reason"),
		EventLatency: NewHistogram("event_duration_seconds", "Time spent handling an event"),

		MessagesSent: NewCounterVec("messages_sent_total", "Live frames sent", "type"),
		PatchSize:    NewHistogram("patch_size_bytes", "Size of state patches"),

		Submissions: NewCounterVec("submissions_total", "Finished submissions", "kind"),
	}
}

// GaugeFunc registers a gauge sampled from fn at scrape time.
func (m *Metrics) GaugeFunc(name, help string, fn func() int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges = append(m.gauges, gaugeFunc{name: name, help: help, fn: fn})
}

// ConnectionOpened records a new live connection.
func (m *Metrics) ConnectionOpened() {
	m.ConnectionsActive.Inc()
	m.ConnectionsTotal.Inc()
}

// ConnectionClosed records the end of a live connection.
func (m *Metrics) ConnectionClosed() {
	m.ConnectionsActive.Dec()
}

// ObserveEvent records one handled event. reason is empty on success.
func (m *Metrics) ObserveEvent(event, reason string, d time.Duration) {
	m.EventsTotal.Inc(event)
	m.EventLatency.ObserveDuration(d)
	if reason != "" {
		m.EventErrors.Inc(reason)
	}
}

// Handler serves the metrics.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		m.WriteTo(w)
	})
}

// WriteTo writes every metric to w.
func (m *Metrics) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}

	m.writeGauge(cw, m.ConnectionsActive.name, m.ConnectionsActive.help, m.ConnectionsActive.Value())
	m.writeCounter(cw, m.ConnectionsTotal)
	m.writeCounterVec(cw, m.EventsTotal)
	m.writeCounterVec(cw, m.EventErrors)
	m.writeHistogram(cw, m.EventLatency)
	m.writeCounterVec(cw, m.MessagesSent)
	m.writeHistogram(cw, m.PatchSize)
	m.writeCounterVec(cw, m.Submissions)

	m.mu.RLock()
	gauges := append([]gaugeFunc(nil), m.gauges...)
	m.mu.RUnlock()
	for _, g := range gauges {
		m.writeGauge(cw, g.name, g.help, int64(g.fn()))
	}
	return cw.n, cw.err
}

func (m *Metrics) fullName(name string) string {
	if m.namespace == "" {
		return name
	}
	return m.namespace + "_" + name
}

func (m *Metrics) writeHeader(w io.Writer, name, help, kind string) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
}

func (m *Metrics) writeGauge(w io.Writer, name, help string, v int64) {
	name = m.fullName(name)
	m.writeHeader(w, name, help, "gauge")
	fmt.Fprintf(w, "%s %d\n", name, v)
}

func (m *Metrics) writeCounter(w io.Writer, c *Counter) {
	name := m.fullName(c.name)
	m.writeHeader(w, name, c.help, "counter")
	fmt.Fprintf(w, "%s %d\n", name, c.Value())
}

func (m *Metrics) writeCounterVec(w io.Writer, cv *CounterVec) {
	name := m.fullName(cv.name)
	m.writeHeader(w, name, cv.help, "counter")
	values := cv.Values()
	labels := make([]string, 0, len(values))
	for l := range values {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	for _, l := range labels {
		fmt.Fprintf(w, "%s{%s=%q} %d\n", name, cv.label, l, values[l])
	}
}

func (m *Metrics) writeHistogram(w io.Writer, h *Histogram) {
	name := m.fullName(h.name)
	stats := h.Stats()
	m.writeHeader(w, name, h.help, "summary")
	fmt.Fprintf(w, "%s_sum %g\n", name, stats.Sum)
	fmt.Fprintf(w, "%s_count %d\n", name, stats.Count)
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	if cw.err != nil {
		return 0, cw.err
	}
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	cw.err = err
	return n, err
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name  string
	help  string
	value atomic.Int64
}

// NewCounter creates a new counter.
func NewCounter(name, help string) *Counter {
	return &Counter{name: name, help: help}
}

// Inc increments the counter by 1.
func (c *Counter) Inc() {
	c.value.Add(1)
}

// Value returns the current counter value.
func (c *Counter) Value() int64 {
	return c.value.Load()
}

// Gauge is a value that can go up and down.
type Gauge struct {
	name  string
	help  string
	value atomic.Int64
}

// NewGauge creates a new gauge.
func NewGauge(name, help string) *Gauge {
	return &Gauge{name: name, help: help}
}

func (g *Gauge) Inc() { g.value.Add(1) }

func (g *Gauge) Dec() { g.value.Add(-1) }

// Value returns the current gauge value.
func (g *Gauge) Value() int64 {
	return g.value.Load()
}

// CounterVec is a counter partitioned by one label.
type CounterVec struct {
	name   string
	help   string
	label  string
	mu     sync.RWMutex
	values map[string]*Counter
}

// NewCounterVec creates a new counter vector.
func NewCounterVec(name, help, label string) *CounterVec {
	return &CounterVec{
		name:   name,
		help:   help,
		label:  label,
		values: make(map[string]*Counter),
	}
}

// WithLabel returns the counter for the given label value.
func (cv *CounterVec) WithLabel(value string) *Counter {
	cv.mu.RLock()
	c, ok := cv.values[value]
	cv.mu.RUnlock()
	if ok {
		return c
	}

	cv.mu.Lock()
	defer cv.mu.Unlock()
	if c, ok := cv.values[value]; ok {
		return c
	}
	c = NewCounter(cv.name, cv.help)
	cv.values[value] = c
	return c
}

// Inc increments the counter for the given label.
func (cv *CounterVec) Inc(label string) {
	cv.WithLabel(label).Inc()
}

// Values returns all counter values.
func (cv *CounterVec) Values() map[string]int64 {
	cv.mu.RLock()
	defer cv.mu.RUnlock()

	result := make(map[string]int64, len(cv.values))
	for label, counter := range cv.values {
		result[label] = counter.Value()
	}
	return result
}

// Histogram tracks count, sum and range of observed values.
type Histogram struct {
	name  string
	help  string
	mu    sync.Mutex
	sum   float64
	count int64
	min   float64
	max   float64
}

// NewHistogram creates a new histogram.
func NewHistogram(name, help string) *Histogram {
	return &Histogram{name: name, help: help, min: math.Inf(1), max: math.Inf(-1)}
}

// Observe records a value.
func (h *Histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += value
	h.count++
	h.min = math.Min(h.min, value)
	h.max = math.Max(h.max, value)
}

// ObserveDuration records a duration in seconds.
func (h *Histogram) ObserveDuration(d time.Duration) {
	h.Observe(d.Seconds())
}

// Stats returns histogram statistics.
func (h *Histogram) Stats() HistogramStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	stats := HistogramStats{Count: h.count, Sum: h.sum}
	if h.count > 0 {
		stats.Min = h.min
		stats.Max = h.max
		stats.Avg = h.sum / float64(h.count)
	}
	return stats
}

// HistogramStats contains histogram statistics.
type HistogramStats struct {
	Count int64
	Sum   float64
	Min   float64
	Max   float64
	Avg   float64
}
