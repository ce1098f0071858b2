package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Handler(t *testing.T) {
	m := New("wizard")
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.ObserveEvent("goNext", "", 5*time.Millisecond)
	m.ObserveEvent("goNext", "rejected", time.Millisecond)
	m.ObserveEvent("submit", "", time.Millisecond)
	m.Submissions.Inc("success")
	m.PatchSize.Observe(120)
	m.GaugeFunc("sessions", "Open sessions", func() int { return 3 })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))

	body := rec.Body.String()
	for _, line := range []string{
		"# TYPE wizard_connections_active gauge",
		"wizard_connections_active 1",
		"wizard_connections_total 2",
		`wizard_events_total{event="goNext"} 2`,
		`wizard_events_total{event="submit"} 1`,
		`wizard_event_errors_total{reason="rejected"} 1`,
		"wizard_event_duration_seconds_count 3",
		`wizard_submissions_total{kind="success"} 1`,
		"wizard_patch_size_bytes_sum 120",
		"wizard_sessions 3",
	} {
		assert.Contains(t, body, line+"\n")
	}
	assert.Less(t, strings.Index(body, `event="goNext"`), strings.Index(body, `event="submit"`))
}

func TestHistogram_Stats(t *testing.T) {
	h := NewHistogram("h", "")
	assert.Equal(t, HistogramStats{}, h.Stats())

	h.Observe(2)
	h.Observe(4)
	h.Observe(9)
	s := h.Stats()
	assert.Equal(t, int64(3), s.Count)
	assert.Equal(t, 15.0, s.Sum)
	assert.Equal(t, 2.0, s.Min)
	assert.Equal(t, 9.0, s.Max)
	assert.Equal(t, 5.0, s.Avg)
}

func TestCounterVec_Concurrent(t *testing.T) {
	cv := NewCounterVec("c", "", "l")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				cv.Inc("a")
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, map[string]int64{"a": 800}, cv.Values())
}
