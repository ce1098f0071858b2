package logging

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestSlogLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogLogger(WithOutput(&buf), WithJSON(), WithLevelName("warn"))

	log.Info("hidden")
	log.With(String("session", "abc")).Warn("shown", Int("step", 2))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"session":"abc"`)
	assert.Contains(t, out, `"step":2`)
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogLogger(WithOutput(&buf))

	var fromCtx Logger
	h := RequestLogger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromCtx = LoggerFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/state", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.NotNil(t, fromCtx)
	assert.Contains(t, buf.String(), "status=418")
	assert.Contains(t, buf.String(), "path=/state")

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "fixed-id")
	h.ServeHTTP(rec, req)
	assert.Equal(t, "fixed-id", rec.Header().Get(RequestIDHeader))
}

func TestL_FallsBackToDefault(t *testing.T) {
	assert.Equal(t, DefaultLogger, L(context.Background()))

	ctx := ContextWithLogger(context.Background(), NopLogger{})
	assert.Equal(t, NopLogger{}, L(ctx))
}

func TestSlogLogger_DurationInMillis(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogLogger(WithOutput(&buf), WithJSON())

	log.Info("done", Duration("duration", 1500*time.Microsecond))
	assert.Contains(t, buf.String(), `"duration_ms":1.5`)
	assert.NotContains(t, buf.String(), `"duration":`)
}
