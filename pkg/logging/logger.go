// Package logging provides structured logging for the wizard server.
package logging

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Logger is the structured logger used across the server.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
	WithContext(ctx context.Context) Logger
}

// Field is one key/value pair attached to a record.
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field { return Field{Key: key, Value: value} }

func Int(key string, value int) Field { return Field{Key: key, Value: value} }

func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value} }

func Any(key string, value any) Field { return Field{Key: key, Value: value} }

// Err attaches err under "error".
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

func attrs(fields []Field) []any {
	out := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		out = append(out, f.Key, f.Value)
	}
	return out
}

// SlogLogger implements Logger on log/slog.
type SlogLogger struct {
	logger *slog.Logger
	ctx    context.Context
}

type options struct {
	level  slog.Level
	output io.Writer
	json   bool
}

// LoggerOption configures NewSlogLogger.
type LoggerOption func(*options)

// WithLevel sets the minimum level.
func WithLevel(level slog.Level) LoggerOption {
	return func(o *options) { o.level = level }
}

// WithLevelName sets the minimum level by name. Unknown names keep the
// current level; use ParseLevel to validate first.
func WithLevelName(name string) LoggerOption {
	return func(o *options) {
		if level, err := ParseLevel(name); err == nil {
			o.level = level
		}
	}
}

// WithOutput sets the destination. The default is stdout.
func WithOutput(w io.Writer) LoggerOption {
	return func(o *options) { o.output = w }
}

// WithJSON switches from logfmt-style text to JSON lines.
func WithJSON() LoggerOption {
	return func(o *options) { o.json = true }
}

// NewSlogLogger builds a logger. Durations are written in milliseconds.
func NewSlogLogger(opts ...LoggerOption) *SlogLogger {
	o := options{level: slog.LevelInfo, output: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	ho := &slog.HandlerOptions{Level: o.level, ReplaceAttr: replaceAttr}
	var h slog.Handler = slog.NewTextHandler(o.output, ho)
	if o.json {
		h = slog.NewJSONHandler(o.output, ho)
	}
	return &SlogLogger{logger: slog.New(h), ctx: context.Background()}
}

func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindDuration {
		ms := float64(a.Value.Duration().Microseconds()) / 1000
		return slog.Float64(a.Key+"_ms", ms)
	}
	return a
}

// ParseLevel maps debug, info, warn and error (any case) to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

func (l *SlogLogger) log(level slog.Level, msg string, fields []Field) {
	l.logger.Log(l.ctx, level, msg, attrs(fields)...)
}

func (l *SlogLogger) Debug(msg string, fields ...Field) { l.log(slog.LevelDebug, msg, fields) }

func (l *SlogLogger) Info(msg string, fields ...Field) { l.log(slog.LevelInfo, msg, fields) }

func (l *SlogLogger) Warn(msg string, fields ...Field) { l.log(slog.LevelWarn, msg, fields) }

func (l *SlogLogger) Error(msg string, fields ...Field) { l.log(slog.LevelError, msg, fields) }

func (l *SlogLogger) With(fields ...Field) Logger {
	return &SlogLogger{logger: l.logger.With(attrs(fields)...), ctx: l.ctx}
}

func (l *SlogLogger) WithContext(ctx context.Context) Logger {
	return &SlogLogger{logger: l.logger, ctx: ctx}
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...Field) {}

func (NopLogger) Info(string, ...Field) {}

func (NopLogger) Warn(string, ...Field) {}

func (NopLogger) Error(string, ...Field) {}

func (l NopLogger) With(...Field) Logger { return l }

func (l NopLogger) WithContext(context.Context) Logger { return l }

// DefaultLogger is returned by L when the context carries none.
var DefaultLogger Logger = NewSlogLogger()

// SetDefault replaces DefaultLogger.
func SetDefault(logger Logger) {
	DefaultLogger = logger
}

type ctxKey struct{}

// ContextWithLogger returns ctx carrying logger.
func ContextWithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// LoggerFromContext returns the logger in ctx, or nil.
func LoggerFromContext(ctx context.Context) Logger {
	logger, _ := ctx.Value(ctxKey{}).(Logger)
	return logger
}

// L returns the logger in ctx, falling back to DefaultLogger.
func L(ctx context.Context) Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return DefaultLogger
}

// RequestIDHeader carries the request ID in and out.
const RequestIDHeader = "X-Request-ID"

// RequestLogger tags every request with an ID, echoes it in the response
// and puts a logger carrying it in the request context; see L.
func RequestLogger(logger Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)

			log := logger.With(
				String("request_id", id),
				String("method", r.Method),
				String("path", r.URL.Path),
			)
			rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			log.Debug("request started")

			next.ServeHTTP(rw, r.WithContext(ContextWithLogger(r.Context(), log)))

			log.Info("request completed",
				Int("status", rw.status),
				Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusWriter records the status code. It passes hijacking through so
// websocket upgrades work behind RequestLogger.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
