// Package server exposes wizard sessions over HTTP: the page, a websocket
// that streams state patches, and a plain JSON fallback.
package server

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	"github.com/gabrielmiguelok/golivekit-wizard/pkg/forms"
	"github.com/gabrielmiguelok/golivekit-wizard/pkg/health"
	"github.com/gabrielmiguelok/golivekit-wizard/pkg/limits"
	"github.com/gabrielmiguelok/golivekit-wizard/pkg/logging"
	"github.com/gabrielmiguelok/golivekit-wizard/pkg/metrics"
	"github.com/gabrielmiguelok/golivekit-wizard/pkg/state"
	"github.com/gabrielmiguelok/golivekit-wizard/pkg/wizard"
)

// Config configures a Server.
type Config struct {
	Store       state.Store
	Assets      fs.FS // index.html and client scripts
	SessionTTL  time.Duration
	SubmitDelay time.Duration
	Scheduler   wizard.Scheduler
	Logger      logging.Logger
	Metrics     *metrics.Metrics
	Version     string
	MaxSessions int // reported by the health check; 0 means unbounded

	// AllowedOrigins are extra websocket origin patterns; same-origin is
	// always accepted.
	AllowedOrigins     []string
	InsecureSkipVerify bool
	SecureCookie       bool

	EventsPerSecond float64
	EventBurst      int
	MaxConnsPerIP   int
}

// Server serves the wizard.
type Server struct {
	cfg      Config
	registry *Registry
	limiter  *limits.TokenBucket
	conns    *limits.ConnectionLimiter
	health   *health.Checker
	metrics  *metrics.Metrics
	log      logging.Logger
	mux      *http.ServeMux

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a server over cfg.Store.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logging.NopLogger{}
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New("wizard")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg: cfg,
		registry: NewRegistry(RegistryConfig{
			Store:       cfg.Store,
			SessionTTL:  cfg.SessionTTL,
			SubmitDelay: cfg.SubmitDelay,
			Scheduler:   cfg.Scheduler,
			Logger:      cfg.Logger,
			OnNotify: func(n wizard.Notification) {
				cfg.Metrics.Submissions.Inc(string(n.Kind))
			},
		}),
		limiter: limits.NewTokenBucket(cfg.EventsPerSecond, cfg.EventBurst),
		conns:   limits.NewConnectionLimiter(cfg.MaxConnsPerIP),
		health:  health.NewChecker(cfg.Version),
		metrics: cfg.Metrics,
		log:     cfg.Logger,
		mux:     http.NewServeMux(),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.health.Add("store", true, 2*time.Second, health.PingCheck(cfg.Store))
	s.health.Add("sessions", false, 0, health.CountCheck("sessions", s.registry.Len, cfg.MaxSessions))
	s.metrics.GaugeFunc("sessions_open", "Sessions held in memory", s.registry.Len)
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.Handle("GET /live", s.conns.Middleware()(http.HandlerFunc(s.handleLive)))
	s.mux.HandleFunc("GET /state", s.handleState)
	s.mux.HandleFunc("POST /event", s.handleEvent)
	s.mux.Handle("GET /healthz", s.health.ReadinessHandler())
	s.mux.Handle("GET /livez", s.health.LivenessHandler())
	s.mux.Handle("GET /metrics", s.metrics.Handler())
	if s.cfg.Assets != nil {
		s.mux.Handle("GET /_live/", http.StripPrefix("/_live/", http.FileServerFS(s.cfg.Assets)))
	}
}

// Handler returns the root handler with request logging.
func (s *Server) Handler() http.Handler {
	return logging.RequestLogger(s.log)(s.mux)
}

// Registry returns the session registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Limiter returns the per-session event limiter.
func (s *Server) Limiter() *limits.TokenBucket {
	return s.limiter
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// Close ends live connections and closes every session. It does not close
// the store.
func (s *Server) Close() {
	s.cancel()
	s.registry.Close()
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.ensureSession(w, r); !ok {
		return
	}
	if s.cfg.Assets == nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFileFS(w, r, s.cfg.Assets, "index.html")
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ensureSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Controller.Snapshot())
}

// EventResponse is the body returned by POST /event.
type EventResponse struct {
	State *wizard.Snapshot `json:"state,omitempty"`
	Error string           `json:"error,omitempty"`
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, EventResponse{Error: "missing session"})
		return
	}
	sess, err := s.registry.Get(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, EventResponse{Error: err.Error()})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageSize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, EventResponse{Error: err.Error()})
		return
	}
	var msg ClientMessage
	if err := sonic.Unmarshal(body, &msg); err != nil {
		writeJSON(w, http.StatusBadRequest, EventResponse{Error: "malformed event"})
		return
	}

	start := time.Now()
	if !s.limiter.Allow(sess.ID) {
		s.metrics.ObserveEvent(msg.Event, rejectReason(limits.ErrRateLimitExceeded), time.Since(start))
		writeJSON(w, http.StatusTooManyRequests, EventResponse{Error: limits.ErrRateLimitExceeded.Error()})
		return
	}

	err = sess.Controller.HandleEvent(r.Context(), msg.Event, msg.Payload)
	s.metrics.ObserveEvent(msg.Event, rejectReason(err), time.Since(start))
	snap := sess.Controller.Snapshot()
	if err != nil {
		writeJSON(w, eventStatus(err), EventResponse{State: &snap, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, EventResponse{State: &snap})
}

// eventStatus maps controller errors to HTTP status codes.
func eventStatus(err error) int {
	switch {
	case errors.Is(err, wizard.ErrUnknownEvent),
		errors.Is(err, wizard.ErrInvalidPayload),
		errors.Is(err, forms.ErrUnknownField):
		return http.StatusBadRequest
	case errors.Is(err, wizard.ErrSubmitting):
		return http.StatusConflict
	case errors.Is(err, wizard.ErrControllerClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnprocessableEntity
	}
}

// rejectReason labels a failed event for metrics. It is empty for nil.
func rejectReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, limits.ErrRateLimitExceeded):
		return "rate_limited"
	}
	switch eventStatus(err) {
	case http.StatusBadRequest:
		return "invalid"
	case http.StatusConflict:
		return "busy"
	case http.StatusServiceUnavailable:
		return "closed"
	default:
		return "rejected"
	}
}

// ensureSession returns the caller's session, issuing a new cookie when the
// request has none.
func (s *Server) ensureSession(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	id, ok := sessionID(r)
	if !ok {
		id = NewSessionID()
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    id,
			Path:     "/",
			MaxAge:   int(s.cfg.SessionTTL / time.Second),
			HttpOnly: true,
			Secure:   s.cfg.SecureCookie,
			SameSite: http.SameSiteLaxMode,
		})
	}
	sess, err := s.registry.Get(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return nil, false
	}
	return sess, true
}

func sessionID(r *http.Request) (string, bool) {
	c, err := r.Cookie(SessionCookie)
	if err != nil || !ValidSessionID(c.Value) {
		return "", false
	}
	return c.Value, true
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
