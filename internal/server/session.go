package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gabrielmiguelok/golivekit-wizard/pkg/logging"
	"github.com/gabrielmiguelok/golivekit-wizard/pkg/state"
	"github.com/gabrielmiguelok/golivekit-wizard/pkg/wizard"
)

// SessionCookie names the cookie carrying the session ID.
const SessionCookie = "wizard_session"

// Session errors.
var (
	ErrInvalidSessionID = errors.New("invalid session id")
	ErrRegistryClosed   = errors.New("session registry is closed")
)

// Session is one browser's wizard: a controller over a namespaced slice of
// the store, plus the live connections watching it.
type Session struct {
	ID         string
	Controller *wizard.Controller

	mu       sync.Mutex
	lastSeen time.Time
	subs     map[*Subscription]struct{}
}

// Subscription receives change signals and notifications for a session.
// Wake is signalled (never blocking, coalesced) whenever the state changed;
// receivers read the latest Snapshot from the controller.
type Subscription struct {
	Wake          chan struct{}
	Notifications chan wizard.Notification
}

const notificationBuffer = 8

// Subscribe registers a listener. The returned func unregisters it.
func (s *Session) Subscribe() (*Subscription, func()) {
	sub := &Subscription{
		Wake:          make(chan struct{}, 1),
		Notifications: make(chan wizard.Notification, notificationBuffer),
	}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	return sub, func() {
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()
	}
}

// Subscribers returns the number of live listeners.
func (s *Session) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// LastSeen returns when the session was last used.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) wake() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		select {
		case sub.Wake <- struct{}{}:
		default:
		}
	}
}

func (s *Session) broadcast(n wizard.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		select {
		case sub.Notifications <- n:
		default:
		}
	}
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Store       state.Store
	SessionTTL  time.Duration
	SubmitDelay time.Duration
	Scheduler   wizard.Scheduler
	Logger      logging.Logger

	// OnNotify observes every notification raised by any session.
	OnNotify func(wizard.Notification)
}

// Registry owns the live sessions.
type Registry struct {
	cfg RegistryConfig
	log logging.Logger
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Scheduler == nil {
		cfg.Scheduler = wizard.TimeScheduler
	}
	if cfg.SubmitDelay == 0 {
		cfg.SubmitDelay = wizard.DefaultSubmitDelay
	}
	log := cfg.Logger
	if log == nil {
		log = logging.NopLogger{}
	}
	return &Registry{
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// NewSessionID returns a fresh random session ID.
func NewSessionID() string {
	return uuid.NewString()
}

// ValidSessionID reports whether id is a well-formed session ID.
func ValidSessionID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Get returns the session for id, creating it and loading any persisted
// draft on first use.
func (r *Registry) Get(ctx context.Context, id string) (*Session, error) {
	if !ValidSessionID(id) {
		return nil, ErrInvalidSessionID
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}

	now := r.now()
	if s, ok := r.sessions[id]; ok {
		s.touch(now)
		return s, nil
	}

	s := &Session{
		ID:       id,
		lastSeen: now,
		subs:     make(map[*Subscription]struct{}),
	}
	log := r.log.With(logging.String("session", id))
	kv := state.Namespace(r.cfg.Store, "wizard:"+id+":", r.cfg.SessionTTL)
	s.Controller = wizard.NewController(ctx,
		wizard.WithPersistence(wizard.NewStorePersistence(kv, log)),
		wizard.WithScheduler(r.cfg.Scheduler),
		wizard.WithSubmitDelay(r.cfg.SubmitDelay),
		wizard.WithLogger(log),
		wizard.WithNotifier(func(n wizard.Notification) {
			s.broadcast(n)
			if r.cfg.OnNotify != nil {
				r.cfg.OnNotify(n)
			}
		}),
		wizard.WithChangeHook(func(wizard.Snapshot) { s.wake() }),
	)
	r.sessions[id] = s
	log.Debug("session opened", logging.Int("step", int(s.Controller.Step())))
	return s, nil
}

// Lookup returns an existing session without creating one.
func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Evict closes sessions without listeners that have been idle for longer
// than idle. Their drafts stay in the store until the TTL expires them.
func (r *Registry) Evict(idle time.Duration) int {
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	var victims []*Session
	for id, s := range r.sessions {
		if s.Subscribers() == 0 && s.LastSeen().Before(cutoff) {
			victims = append(victims, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range victims {
		s.Controller.Close()
		r.log.Debug("session evicted", logging.String("session", s.ID))
	}
	return len(victims)
}

// Close closes every session.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.closed = true
	r.mu.Unlock()

	for _, s := range sessions {
		s.Controller.Close()
	}
}
