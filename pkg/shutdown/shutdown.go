// Package shutdown runs ordered cleanup hooks when the process stops.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gabrielmiguelok/golivekit-wizard/pkg/logging"
)

// ErrAlreadyRun is returned when Run is called more than once.
var ErrAlreadyRun = errors.New("shutdown already run")

// Hook priorities used by the wizard server. Lower runs first.
const (
	PriorityHTTP     = 10
	PrioritySessions = 20
	PrioritySweeper  = 30
	PriorityStore    = 40
)

// Hook is a named cleanup step.
type Hook struct {
	// Name identifies the hook for logging.
	Name string

	// Priority determines execution order (lower = earlier).
	Priority int

	// Fn runs during shutdown.
	Fn func(ctx context.Context) error
}

// Group collects hooks and runs them once.
type Group struct {
	mu    sync.Mutex
	hooks []Hook
	ran   bool
	log   logging.Logger
}

// NewGroup creates an empty group. A nil logger discards output.
func NewGroup(log logging.Logger) *Group {
	if log == nil {
		log = logging.NopLogger{}
	}
	return &Group{log: log}
}

// Add registers fn under name.
func (g *Group) Add(name string, priority int, fn func(ctx context.Context) error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hooks = append(g.hooks, Hook{Name: name, Priority: priority, Fn: fn})
}

// Len returns the number of registered hooks.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.hooks)
}

// Run executes every hook in priority order, registration order breaking
// ties. A failing hook does not stop the ones after it.
func (g *Group) Run(ctx context.Context) error {
	g.mu.Lock()
	if g.ran {
		g.mu.Unlock()
		return ErrAlreadyRun
	}
	g.ran = true
	hooks := make([]Hook, len(g.hooks))
	copy(hooks, g.hooks)
	g.mu.Unlock()

	sort.SliceStable(hooks, func(i, j int) bool {
		return hooks[i].Priority < hooks[j].Priority
	})

	var errs []error
	for _, hook := range hooks {
		start := time.Now()
		err := hook.Fn(ctx)
		elapsed := time.Since(start)
		if err != nil {
			g.log.Error("shutdown hook failed",
				logging.String("hook", hook.Name),
				logging.Duration("duration", elapsed),
				logging.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", hook.Name, err))
			continue
		}
		g.log.Debug("shutdown hook done",
			logging.String("hook", hook.Name),
			logging.Duration("duration", elapsed))
	}
	return errors.Join(errs...)
}
