package server

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gabrielmiguelok/golivekit-wizard/pkg/limits"
	"github.com/gabrielmiguelok/golivekit-wizard/pkg/logging"
	"github.com/gabrielmiguelok/golivekit-wizard/pkg/state"
)

// Sweeper periodically evicts idle sessions, forgets their rate limit
// buckets and purges expired drafts from stores that need it.
type Sweeper struct {
	cron     *cron.Cron
	registry *Registry
	store    state.Store
	limiter  *limits.TokenBucket
	idle     time.Duration
	log      logging.Logger
}

// NewSweeper schedules a sweep on spec, a standard cron expression or
// descriptor such as "@every 1m". Call Start to begin.
func NewSweeper(spec string, registry *Registry, store state.Store, limiter *limits.TokenBucket, idle time.Duration, log logging.Logger) (*Sweeper, error) {
	if log == nil {
		log = logging.NopLogger{}
	}
	cl := cronLogger{log}
	s := &Sweeper{
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		registry: registry,
		store:    store,
		limiter:  limiter,
		idle:     idle,
		log:      log,
	}
	if _, err := s.cron.AddFunc(spec, func() { s.Run(context.Background()) }); err != nil {
		return nil, fmt.Errorf("schedule sweep %q: %w", spec, err)
	}
	return s, nil
}

// Start runs the schedule in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Run performs one sweep.
func (s *Sweeper) Run(ctx context.Context) {
	evicted := s.registry.Evict(s.idle)

	pruned := 0
	if s.limiter != nil {
		pruned = s.limiter.Prune(s.idle)
	}

	expired := 0
	if sw, ok := s.store.(state.Sweeper); ok {
		n, err := sw.Sweep(ctx)
		if err != nil {
			s.log.Warn("sweep store", logging.Err(err))
		}
		expired = n
	}

	if evicted+pruned+expired > 0 {
		s.log.Info("sweep finished",
			logging.Int("sessions", evicted),
			logging.Int("buckets", pruned),
			logging.Int("entries", expired),
		)
	}
}

// cronLogger adapts logging.Logger to cron.Logger.
type cronLogger struct {
	log logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, pairs(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(pairs(keysAndValues), logging.Err(err))...)
}

func pairs(kv []any) []logging.Field {
	fields := make([]logging.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		fields = append(fields, logging.Any(key, kv[i+1]))
	}
	return fields
}
