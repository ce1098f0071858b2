package wizard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gabrielmiguelok/golivekit-wizard/pkg/forms"
	"github.com/gabrielmiguelok/golivekit-wizard/pkg/logging"
)

// Controller errors.
var (
	ErrStepInvalid      = errors.New("current step has invalid or missing fields")
	ErrLastStep         = errors.New("already on the last step")
	ErrStepOutOfRange   = errors.New("step out of range")
	ErrNotConfirmation  = errors.New("submit is only allowed from the confirmation step")
	ErrSubmitting       = errors.New("submission in progress")
	ErrControllerClosed = errors.New("controller is closed")
)

// DefaultSubmitDelay is the simulated submission latency.
const DefaultSubmitDelay = time.Second

// Notification messages.
const (
	SubmitSuccessMessage = "Form submitted successfully!"
	SubmitFailureMessage = "Please fill in all required fields correctly."
)

// NotificationKind distinguishes user-visible notifications.
type NotificationKind string

const (
	NotifySuccess NotificationKind = "success"
	NotifyFailure NotificationKind = "failure"
)

// Notification is a user-visible message emitted by the controller.
type Notification struct {
	Kind    NotificationKind `json:"kind"`
	Message string           `json:"message"`
}

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d without blocking the caller. f must not be
// invoked before AfterFunc has returned.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// SchedulerFunc adapts a function to Scheduler.
type SchedulerFunc func(d time.Duration, f func()) Timer

func (fn SchedulerFunc) AfterFunc(d time.Duration, f func()) Timer {
	return fn(d, f)
}

// TimeScheduler schedules with time.AfterFunc.
var TimeScheduler Scheduler = SchedulerFunc(func(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
})

// Controller orchestrates step transitions and submission for one wizard
// session. All methods are safe for concurrent use; operations are applied
// one at a time.
type Controller struct {
	store     *FormStore
	persist   Persistence
	scheduler Scheduler
	delay     time.Duration
	notify    func(Notification)
	onChange  func(Snapshot)
	log       logging.Logger

	submitting bool
	pending    Timer
	closed     bool

	mu sync.Mutex
}

type controllerConfig struct {
	schema    *forms.Schema
	persist   Persistence
	scheduler Scheduler
	delay     time.Duration
	notify    func(Notification)
	onChange  func(Snapshot)
	log       logging.Logger
}

// Option configures a Controller.
type Option func(*controllerConfig)

// WithSchema overrides the field table.
func WithSchema(schema *forms.Schema) Option {
	return func(c *controllerConfig) {
		c.schema = schema
	}
}

// WithPersistence sets the persistence adapter.
func WithPersistence(p Persistence) Option {
	return func(c *controllerConfig) {
		c.persist = p
	}
}

// WithScheduler sets the scheduler used for the submission delay.
func WithScheduler(s Scheduler) Option {
	return func(c *controllerConfig) {
		c.scheduler = s
	}
}

// WithSubmitDelay sets the simulated submission latency.
func WithSubmitDelay(d time.Duration) Option {
	return func(c *controllerConfig) {
		c.delay = d
	}
}

// WithNotifier sets the notification callback.
func WithNotifier(fn func(Notification)) Option {
	return func(c *controllerConfig) {
		c.notify = fn
	}
}

// WithChangeHook sets a callback invoked with a fresh snapshot after every
// state change, including the asynchronous end of a submission.
func WithChangeHook(fn func(Snapshot)) Option {
	return func(c *controllerConfig) {
		c.onChange = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(c *controllerConfig) {
		c.log = l
	}
}

// NewController creates a controller and seeds it from persistence.
func NewController(ctx context.Context, opts ...Option) *Controller {
	cfg := &controllerConfig{
		schema:    forms.AddressSchema(),
		persist:   NopPersistence{},
		scheduler: TimeScheduler,
		delay:     DefaultSubmitDelay,
		log:       logging.NopLogger{},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	store := NewFormStore(cfg.schema, cfg.persist, cfg.log)
	data, step := cfg.persist.Load(ctx)
	store.Restore(data, step)

	return &Controller{
		store:     store,
		persist:   cfg.persist,
		scheduler: cfg.scheduler,
		delay:     cfg.delay,
		notify:    cfg.notify,
		onChange:  cfg.onChange,
		log:       cfg.log,
	}
}

// mutate runs fn under the lock and publishes the resulting snapshot when
// fn reports a change.
func (c *Controller) mutate(fn func() (bool, error)) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	if c.submitting {
		c.mu.Unlock()
		return ErrSubmitting
	}
	changed, err := fn()
	if !changed {
		c.mu.Unlock()
		return err
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.publish(snap)
	return err
}

// SetField records a new value for name and validates it.
func (c *Controller) SetField(ctx context.Context, name, value string) error {
	return c.mutate(func() (bool, error) {
		if _, err := c.store.SetField(ctx, name, value); err != nil {
			return false, err
		}
		return true, nil
	})
}

// TouchField re-validates name when it loses focus.
func (c *Controller) TouchField(ctx context.Context, name, value string) error {
	return c.mutate(func() (bool, error) {
		if _, err := c.store.TouchField(name, value); err != nil {
			return false, err
		}
		return true, nil
	})
}

// IsStepValid reports whether every required field of step is non-blank
// and free of recorded errors.
func (c *Controller) IsStepValid(step Step) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stepValidLocked(step)
}

func (c *Controller) stepValidLocked(step Step) bool {
	if !step.Valid() {
		return false
	}
	for _, name := range RequiredFields(c.store.Schema(), step) {
		if !c.store.FieldValid(name) {
			return false
		}
	}
	return true
}

// Next advances one step when the current step is valid.
func (c *Controller) Next(ctx context.Context) error {
	return c.mutate(func() (bool, error) {
		cur := c.store.Step()
		if cur >= StepConfirmation {
			return false, ErrLastStep
		}
		if !c.stepValidLocked(cur) {
			c.log.Debug("next rejected", logging.Int("step", int(cur)))
			return false, ErrStepInvalid
		}
		c.store.SetStep(ctx, cur+1)
		return true, nil
	})
}

// Back returns to the previous step. It is a no-op on the first step.
func (c *Controller) Back(ctx context.Context) error {
	return c.mutate(func() (bool, error) {
		cur := c.store.Step()
		if cur == StepPersonal {
			return false, nil
		}
		c.store.SetStep(ctx, cur-1)
		return true, nil
	})
}

// JumpTo moves directly to any step without validation.
func (c *Controller) JumpTo(ctx context.Context, step Step) error {
	return c.mutate(func() (bool, error) {
		if !step.Valid() {
			return false, ErrStepOutOfRange
		}
		if step == c.store.Step() {
			return false, nil
		}
		c.store.SetStep(ctx, step)
		return true, nil
	})
}

// Submit starts the simulated submission. It returns immediately; the
// form is reset and persisted state cleared once the delay has elapsed.
// When the personal or address step is invalid a failure notification is
// emitted and ErrStepInvalid returned.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrControllerClosed
	case c.submitting:
		c.mu.Unlock()
		return ErrSubmitting
	case c.store.Step() != StepConfirmation:
		c.mu.Unlock()
		return ErrNotConfirmation
	}

	if !c.stepValidLocked(StepPersonal) || !c.stepValidLocked(StepAddress) {
		c.mu.Unlock()
		c.log.Info("submission rejected: form invalid")
		c.emit(Notification{Kind: NotifyFailure, Message: SubmitFailureMessage})
		return ErrStepInvalid
	}

	c.submitting = true
	completeCtx := context.WithoutCancel(ctx)
	c.pending = c.scheduler.AfterFunc(c.delay, func() {
		c.complete(completeCtx)
	})
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.log.Info("submission started", logging.Duration("delay", c.delay))
	c.publish(snap)
	return nil
}

func (c *Controller) complete(ctx context.Context) {
	c.mu.Lock()
	if c.closed || !c.submitting {
		c.mu.Unlock()
		return
	}
	c.submitting = false
	c.pending = nil
	c.store.Reset(ctx)
	if err := c.persist.Clear(ctx); err != nil {
		c.log.Warn("clear persisted state", logging.Err(err))
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.log.Info("submission completed")
	c.emit(Notification{Kind: NotifySuccess, Message: SubmitSuccessMessage})
	c.publish(snap)
}

// Submitting reports whether a submission is in flight.
func (c *Controller) Submitting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitting
}

// Step returns the current step.
func (c *Controller) Step() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Step()
}

// Data returns the current form values.
func (c *Controller) Data() forms.FormData {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Data()
}

// Errors returns a copy of the error map.
func (c *Controller) Errors() forms.ErrorMap {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Errors()
}

// Snapshot returns the presentation view of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Close stops a pending submission and rejects further operations.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
}

func (c *Controller) emit(n Notification) {
	if c.notify != nil {
		c.notify(n)
	}
}

func (c *Controller) publish(s Snapshot) {
	if c.onChange != nil {
		c.onChange(s)
	}
}
