package wizard

import (
	"context"
	"sync"
	"time"

	"github.com/gabrielmiguelok/golivekit-wizard/pkg/forms"
	"github.com/gabrielmiguelok/golivekit-wizard/pkg/state"
)

// fakeScheduler records scheduled calls until Fire runs them.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{delay: d, fn: f}
	s.timers = append(s.timers, t)
	return t
}

// Fire runs every pending timer and returns how many ran.
func (s *fakeScheduler) Fire() int {
	s.mu.Lock()
	var due []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
	return len(due)
}

func (s *fakeScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type recorder struct {
	mu            sync.Mutex
	notifications []Notification
	snapshots     []Snapshot
}

func (r *recorder) notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
}

func (r *recorder) change(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
}

func (r *recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notifications...)
}

type harness struct {
	ctl   *Controller
	kv    *state.MemoryStore
	sched *fakeScheduler
	rec   *recorder
}

func newHarness() *harness {
	kv := state.NewMemoryStore()
	return newHarnessWithStore(kv)
}

func newHarnessWithStore(kv *state.MemoryStore) *harness {
	h := &harness{
		kv:    kv,
		sched: &fakeScheduler{},
		rec:   &recorder{},
	}
	h.ctl = NewController(context.Background(),
		WithPersistence(NewStorePersistence(kv, nil)),
		WithScheduler(h.sched),
		WithSubmitDelay(time.Second),
		WithNotifier(h.rec.notify),
		WithChangeHook(h.rec.change),
	)
	return h
}

var validPersonal = map[string]string{
	forms.KeyName:  "Alice",
	forms.KeyEmail: "alice@example.com",
	forms.KeyPhone: "1234567890",
}

var validAddress = map[string]string{
	forms.KeyAddressLine1: "221B Baker Street",
	forms.KeyCity:         "London",
	forms.KeyState:        "Greater London",
	forms.KeyZipCode:      "123456",
}

func (h *harness) fill(values map[string]string) error {
	for k, v := range values {
		if err := h.ctl.SetField(context.Background(), k, v); err != nil {
			return err
		}
	}
	return nil
}
