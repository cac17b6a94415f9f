package core

import (
	"sync"
	"time"

	"github.com/rs/xid"
)

// TimerState is the lifecycle state of a Timer.
type TimerState int32

const (
	// TimerIdle means no handler is pending.
	TimerIdle TimerState = iota
	// TimerWaiting means a handler is registered and waits for its deadline.
	TimerWaiting
)

func (s TimerState) String() string {
	switch s {
	case TimerIdle:
		return "idle"
	case TimerWaiting:
		return "waiting"
	default:
		return "unknown"
	}
}

// Timer delivers one handler onto a target queue when a deadline is reached.
//
// A Timer holds at most one pending handler. When the registry dispatches it,
// the handler is posted onto the target and the timer returns to TimerIdle,
// ready to be scheduled again (also from inside the handler itself).
//
// Close must be called when the timer is no longer needed; it cancels a
// pending handler.
type Timer struct {
	id       string
	registry *TimerRegistry
	target   Poster

	mu       sync.Mutex
	state    TimerState
	closed   bool
	handler  WorkItem
	deadline time.Time
}

// NewTimer creates an idle timer that posts onto target through registry.
// It panics if target is nil.
func NewTimer(registry *TimerRegistry, target Poster) *Timer {
	if target == nil {
		panic("core: NewTimer with nil target")
	}
	return &Timer{
		id:       xid.New().String(),
		registry: registry,
		target:   target,
	}
}

// ID returns the unique identifier of the timer.
func (t *Timer) ID() string {
	return t.id
}

// State returns the current state.
func (t *Timer) State() TimerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Deadline returns the deadline of the pending handler, or the zero time when
// the timer is idle.
func (t *Timer) Deadline() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TimerWaiting {
		return time.Time{}
	}
	return t.deadline
}

// Schedule arms the timer: at deadline, handler is posted onto the target.
//
// Only an idle timer can be armed. If the timer is already waiting the call
// does nothing and the earlier deadline and handler are kept. Schedule
// reports whether the handler was accepted; TrySchedule tells why not.
// A deadline in the past fires on the next registry pass.
func (t *Timer) Schedule(deadline time.Time, handler WorkItem) bool {
	return t.TrySchedule(deadline, handler) == nil
}

// TrySchedule is Schedule returning ErrTimerWaiting, ErrTimerClosed,
// ErrNilHandler or ErrRegistryStopped when the handler is not accepted.
func (t *Timer) TrySchedule(deadline time.Time, handler WorkItem) error {
	if handler == nil {
		return ErrNilHandler
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTimerClosed
	}
	if t.state == TimerWaiting {
		return ErrTimerWaiting
	}
	if err := t.registry.add(t, deadline); err != nil {
		return err
	}
	t.state = TimerWaiting
	t.handler = handler
	t.deadline = deadline
	return nil
}

// ScheduleAfter arms the timer to fire d from now, as seen by the registry clock.
func (t *Timer) ScheduleAfter(d time.Duration, handler WorkItem) bool {
	return t.Schedule(t.registry.now().Add(d), handler)
}

// dispatch is called by the registry once the deadline has passed. It moves
// the handler onto the target queue and returns the timer to idle.
func (t *Timer) dispatch() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != TimerWaiting {
		return
	}
	handler := t.handler
	t.handler = nil
	t.state = TimerIdle
	t.target.Post(handler)
}

// Close cancels a pending handler and releases it. A closed timer cannot be
// scheduled again. Close is idempotent.
func (t *Timer) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	if t.state == TimerWaiting {
		t.registry.remove(t)
		t.state = TimerIdle
	}
	t.handler = nil
}
