package core

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// RepeatingHandle controls a handler that re-arms its timer after every run.
type RepeatingHandle struct {
	timer   *Timer
	fn      func(ctx context.Context)
	next    func(now time.Time) time.Time
	runs    atomic.Uint64
	stopped atomic.Bool
}

// Repeat posts fn onto the timer's target every interval until the handle is
// stopped. The timer is re-armed from inside the posted item, after fn has
// returned (or panicked), so runs never overlap and the period is measured from the end of
// the previous run. The timer must be idle. Repeat panics if interval is not
// positive, as time.NewTicker does.
func Repeat(t *Timer, interval time.Duration, fn func(ctx context.Context)) *RepeatingHandle {
	if interval <= 0 {
		panic("core: non-positive interval for Repeat")
	}
	h := &RepeatingHandle{
		timer: t,
		fn:    fn,
		next: func(now time.Time) time.Time {
			return now.Add(interval)
		},
	}
	h.arm()
	return h
}

// RepeatCron is Repeat driven by a cron expression. Standard five-field specs
// and descriptors such as "@every 1s" or "@hourly" are accepted. A schedule
// that has no further activation stops the handle.
func RepeatCron(t *Timer, spec string, fn func(ctx context.Context)) (*RepeatingHandle, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron spec %q: %w", spec, err)
	}
	h := &RepeatingHandle{
		timer: t,
		fn:    fn,
		next:  schedule.Next,
	}
	h.arm()
	return h, nil
}

func (h *RepeatingHandle) arm() {
	if h.stopped.Load() {
		return
	}
	next := h.next(h.timer.registry.now())
	if next.IsZero() {
		h.Stop()
		return
	}
	h.timer.Schedule(next, Func(h.fire))
}

func (h *RepeatingHandle) fire(ctx context.Context) {
	if h.stopped.Load() {
		return
	}
	defer h.arm()
	h.fn(ctx)
	h.runs.Add(1)
}

// Stop prevents further runs and closes the timer.
func (h *RepeatingHandle) Stop() {
	if h.stopped.Swap(true) {
		return
	}
	h.timer.Close()
}

// IsStopped reports whether Stop has been called.
func (h *RepeatingHandle) IsStopped() bool {
	return h.stopped.Load()
}

// Runs returns how many times fn has completed.
func (h *RepeatingHandle) Runs() uint64 {
	return h.runs.Load()
}
