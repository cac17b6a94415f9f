package msgqueue

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-message-queue/core"
)

// =============================================================================
// Default Registry Helper
// =============================================================================

var (
	defaultRegistry *core.TimerRegistry
	defaultMu       sync.Mutex
)

// DefaultRegistry returns a process-wide registry, creating it on first use.
// Nothing in core uses it implicitly; pass it to NewTimer like any other
// registry.
func DefaultRegistry() *core.TimerRegistry {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultRegistry == nil {
		defaultRegistry = core.NewTimerRegistry()
	}
	return defaultRegistry
}

// ShutdownDefaultRegistry stops the process-wide registry. A later call to
// DefaultRegistry creates a fresh one.
func ShutdownDefaultRegistry() {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultRegistry != nil {
		defaultRegistry.Stop()
		defaultRegistry = nil
	}
}

// PostAfter posts item onto target once delay has elapsed, using a one-shot
// timer that closes itself when it fires. Closing the returned timer before
// then cancels the post. It returns nil for a nil item or when the registry refused the timer.
func PostAfter(registry *core.TimerRegistry, target Poster, delay time.Duration, item WorkItem) *Timer {
	if item == nil {
		return nil
	}
	t := core.NewTimer(registry, target)
	ok := t.ScheduleAfter(delay, core.ErrFunc(func(ctx context.Context) error {
		t.Close()
		return item.Execute(ctx)
	}))
	if !ok {
		t.Close()
		return nil
	}
	return t
}
