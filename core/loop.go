package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Loop binds a dedicated goroutine to a DeferredQueue and keeps running it
// until stopped.
//
// The goroutine calls RunContext with the idle timeout over and over, so an
// idle period only causes a fresh wait. All work posted to the queue executes
// sequentially on that goroutine.
type Loop struct {
	queue *DeferredQueue
	idle  time.Duration

	// Lifecycle control
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started atomic.Bool
	closed  atomic.Bool
	stopped chan struct{}
}

// NewLoop creates a loop for q. idle is the timeout passed to each RunContext
// call; a non-positive value selects one second.
func NewLoop(q *DeferredQueue, idle time.Duration) *Loop {
	if idle <= 0 {
		idle = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{
		queue:   q,
		idle:    idle,
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
}

// Queue returns the queue driven by the loop.
func (l *Loop) Queue() *DeferredQueue {
	return l.queue
}

// Post forwards item to the loop's queue.
func (l *Loop) Post(item WorkItem) {
	l.queue.Post(item)
}

// Start spawns the dedicated goroutine. Starting a running loop is a no-op;
// a loop that has been stopped cannot be restarted.
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed.Load() {
		return ErrLoopStopped
	}
	if l.started.Load() {
		return nil
	}
	l.started.Store(true)
	go l.run()
	return nil
}

// IsRunning reports whether the loop goroutine has been started and not yet
// told to stop.
func (l *Loop) IsRunning() bool {
	return l.started.Load() && !l.closed.Load()
}

// Shutdown tells the loop to exit after the current work item without
// waiting for it. Safe to call from a work item running on the loop.
func (l *Loop) Shutdown() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed.Load() {
		return
	}
	l.closed.Store(true)
	l.cancel()
	if !l.started.Load() {
		close(l.stopped)
	}
}

// Stop shuts the loop down and waits for the goroutine to exit. Items still
// queued stay in the queue. Must not be called from the loop goroutine.
func (l *Loop) Stop() {
	l.Shutdown()
	<-l.stopped
}

// Done is closed once the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.stopped
}

func (l *Loop) run() {
	defer close(l.stopped) // Signal that Stop() can return

	for {
		if err := l.queue.RunContext(l.ctx, l.idle); err != nil {
			return
		}
		l.queue.logger.Debug("queue idle", F("queue", l.queue.Name()), F("timeout", l.idle))
	}
}

// WaitIdle blocks until every item posted before the call has executed.
// It posts a barrier item and waits for it, the loop exit or ctx.
func (l *Loop) WaitIdle(ctx context.Context) error {
	if !l.IsRunning() {
		return ErrLoopStopped
	}

	done := make(chan struct{})
	l.queue.PostFunc(func(context.Context) {
		close(done)
	})

	select {
	case <-done:
		return nil
	case <-l.stopped:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FlushAsync posts callback behind every item already queued.
func (l *Loop) FlushAsync(callback func()) {
	l.queue.PostFunc(func(context.Context) {
		callback()
	})
}
