package core

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// Poster accepts work items for deferred execution.
type Poster interface {
	Post(item WorkItem)
}

// DeferredQueue is a thread-safe FIFO of work items drained by one or more
// goroutines calling Run.
//
// Items leave the queue in exactly the order they were posted, whichever
// goroutine posted them. When several goroutines run the same queue the items
// are shared between them; each item executes exactly once.
//
// A queue must not be discarded while a goroutine is inside Run.
type DeferredQueue struct {
	id   string
	name string

	mu    sync.Mutex
	items []WorkItem
	// wake is closed (and replaced) by Post when goroutines are blocked in Run.
	wake    chan struct{}
	waiters int

	running   atomic.Int32
	executed  atomic.Uint64
	failed    atomic.Uint64
	lastRunAt atomic.Int64

	logger   Logger
	metrics  Metrics
	failures FailureHandler
	history  *executionHistory
}

var _ Poster = (*DeferredQueue)(nil)

// QueueOption configures a DeferredQueue.
type QueueOption func(*DeferredQueue)

// WithQueueName sets the name used in logs, metrics and stats.
func WithQueueName(name string) QueueOption {
	return func(q *DeferredQueue) {
		if name != "" {
			q.name = name
		}
	}
}

// WithQueueLogger sets the logger. Defaults to NewDefaultLogger.
func WithQueueLogger(logger Logger) QueueOption {
	return func(q *DeferredQueue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithQueueMetrics sets the metrics sink. Defaults to NilMetrics.
func WithQueueMetrics(metrics Metrics) QueueOption {
	return func(q *DeferredQueue) {
		if metrics != nil {
			q.metrics = metrics
		}
	}
}

// WithFailureHandler sets the handler for failed executions. Defaults to a
// LoggingFailureHandler on the queue logger.
func WithFailureHandler(h FailureHandler) QueueOption {
	return func(q *DeferredQueue) {
		q.failures = h
	}
}

// WithHistorySize sets how many execution records Recent can return.
func WithHistorySize(n int) QueueOption {
	return func(q *DeferredQueue) {
		q.history = newExecutionHistory(n)
	}
}

// NewDeferredQueue creates an empty queue.
func NewDeferredQueue(opts ...QueueOption) *DeferredQueue {
	q := &DeferredQueue{
		id:      uuid.NewString(),
		name:    "queue",
		items:   make([]WorkItem, 0, defaultQueueCap),
		wake:    make(chan struct{}),
		logger:  NewDefaultLogger(),
		metrics: &NilMetrics{},
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.failures == nil {
		q.failures = NewLoggingFailureHandler(q.logger)
	}
	if q.history == nil {
		q.history = newExecutionHistory(defaultHistoryCapacity)
	}
	return q
}

// ID returns the unique identifier of the queue instance.
func (q *DeferredQueue) ID() string {
	return q.id
}

// Name returns the queue name.
func (q *DeferredQueue) Name() string {
	return q.name
}

// Post appends item at the tail and wakes every goroutine blocked in Run.
// It never blocks beyond the internal lock and may be called from any
// goroutine, including from a work item executing on this queue.
// A nil item is ignored.
func (q *DeferredQueue) Post(item WorkItem) {
	if item == nil {
		return
	}

	q.mu.Lock()
	q.items = append(q.items, item)
	depth := len(q.items)
	if q.waiters > 0 {
		close(q.wake)
		q.wake = make(chan struct{})
	}
	q.mu.Unlock()

	q.metrics.RecordQueueDepth(q.name, depth)
}

// PostFunc posts fn wrapped as a Func.
func (q *DeferredQueue) PostFunc(fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	q.Post(Func(fn))
}

// Run executes posted work until the queue stays empty for timeout.
//
// Each pass waits for work, then pops and executes items until a pop finds
// the queue empty, including items posted during the pass. Run therefore
// keeps going while work keeps arriving, and only returns after an idle
// period of timeout. A timeout <= 0 drains the items present and returns as
// soon as the queue is empty.
//
// Errors and panics raised by work items are reported to the failure handler
// and never stop the loop.
func (q *DeferredQueue) Run(timeout time.Duration) {
	_ = q.RunContext(context.Background(), timeout)
}

// RunContext is Run with cancellation. It returns nil after an idle timeout,
// or ctx.Err() once ctx is done. Cancellation is observed while waiting and
// between items; an executing item is never interrupted.
func (q *DeferredQueue) RunContext(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	runCtx := context.WithValue(ctx, queueKey, q)

	for {
		ok, err := q.waitWork(ctx, timeout, timer)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			item, ok := q.pop()
			if !ok {
				break
			}
			q.execute(runCtx, item)
		}
	}
}

// waitWork blocks until the queue is non-empty (true), the wait times out
// with the queue still empty (false) or ctx is done.
func (q *DeferredQueue) waitWork(ctx context.Context, timeout time.Duration, timer *time.Timer) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 {
		if timeout <= 0 {
			return false, nil
		}

		wake := q.wake
		q.waiters++
		q.mu.Unlock()

		timer.Reset(timeout)
		timedOut := false
		var err error
		select {
		case <-wake:
		case <-timer.C:
			timedOut = true
		case <-ctx.Done():
			err = ctx.Err()
		}
		timer.Stop()

		q.mu.Lock()
		q.waiters--
		if err != nil {
			return false, err
		}
		if timedOut {
			return len(q.items) > 0, nil
		}
	}
	return true, nil
}

// pop removes and returns the head item.
func (q *DeferredQueue) pop() (WorkItem, bool) {
	q.mu.Lock()

	if len(q.items) == 0 {
		q.mu.Unlock()
		return nil, false
	}

	item := q.items[0]
	// Zero out the slot so the queue no longer references the item
	q.items[0] = nil
	q.items = q.items[1:]
	q.maybeCompactLocked()
	depth := len(q.items)
	q.mu.Unlock()

	q.metrics.RecordQueueDepth(q.name, depth)
	return item, true
}

func (q *DeferredQueue) maybeCompactLocked() {
	n := len(q.items)
	c := cap(q.items)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.items = make([]WorkItem, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)

	newSlice := make([]WorkItem, n, newCap)
	copy(newSlice, q.items)
	q.items = newSlice
}

func (q *DeferredQueue) execute(ctx context.Context, item WorkItem) {
	q.running.Add(1)
	startedAt := time.Now()
	err := runAndCatch(ctx, item)
	finishedAt := time.Now()
	q.running.Add(-1)

	q.executed.Add(1)
	q.lastRunAt.Store(finishedAt.UnixNano())
	duration := finishedAt.Sub(startedAt)
	q.metrics.RecordWorkDuration(q.name, duration)

	var pe *WorkPanicError
	panicked := errors.As(err, &pe)
	if err != nil {
		q.failed.Add(1)
		q.metrics.RecordWorkFailure(q.name, panicked)
		q.reportFailure(ctx, err)
	}

	q.history.Add(ExecutionRecord{
		Queue:      q.name,
		Kind:       workKind(item),
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Duration:   duration,
		Failed:     err != nil,
		Panicked:   panicked,
	})
}

func (q *DeferredQueue) reportFailure(ctx context.Context, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			q.logger.Error("failure handler panicked", F("queue", q.name), F("panic", rec))
		}
	}()
	q.failures.HandleFailure(ctx, q.name, err)
}

// runAndCatch executes item, converting a panic into a *WorkPanicError.
func runAndCatch(ctx context.Context, item WorkItem) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &WorkPanicError{Value: rec, Stack: debug.Stack()}
		}
	}()
	return item.Execute(ctx)
}

// Len returns the number of pending items.
func (q *DeferredQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear discards all pending items without executing them and returns how
// many were dropped.
func (q *DeferredQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	// Create a new slice to release all item references
	q.items = make([]WorkItem, 0, defaultQueueCap)
	return n
}

// Recent returns up to limit execution records, newest first.
func (q *DeferredQueue) Recent(limit int) []ExecutionRecord {
	return q.history.Recent(limit)
}

// Stats returns a snapshot of the queue state.
func (q *DeferredQueue) Stats() QueueStats {
	q.mu.Lock()
	pending := len(q.items)
	waiting := q.waiters
	q.mu.Unlock()

	var lastRunAt time.Time
	if ns := q.lastRunAt.Load(); ns != 0 {
		lastRunAt = time.Unix(0, ns)
	}

	return QueueStats{
		ID:        q.id,
		Name:      q.name,
		Pending:   pending,
		Running:   int(q.running.Load()),
		Waiting:   waiting,
		Executed:  q.executed.Load(),
		Failed:    q.failed.Load(),
		LastRunAt: lastRunAt,
	}
}
