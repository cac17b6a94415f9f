package core

import (
	"context"
	"sync"
)

// WorkItem is a single unit of deferred execution.
//
// Ownership moves with the item: the producer hands it to a DeferredQueue (or a
// Timer), the queue hands it to exactly one executing goroutine, and nobody
// keeps a reference afterwards. Execute is called at most once by the queue.
type WorkItem interface {
	Execute(ctx context.Context) error
}

// Func adapts a plain closure into a WorkItem that never fails.
type Func func(ctx context.Context)

// Execute runs f.
func (f Func) Execute(ctx context.Context) error {
	f(ctx)
	return nil
}

// ErrFunc adapts a closure that reports failure through its return value.
type ErrFunc func(ctx context.Context) error

// Execute runs f and returns its error.
func (f ErrFunc) Execute(ctx context.Context) error {
	return f(ctx)
}

// Work is a single-shot WorkItem. The first Execute runs the wrapped function
// and releases it, so resources captured by the closure become collectable
// as soon as the execution completes. Later calls return ErrWorkConsumed.
type Work struct {
	mu sync.Mutex
	fn func(ctx context.Context) error
}

// NewWork wraps fn into a single-shot work item.
func NewWork(fn func(ctx context.Context) error) *Work {
	return &Work{fn: fn}
}

// Execute runs the wrapped function once.
func (w *Work) Execute(ctx context.Context) error {
	w.mu.Lock()
	fn := w.fn
	w.fn = nil
	w.mu.Unlock()

	if fn == nil {
		return ErrWorkConsumed
	}
	return fn(ctx)
}

// Consumed reports whether the work item has already executed.
func (w *Work) Consumed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fn == nil
}

// Once guards an arbitrary WorkItem with single-shot semantics.
func Once(item WorkItem) WorkItem {
	if item == nil {
		return nil
	}
	if w, ok := item.(*Work); ok {
		return w
	}
	return NewWork(item.Execute)
}

// =============================================================================
// Context Helper
// =============================================================================
type queueKeyType struct{}

var queueKey queueKeyType

// CurrentQueue returns the DeferredQueue executing the work item that owns ctx,
// or nil when ctx was not produced by a queue.
func CurrentQueue(ctx context.Context) *DeferredQueue {
	if v := ctx.Value(queueKey); v != nil {
		return v.(*DeferredQueue)
	}
	return nil
}
