package core

import (
	"container/heap"
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultFallbackInterval bounds how long the registry sleeps when no timer
// is pending.
const DefaultFallbackInterval = 5 * time.Second

// timerEntry is one (deadline, timer) pair waiting in the registry.
type timerEntry struct {
	deadline time.Time
	timer    *Timer
	seq      uint64
	index    int // for heap interface
}

// timerHeap implements heap.Interface ordered by deadline.
type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	n := len(*h)
	entry := x.(*timerEntry)
	entry.index = n
	*h = append(*h, entry)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil // avoid memory leak
	entry.index = -1
	*h = old[0 : n-1]
	return entry
}

func (h timerHeap) peek() *timerEntry {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

// TimerRegistry owns the pending timers and a background goroutine that
// dispatches them when their deadlines pass.
//
// Dispatching only posts a handler onto the timer's target queue; handler
// code never runs on the registry goroutine.
type TimerRegistry struct {
	mu      sync.Mutex
	pq      timerHeap
	seq     uint64
	stopped bool

	wakeup chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	dispatched atomic.Uint64

	fallback time.Duration
	now      func() time.Time
	logger   Logger
	metrics  Metrics
}

// RegistryOption configures a TimerRegistry.
type RegistryOption func(*TimerRegistry)

// WithFallbackInterval sets the sleep used when no timer is pending.
func WithFallbackInterval(d time.Duration) RegistryOption {
	return func(r *TimerRegistry) {
		if d > 0 {
			r.fallback = d
		}
	}
}

// WithRegistryLogger sets the logger.
func WithRegistryLogger(logger Logger) RegistryOption {
	return func(r *TimerRegistry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRegistryMetrics sets the metrics sink.
func WithRegistryMetrics(metrics Metrics) RegistryOption {
	return func(r *TimerRegistry) {
		if metrics != nil {
			r.metrics = metrics
		}
	}
}

// WithClock replaces time.Now for deadline comparisons.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *TimerRegistry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewTimerRegistry creates a registry and starts its dispatch goroutine.
// Call Stop to terminate it.
func NewTimerRegistry(opts ...RegistryOption) *TimerRegistry {
	ctx, cancel := context.WithCancel(context.Background())
	r := &TimerRegistry{
		pq:       make(timerHeap, 0),
		wakeup:   make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		fallback: DefaultFallbackInterval,
		now:      time.Now,
		logger:   NewNoOpLogger(),
		metrics:  &NilMetrics{},
	}
	for _, opt := range opts {
		opt(r)
	}
	heap.Init(&r.pq)
	go r.loop()
	return r
}

// NewTimer creates a timer bound to this registry that posts onto target.
func (r *TimerRegistry) NewTimer(target Poster) *Timer {
	return NewTimer(r, target)
}

// add registers (deadline, t) and wakes the loop when the new entry becomes
// the earliest one.
func (r *TimerRegistry) add(t *Timer, deadline time.Time) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return ErrRegistryStopped
	}

	r.seq++
	entry := &timerEntry{deadline: deadline, timer: t, seq: r.seq}
	heap.Push(&r.pq, entry)
	pending := len(r.pq)
	first := entry.index == 0
	r.mu.Unlock()

	r.metrics.RecordTimersPending(pending)
	if first {
		r.signal()
	}
	return nil
}

// remove deletes every entry that refers to t and returns how many there were.
func (r *TimerRegistry) remove(t *Timer) int {
	r.mu.Lock()
	kept := r.pq[:0]
	removed := 0
	for _, entry := range r.pq {
		if entry.timer == t {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	for i := len(kept); i < len(r.pq); i++ {
		r.pq[i] = nil
	}
	r.pq = kept
	for i, entry := range r.pq {
		entry.index = i
	}
	heap.Init(&r.pq)
	pending := len(r.pq)
	r.mu.Unlock()

	if removed > 0 {
		r.metrics.RecordTimersPending(pending)
	}
	return removed
}

func (r *TimerRegistry) signal() {
	select {
	case r.wakeup <- struct{}{}:
	default:
	}
}

func (r *TimerRegistry) loop() {
	defer close(r.done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		timer.Reset(r.nextWait())

		select {
		case <-r.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		case <-r.wakeup:
			timer.Stop()
		}

		r.dispatchReady()
	}
}

// nextWait returns how long to sleep until the earliest deadline, bounded by
// the fallback interval.
func (r *TimerRegistry) nextWait() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.pq.peek()
	if entry == nil {
		return r.fallback
	}
	wait := entry.deadline.Sub(r.now())
	if wait < 0 {
		return 0
	}
	return min(wait, r.fallback)
}

// dispatchReady pops every entry whose deadline has passed and dispatches the
// timers outside the lock.
func (r *TimerRegistry) dispatchReady() {
	r.mu.Lock()
	now := r.now()
	var ready []*timerEntry
	for {
		entry := r.pq.peek()
		if entry == nil || entry.deadline.After(now) {
			break
		}
		heap.Pop(&r.pq)
		ready = append(ready, entry)
	}
	pending := len(r.pq)
	r.mu.Unlock()

	if len(ready) == 0 {
		return
	}

	for _, entry := range ready {
		r.dispatch(entry)
		r.dispatched.Add(1)
		r.metrics.RecordTimerDispatch(now.Sub(entry.deadline))
	}
	r.metrics.RecordTimersPending(pending)
	r.logger.Debug("dispatched timers", F("count", len(ready)), F("pending", pending))
}

// dispatch hands one entry to its timer. A panicking target is logged and
// the handler is dropped; the dispatch goroutine keeps running.
func (r *TimerRegistry) dispatch(entry *timerEntry) {
	defer func() {
		if v := recover(); v != nil {
			r.logger.Error("timer dispatch panicked",
				F("timer", entry.timer.ID()),
				F("panic", v),
				F("stack", string(debug.Stack())))
		}
	}()
	entry.timer.dispatch()
}

// Stop terminates the dispatch goroutine, waits for it to exit and drops all
// pending entries. Timers scheduled afterwards are refused. Stop is
// idempotent.
func (r *TimerRegistry) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.stopped = true
	r.mu.Unlock()

	r.cancel()
	<-r.done

	// Clear pq to release all Timer references
	r.mu.Lock()
	dropped := len(r.pq)
	r.pq = make(timerHeap, 0)
	r.mu.Unlock()

	if dropped > 0 {
		r.logger.Debug("registry stopped with pending timers", F("dropped", dropped))
	}
}

// Len returns the number of pending entries.
func (r *TimerRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pq)
}

// Stats returns a snapshot of the registry state.
func (r *TimerRegistry) Stats() RegistryStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	var next time.Time
	if entry := r.pq.peek(); entry != nil {
		next = entry.deadline
	}
	return RegistryStats{
		Pending:      len(r.pq),
		Dispatched:   r.dispatched.Load(),
		NextDeadline: next,
		Running:      !r.stopped,
	}
}
