package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestQueue(opts ...QueueOption) *DeferredQueue {
	base := []QueueOption{WithQueueLogger(NewNoOpLogger())}
	return NewDeferredQueue(append(base, opts...)...)
}

// TestDeferredQueue_FIFO verifies items execute in posting order
// Given: A queue with 100 items posted from one goroutine
// When: Run(0) drains the queue
// Then: Items execute in exactly the posting order
func TestDeferredQueue_FIFO(t *testing.T) {
	// Arrange
	q := newTestQueue()
	var got []int
	for i := range 100 {
		q.PostFunc(func(ctx context.Context) {
			got = append(got, i)
		})
	}

	// Act
	q.Run(0)

	// Assert
	if len(got) != 100 {
		t.Fatalf("executed %d items, want 100", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("got[%d] = %d, want %d", i, v, i)
		}
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0", q.Len())
	}
}

// TestDeferredQueue_RunZeroTimeoutEmpty verifies Run(0) returns at once on an empty queue
func TestDeferredQueue_RunZeroTimeoutEmpty(t *testing.T) {
	q := newTestQueue()

	start := time.Now()
	q.Run(0)

	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Run(0) took %v, want immediate return", elapsed)
	}
}

// TestDeferredQueue_IdleTimeout verifies Run returns after the idle timeout
// Given: An empty queue
// When: Run(50ms) is called
// Then: Run returns after roughly 50ms without executing anything
func TestDeferredQueue_IdleTimeout(t *testing.T) {
	// Arrange
	q := newTestQueue()

	// Act
	start := time.Now()
	q.Run(50 * time.Millisecond)
	elapsed := time.Since(start)

	// Assert
	if elapsed < 45*time.Millisecond {
		t.Errorf("Run returned after %v, want >= 50ms", elapsed)
	}
	if elapsed > 2*time.Second {
		t.Errorf("Run returned after %v, want close to 50ms", elapsed)
	}
}

// TestDeferredQueue_PostWakesRun verifies a post wakes a blocked Run
// Given: A goroutine blocked in Run(5s) on an empty queue
// When: An item is posted 20ms later
// Then: The item executes well before the timeout
func TestDeferredQueue_PostWakesRun(t *testing.T) {
	// Arrange
	q := newTestQueue()
	executed := make(chan time.Time, 1)
	go q.Run(5 * time.Second)
	time.Sleep(20 * time.Millisecond)

	// Act
	posted := time.Now()
	q.PostFunc(func(ctx context.Context) {
		executed <- time.Now()
	})

	// Assert
	select {
	case at := <-executed:
		if at.Sub(posted) > time.Second {
			t.Errorf("item executed %v after post, want prompt wake", at.Sub(posted))
		}
	case <-time.After(3 * time.Second):
		t.Fatal("item was not executed")
	}
}

// TestDeferredQueue_ContinuousArrival verifies the timeout measures idle time, not total time
// Given: A producer posting 16 items 50ms apart, about 800ms in total
// When: Run(200ms) runs concurrently
// Then: Run returns only after the last post and all 16 items execute
func TestDeferredQueue_ContinuousArrival(t *testing.T) {
	// Arrange
	const posts = 16
	q := newTestQueue()
	var count atomic.Int32
	var lastPost atomic.Int64
	go func() {
		for i := range posts {
			if i > 0 {
				time.Sleep(50 * time.Millisecond)
			}
			q.PostFunc(func(ctx context.Context) {
				count.Add(1)
			})
			lastPost.Store(time.Now().UnixNano())
		}
	}()

	// Act
	q.Run(200 * time.Millisecond)
	returned := time.Now()

	// Assert
	if got := count.Load(); got != posts {
		t.Errorf("executed = %d, want %d", got, posts)
	}
	last := lastPost.Load()
	if last == 0 || returned.UnixNano() < last {
		t.Errorf("Run returned before the last post")
	}
}

// TestDeferredQueue_ReentrantPost verifies items can post to their own queue
// Given: An item that posts a follow-up through CurrentQueue
// When: Run(0) drains the queue
// Then: The follow-up runs in the same Run call, after its parent
func TestDeferredQueue_ReentrantPost(t *testing.T) {
	// Arrange
	q := newTestQueue()
	var order []string
	q.PostFunc(func(ctx context.Context) {
		order = append(order, "parent")
		CurrentQueue(ctx).PostFunc(func(ctx context.Context) {
			order = append(order, "child")
		})
	})

	// Act
	q.Run(0)

	// Assert
	if len(order) != 2 || order[0] != "parent" || order[1] != "child" {
		t.Errorf("order = %v, want [parent child]", order)
	}
}

// TestDeferredQueue_MultiProducerOrder verifies per-producer order under concurrency
// Given: 4 producers posting 250 numbered items each
// When: The queue is drained after all posts
// Then: All 1000 items run and each producer's items keep their relative order
func TestDeferredQueue_MultiProducerOrder(t *testing.T) {
	// Arrange
	q := newTestQueue()
	const producers, perProducer = 4, 250
	last := make([]int, producers)
	for i := range last {
		last[i] = -1
	}
	var outOfOrder, total int

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for seq := range perProducer {
				q.PostFunc(func(ctx context.Context) {
					total++
					if seq != last[p]+1 {
						outOfOrder++
					}
					last[p] = seq
				})
			}
		}()
	}
	wg.Wait()

	// Act
	q.Run(0)

	// Assert
	if total != producers*perProducer {
		t.Errorf("total = %d, want %d", total, producers*perProducer)
	}
	if outOfOrder != 0 {
		t.Errorf("outOfOrder = %d, want 0", outOfOrder)
	}
}

// TestDeferredQueue_MultipleConsumers verifies each item runs exactly once
// Given: 1000 posted items and 4 goroutines running the same queue
// When: All consumers drain until idle
// Then: Every item executed exactly once
func TestDeferredQueue_MultipleConsumers(t *testing.T) {
	// Arrange
	q := newTestQueue()
	const n = 1000
	var hits [n]atomic.Int32
	for i := range n {
		q.PostFunc(func(ctx context.Context) {
			hits[i].Add(1)
		})
	}

	// Act
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Run(50 * time.Millisecond)
		}()
	}
	wg.Wait()

	// Assert
	for i := range n {
		if got := hits[i].Load(); got != 1 {
			t.Fatalf("item %d executed %d times, want 1", i, got)
		}
	}
}

// TestDeferredQueue_FailureContainment verifies errors and panics do not stop Run
// Given: A failing item, a panicking item and a normal item
// When: Run(0) drains the queue
// Then: The normal item runs, both failures reach the handler and metrics
func TestDeferredQueue_FailureContainment(t *testing.T) {
	// Arrange
	handler := &recordingFailureHandler{}
	metrics := &recordingMetrics{}
	q := newTestQueue(WithQueueName("logic"), WithFailureHandler(handler), WithQueueMetrics(metrics))
	boom := errors.New("boom")
	ran := false

	q.Post(ErrFunc(func(ctx context.Context) error { return boom }))
	q.PostFunc(func(ctx context.Context) { panic("kaboom") })
	q.PostFunc(func(ctx context.Context) { ran = true })

	// Act
	q.Run(0)

	// Assert
	if !ran {
		t.Error("item after failures did not run")
	}
	calls := handler.Calls()
	if len(calls) != 2 {
		t.Fatalf("len(calls) = %d, want 2", len(calls))
	}
	if !errors.Is(calls[0].Err, boom) {
		t.Errorf("calls[0].Err = %v, want %v", calls[0].Err, boom)
	}
	var pe *WorkPanicError
	if !errors.As(calls[1].Err, &pe) {
		t.Fatalf("calls[1].Err = %T, want *WorkPanicError", calls[1].Err)
	}
	if pe.Value != "kaboom" || len(pe.Stack) == 0 {
		t.Errorf("panic error = %+v, want value kaboom with stack", pe)
	}
	if calls[0].Queue != "logic" {
		t.Errorf("Queue = %q, want logic", calls[0].Queue)
	}

	stats := q.Stats()
	if stats.Executed != 3 || stats.Failed != 2 {
		t.Errorf("Stats = %+v, want Executed=3 Failed=2", stats)
	}
	if metrics.failures != 2 || metrics.panics != 1 || metrics.durations != 3 {
		t.Errorf("metrics = failures %d panics %d durations %d, want 2/1/3",
			metrics.failures, metrics.panics, metrics.durations)
	}
}

// TestDeferredQueue_PanickingFailureHandler verifies a panicking handler is contained
func TestDeferredQueue_PanickingFailureHandler(t *testing.T) {
	q := newTestQueue(WithFailureHandler(FailureHandlerFunc(func(context.Context, string, error) {
		panic("handler")
	})))
	ran := false
	q.Post(ErrFunc(func(ctx context.Context) error { return errors.New("x") }))
	q.PostFunc(func(ctx context.Context) { ran = true })

	q.Run(0)

	if !ran {
		t.Error("item after failing handler did not run")
	}
}

// TestDeferredQueue_RunContextCancel verifies cancellation unblocks a waiting Run
// Given: RunContext waiting with a long timeout
// When: The context is cancelled
// Then: RunContext returns context.Canceled promptly
func TestDeferredQueue_RunContextCancel(t *testing.T) {
	// Arrange
	q := newTestQueue()
	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		result <- q.RunContext(ctx, time.Minute)
	}()
	time.Sleep(20 * time.Millisecond)

	// Act
	cancel()

	// Assert
	select {
	case err := <-result:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("RunContext() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunContext did not return after cancel")
	}
}

// TestDeferredQueue_RunContextIdle verifies RunContext returns nil on idle timeout
func TestDeferredQueue_RunContextIdle(t *testing.T) {
	q := newTestQueue()

	if err := q.RunContext(context.Background(), 10*time.Millisecond); err != nil {
		t.Errorf("RunContext() = %v, want nil", err)
	}
}

// TestDeferredQueue_Clear verifies pending items are discarded unexecuted
func TestDeferredQueue_Clear(t *testing.T) {
	// Arrange
	q := newTestQueue()
	ran := 0
	for range 3 {
		q.PostFunc(func(ctx context.Context) { ran++ })
	}

	// Act
	dropped := q.Clear()
	q.Run(0)

	// Assert
	if dropped != 3 {
		t.Errorf("Clear() = %d, want 3", dropped)
	}
	if ran != 0 {
		t.Errorf("ran = %d, want 0", ran)
	}
}

// TestDeferredQueue_PostNil verifies nil items are ignored
func TestDeferredQueue_PostNil(t *testing.T) {
	q := newTestQueue()

	q.Post(nil)
	q.PostFunc(nil)

	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0", q.Len())
	}
}

// TestDeferredQueue_Recent verifies execution history is kept newest first
func TestDeferredQueue_Recent(t *testing.T) {
	// Arrange
	q := newTestQueue(WithQueueName("hist"), WithHistorySize(2), WithFailureHandler(&recordingFailureHandler{}))
	q.PostFunc(func(ctx context.Context) {})
	q.Post(ErrFunc(func(ctx context.Context) error { return errors.New("x") }))
	q.PostFunc(func(ctx context.Context) { panic("p") })

	// Act
	q.Run(0)
	recent := q.Recent(10)

	// Assert
	if len(recent) != 2 {
		t.Fatalf("len(Recent) = %d, want 2", len(recent))
	}
	if !recent[0].Panicked || !recent[0].Failed {
		t.Errorf("recent[0] = %+v, want panicked failure", recent[0])
	}
	if !recent[1].Failed || recent[1].Panicked {
		t.Errorf("recent[1] = %+v, want plain failure", recent[1])
	}
	if recent[0].Queue != "hist" {
		t.Errorf("Queue = %q, want hist", recent[0].Queue)
	}
}

// TestDeferredQueue_Stats verifies identity and waiting counters
func TestDeferredQueue_Stats(t *testing.T) {
	// Arrange
	q := newTestQueue(WithQueueName("stats"))
	done := make(chan struct{})
	go func() {
		q.Run(300 * time.Millisecond)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)

	// Act
	stats := q.Stats()
	<-done

	// Assert
	if stats.Name != "stats" || stats.ID == "" || stats.ID != q.ID() {
		t.Errorf("Stats identity = %q/%q, want stats/%q", stats.Name, stats.ID, q.ID())
	}
	if stats.Waiting != 1 {
		t.Errorf("Waiting = %d, want 1", stats.Waiting)
	}
	if !stats.LastRunAt.IsZero() {
		t.Errorf("LastRunAt = %v, want zero", stats.LastRunAt)
	}
}

// TestDeferredQueue_Compaction verifies the queue stays correct across growth and shrink
func TestDeferredQueue_Compaction(t *testing.T) {
	q := newTestQueue()
	for i := range 500 {
		q.PostFunc(func(ctx context.Context) { _ = i })
	}
	for range 450 {
		if _, ok := q.pop(); !ok {
			t.Fatal("pop() on non-empty queue = false")
		}
	}

	if q.Len() != 50 {
		t.Errorf("Len() = %d, want 50", q.Len())
	}
	q.mu.Lock()
	c := cap(q.items)
	q.mu.Unlock()
	if c >= 500 {
		t.Errorf("cap = %d, want compaction below 500", c)
	}
}
