package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/Swind/go-message-queue/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type queueStub struct {
	stats core.QueueStats
}

func (s queueStub) Stats() core.QueueStats { return s.stats }

type registryStub struct {
	stats core.RegistryStats
}

func (s registryStub) Stats() core.RegistryStats { return s.stats }

func TestSnapshotPoller_CollectsQueueAndRegistryStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller("msgqueue", reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	poller.now = func() time.Time { return fixed }

	poller.AddQueue("logic", queueStub{stats: core.QueueStats{
		Name:     "logic",
		Pending:  3,
		Running:  1,
		Waiting:  2,
		Executed: 10,
		Failed:   1,
	}})
	poller.AddRegistry("timers", registryStub{stats: core.RegistryStats{
		Pending:      4,
		Dispatched:   9,
		NextDeadline: fixed.Add(1500 * time.Millisecond),
		Running:      true,
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		pending := testutil.ToFloat64(poller.queuePending.WithLabelValues("logic"))
		timers := testutil.ToFloat64(poller.registryPending.WithLabelValues("timers"))
		return pending == 3 && timers == 4
	})

	if got := testutil.ToFloat64(poller.queueWaiting.WithLabelValues("logic")); got != 2 {
		t.Fatalf("queue waiting gauge = %v, want 2", got)
	}
	if got := testutil.ToFloat64(poller.queueFailed.WithLabelValues("logic")); got != 1 {
		t.Fatalf("queue failed gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.registryNextDue.WithLabelValues("timers")); got != 1.5 {
		t.Fatalf("next deadline gauge = %v, want 1.5", got)
	}
	if got := testutil.ToFloat64(poller.registryRunning.WithLabelValues("timers")); got != 1 {
		t.Fatalf("registry running gauge = %v, want 1", got)
	}
}

func TestSnapshotPoller_RealComponents(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller("real", reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}
	registry := core.NewTimerRegistry()
	q := core.NewDeferredQueue(core.WithQueueName("render"))
	q.PostFunc(func(ctx context.Context) {})
	q.PostFunc(func(ctx context.Context) {})
	registry.Stop()

	poller.AddQueue(q.Name(), q)
	poller.AddRegistry("default", registry)
	poller.Start(context.Background())
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		return testutil.ToFloat64(poller.queuePending.WithLabelValues("render")) == 2
	})
	if got := testutil.ToFloat64(poller.registryRunning.WithLabelValues("default")); got != 0 {
		t.Fatalf("registry running gauge = %v, want 0", got)
	}
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller("", reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
