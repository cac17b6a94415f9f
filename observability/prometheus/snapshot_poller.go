package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-message-queue/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// QueueSnapshotProvider provides current queue stats snapshots.
type QueueSnapshotProvider interface {
	Stats() core.QueueStats
}

// RegistrySnapshotProvider provides current timer registry stats snapshots.
type RegistrySnapshotProvider interface {
	Stats() core.RegistryStats
}

// SnapshotPoller periodically exports queue/registry Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration
	now      func() time.Time

	queuesMu sync.RWMutex
	queues   map[string]QueueSnapshotProvider

	registriesMu sync.RWMutex
	registries   map[string]RegistrySnapshotProvider

	queuePending  *prom.GaugeVec
	queueRunning  *prom.GaugeVec
	queueWaiting  *prom.GaugeVec
	queueExecuted *prom.GaugeVec
	queueFailed   *prom.GaugeVec

	registryPending    *prom.GaugeVec
	registryDispatched *prom.GaugeVec
	registryNextDue    *prom.GaugeVec
	registryRunning    *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(namespace string, reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if namespace == "" {
		namespace = "msgqueue"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	queueGauge := func(name, help string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, []string{"queue"})
	}
	registryGauge := func(name, help string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, []string{"registry"})
	}

	queuePending := queueGauge("queue_pending", "Number of pending work items per queue.")
	queueRunning := queueGauge("queue_running", "Number of executing work items per queue.")
	queueWaiting := queueGauge("queue_waiting", "Number of goroutines waiting for work per queue.")
	queueExecuted := queueGauge("queue_executed_total", "Queue executed item count snapshot.")
	queueFailed := queueGauge("queue_failed_total", "Queue failed item count snapshot.")

	registryPending := registryGauge("registry_pending", "Timers waiting per registry.")
	registryDispatched := registryGauge("registry_dispatched_total", "Registry dispatched timer count snapshot.")
	registryNextDue := registryGauge("registry_next_deadline_seconds", "Seconds until the earliest pending deadline (0 when none).")
	registryRunning := registryGauge("registry_running", "Registry running state (1=running, 0=stopped).")

	var err error
	for _, g := range []**prom.GaugeVec{
		&queuePending, &queueRunning, &queueWaiting, &queueExecuted, &queueFailed,
		&registryPending, &registryDispatched, &registryNextDue, &registryRunning,
	} {
		if *g, err = registerCollector(reg, *g); err != nil {
			return nil, err
		}
	}

	return &SnapshotPoller{
		interval:           interval,
		now:                time.Now,
		queues:             make(map[string]QueueSnapshotProvider),
		registries:         make(map[string]RegistrySnapshotProvider),
		queuePending:       queuePending,
		queueRunning:       queueRunning,
		queueWaiting:       queueWaiting,
		queueExecuted:      queueExecuted,
		queueFailed:        queueFailed,
		registryPending:    registryPending,
		registryDispatched: registryDispatched,
		registryNextDue:    registryNextDue,
		registryRunning:    registryRunning,
	}, nil
}

// AddQueue adds or replaces a queue snapshot provider by name.
func (p *SnapshotPoller) AddQueue(name string, provider QueueSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "queue")
	p.queuesMu.Lock()
	p.queues[name] = provider
	p.queuesMu.Unlock()
}

// AddRegistry adds or replaces a registry snapshot provider by name.
func (p *SnapshotPoller) AddRegistry(name string, provider RegistrySnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "registry")
	p.registriesMu.Lock()
	p.registries[name] = provider
	p.registriesMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx, p.done)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.queuesMu.RLock()
	for name, provider := range p.queues {
		stats := provider.Stats()
		p.queuePending.WithLabelValues(name).Set(float64(stats.Pending))
		p.queueRunning.WithLabelValues(name).Set(float64(stats.Running))
		p.queueWaiting.WithLabelValues(name).Set(float64(stats.Waiting))
		p.queueExecuted.WithLabelValues(name).Set(float64(stats.Executed))
		p.queueFailed.WithLabelValues(name).Set(float64(stats.Failed))
	}
	p.queuesMu.RUnlock()

	now := p.now()
	p.registriesMu.RLock()
	for name, provider := range p.registries {
		stats := provider.Stats()
		p.registryPending.WithLabelValues(name).Set(float64(stats.Pending))
		p.registryDispatched.WithLabelValues(name).Set(float64(stats.Dispatched))
		nextDue := 0.0
		if !stats.NextDeadline.IsZero() {
			nextDue = max(stats.NextDeadline.Sub(now).Seconds(), 0)
		}
		p.registryNextDue.WithLabelValues(name).Set(nextDue)
		if stats.Running {
			p.registryRunning.WithLabelValues(name).Set(1)
		} else {
			p.registryRunning.WithLabelValues(name).Set(0)
		}
	}
	p.registriesMu.RUnlock()
}
