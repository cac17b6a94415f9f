package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-message-queue/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
	LatenessBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	workDurationSeconds  *prom.HistogramVec
	workFailureTotal     *prom.CounterVec
	queueDepth           *prom.GaugeVec
	timerDispatchTotal   prom.Counter
	timerLatenessSeconds prom.Histogram
	timersPending        prom.Gauge
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "msgqueue"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}
	latenessBuckets := opts.LatenessBuckets
	if len(latenessBuckets) == 0 {
		latenessBuckets = prom.ExponentialBuckets(0.0005, 2, 14)
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "work_duration_seconds",
		Help:      "Work item execution duration in seconds.",
		Buckets:   buckets,
	}, []string{"queue"})
	failureVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "work_failure_total",
		Help:      "Total number of failed work item executions.",
	}, []string{"queue", "kind"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Current queue depth.",
	}, []string{"queue"})
	dispatchTotal := prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "timer_dispatch_total",
		Help:      "Total number of timers dispatched.",
	})
	lateness := prom.NewHistogram(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "timer_lateness_seconds",
		Help:      "Delay between a timer deadline and its dispatch in seconds.",
		Buckets:   latenessBuckets,
	})
	pending := prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "timers_pending",
		Help:      "Number of timers waiting in the registry.",
	})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if failureVec, err = registerCollector(reg, failureVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}
	if dispatchTotal, err = registerCollector(reg, dispatchTotal); err != nil {
		return nil, err
	}
	if lateness, err = registerCollector(reg, lateness); err != nil {
		return nil, err
	}
	if pending, err = registerCollector(reg, pending); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		workDurationSeconds:  durationVec,
		workFailureTotal:     failureVec,
		queueDepth:           queueDepthVec,
		timerDispatchTotal:   dispatchTotal,
		timerLatenessSeconds: lateness,
		timersPending:        pending,
	}, nil
}

// RecordWorkDuration records work item execution duration.
func (m *MetricsExporter) RecordWorkDuration(queueName string, duration time.Duration) {
	if m == nil {
		return
	}
	m.workDurationSeconds.WithLabelValues(normalizeLabel(queueName, "unknown")).Observe(duration.Seconds())
}

// RecordWorkFailure records failed executions, labelled error or panic.
func (m *MetricsExporter) RecordWorkFailure(queueName string, panicked bool) {
	if m == nil {
		return
	}
	kind := "error"
	if panicked {
		kind = "panic"
	}
	m.workFailureTotal.WithLabelValues(normalizeLabel(queueName, "unknown"), kind).Inc()
}

// RecordQueueDepth records queue depth.
func (m *MetricsExporter) RecordQueueDepth(queueName string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(queueName, "unknown")).Set(float64(depth))
}

// RecordTimerDispatch records a dispatch and its lateness.
func (m *MetricsExporter) RecordTimerDispatch(lateness time.Duration) {
	if m == nil {
		return
	}
	m.timerDispatchTotal.Inc()
	m.timerLatenessSeconds.Observe(max(lateness, 0).Seconds())
}

// RecordTimersPending records the number of registered timers.
func (m *MetricsExporter) RecordTimersPending(count int) {
	if m == nil {
		return
	}
	m.timersPending.Set(float64(count))
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
