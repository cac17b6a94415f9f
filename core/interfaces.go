package core

import (
	"context"
	"errors"
	"time"
)

// =============================================================================
// FailureHandler: Interface for handling work item failures
// =============================================================================

// FailureHandler is called when a work item returns an error or panics.
// The failure has already been contained: the queue keeps running whatever
// the handler does.
//
// Implementations should be thread-safe as they may be called concurrently.
type FailureHandler interface {
	// HandleFailure is called once per failed execution.
	//
	// Parameters:
	// - ctx: The context the work item executed with (carries the queue)
	// - queueName: The name of the queue that ran the item
	// - err: The returned error, or a *WorkPanicError for panics
	HandleFailure(ctx context.Context, queueName string, err error)
}

// LoggingFailureHandler reports failures through a Logger at error level.
type LoggingFailureHandler struct {
	Logger Logger
}

// NewLoggingFailureHandler returns a handler writing to logger.
func NewLoggingFailureHandler(logger Logger) *LoggingFailureHandler {
	if logger == nil {
		logger = NewNoOpLogger()
	}
	return &LoggingFailureHandler{Logger: logger}
}

// HandleFailure logs err.
func (h *LoggingFailureHandler) HandleFailure(ctx context.Context, queueName string, err error) {
	var pe *WorkPanicError
	if errors.As(err, &pe) {
		h.Logger.Error("panic running work item",
			F("queue", queueName), F("panic", pe.Value), F("stack", pe.Stack))
		return
	}
	h.Logger.Error("error running work item", F("queue", queueName), F("error", err))
}

// FailureHandlerFunc adapts a function to FailureHandler.
type FailureHandlerFunc func(ctx context.Context, queueName string, err error)

// HandleFailure calls f.
func (f FailureHandlerFunc) HandleFailure(ctx context.Context, queueName string, err error) {
	f(ctx, queueName, err)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting queue and timer metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast to avoid impacting execution.
type Metrics interface {
	// RecordWorkDuration records how long a work item took to execute.
	RecordWorkDuration(queueName string, duration time.Duration)

	// RecordWorkFailure records a failed execution; panicked distinguishes
	// recovered panics from returned errors.
	RecordWorkFailure(queueName string, panicked bool)

	// RecordQueueDepth records the number of pending items after a post or pop.
	RecordQueueDepth(queueName string, depth int)

	// RecordTimerDispatch records a timer dispatch and how late it was
	// relative to its deadline.
	RecordTimerDispatch(lateness time.Duration)

	// RecordTimersPending records the number of registered timers.
	RecordTimersPending(count int)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

// RecordWorkDuration is a no-op.
func (m *NilMetrics) RecordWorkDuration(queueName string, duration time.Duration) {}

// RecordWorkFailure is a no-op.
func (m *NilMetrics) RecordWorkFailure(queueName string, panicked bool) {}

// RecordQueueDepth is a no-op.
func (m *NilMetrics) RecordQueueDepth(queueName string, depth int) {}

// RecordTimerDispatch is a no-op.
func (m *NilMetrics) RecordTimerDispatch(lateness time.Duration) {}

// RecordTimersPending is a no-op.
func (m *NilMetrics) RecordTimersPending(count int) {}
