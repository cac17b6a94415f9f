package logging

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/Swind/go-message-queue/core"
)

// RateLimitedFailureHandler forwards failure reports to another handler at a
// bounded rate. Reports over the limit are counted and summarized in a
// warning once reports are admitted again.
type RateLimitedFailureHandler struct {
	next       core.FailureHandler
	logger     core.Logger
	limiter    *rate.Limiter
	suppressed atomic.Uint64
	total      atomic.Uint64
}

var _ core.FailureHandler = (*RateLimitedFailureHandler)(nil)

// NewRateLimitedFailureHandler admits perSecond reports per second with the
// given burst. A nil next logs through logger.
func NewRateLimitedFailureHandler(next core.FailureHandler, logger core.Logger, perSecond float64, burst int) *RateLimitedFailureHandler {
	if logger == nil {
		logger = core.NewNoOpLogger()
	}
	if next == nil {
		next = core.NewLoggingFailureHandler(logger)
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedFailureHandler{
		next:    next,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// HandleFailure forwards err if the limiter admits it.
func (h *RateLimitedFailureHandler) HandleFailure(ctx context.Context, queueName string, err error) {
	h.total.Add(1)
	if !h.limiter.Allow() {
		h.suppressed.Add(1)
		return
	}
	if n := h.suppressed.Swap(0); n > 0 {
		h.logger.Warn("failure reports suppressed", core.F("queue", queueName), core.F("count", n))
	}
	h.next.HandleFailure(ctx, queueName, err)
}

// Suppressed returns the number of reports dropped since the last admitted one.
func (h *RateLimitedFailureHandler) Suppressed() uint64 {
	return h.suppressed.Load()
}

// Total returns the number of reports received.
func (h *RateLimitedFailureHandler) Total() uint64 {
	return h.total.Load()
}
