package core

import "time"

// StopWatch accumulates running time across Update calls and exposes the
// delta of the last update, which is what a frame loop needs.
//
// A StopWatch is not safe for concurrent use.
type StopWatch struct {
	now     func() time.Time
	last    time.Time
	elapsed time.Duration
	delta   time.Duration
	running bool
}

// NewStopWatch returns a stopped watch using time.Now.
func NewStopWatch() *StopWatch {
	return NewStopWatchWithClock(time.Now)
}

// NewStopWatchWithClock returns a stopped watch reading time from now.
func NewStopWatchWithClock(now func() time.Time) *StopWatch {
	if now == nil {
		now = time.Now
	}
	return &StopWatch{now: now}
}

// Start begins measuring. Starting a running watch has no effect.
func (w *StopWatch) Start() {
	if w.running {
		return
	}
	w.running = true
	w.last = w.now()
}

// Stop pauses measuring. Elapsed and Delta keep their values.
func (w *StopWatch) Stop() {
	w.running = false
}

// Reset clears elapsed time and delta and stops the watch.
func (w *StopWatch) Reset() {
	w.elapsed = 0
	w.delta = 0
	w.running = false
}

// Update records the time passed since the previous Start or Update and
// returns it. A stopped watch returns zero and changes nothing.
func (w *StopWatch) Update() time.Duration {
	if !w.running {
		return 0
	}
	now := w.now()
	w.delta = now.Sub(w.last)
	w.last = now
	w.elapsed += w.delta
	return w.delta
}

// Running reports whether the watch is measuring.
func (w *StopWatch) Running() bool {
	return w.running
}

// Elapsed returns the total time accumulated by Update.
func (w *StopWatch) Elapsed() time.Duration {
	return w.elapsed
}

// Delta returns the time measured by the last Update.
func (w *StopWatch) Delta() time.Duration {
	return w.delta
}
