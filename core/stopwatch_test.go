package core

import (
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// TestStopWatch_Update verifies delta and elapsed accumulate while running
// Given: A started stop watch on a fake clock
// When: The clock advances 16ms and 17ms with an Update after each
// Then: Delta is the last step and Elapsed is the sum
func TestStopWatch_Update(t *testing.T) {
	// Arrange
	clock := &fakeClock{now: time.Unix(0, 0)}
	w := NewStopWatchWithClock(clock.Now)
	w.Start()

	// Act
	clock.Advance(16 * time.Millisecond)
	first := w.Update()
	clock.Advance(17 * time.Millisecond)
	w.Update()

	// Assert
	if first != 16*time.Millisecond {
		t.Errorf("first Update() = %v, want 16ms", first)
	}
	if w.Delta() != 17*time.Millisecond {
		t.Errorf("Delta() = %v, want 17ms", w.Delta())
	}
	if w.Elapsed() != 33*time.Millisecond {
		t.Errorf("Elapsed() = %v, want 33ms", w.Elapsed())
	}
}

// TestStopWatch_StopPausesMeasurement verifies stopped time is not counted
func TestStopWatch_StopPausesMeasurement(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	w := NewStopWatchWithClock(clock.Now)
	w.Start()
	clock.Advance(10 * time.Millisecond)
	w.Update()

	w.Stop()
	clock.Advance(time.Second)
	if d := w.Update(); d != 0 {
		t.Errorf("Update() while stopped = %v, want 0", d)
	}
	w.Start()
	clock.Advance(5 * time.Millisecond)
	w.Update()

	if w.Elapsed() != 15*time.Millisecond {
		t.Errorf("Elapsed() = %v, want 15ms", w.Elapsed())
	}
}

// TestStopWatch_Reset verifies Reset clears the counters and stops the watch
func TestStopWatch_Reset(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	w := NewStopWatchWithClock(clock.Now)
	w.Start()
	clock.Advance(10 * time.Millisecond)
	w.Update()

	w.Reset()

	if w.Running() || w.Elapsed() != 0 || w.Delta() != 0 {
		t.Errorf("after Reset: running=%v elapsed=%v delta=%v", w.Running(), w.Elapsed(), w.Delta())
	}
}

// TestStopWatch_StartTwice verifies a second Start does not reset the reference point
func TestStopWatch_StartTwice(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	w := NewStopWatchWithClock(clock.Now)
	w.Start()
	clock.Advance(10 * time.Millisecond)
	w.Start()
	clock.Advance(10 * time.Millisecond)

	if d := w.Update(); d != 20*time.Millisecond {
		t.Errorf("Update() = %v, want 20ms", d)
	}
}

func TestNewStopWatch(t *testing.T) {
	w := NewStopWatch()
	w.Start()
	time.Sleep(2 * time.Millisecond)
	if w.Update() <= 0 {
		t.Error("Update() <= 0 on real clock")
	}
}
