package core

import (
	"errors"
	"fmt"
)

var (
	// ErrWorkConsumed is returned by a single-shot work item that has already executed.
	ErrWorkConsumed = errors.New("work item already executed")

	// ErrRegistryStopped is returned when a timer is scheduled on a stopped registry.
	ErrRegistryStopped = errors.New("timer registry stopped")

	// ErrTimerClosed is returned when a closed timer is asked to schedule work.
	ErrTimerClosed = errors.New("timer closed")

	// ErrTimerWaiting is returned when a timer that already waits is scheduled again.
	ErrTimerWaiting = errors.New("timer already waiting")

	// ErrNilHandler is returned when a timer is scheduled without a handler.
	ErrNilHandler = errors.New("nil timer handler")

	// ErrLoopStopped is returned by Loop operations after Stop.
	ErrLoopStopped = errors.New("loop stopped")
)

// WorkPanicError carries a panic recovered while executing a work item.
type WorkPanicError struct {
	Value any
	Stack []byte
}

func (e *WorkPanicError) Error() string {
	return fmt.Sprintf("work item panic: %v", e.Value)
}

// Unwrap exposes the panic value when it is itself an error.
func (e *WorkPanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
