// Package msgqueue provides deferred work queues and deadline timers for Go.
//
// Producers on any goroutine post work items to a DeferredQueue; one or more
// consumer goroutines drain it in FIFO order by calling Run. Timers deliver a
// handler onto a queue once a deadline has passed, driven by an explicitly
// constructed TimerRegistry that owns a single background goroutine.
//
// # Quick Start
//
// Create a registry and a queue, then arm a timer:
//
//	registry := msgqueue.NewTimerRegistry()
//	defer registry.Stop()
//
//	q := msgqueue.NewDeferredQueue(msgqueue.WithQueueName("logic"))
//	t := registry.NewTimer(q)
//	defer t.Close()
//
//	t.ScheduleAfter(time.Second, msgqueue.Func(func(ctx context.Context) {
//		fmt.Println("one second later, on the logic goroutine")
//	}))
//
//	q.Run(2 * time.Second)
//
// # Key Concepts
//
// WorkItem: a unit of work with Execute(ctx) error. Func and ErrFunc adapt
// closures; NewWork builds a single-shot item that releases its captured state
// after running.
//
// DeferredQueue: Post never blocks beyond a short lock and wakes every waiting
// consumer. Run executes items until the queue has stayed empty for the idle
// timeout; a timeout of zero drains the queue and returns. Errors and panics
// raised by items are reported to the FailureHandler and never stop Run.
//
// Timer: holds at most one pending handler. Scheduling a waiting timer is a
// no-op that keeps the first deadline. Close cancels a pending handler.
//
// TimerRegistry: dispatches due timers by posting their handlers; handler code
// always runs on the consumer goroutine of the target queue.
//
// Loop: dedicates a goroutine to a queue, running it until stopped.
//
// # Thread Safety
//
// Post may be called from any goroutine, including from inside an executing
// item. A queue must outlive every goroutine running it and every timer
// targeting it.
package msgqueue
