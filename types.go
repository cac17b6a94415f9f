package msgqueue

import "github.com/Swind/go-message-queue/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the msgqueue package for most use cases.

// WorkItem is the unit of deferred execution
type WorkItem = core.WorkItem

// Func adapts a closure that never fails
type Func = core.Func

// ErrFunc adapts a closure returning an error
type ErrFunc = core.ErrFunc

// Work is a single-shot work item
type Work = core.Work

// Poster accepts work items
type Poster = core.Poster

// DeferredQueue is the thread-safe FIFO of work items
type DeferredQueue = core.DeferredQueue

// Timer posts one handler onto a queue at a deadline
type Timer = core.Timer

// TimerState is the lifecycle state of a Timer
type TimerState = core.TimerState

// TimerRegistry dispatches timers from a background goroutine
type TimerRegistry = core.TimerRegistry

// Loop binds a dedicated goroutine to a queue
type Loop = core.Loop

// RepeatingHandle controls a repeating timer
type RepeatingHandle = core.RepeatingHandle

// StopWatch measures frame deltas
type StopWatch = core.StopWatch

// Timer states
const (
	TimerIdle    TimerState = core.TimerIdle
	TimerWaiting TimerState = core.TimerWaiting
)

// Constructors and helpers
var (
	NewWork          = core.NewWork
	Once             = core.Once
	NewDeferredQueue = core.NewDeferredQueue
	NewTimer         = core.NewTimer
	NewTimerRegistry = core.NewTimerRegistry
	NewLoop          = core.NewLoop
	Repeat           = core.Repeat
	RepeatCron       = core.RepeatCron
	NewStopWatch     = core.NewStopWatch
	CurrentQueue     = core.CurrentQueue
)

// Queue options
var (
	WithQueueName      = core.WithQueueName
	WithQueueLogger    = core.WithQueueLogger
	WithQueueMetrics   = core.WithQueueMetrics
	WithFailureHandler = core.WithFailureHandler
	WithHistorySize    = core.WithHistorySize
)

// Registry options
var (
	WithFallbackInterval = core.WithFallbackInterval
	WithRegistryLogger   = core.WithRegistryLogger
	WithRegistryMetrics  = core.WithRegistryMetrics
	WithClock            = core.WithClock
)
