package core

import "time"

// ExecutionRecord captures a completed work item execution.
type ExecutionRecord struct {
	Queue      string
	Kind       string
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Failed     bool
	Panicked   bool
}

// QueueStats represents runtime observability state for a deferred queue.
type QueueStats struct {
	ID        string
	Name      string
	Pending   int
	Running   int
	Waiting   int
	Executed  uint64
	Failed    uint64
	LastRunAt time.Time
}

// RegistryStats represents runtime observability state for a timer registry.
type RegistryStats struct {
	Pending      int
	Dispatched   uint64
	NextDeadline time.Time
	Running      bool
}
