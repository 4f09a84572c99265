package engine

import (
	"context"
	"time"
)

// Config controls the worker pool.
type Config struct {
	// Workers is the fixed number of concurrent tasks. Default 8.
	Workers int
	// QueueSize bounds tasks accepted but not yet running. Default 64.
	QueueSize int
	// HistorySize bounds the finished-task history. Default 200.
	HistorySize int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 200
	}
	return c
}

// Task is a unit of work executed by the pool.
type Task struct {
	// ID is assigned on Enqueue when empty.
	ID   string
	Name string
	Run  func(ctx context.Context) error
}

// Result is the outcome of one finished task. Err is non-nil when the task
// failed or panicked.
type Result struct {
	ID         string
	Name       string
	Started    time.Time
	QueueDelay time.Duration
	Duration   time.Duration
	Err        error
}

type HistoryItem struct {
	ID         string
	Name       string
	Started    time.Time
	QueueDelay time.Duration
	Duration   time.Duration
	Error      string
}

// TaskEvent is emitted on the event bus for task lifecycle events.
type TaskEvent struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Started    time.Time     `json:"started"`
	QueueDelay time.Duration `json:"queue_delay"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// Snapshot is a lightweight view for diagnostics.
type Snapshot struct {
	Workers  int
	QueueLen int
	QueueCap int
	InFlight int
	Stopping bool

	DroppedQueueFull uint64
	Panics           uint64

	History []HistoryItem
}
