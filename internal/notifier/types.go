package notifier

import "time"

// Config controls the async notification pipeline.
type Config struct {
	Enabled bool `json:"enabled"`

	Token    string `json:"token"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id"`

	Workers         int           `json:"workers"`
	QueueSize       int           `json:"queue_size"`
	RatePerSec      int           `json:"rate_per_sec"`
	RetryMax        int           `json:"retry_max"`
	RetryBase       time.Duration `json:"retry_base"`
	RetryMaxDelay   time.Duration `json:"retry_max_delay"`
	DedupWindow     time.Duration `json:"dedup_window"`
	DedupMaxEntries int           `json:"dedup_max_entries"`
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 1
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	if c.DedupWindow < 0 {
		c.DedupWindow = 0
	}
	if c.DedupMaxEntries <= 0 {
		c.DedupMaxEntries = 2000
	}
	return c
}

type HistoryItem struct {
	At   time.Time
	Text string
}

// NotificationEvent is emitted on the event bus for notifier lifecycle events.
type NotificationEvent struct {
	Key   string    `json:"key"`
	At    time.Time `json:"at"`
	Error string    `json:"error,omitempty"`
}
