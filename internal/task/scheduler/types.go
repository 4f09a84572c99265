package scheduler

import (
	"context"
	"time"
)

// Job is one recurring settings update.
type Job struct {
	Name string `json:"name"`
	// Schedule accepts cron ("0 6 * * *", "@daily"), Go durations ("12h")
	// or HH:MM intervals ("12:00").
	Schedule string `json:"schedule"`
	// Command is the controller instruction, e.g.
	// settings.update('/path/settingsAll-night.mat').
	Command string `json:"command"`
	// Solar, when set, replaces Command with a day or night choice.
	Solar *SolarSwitch `json:"solar,omitempty"`
}

type Config struct {
	Timezone string `json:"timezone"` // IANA TZ, e.g. "America/Los_Angeles"
	Jobs     []Job  `json:"jobs"`
}

// TriggerFunc runs when a job fires.
type TriggerFunc func(ctx context.Context, job Job) error

type ScheduleInfo struct {
	Name string
	Spec string
	Next time.Time
	Prev time.Time
}
