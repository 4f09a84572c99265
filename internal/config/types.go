package config

// Config is the executor daemon configuration. All durations are Go
// duration strings ("490ms", "20s", "8m").
type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	Coord      CoordConfig      `json:"coord"`
	State      StateConfig      `json:"state"`
	Executor   ExecutorConfig   `json:"executor"`
	Builder    BuilderConfig    `json:"builder"`
	Controller ControllerConfig `json:"controller"`
	Notifier   *NotifierConfig  `json:"notifier,omitempty"`
	Recurring  RecurringConfig  `json:"recurring"`
	Diag       DiagConfig       `json:"diag"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram forwards log lines at or above MinLevel to the notifier
// chat. It needs an enabled notifier.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// CoordConfig selects the key-value store shared with the operator CLI.
//
// Example:
//
//	"coord": { "driver": "etcd", "endpoints": ["10.1.1.50:2379"], "dial_timeout": "5s" }
type CoordConfig struct {
	Driver      string   `json:"driver"` // memory | dir | etcd
	Dir         string   `json:"dir,omitempty"`
	Endpoints   []string `json:"endpoints,omitempty"`
	DialTimeout string   `json:"dial_timeout,omitempty"`
	Username    string   `json:"username,omitempty"`
	Password    string   `json:"password,omitempty"` // do not log
}

// StateConfig controls the session record store.
//
// Example:
//
//	"state": { "driver": "sqlite", "path": "./data/sessions.db" }
type StateConfig struct {
	Driver      string `json:"driver"` // sqlite | file | memory
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
}

// ExecutorConfig controls the dispatch loop and its worker pool.
//
// Defaults: tick 490ms, horizon 2s, wait_step 490ms, workers 8.
type ExecutorConfig struct {
	Tick        string `json:"tick,omitempty"`
	Horizon     string `json:"horizon,omitempty"`
	WaitStep    string `json:"wait_step,omitempty"`
	EventBuffer int    `json:"event_buffer,omitempty"`

	Workers     int `json:"workers,omitempty"`
	QueueSize   int `json:"queue_size,omitempty"`
	HistorySize int `json:"history_size,omitempty"`

	// DrainTimeout bounds the wait for in-flight sessions on the first
	// interrupt. Empty waits until a second interrupt.
	DrainTimeout string `json:"drain_timeout,omitempty"`
}

// BuilderConfig overrides the schedule timing profiles and defaults.
// Omitted profile fields keep their built-in values.
type BuilderConfig struct {
	DefaultConfigFile   string        `json:"default_config_file,omitempty"`
	DefaultCalDirectory string        `json:"default_cal_directory,omitempty"`
	Buffer              ProfileConfig `json:"buffer"`
	ASAP                ProfileConfig `json:"asap"`
}

type ProfileConfig struct {
	Controller  string `json:"controller,omitempty"`
	Configure   string `json:"configure,omitempty"`
	Calibration string `json:"calibration,omitempty"`
	Pointing    string `json:"pointing,omitempty"`
	Recording   string `json:"recording,omitempty"`
	Preroll     string `json:"preroll,omitempty"`
	Step        string `json:"step,omitempty"`
}

// ControllerConfig selects the telescope control driver.
type ControllerConfig struct {
	Driver  string `json:"driver"` // log | http
	URL     string `json:"url,omitempty"`
	Token   string `json:"token,omitempty"` // do not log
	Timeout string `json:"timeout,omitempty"`
}

// NotifierConfig controls session notifications to a Telegram chat.
// Omitting the section disables notifications.
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	Token           string `json:"token"` // do not log
	ChatID          int64  `json:"chat_id"`
	ThreadID        int    `json:"thread_id,omitempty"`
	Workers         int    `json:"workers,omitempty"`
	QueueSize       int    `json:"queue_size,omitempty"`
	RatePerSec      int    `json:"rate_per_sec,omitempty"`
	RetryMax        int    `json:"retry_max,omitempty"`
	RetryBase       string `json:"retry_base,omitempty"`
	RetryMaxDelay   string `json:"retry_max_delay,omitempty"`
	DedupWindow     string `json:"dedup_window,omitempty"`
	DedupMaxEntries int    `json:"dedup_max_entries,omitempty"`
}

// RecurringConfig holds timed single-command submissions (settings
// switches).
type RecurringConfig struct {
	Timezone string         `json:"timezone,omitempty"`
	Jobs     []RecurringJob `json:"jobs,omitempty"`
}

// RecurringJob submits Command every time Schedule fires. Schedule accepts
// cron expressions, descriptors ("@daily"), Go durations or "HH:MM"
// intervals.
type RecurringJob struct {
	Name     string          `json:"name"`
	Schedule string          `json:"schedule"`
	Command  string          `json:"command,omitempty"`
	Solar    *RecurringSolar `json:"solar,omitempty"`
}

// RecurringSolar turns a job into a day/night settings switch: it submits
// DayCommand while the Sun is at or above ThresholdDeg at the site and
// NightCommand otherwise. The site defaults to the OVRO station and the
// threshold to 5 degrees. While OverrideFile exists the job does nothing.
//
// Example:
//
//	"solar": { "day_command": "settings.update('day.mat')",
//	           "night_command": "settings.update('night.mat')",
//	           "override_file": "/var/lib/lwaobs/manual-settings" }
type RecurringSolar struct {
	Lat          *float64 `json:"lat,omitempty"`
	Lon          *float64 `json:"lon,omitempty"`
	ThresholdDeg *float64 `json:"threshold_deg,omitempty"`
	DayCommand   string   `json:"day_command"`
	NightCommand string   `json:"night_command"`
	OverrideFile string   `json:"override_file,omitempty"`
}

// DiagConfig controls the diagnostics HTTP server (/healthz, /status,
// /debug/pprof). Binding beyond loopback needs a token or allow_insecure.
type DiagConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"` // do not log
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}
