package app

import (
	"strings"
	"time"

	"lwaobs/internal/config"
	"lwaobs/internal/control"
	"lwaobs/internal/coord"
	"lwaobs/internal/diag"
	"lwaobs/internal/executor"
	"lwaobs/internal/notifier"
	"lwaobs/internal/schedule"
	"lwaobs/internal/statestore"
	"lwaobs/internal/task/engine"
	"lwaobs/internal/task/scheduler"
	"lwaobs/pkg/logx"
	"lwaobs/pkg/solar"
)

// The mappers below assume cfg passed Validate; malformed durations read
// as zero and fall back to defaults.

func dur(raw string) time.Duration { return config.DurationOr(raw, 0) }

func mapLogging(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Remote: logx.RemoteConfig{
			Enabled:    l.Telegram.Enabled,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

func mapCoord(cfg *config.Config) coord.Config {
	c := cfg.Coord
	return coord.Config{
		Driver:      c.Driver,
		Dir:         c.Dir,
		Endpoints:   c.Endpoints,
		DialTimeout: dur(c.DialTimeout),
		Username:    c.Username,
		Password:    c.Password,
	}
}

func mapState(cfg *config.Config) statestore.Config {
	return statestore.Config{
		Driver:      cfg.State.Driver,
		Path:        cfg.State.Path,
		BusyTimeout: dur(cfg.State.BusyTimeout),
	}
}

func mapController(cfg *config.Config) control.Config {
	c := cfg.Controller
	return control.Config{
		Driver: c.Driver,
		HTTP:   control.HTTPConfig{URL: c.URL, Token: c.Token, Timeout: dur(c.Timeout)},
	}
}

func mapProfile(p config.ProfileConfig) schedule.Profile {
	return schedule.Profile{
		Controller:  dur(p.Controller),
		Configure:   dur(p.Configure),
		Calibration: dur(p.Calibration),
		Pointing:    dur(p.Pointing),
		Recording:   dur(p.Recording),
		Preroll:     dur(p.Preroll),
		Step:        dur(p.Step),
	}
}

func mapBuilder(cfg *config.Config) schedule.BuilderConfig {
	b := cfg.Builder
	return schedule.BuilderConfig{
		Buffer:              mapProfile(b.Buffer),
		ASAP:                mapProfile(b.ASAP),
		DefaultConfigFile:   strings.TrimSpace(b.DefaultConfigFile),
		DefaultCalDirectory: strings.TrimSpace(b.DefaultCalDirectory),
	}
}

func mapEngine(cfg *config.Config) engine.Config {
	e := cfg.Executor
	return engine.Config{Workers: e.Workers, QueueSize: e.QueueSize, HistorySize: e.HistorySize}
}

func mapExecutor(cfg *config.Config) executor.Config {
	e := cfg.Executor
	return executor.Config{
		Tick:        dur(e.Tick),
		Horizon:     dur(e.Horizon),
		WaitStep:    dur(e.WaitStep),
		EventBuffer: e.EventBuffer,
	}
}

func mapNotifier(cfg *config.Config) notifier.Config {
	n := cfg.Notifier
	if n == nil {
		return notifier.Config{}
	}
	return notifier.Config{
		Enabled:         n.Enabled,
		Token:           n.Token,
		ChatID:          n.ChatID,
		ThreadID:        n.ThreadID,
		Workers:         n.Workers,
		QueueSize:       n.QueueSize,
		RatePerSec:      n.RatePerSec,
		RetryMax:        n.RetryMax,
		RetryBase:       dur(n.RetryBase),
		RetryMaxDelay:   dur(n.RetryMaxDelay),
		DedupWindow:     dur(n.DedupWindow),
		DedupMaxEntries: n.DedupMaxEntries,
	}
}

func mapRecurring(cfg *config.Config) scheduler.Config {
	r := cfg.Recurring
	jobs := make([]scheduler.Job, 0, len(r.Jobs))
	for _, j := range r.Jobs {
		jobs = append(jobs, scheduler.Job{Name: j.Name, Schedule: j.Schedule, Command: j.Command, Solar: mapSolar(j.Solar)})
	}
	return scheduler.Config{Timezone: r.Timezone, Jobs: jobs}
}

func mapSolar(c *config.RecurringSolar) *scheduler.SolarSwitch {
	if c == nil {
		return nil
	}
	sw := &scheduler.SolarSwitch{
		Site:         solar.OVRO,
		Threshold:    5,
		DayCommand:   strings.TrimSpace(c.DayCommand),
		NightCommand: strings.TrimSpace(c.NightCommand),
		OverrideFile: strings.TrimSpace(c.OverrideFile),
	}
	if c.Lat != nil {
		sw.Site.Lat = *c.Lat
	}
	if c.Lon != nil {
		sw.Site.Lon = *c.Lon
	}
	if c.ThresholdDeg != nil {
		sw.Threshold = *c.ThresholdDeg
	}
	return sw
}

func mapDiag(cfg *config.Config) diag.Config {
	d := cfg.Diag
	return diag.Config{
		Enabled:       d.Enabled,
		Addr:          strings.TrimSpace(d.Addr),
		Token:         strings.TrimSpace(d.Token),
		AllowInsecure: d.AllowInsecure,
	}
}
