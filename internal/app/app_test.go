package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lwaobs/internal/config"
	"lwaobs/internal/coord"
	"lwaobs/internal/executor"
	"lwaobs/internal/schedule"
	"lwaobs/internal/task/scheduler"
	"lwaobs/pkg/logx"
	"lwaobs/pkg/solar"
)

func TestMapConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.Decode("lwaobs.yaml", []byte(`
coord:
  driver: etcd
  endpoints: ["10.1.1.50:2379"]
  dial_timeout: 3s
state:
  driver: sqlite
  path: /var/lib/lwaobs/sessions.db
executor:
  tick: 250ms
  workers: 4
builder:
  default_config_file: /home/op/lwa.cfg
  buffer:
    calibration: 4m
controller:
  driver: http
  url: http://mcs:8080
  timeout: bogus
recurring:
  timezone: UTC
  jobs:
    - name: night
      schedule: "@daily"
      command: settings.update(mode=night)
`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if c := mapCoord(cfg); c.DialTimeout != 3*time.Second || len(c.Endpoints) != 1 {
		t.Fatalf("coord = %+v", c)
	}
	if s := mapState(cfg); s.Driver != "sqlite" || s.Path == "" {
		t.Fatalf("state = %+v", s)
	}
	if e := mapExecutor(cfg); e.Tick != 250*time.Millisecond || e.Horizon != 0 {
		t.Fatalf("executor = %+v", e)
	}
	if e := mapEngine(cfg); e.Workers != 4 {
		t.Fatalf("engine = %+v", e)
	}
	b := mapBuilder(cfg)
	if b.Buffer.Calibration != 4*time.Minute || b.Buffer.Pointing != 0 || b.DefaultConfigFile != "/home/op/lwa.cfg" {
		t.Fatalf("builder = %+v", b)
	}
	// malformed durations fall back to the driver default
	if c := mapController(cfg); c.HTTP.Timeout != 0 || c.HTTP.URL != "http://mcs:8080" {
		t.Fatalf("controller = %+v", c)
	}
	if n := mapNotifier(cfg); n.Enabled {
		t.Fatalf("notifier enabled without a section")
	}
	r := mapRecurring(cfg)
	if r.Timezone != "UTC" || len(r.Jobs) != 1 || r.Jobs[0].Command != "settings.update(mode=night)" {
		t.Fatalf("recurring = %+v", r)
	}
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "lwaobs.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestAppLifecycle(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeConfig(t, dir, `
logging:
  level: error
coord:
  driver: dir
  dir: `+filepath.Join(dir, "coord")+`
state:
  driver: memory
executor:
  tick: 10ms
  wait_step: 5ms
controller:
  driver: log
recurring:
  timezone: UTC
`)

	a, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := a.trigger(ctx, scheduler.Job{Name: "test", Schedule: "@daily", Command: "settings.update(mode=test)"}); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	override := filepath.Join(dir, "manual")
	if err := os.WriteFile(override, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	held := scheduler.Job{Name: "switch", Schedule: "@hourly", Solar: &scheduler.SolarSwitch{
		DayCommand: "settings.update(day)", NightCommand: "settings.update(night)", OverrideFile: override,
	}}
	if err := a.trigger(ctx, held); err != nil {
		t.Fatalf("trigger under manual override: %v", err)
	}

	dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer dcancel()
	if err := a.Drain(dctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if rows := a.exec.Pending(); len(rows) != 0 {
		t.Fatalf("pending after drain = %d", len(rows))
	}
	if _, err := a.coord.Get(dctx, schedule.ScheduleKey); err == nil {
		t.Fatalf("schedule key still published after drain")
	}
	if err := a.Stop(dctx, StopSignal); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestApplyRecurringChange(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeConfig(t, dir, "logging:\n  level: error\n")
	a, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = a.Stop(context.Background(), StopRequested) }()

	next := *a.cfgm.Get()
	next.Recurring = config.RecurringConfig{
		Timezone: "UTC",
		Jobs:     []config.RecurringJob{{Name: "night", Schedule: "@daily", Command: "settings.update(mode=night)"}},
	}
	a.apply(a.cfgm.Get(), &next)

	got := a.sched.Schedules()
	if len(got) != 1 || got[0].Name != "night" {
		t.Fatalf("schedules = %+v", got)
	}
}

func TestClientRequests(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, err := NewClient(&config.Config{}, logx.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer c.Close()

	if err := c.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	var got executor.Request
	if err := coord.GetJSON(ctx, c.coord, schedule.SubmitKey, &got); err != nil || got.Mode != "reset" {
		t.Fatalf("submit key = %+v, %v", got, err)
	}

	if err := c.Command(ctx, 0, "shutdown()", schedule.ModeBuffer); !errors.Is(err, schedule.ErrUnsupportedCommand) {
		t.Fatalf("Command err = %v", err)
	}
	if err := c.Command(ctx, 60000.5, "settings.update(x=1)", schedule.ModeASAP); err != nil {
		t.Fatalf("Command: %v", err)
	}
	if err := coord.GetJSON(ctx, c.coord, schedule.SubmitKey, &got); err != nil || got.MJD != 60000.5 || got.Mode != "asap" {
		t.Fatalf("submit key = %+v, %v", got, err)
	}

	if err := c.Cancel(ctx, "session.sdf"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := coord.GetJSON(ctx, c.coord, schedule.SubmitKey, &got); err != nil || !filepath.IsAbs(got.Filename) {
		t.Fatalf("cancel filename = %q, %v", got.Filename, err)
	}

	pending, submitted, err := c.Schedules(ctx)
	if err != nil || pending.Len() != 0 || submitted.Len() != 0 {
		t.Fatalf("Schedules = %v %v %v", pending, submitted, err)
	}
	if _, err := c.Sessions(ctx); err == nil {
		t.Fatalf("Sessions on memory state should fail")
	}
}

func TestMapSolarDefaults(t *testing.T) {
	t.Parallel()
	lat := -30.7
	cfg := &config.Config{Recurring: config.RecurringConfig{Jobs: []config.RecurringJob{
		{Name: "plain", Schedule: "@daily", Command: "settings.update(x)"},
		{Name: "switch", Schedule: "1h", Solar: &config.RecurringSolar{Lat: &lat, DayCommand: " d ", NightCommand: "n"}},
	}}}
	jobs := mapRecurring(cfg).Jobs
	if jobs[0].Solar != nil {
		t.Fatalf("plain job got a solar switch")
	}
	sw := jobs[1].Solar
	if sw == nil {
		t.Fatal("solar switch not mapped")
	}
	if sw.Site.Lat != lat || sw.Site.Lon != solar.OVRO.Lon || sw.Threshold != 5 {
		t.Fatalf("site/threshold = %+v/%v", sw.Site, sw.Threshold)
	}
	if sw.DayCommand != "d" {
		t.Fatalf("day command = %q", sw.DayCommand)
	}
}
