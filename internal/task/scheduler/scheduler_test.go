package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lwaobs/pkg/logx"
	"lwaobs/pkg/solar"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		kind     SpecKind
		source   string
		duration time.Duration
		cron     string
	}{
		{name: "cron", raw: "*/5 * * * *", kind: SpecCron, source: "cron", cron: "*/5 * * * *"},
		{name: "prefixed cron", raw: "cron:0 0 * * *", kind: SpecCron, source: "cron", cron: "0 0 * * *"},
		{name: "descriptor", raw: "@daily", kind: SpecCron, source: "cron", cron: "@daily"},
		{name: "duration", raw: "10m", kind: SpecInterval, source: "duration", duration: 10 * time.Minute, cron: "@every 10m0s"},
		{name: "prefixed interval", raw: "interval:45s", kind: SpecInterval, source: "duration", duration: 45 * time.Second},
		{name: "hhmm", raw: "01:30", kind: SpecInterval, source: "hhmm", duration: 90 * time.Minute},
		{name: "every hhmm", raw: "every:12:00", kind: SpecInterval, source: "hhmm", duration: 12 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if got.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.kind)
			}
			if got.Source != tt.source {
				t.Fatalf("Source = %s, want %s", got.Source, tt.source)
			}
			if tt.kind == SpecInterval && got.Every != tt.duration {
				t.Fatalf("Every = %v, want %v", got.Every, tt.duration)
			}
			if tt.cron != "" && got.CronSpec() != tt.cron {
				t.Fatalf("CronSpec = %q, want %q", got.CronSpec(), tt.cron)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "00:75", "-5m", "00:00", "cron:"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	s := New(Config{}, nil, logx.Nop())
	ok := Config{Jobs: []Job{{Name: "night", Schedule: "0 3 * * *", Command: "settings.update('night.mat')"}}}
	if err := s.Validate(ok); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	bad := Config{
		Timezone: "Mars/Olympus",
		Jobs: []Job{
			{Name: "a", Schedule: "61 * * * *", Command: "x"},
			{Name: "a", Schedule: "1h"},
			{Schedule: "1h", Command: "x"},
		},
	}
	if err := s.Validate(bad); err == nil {
		t.Fatal("expected validation errors")
	}

	sw := Config{Jobs: []Job{{Name: "switch", Schedule: "30m", Solar: &SolarSwitch{Site: solar.OVRO, Threshold: 5, DayCommand: "d", NightCommand: "n"}}}}
	if err := s.Validate(sw); err != nil {
		t.Fatalf("Validate solar: %v", err)
	}
	sw.Jobs[0].Solar = &SolarSwitch{Site: solar.Site{Lat: 95}, DayCommand: "d"}
	if err := s.Validate(sw); err == nil {
		t.Fatal("expected solar validation errors")
	}
}

func TestJobCommandAt(t *testing.T) {
	t.Parallel()
	noon := time.Date(2024, 6, 20, 19, 55, 0, 0, time.UTC)
	midnight := noon.Add(12 * time.Hour)

	plain := Job{Name: "plain", Command: "settings.update('x.mat')"}
	if got, err := plain.CommandAt(midnight); err != nil || got != plain.Command {
		t.Fatalf("plain CommandAt = %q, %v", got, err)
	}

	sw := &SolarSwitch{Site: solar.OVRO, Threshold: 5, DayCommand: "day", NightCommand: "night"}
	job := Job{Name: "switch", Solar: sw}
	for at, want := range map[time.Time]string{noon: "day", midnight: "night"} {
		got, err := job.CommandAt(at)
		if err != nil || got != want {
			t.Fatalf("CommandAt(%s) = %q, %v; want %q", at, got, err, want)
		}
	}

	sw.OverrideFile = filepath.Join(t.TempDir(), "manual")
	if got, _ := job.CommandAt(noon); got != "day" {
		t.Fatalf("missing override file should not block: %q", got)
	}
	if err := os.WriteFile(sw.OverrideFile, []byte("operator\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := job.CommandAt(noon); !errors.Is(err, ErrManualOverride) {
		t.Fatalf("CommandAt with override = %v", err)
	}
}

func TestJobsFire(t *testing.T) {
	t.Parallel()
	fired := make(chan Job, 4)
	s := New(Config{Jobs: []Job{{Name: "tick", Schedule: "@every 1s", Command: "settings.update('x')"}}},
		func(_ context.Context, j Job) error {
			select {
			case fired <- j:
			default:
			}
			return nil
		}, logx.Nop())

	s.Start(context.Background())
	defer s.Stop(context.Background())

	infos := s.Schedules()
	if len(infos) != 1 || infos[0].Next.IsZero() {
		t.Fatalf("schedules = %+v", infos)
	}

	select {
	case j := <-fired:
		if j.Command != "settings.update('x')" {
			t.Fatalf("command = %q", j.Command)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("job did not fire")
	}

	s.Apply(Config{})
	if got := s.Schedules(); len(got) != 0 {
		t.Fatalf("schedules after apply = %+v", got)
	}
}
