package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"lwaobs/pkg/logx"
)

// Service fires the configured jobs. Apply replaces the job set while
// running.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	cfg     Config
	trigger TriggerFunc
	parser  cron.Parser

	ctx     context.Context
	c       *cron.Cron
	entries map[string]cron.EntryID
}

func New(cfg Config, trigger TriggerFunc, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg,
		trigger: trigger,
		log:     log.With(logx.String("comp", "recurring")),
		// SecondOptional allows both 5-field and 6-field (with seconds) specs.
		parser:  cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		entries: map[string]cron.EntryID{},
	}
}

// Validate checks every job of cfg without registering anything.
func (s *Service) Validate(cfg Config) error {
	var errs []error
	seen := map[string]bool{}
	for i, j := range cfg.Jobs {
		name := strings.TrimSpace(j.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("recurring.jobs[%d]: name required", i))
			continue
		}
		if seen[name] {
			errs = append(errs, fmt.Errorf("recurring.jobs[%d]: duplicate name %q", i, name))
		}
		seen[name] = true
		switch {
		case j.Solar != nil:
			if err := j.Solar.validate(); err != nil {
				errs = append(errs, fmt.Errorf("recurring.jobs[%d]: %w", i, err))
			}
		case strings.TrimSpace(j.Command) == "":
			errs = append(errs, fmt.Errorf("recurring.jobs[%d]: command required", i))
		}
		ps, err := ParseSchedule(j.Schedule)
		if err == nil {
			_, err = s.parser.Parse(ps.CronSpec())
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("recurring.jobs[%d]: %w", i, err))
		}
	}
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("recurring.timezone: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Start begins triggering. Jobs run with ctx.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.ctx = ctx
	s.startLocked()
}

// Stop stops triggering and waits for running jobs until ctx ends.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.entries = map[string]cron.EntryID{}
	s.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("recurring.stopped")
}

// Apply swaps in cfg, re-registering every job when running.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	if s.c == nil {
		return
	}
	<-s.c.Stop().Done()
	s.entries = map[string]cron.EntryID{}
	s.startLocked()
}

func (s *Service) startLocked() {
	loc := s.location()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	for _, j := range s.cfg.Jobs {
		if err := s.addLocked(j); err != nil {
			s.log.Error("recurring.register_failed", logx.String("name", j.Name), logx.String("schedule", j.Schedule), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("recurring.started", logx.String("tz", loc.String()), logx.Int("jobs", len(s.entries)))
}

func (s *Service) addLocked(j Job) error {
	ps, err := ParseSchedule(j.Schedule)
	if err != nil {
		return err
	}
	job := j
	ctx := s.ctx
	id, err := s.c.AddFunc(ps.CronSpec(), func() {
		s.log.Info("recurring.fired", logx.String("name", job.Name))
		if err := s.trigger(ctx, job); err != nil {
			s.log.Warn("recurring.trigger_failed", logx.String("name", job.Name), logx.Err(err))
		}
	})
	if err != nil {
		return err
	}
	s.entries[j.Name] = id
	s.log.Debug("recurring.registered", logx.String("name", j.Name), logx.String("spec", ps.CronSpec()))
	return nil
}

func (s *Service) location() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// Schedules lists the registered jobs with their next and previous runs.
func (s *Service) Schedules() []ScheduleInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ScheduleInfo
	for _, j := range s.cfg.Jobs {
		info := ScheduleInfo{Name: j.Name, Spec: j.Schedule}
		if id, ok := s.entries[j.Name]; ok && s.c != nil {
			e := s.c.Entry(id)
			info.Next, info.Prev = e.Next, e.Prev
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}
