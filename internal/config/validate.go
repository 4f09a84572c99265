package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate checks drivers, required fields and every duration string.
func (c *Config) Validate() error {
	var errs []error
	dur := func(path, raw string) {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	oneOf := func(path, v string, allowed ...string) {
		v = strings.ToLower(strings.TrimSpace(v))
		for _, a := range allowed {
			if v == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: unknown value %q (want one of %s)", path, v, strings.Join(allowed, ", ")))
	}

	oneOf("coord.driver", c.Coord.Driver, "", "memory", "dir", "file", "etcd")
	dur("coord.dial_timeout", c.Coord.DialTimeout)
	switch strings.ToLower(strings.TrimSpace(c.Coord.Driver)) {
	case "dir", "file":
		if strings.TrimSpace(c.Coord.Dir) == "" {
			errs = append(errs, errors.New("coord.dir is required for the dir driver"))
		}
	case "etcd":
		if len(c.Coord.Endpoints) == 0 {
			errs = append(errs, errors.New("coord.endpoints is required for the etcd driver"))
		}
	}

	oneOf("state.driver", c.State.Driver, "", "memory", "file", "sqlite")
	dur("state.busy_timeout", c.State.BusyTimeout)
	if d := strings.ToLower(strings.TrimSpace(c.State.Driver)); (d == "file" || d == "sqlite") && strings.TrimSpace(c.State.Path) == "" {
		errs = append(errs, fmt.Errorf("state.path is required for the %s driver", d))
	}

	dur("executor.tick", c.Executor.Tick)
	dur("executor.horizon", c.Executor.Horizon)
	dur("executor.wait_step", c.Executor.WaitStep)
	dur("executor.drain_timeout", c.Executor.DrainTimeout)
	if c.Executor.Workers < 0 || c.Executor.QueueSize < 0 || c.Executor.EventBuffer < 0 {
		errs = append(errs, errors.New("executor: sizes must be >= 0"))
	}

	for name, p := range map[string]ProfileConfig{"buffer": c.Builder.Buffer, "asap": c.Builder.ASAP} {
		prefix := "builder." + name + "."
		dur(prefix+"controller", p.Controller)
		dur(prefix+"configure", p.Configure)
		dur(prefix+"calibration", p.Calibration)
		dur(prefix+"pointing", p.Pointing)
		dur(prefix+"recording", p.Recording)
		dur(prefix+"preroll", p.Preroll)
		dur(prefix+"step", p.Step)
	}

	oneOf("controller.driver", c.Controller.Driver, "", "log", "http")
	dur("controller.timeout", c.Controller.Timeout)
	if strings.EqualFold(strings.TrimSpace(c.Controller.Driver), "http") && strings.TrimSpace(c.Controller.URL) == "" {
		errs = append(errs, errors.New("controller.url is required for the http driver"))
	}

	if n := c.Notifier; n != nil {
		dur("notifier.retry_base", n.RetryBase)
		dur("notifier.retry_max_delay", n.RetryMaxDelay)
		dur("notifier.dedup_window", n.DedupWindow)
		if n.Enabled && (strings.TrimSpace(n.Token) == "" || n.ChatID == 0) {
			errs = append(errs, errors.New("notifier: token and chat_id are required when enabled"))
		}
	}
	if c.Logging.Telegram.Enabled && (c.Notifier == nil || !c.Notifier.Enabled) {
		errs = append(errs, errors.New("logging.telegram needs an enabled notifier"))
	}

	if d := c.Diag; d.Enabled && strings.TrimSpace(d.Addr) != "" {
		if _, _, err := net.SplitHostPort(strings.TrimSpace(d.Addr)); err != nil {
			errs = append(errs, fmt.Errorf("diag.addr: %w", err))
		}
	}

	seen := map[string]bool{}
	for i, j := range c.Recurring.Jobs {
		switch {
		case strings.TrimSpace(j.Name) == "":
			errs = append(errs, fmt.Errorf("recurring.jobs[%d]: name is required", i))
		case seen[j.Name]:
			errs = append(errs, fmt.Errorf("recurring.jobs[%d]: duplicate name %q", i, j.Name))
		}
		seen[j.Name] = true
		switch sw := j.Solar; {
		case sw != nil:
			if strings.TrimSpace(sw.DayCommand) == "" || strings.TrimSpace(sw.NightCommand) == "" {
				errs = append(errs, fmt.Errorf("recurring.jobs[%d].solar: day_command and night_command are required", i))
			}
		case strings.TrimSpace(j.Command) == "":
			errs = append(errs, fmt.Errorf("recurring.jobs[%d]: command is required", i))
		}
	}
	return errors.Join(errs...)
}
