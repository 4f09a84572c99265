package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lwaobs/internal/config"
	"lwaobs/internal/control"
	"lwaobs/internal/coord"
	"lwaobs/internal/diag"
	"lwaobs/internal/eventbus"
	"lwaobs/internal/executor"
	"lwaobs/internal/notifier"
	"lwaobs/internal/runtime/supervisor"
	"lwaobs/internal/schedule"
	"lwaobs/internal/statestore"
	"lwaobs/internal/task/engine"
	"lwaobs/internal/task/scheduler"
	"lwaobs/pkg/logx"
	"lwaobs/pkg/systemd"
)

// StopReason is logged when the daemon shuts down.
type StopReason string

const (
	StopSignal    StopReason = "signal"
	StopFatal     StopReason = "fatal"
	StopForced    StopReason = "forced"
	StopRequested StopReason = "requested"
)

// App wires the executor daemon together.
type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	coord coord.Store
	state statestore.Store

	pool  *engine.Service
	exec  *executor.Executor
	sched *scheduler.Service
	notif *notifier.Service
	diag  *diag.Server

	// bg outlives the supervisor so in-flight sessions and their
	// notifications survive the first stop signal.
	bg       context.Context
	bgCancel context.CancelFunc
	runStop  context.CancelFunc
}

// New loads cfgPath and builds every component. Nothing runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLogging(cfg), nil)
	cfgm.SetLogger(log)

	a := &App{cfgm: cfgm, logs: logs, log: log.With(logx.String("comp", "app")), bus: eventbus.New()}
	if err := a.build(cfg, log); err != nil {
		a.closeStores()
		_ = logs.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config, log logx.Logger) error {
	var err error
	if a.coord, err = coord.Open(mapCoord(cfg), log); err != nil {
		return fmt.Errorf("coord: %w", err)
	}
	if a.state, err = statestore.Open(mapState(cfg), log); err != nil {
		return fmt.Errorf("state: %w", err)
	}
	ctl, err := control.New(mapController(cfg), log)
	if err != nil {
		return fmt.Errorf("controller: %w", err)
	}

	a.pool = engine.New(mapEngine(cfg), log, a.bus)
	a.exec, err = executor.New(mapExecutor(cfg), executor.Deps{
		Builder:    schedule.NewBuilder(mapBuilder(cfg), log),
		Coord:      a.coord,
		State:      a.state,
		Controller: ctl,
		Pool:       a.pool,
		Bus:        a.bus,
		Log:        log,
	})
	if err != nil {
		return err
	}

	if ncfg := mapNotifier(cfg); ncfg.Enabled {
		tg, err := notifier.NewTelegram(ncfg)
		if err != nil {
			return fmt.Errorf("notifier: %w", err)
		}
		a.notif = notifier.New(ncfg, tg, log, a.bus)
	}
	if cfg.Logging.Telegram.Enabled {
		if a.notif == nil {
			a.log.Warn("logging.telegram_without_notifier")
		} else {
			a.logs.SetSender(a.notif)
		}
	}

	a.sched = scheduler.New(mapRecurring(cfg), a.trigger, log)

	a.diag = diag.New(mapDiag(cfg), log)
	a.diag.Register("executor", func() any { return a.exec.Status() })
	a.diag.Register("pool", func() any { return a.pool.Snapshot() })
	a.diag.Register("recurring", func() any { return a.sched.Schedules() })
	if a.notif != nil {
		a.diag.Register("notifier", func() any { return a.notif.History() })
	}
	return nil
}

// trigger turns a recurring job into a buffered command request.
func (a *App) trigger(_ context.Context, job scheduler.Job) error {
	cmd, err := job.CommandAt(time.Now())
	if errors.Is(err, scheduler.ErrManualOverride) {
		a.log.Info("recurring.manual_override", logx.String("job", job.Name))
		return nil
	}
	if err != nil {
		return err
	}
	return a.exec.Enqueue(executor.Request{Command: cmd, Mode: schedule.ModeBuffer.String()})
}

// Start launches the executor loop, recurring jobs, notifications and the
// config watcher, then reports readiness to systemd.
func (a *App) Start(ctx context.Context) error {
	if err := a.sched.Validate(mapRecurring(a.cfgm.Get())); err != nil {
		return fmt.Errorf("recurring: %w", err)
	}

	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.bg, a.bgCancel = context.WithCancel(context.WithoutCancel(ctx))

	a.pool.Start(a.bg)
	a.diag.Start(a.bg)
	if a.notif != nil {
		a.notif.Start(a.bg)
		notif := a.notif
		go func() { _ = notif.Watch(a.bg, a.bus) }()
	}

	runCtx, runStop := context.WithCancel(a.sup.Context())
	a.runStop = runStop
	a.sup.Go("executor.run", func(context.Context) error { return a.exec.Run(runCtx) })
	a.sched.Start(a.sup.Context())

	a.sup.Go0("events.log", a.logEvents)
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return a.sched.Validate(mapRecurring(cfg))
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch)
	a.sup.Go0("config.reload", a.reloadLoop)

	if ok, err := systemd.Ready(); err != nil {
		a.log.Warn("systemd.notify_failed", logx.Err(err))
	} else if ok {
		a.log.Debug("systemd.ready")
	}
	a.log.Info("app.started", logx.String("config", a.cfgm.Path()))
	return nil
}

// Done is closed when a supervised goroutine fails.
func (a *App) Done() <-chan struct{} { return a.sup.Context().Done() }

// Err reports the first supervised failure.
func (a *App) Err() error { return a.sup.Err() }

func (a *App) logEvents(ctx context.Context) {
	ch, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			se, isSession := ev.Data.(eventbus.SessionEvent)
			if !isSession {
				a.log.Debug("event", logx.String("type", ev.Type))
				continue
			}
			a.log.Debug("event",
				logx.String("type", ev.Type),
				logx.String("session", se.SessionID),
				logx.String("mode_name", se.ModeName))
			_, _ = systemd.Status("%s %s", ev.Type, se.ModeName)
		}
	}
}

// reloadLoop applies hot-reloadable sections and warns about the rest.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(sub)

	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// coalesce bursts
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.apply(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) apply(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config.reload_noop")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config.changed", fields...)

	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.Apply(mapLogging(newCfg))
		case "recurring":
			a.sched.Apply(mapRecurring(newCfg))
		case "diag":
			a.diag.Reconfigure(a.bg, mapDiag(newCfg))
		default:
			a.log.Warn("config.restart_required", logx.String("section", s))
		}
	}
}

// Drain stops accepting requests, clears the pending schedule and waits for
// in-flight sessions until ctx ends.
func (a *App) Drain(ctx context.Context) error {
	if ok, _ := systemd.Stopping(); ok {
		a.log.Debug("systemd.stopping")
	}
	a.sched.Stop(ctx)
	if a.runStop != nil {
		a.runStop()
	}
	// executor.Shutdown needs the run loop gone
	if err := a.waitRun(ctx); err != nil {
		return err
	}
	return a.exec.Shutdown(ctx)
}

func (a *App) waitRun(ctx context.Context) error {
	a.sup.Cancel()
	if err := a.sup.Wait(ctx); ctx.Err() != nil {
		return err
	}
	return nil
}

// DrainTimeout bounds Drain on the first interrupt. Zero means wait for a
// second one.
func (a *App) DrainTimeout() time.Duration {
	return dur(a.cfgm.Get().Executor.DrainTimeout)
}

// Terminate aborts in-flight sessions immediately.
func (a *App) Terminate() {
	a.log.Warn("app.terminate")
	a.exec.Terminate()
}

// Stop releases everything. Each step is bounded so a stuck component does
// not block exit.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("app.stopping", logx.String("reason", string(reason)))

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		start := time.Now()
		done := make(chan error, 1)
		go func() { done <- fn(stepCtx) }()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("app.stop_step_failed", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("app.stop_step", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("app.stop_step_deadline", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
			go func() {
				err := <-done
				a.log.Info("app.stop_step_late", logx.String("name", name), logx.Duration("took", time.Since(start)), logx.Err(err))
			}()
		}
	}

	if a.sup != nil {
		step("recurring", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
		step("supervisor", 2*time.Second, func(c context.Context) error { a.sup.Cancel(); return a.sup.Wait(c) })
		step("pool", 2*time.Second, func(c context.Context) error {
			if err := a.pool.Stop(c); err != nil {
				a.pool.Terminate()
				return err
			}
			return nil
		})
		step("notifier", 3*time.Second, func(c context.Context) error {
			if a.notif != nil {
				a.notif.Stop(c)
			}
			return nil
		})
		step("diag", time.Second, func(c context.Context) error { a.diag.Stop(c); return nil })
		a.bgCancel()
	}
	step("stores", 2*time.Second, func(context.Context) error { return a.closeStores() })

	a.log.Info("app.stopped")
	return a.logs.Close()
}

func (a *App) closeStores() error {
	var errs []error
	if a.coord != nil {
		errs = append(errs, a.coord.Close())
	}
	if a.state != nil {
		errs = append(errs, a.state.Close())
	}
	return errors.Join(errs...)
}
