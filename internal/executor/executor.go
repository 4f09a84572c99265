package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"lwaobs/internal/control"
	"lwaobs/internal/coord"
	"lwaobs/internal/eventbus"
	"lwaobs/internal/schedule"
	"lwaobs/internal/sdf"
	"lwaobs/internal/statestore"
	"lwaobs/internal/task/engine"
	"lwaobs/pkg/logx"
	"lwaobs/pkg/mjd"
)

type Config struct {
	// Tick is the loop period. Default 490ms.
	Tick time.Duration
	// Horizon is how far ahead of its first command a session is handed to
	// a worker. Default 2s.
	Horizon time.Duration
	// WaitStep bounds each sleep of a worker waiting for a command's
	// instant. Default 490ms.
	WaitStep time.Duration
	// EventBuffer sizes the request channel. Default 64.
	EventBuffer int
}

func (c Config) withDefaults() Config {
	if c.Tick <= 0 {
		c.Tick = 490 * time.Millisecond
	}
	if c.Horizon <= 0 {
		c.Horizon = 2 * time.Second
	}
	if c.WaitStep <= 0 {
		c.WaitStep = 490 * time.Millisecond
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 64
	}
	return c
}

// Deps are the collaborators of an Executor. Bus and Now are optional.
type Deps struct {
	Builder    *schedule.Builder
	Coord      coord.Store
	State      statestore.Store
	Controller control.Controller
	Pool       *engine.Service
	Bus        eventbus.Bus
	Log        logx.Logger
	Now        func() time.Time
}

type group struct {
	sessionID  string
	modeName   string
	registered bool
}

type Executor struct {
	cfg   Config
	log   logx.Logger
	build *schedule.Builder
	pub   *schedule.Publisher
	store coord.Store
	state statestore.Store
	ctl   control.Controller
	pool  *engine.Service
	bus   eventbus.Bus
	now   func() time.Time

	events chan Request

	// owned by the loop goroutine
	snap         schedule.Snapshot
	submitted    schedule.Summary
	inflight     map[string]group
	registered   map[string]bool
	descriptions map[string]json.RawMessage
	published    int

	status atomic.Pointer[Status]
}

// Status is a point-in-time view of the loop, safe to read from any
// goroutine.
type Status struct {
	At        time.Time        `json:"at"`
	Rows      int              `json:"rows"`
	Pending   schedule.Summary `json:"pending"`
	Submitted schedule.Summary `json:"submitted"`
	InFlight  []string         `json:"in_flight"`
}

func New(cfg Config, d Deps) (*Executor, error) {
	if d.Builder == nil || d.Coord == nil || d.State == nil || d.Controller == nil || d.Pool == nil {
		return nil, errors.New("executor: builder, coord, state, controller and pool are required")
	}
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	cfg = cfg.withDefaults()
	return &Executor{
		cfg:          cfg,
		log:          log.With(logx.String("comp", "executor")),
		build:        d.Builder,
		pub:          schedule.NewPublisher(d.Coord, log),
		store:        d.Coord,
		state:        d.State,
		ctl:          d.Controller,
		pool:         d.Pool,
		bus:          d.Bus,
		now:          now,
		events:       make(chan Request, cfg.EventBuffer),
		submitted:    schedule.Summary{},
		inflight:     map[string]group{},
		registered:   map[string]bool{},
		descriptions: map[string]json.RawMessage{},
		published:    -1,
	}, nil
}

// Enqueue hands a request to the loop without blocking.
func (e *Executor) Enqueue(req Request) error {
	select {
	case e.events <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run watches the submission key and drives the loop until ctx ends.
func (e *Executor) Run(ctx context.Context) error {
	watch, err := e.store.Watch(ctx, schedule.SubmitKey)
	if err != nil {
		return fmt.Errorf("executor: watch %s: %w", schedule.SubmitKey, err)
	}
	lost := make(chan error, 1)
	go func() {
		if err := e.forward(ctx, watch); err != nil {
			lost <- err
		}
	}()

	e.log.Info("executor.started",
		logx.Duration("tick", e.cfg.Tick),
		logx.Duration("horizon", e.cfg.Horizon))
	e.publishPending(ctx)

	t := time.NewTicker(e.cfg.Tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-lost:
			return err
		case req := <-e.events:
			_ = e.Handle(ctx, req)
		case <-t.C:
			e.Tick(ctx)
		}
		e.storeStatus()
	}
}

// forward decodes watch events onto the loop channel. A watch that closes
// while ctx is live is reopened with backoff; ErrWatchLost is returned once
// the store refuses for good.
func (e *Executor) forward(ctx context.Context, watch <-chan coord.Event) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = 0

	for {
		e.pump(ctx, watch)
		if ctx.Err() != nil {
			return nil
		}
		e.log.Warn("executor.watch_closed", logx.String("key", schedule.SubmitKey))

		bo.Reset()
		err := backoff.RetryNotify(func() error {
			w, err := e.store.Watch(ctx, schedule.SubmitKey)
			if errors.Is(err, coord.ErrClosed) {
				return backoff.Permanent(err)
			}
			if err != nil {
				return err
			}
			watch = w
			return nil
		}, backoff.WithContext(bo, ctx), func(err error, wait time.Duration) {
			e.log.Warn("executor.watch_retry", logx.Err(err), logx.Duration("retry_in", wait))
		})
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			e.log.Error("executor.watch_lost", logx.String("key", schedule.SubmitKey), logx.Err(err))
			return fmt.Errorf("%w: %w", ErrWatchLost, err)
		}
		e.log.Info("executor.watch_restored", logx.String("key", schedule.SubmitKey))
	}
}

func (e *Executor) pump(ctx context.Context, watch <-chan coord.Event) {
	for {
		var (
			ev coord.Event
			ok bool
		)
		select {
		case <-ctx.Done():
			return
		case ev, ok = <-watch:
			if !ok {
				return
			}
		}
		if ev.Deleted || len(ev.Value) == 0 {
			continue
		}
		req, err := DecodeRequest(ev.Value)
		if err != nil {
			e.log.Warn("executor.bad_request", logx.String("value", string(ev.Value)), logx.Err(err))
			continue
		}
		select {
		case e.events <- req:
		case <-ctx.Done():
			return
		}
	}
}

// Handle applies one request. Only the loop goroutine may call it.
func (e *Executor) Handle(ctx context.Context, req Request) error {
	kind, err := req.Kind()
	if err != nil {
		e.log.Warn("executor.bad_request", logx.Err(err))
		return err
	}
	e.log.Debug("executor.request", logx.String("kind", kind.String()), logx.String("file", req.Filename), logx.String("mode", req.Mode))
	switch kind {
	case KindReset:
		return e.reset(ctx)
	case KindCancel:
		return e.cancel(ctx, req.Filename)
	case KindSubmit:
		return e.submit(ctx, req)
	default:
		return e.command(ctx, req)
	}
}

func (e *Executor) submit(ctx context.Context, req Request) error {
	mode, err := schedule.ParseMode(req.Mode)
	if err != nil {
		e.log.Warn("executor.bad_mode", logx.String("file", req.Filename), logx.String("mode", req.Mode), logx.Err(err))
		return err
	}
	plan, err := e.build.BuildFile(req.Filename, mode)
	if err != nil {
		e.reject(req.Filename, "", err)
		return err
	}
	s := plan.Session
	if err := e.pub.Check(ctx, plan.Rows); err != nil {
		e.reject(req.Filename, s.ModeName(), err)
		return err
	}

	now := e.now()
	span, _ := schedule.Span(plan.Rows)
	if mode == schedule.ModeBuffer && span.Start < mjd.FromTime(now) {
		rec := statestore.RecordFrom(s, now)
		rec.Status = statestore.StatusSkipped
		if !e.register(ctx, rec) {
			e.reopen(ctx, s.ID, statestore.StatusSkipped)
		}
		e.log.Warn("executor.session_skipped",
			logx.String("session", s.ID),
			logx.String("file", req.Filename),
			logx.Time("first", mjd.ToTime(span.Start)))
		e.publish(eventbus.SessionSkipped, eventbus.SessionEvent{SessionID: s.ID, ModeName: s.ModeName(), PIName: s.PIName, Reason: ErrSessionInPast.Error()})
		return ErrSessionInPast
	}

	if !e.register(ctx, statestore.RecordFrom(s, now)) {
		e.reopen(ctx, s.ID, statestore.StatusScheduled)
	}
	e.registered[s.ID] = true
	e.snap.Merge(plan.Rows)
	if b, err := json.Marshal(plan.Description); err == nil {
		e.descriptions[s.ID] = b
	}
	e.publishPending(ctx)
	e.publishDescriptions(ctx)

	e.log.Info("executor.session_scheduled",
		logx.String("session", s.ID),
		logx.String("mode_name", s.ModeName()),
		logx.String("mode", mode.String()),
		logx.Int("rows", len(plan.Rows)),
		logx.Time("first", mjd.ToTime(span.Start)),
		logx.Time("last", mjd.ToTime(span.End)))
	e.publish(eventbus.SessionScheduled, eventbus.SessionEvent{
		SessionID: s.ID,
		ModeName:  s.ModeName(),
		Start:     mjd.ToTime(span.Start),
		End:       mjd.ToTime(span.End),
		Rows:      len(plan.Rows),
		PIName:    s.PIName,
	})
	return nil
}

func (e *Executor) reject(file, modeName string, err error) {
	e.log.Warn("executor.submit_rejected", logx.String("file", file), logx.String("mode_name", modeName), logx.Err(err))
	e.publish(eventbus.SessionRejected, eventbus.SessionEvent{ModeName: modeName, Reason: err.Error()})
}

func (e *Executor) cancel(ctx context.Context, file string) error {
	_, s, _, err := sdf.Load(file, e.log)
	if err != nil {
		e.log.Warn("executor.cancel_failed", logx.String("file", file), logx.Err(err))
		return err
	}
	rows := e.snap.Strip(s.ModeName())
	if len(rows) == 0 {
		e.log.Warn("executor.cancel_not_pending", logx.String("mode_name", s.ModeName()))
		return fmt.Errorf("%w: %s", ErrNotPending, s.ModeName())
	}
	for _, id := range sessionIDs(rows) {
		e.drop(ctx, id)
		e.publish(eventbus.SessionCancelled, eventbus.SessionEvent{SessionID: id, ModeName: s.ModeName(), Rows: len(rows)})
	}
	e.publishPending(ctx)
	e.publishDescriptions(ctx)
	e.log.Info("executor.session_cancelled", logx.String("mode_name", s.ModeName()), logx.Int("rows", len(rows)))
	return nil
}

// drop forgets a pending session and marks it cancelled.
func (e *Executor) drop(ctx context.Context, id string) {
	if e.registered[id] {
		e.setStatus(ctx, id, statestore.StatusCancelled)
		delete(e.registered, id)
	}
	delete(e.descriptions, id)
}

func (e *Executor) reset(ctx context.Context) error {
	rows := e.snap.Clear()
	for _, id := range sessionIDs(rows) {
		e.drop(ctx, id)
	}
	e.submitted = schedule.Summary{}
	e.descriptions = map[string]json.RawMessage{}
	err := e.pub.Clear(ctx)
	e.published = 0
	if err != nil {
		e.log.Warn("executor.reset_clear_failed", logx.Err(err))
	}
	e.log.Info("executor.reset", logx.Int("dropped_rows", len(rows)), logx.Int("in_flight", len(e.inflight)))
	e.publish(eventbus.ScheduleReset, eventbus.SessionEvent{Rows: len(rows)})
	return err
}

func (e *Executor) command(ctx context.Context, req Request) error {
	at := req.MJD
	if at <= 0 {
		at = mjd.FromTime(e.now())
	}
	id := "cmd-" + uuid.NewString()[:8]
	rows, err := schedule.MakeCommand(at, req.Command, id)
	if err != nil {
		e.log.Warn("executor.command_rejected", logx.String("command", req.Command), logx.Err(err))
		return err
	}
	e.snap.Merge(rows)
	e.publishPending(ctx)
	e.log.Info("executor.command_scheduled", logx.String("session", id), logx.Time("at", mjd.ToTime(at)))
	return nil
}

// Tick reaps finished groups and dispatches every session whose first
// command is within the horizon. Only the loop goroutine may call it.
func (e *Executor) Tick(ctx context.Context) {
	e.reap(ctx)

	limit := mjd.FromTime(e.now()) + mjd.Days(e.cfg.Horizon)
	for {
		head, ok := e.snap.Head()
		if !ok || head.At > limit {
			break
		}
		rows := e.snap.Take(head.SessionID)
		if !e.dispatch(ctx, head.SessionID, rows) {
			e.snap.Merge(rows)
			break
		}
	}
	if e.snap.Len() != e.published {
		e.publishPending(ctx)
	}
}

func (e *Executor) dispatch(ctx context.Context, sessionID string, rows []schedule.Row) bool {
	g := group{sessionID: sessionID, modeName: rows[0].ModeName, registered: e.registered[sessionID]}
	if g.registered {
		e.setStatus(ctx, sessionID, statestore.StatusObserving)
	}

	task := engine.Task{
		ID:   "grp-" + uuid.NewString()[:8],
		Name: "session." + sessionID,
		Run:  func(ctx context.Context) error { return e.runGroup(ctx, g, rows) },
	}
	if err := e.pool.Enqueue(task); err != nil {
		e.log.Error("executor.dispatch_deferred", logx.String("session", sessionID), logx.Err(err))
		if g.registered {
			e.setStatus(ctx, sessionID, statestore.StatusScheduled)
		}
		return false
	}

	delete(e.registered, sessionID)
	e.inflight[task.ID] = g
	span, _ := schedule.Span(rows)
	e.submitted.Merge(schedule.Summarize(rows))
	if err := e.pub.PutSubmitted(ctx, e.submitted); err != nil {
		e.log.Warn("executor.publish_failed", logx.String("key", schedule.SubmittedKey), logx.Err(err))
	}
	e.log.Info("executor.session_dispatched",
		logx.String("session", sessionID),
		logx.String("task", task.ID),
		logx.Int("rows", len(rows)),
		logx.Time("first", mjd.ToTime(span.Start)))
	e.publish(eventbus.SessionObserving, eventbus.SessionEvent{
		SessionID: sessionID,
		ModeName:  g.modeName,
		Start:     mjd.ToTime(span.Start),
		End:       mjd.ToTime(span.End),
		Rows:      len(rows),
	})
	return true
}

func (e *Executor) reap(ctx context.Context) {
	changed := false
	for _, res := range e.pool.Reap() {
		g, ok := e.inflight[res.ID]
		if !ok {
			continue
		}
		delete(e.inflight, res.ID)
		e.submitted.Remove(g.modeName)
		delete(e.descriptions, g.sessionID)
		changed = true
		if res.Err != nil {
			e.log.Warn("executor.group_failed", logx.String("session", g.sessionID), logx.Err(res.Err))
		}
	}
	if !changed {
		return
	}
	if err := e.pub.PutSubmitted(ctx, e.submitted); err != nil {
		e.log.Warn("executor.publish_failed", logx.String("key", schedule.SubmittedKey), logx.Err(err))
	}
	e.publishDescriptions(ctx)
}

// Shutdown clears the published schedule and waits for in-flight groups
// until ctx ends. Call it after Run returned.
func (e *Executor) Shutdown(ctx context.Context) error {
	pending := e.snap.Len()
	e.snap.Clear()
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := e.pub.Clear(cctx); err != nil {
		e.log.Warn("executor.shutdown_clear_failed", logx.Err(err))
	}
	e.log.Info("executor.draining", logx.Int("in_flight", len(e.inflight)), logx.Int("dropped_rows", pending))
	return e.pool.Stop(ctx)
}

// Terminate cancels every in-flight group.
func (e *Executor) Terminate() {
	e.log.Warn("executor.terminating", logx.Int("in_flight", len(e.inflight)))
	e.pool.Terminate()
}

// Status returns the view stored by the loop after its last step.
func (e *Executor) Status() Status {
	if st := e.status.Load(); st != nil {
		return *st
	}
	return Status{Pending: schedule.Summary{}, Submitted: schedule.Summary{}}
}

func (e *Executor) storeStatus() {
	ids := make([]string, 0, len(e.inflight))
	for _, g := range e.inflight {
		ids = append(ids, g.sessionID)
	}
	sort.Strings(ids)
	e.status.Store(&Status{
		At:        e.now(),
		Rows:      e.snap.Len(),
		Pending:   e.snap.Summary(),
		Submitted: e.submitted.Clone(),
		InFlight:  ids,
	})
}

// Pending returns a copy of the undispatched rows. Only the loop goroutine
// may call it while Run is active.
func (e *Executor) Pending() []schedule.Row { return e.snap.Rows() }

// register records a new session. It reports false when the id already
// exists or the store failed.
func (e *Executor) register(ctx context.Context, rec statestore.SessionRecord) bool {
	created, err := e.state.RegisterSession(ctx, rec)
	if err != nil {
		e.log.Warn("executor.state_update_failed", logx.Err(&statestore.StateUpdateError{Op: "register", SessionID: rec.SessionID, Err: err}))
		return false
	}
	if !created {
		e.log.Warn("executor.session_exists", logx.String("session", rec.SessionID))
	}
	return created
}

// reopen moves a resubmitted session out of a terminal status. Records
// that are still scheduled or observing are left alone.
func (e *Executor) reopen(ctx context.Context, id string, st statestore.Status) {
	rec, err := e.state.Session(ctx, id)
	if err != nil || !rec.Status.Terminal() || rec.Status == st {
		return
	}
	e.setStatus(ctx, id, st)
	e.log.Info("executor.session_reopened", logx.String("session", id), logx.String("from", rec.Status.String()), logx.String("to", st.String()))
}

func (e *Executor) setStatus(ctx context.Context, id string, st statestore.Status) {
	if err := e.state.UpdateSessionStatus(ctx, id, st); err != nil {
		e.log.Warn("executor.state_update_failed", logx.Err(&statestore.StateUpdateError{Op: "status " + st.String(), SessionID: id, Err: err}))
	}
}

func (e *Executor) publishPending(ctx context.Context) {
	if err := e.pub.PutSchedule(ctx, e.snap.Summary()); err != nil {
		e.log.Warn("executor.publish_failed", logx.String("key", schedule.ScheduleKey), logx.Err(err))
		return
	}
	e.published = e.snap.Len()
}

func (e *Executor) publishDescriptions(ctx context.Context) {
	if err := e.pub.PutDescriptions(ctx, e.descriptions); err != nil {
		e.log.Warn("executor.publish_failed", logx.String("key", schedule.DescriptionKey), logx.Err(err))
	}
}

func (e *Executor) publish(typ string, ev eventbus.SessionEvent) {
	if e.bus != nil {
		e.bus.Publish(eventbus.Event{Type: typ, Time: e.now(), Data: ev})
	}
}

func sessionIDs(rows []schedule.Row) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range rows {
		if !seen[r.SessionID] {
			seen[r.SessionID] = true
			out = append(out, r.SessionID)
		}
	}
	sort.Strings(out)
	return out
}
