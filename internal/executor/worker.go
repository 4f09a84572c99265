package executor

import (
	"context"
	"errors"
	"time"

	"lwaobs/internal/control"
	"lwaobs/internal/eventbus"
	"lwaobs/internal/schedule"
	"lwaobs/internal/statestore"
	"lwaobs/pkg/logx"
	"lwaobs/pkg/mjd"
)

// runGroup executes one session's rows in order on a pool worker. It never
// touches loop-owned state.
func (e *Executor) runGroup(ctx context.Context, g group, rows []schedule.Row) error {
	log := e.log.With(logx.String("session", g.sessionID))
	failed := 0
	for _, r := range rows {
		if err := e.waitUntil(ctx, r.At); err != nil {
			return err
		}
		late := -mjd.Until(r.At, e.now())
		if err := control.Dispatch(ctx, e.ctl, r.Command); err != nil {
			var de *control.DispatchError
			if errors.As(err, &de) && ctx.Err() == nil {
				failed++
				log.Warn("executor.dispatch_failed", logx.String("command", r.Command.String()), logx.Err(err))
				continue
			}
			return err
		}
		log.Debug("executor.dispatched", logx.String("command", r.Command.String()), logx.Duration("late", late))
	}

	if g.registered {
		if err := e.state.UpdateSessionStatus(ctx, g.sessionID, statestore.StatusCompleted); err != nil {
			log.Warn("executor.state_update_failed", logx.Err(&statestore.StateUpdateError{Op: "status completed", SessionID: g.sessionID, Err: err}))
		}
	}
	log.Info("executor.session_completed", logx.Int("rows", len(rows)), logx.Int("failed", failed))
	e.publish(eventbus.SessionCompleted, eventbus.SessionEvent{SessionID: g.sessionID, ModeName: g.modeName, Rows: len(rows)})
	return nil
}

// waitUntil sleeps in WaitStep increments until the MJD instant at.
func (e *Executor) waitUntil(ctx context.Context, at float64) error {
	for {
		d := mjd.Until(at, e.now())
		if d <= 0 {
			return nil
		}
		t := time.NewTimer(min(d, e.cfg.WaitStep))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
