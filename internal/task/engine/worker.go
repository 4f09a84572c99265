package engine

import (
	"context"
	"runtime/debug"
	"sync/atomic"
	"time"

	"lwaobs/pkg/logx"
)

// worker runs tasks until the queue is closed and drained (true) or ctx
// ends (false).
func (s *Service) worker(ctx context.Context, queue <-chan queuedTask) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case qt, ok := <-queue:
			if !ok {
				return true
			}
			atomic.AddInt32(&s.inFlight, 1)
			s.execOne(ctx, qt)
			atomic.AddInt32(&s.inFlight, -1)
		}
	}
}

func (s *Service) execOne(ctx context.Context, qt queuedTask) {
	start := time.Now()
	queueDelay := max(start.Sub(qt.enqueuedAt), 0)
	t := qt.task

	s.log.Debug("task.started", logx.String("task", t.Name), logx.String("id", t.ID), logx.Duration("queue_delay", queueDelay))
	s.publish("task.started", start, TaskEvent{ID: t.ID, Name: t.Name, Started: start, QueueDelay: queueDelay})

	// a panicking task fails alone; the worker keeps going
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				atomic.AddUint64(&s.panics, 1)
				stack := string(debug.Stack())
				err = &PanicError{Value: r, Stack: stack}
				s.log.Error("task.panic", logx.String("task", t.Name), logx.Any("panic", r), logx.String("stack", stack))
			}
		}()
		err = t.Run(ctx)
	}()

	dur := time.Since(start)
	res := Result{ID: t.ID, Name: t.Name, Started: start, QueueDelay: queueDelay, Duration: dur, Err: err}
	item := HistoryItem{ID: t.ID, Name: t.Name, Started: start, QueueDelay: queueDelay, Duration: dur}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("task.failed", logx.String("task", t.Name), logx.String("id", t.ID), logx.Err(err), logx.Duration("dur", dur))
		s.publish("task.failed", time.Now(), TaskEvent{ID: t.ID, Name: t.Name, Started: start, QueueDelay: queueDelay, Duration: dur, Error: item.Error})
	} else {
		s.log.Debug("task.completed", logx.String("task", t.Name), logx.String("id", t.ID), logx.Duration("dur", dur))
		s.publish("task.finished", time.Now(), TaskEvent{ID: t.ID, Name: t.Name, Started: start, QueueDelay: queueDelay, Duration: dur})
	}

	s.rmu.Lock()
	s.results = append(s.results, res)
	s.rmu.Unlock()

	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > s.cfg.HistorySize {
		s.history = s.history[len(s.history)-s.cfg.HistorySize:]
	}
	s.hmu.Unlock()
}
