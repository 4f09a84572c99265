package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"lwaobs/internal/eventbus"
	rtsup "lwaobs/internal/runtime/supervisor"
	"lwaobs/pkg/logx"
)

// Service is a fixed-size worker pool. Enqueue never blocks; finished
// results are collected with Reap.
type Service struct {
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	mu       sync.Mutex
	q        chan queuedTask
	sup      *rtsup.Supervisor
	stopping bool

	inFlight int32

	rmu     sync.Mutex
	results []Result

	hmu     sync.Mutex
	history []HistoryItem

	droppedQueueFull uint64
	panics           uint64
}

type queuedTask struct {
	task       Task
	enqueuedAt time.Time
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg.withDefaults(),
		log: log.With(logx.String("comp", "taskengine")),
		bus: bus,
	}
}

// Start launches the workers. It is a no-op when already running.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.q != nil {
		return
	}

	s.q = make(chan queuedTask, s.cfg.QueueSize)
	s.stopping = false
	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)
	queue := s.q
	for i := 0; i < s.cfg.Workers; i++ {
		name := fmt.Sprintf("worker.%d", i)
		// workers return nil only once the queue is closed and drained
		s.sup.GoRestart(name, func(c context.Context) error {
			if s.worker(c, queue) {
				return nil
			}
			if c.Err() != nil {
				return c.Err()
			}
			return errors.New("worker exited unexpectedly")
		}, rtsup.WithPublishFirstError(true))
	}
	s.log.Info("task engine started", logx.Int("workers", s.cfg.Workers), logx.Int("queue", cap(queue)))
}

// Enqueue accepts t without blocking.
func (s *Service) Enqueue(t Task) error {
	if t.Run == nil {
		return errors.New("task Run is nil")
	}
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return errors.New("task Name is required")
	}
	if strings.TrimSpace(t.ID) == "" {
		t.ID = "tsk-" + uuid.NewString()[:8]
	}

	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.q == nil {
		return ErrStopped
	}
	if s.stopping {
		return ErrStopping
	}
	select {
	case s.q <- queuedTask{task: t, enqueuedAt: now}:
		s.log.Debug("task.queued", logx.String("task", t.Name), logx.String("id", t.ID))
		return nil
	default:
		atomic.AddUint64(&s.droppedQueueFull, 1)
		s.publish("task.dropped", now, TaskEvent{ID: t.ID, Name: t.Name, Started: now, Error: "queue_full"})
		s.log.Warn("task dropped: queue full", logx.String("task", t.Name), logx.String("id", t.ID), logx.Int("queue_cap", cap(s.q)))
		return ErrQueueFull
	}
}

// Reap returns the results finished since the previous call.
func (s *Service) Reap() []Result {
	s.rmu.Lock()
	defer s.rmu.Unlock()
	out := s.results
	s.results = nil
	return out
}

// Busy reports how many tasks are queued or running.
func (s *Service) Busy() int {
	s.mu.Lock()
	q := 0
	if s.q != nil {
		q = len(s.q)
	}
	s.mu.Unlock()
	return q + int(atomic.LoadInt32(&s.inFlight))
}

// Stop stops accepting tasks and waits for queued and running tasks to
// finish. It returns ctx.Err() if ctx ends first; the pool keeps draining
// in that case until Terminate.
func (s *Service) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.q == nil {
		s.mu.Unlock()
		return nil
	}
	if !s.stopping {
		s.stopping = true
		close(s.q)
	}
	sup := s.sup
	s.mu.Unlock()

	s.log.Info("task engine draining", logx.Int("busy", s.Busy()))
	if err := sup.Wait(ctx); err != nil && ctx.Err() != nil {
		s.log.Warn("task engine stop timed out", logx.Err(ctx.Err()))
		return ctx.Err()
	}
	s.reset(sup)
	s.log.Info("task engine stopped")
	return nil
}

// Terminate cancels every running task and returns once the workers exit.
func (s *Service) Terminate() {
	s.mu.Lock()
	if s.q == nil {
		s.mu.Unlock()
		return
	}
	if !s.stopping {
		s.stopping = true
		close(s.q)
	}
	sup := s.sup
	s.mu.Unlock()

	sup.Cancel()
	_ = sup.Wait(context.Background())
	s.reset(sup)
	s.log.Warn("task engine terminated")
}

func (s *Service) reset(sup *rtsup.Supervisor) {
	s.mu.Lock()
	if s.sup == sup {
		s.q = nil
		s.sup = nil
	}
	s.mu.Unlock()
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	ql, qc := 0, 0
	if s.q != nil {
		ql, qc = len(s.q), cap(s.q)
	}
	stopping := s.stopping
	s.mu.Unlock()

	s.hmu.Lock()
	h := make([]HistoryItem, len(s.history))
	copy(h, s.history)
	s.hmu.Unlock()

	return Snapshot{
		Workers:          s.cfg.Workers,
		QueueLen:         ql,
		QueueCap:         qc,
		InFlight:         int(atomic.LoadInt32(&s.inFlight)),
		Stopping:         stopping,
		DroppedQueueFull: atomic.LoadUint64(&s.droppedQueueFull),
		Panics:           atomic.LoadUint64(&s.panics),
		History:          h,
	}
}

func (s *Service) publish(typ string, at time.Time, ev TaskEvent) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Time: at, Data: ev})
	}
}
