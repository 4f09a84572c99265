package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lwaobs/internal/eventbus"
	"lwaobs/pkg/logx"
)

func reapAll(t *testing.T, s *Service, n int) []Result {
	t.Helper()
	var out []Result
	require.Eventually(t, func() bool {
		out = append(out, s.Reap()...)
		return len(out) >= n
	}, 5*time.Second, 5*time.Millisecond)
	return out
}

func TestRunsTasksAndReaps(t *testing.T) {
	bus := eventbus.New()
	events, unsub := bus.Subscribe(32)
	defer unsub()

	s := New(Config{Workers: 2}, logx.Nop(), bus)
	s.Start(context.Background())
	defer s.Terminate()

	require.NoError(t, s.Enqueue(Task{Name: "ok", Run: func(context.Context) error { return nil }}))
	require.NoError(t, s.Enqueue(Task{ID: "x", Name: "bad", Run: func(context.Context) error { return errors.New("nope") }}))

	res := reapAll(t, s, 2)
	byName := map[string]Result{}
	for _, r := range res {
		byName[r.Name] = r
	}
	assert.NoError(t, byName["ok"].Err)
	assert.NotEmpty(t, byName["ok"].ID)
	assert.EqualError(t, byName["bad"].Err, "nope")
	assert.Equal(t, "x", byName["bad"].ID)
	assert.Empty(t, s.Reap())

	seen := map[string]int{}
	for seen["task.started"] < 2 {
		select {
		case ev := <-events:
			seen[ev.Type]++
		case <-time.After(2 * time.Second):
			t.Fatalf("events so far: %v", seen)
		}
	}
	assert.Len(t, s.Snapshot().History, 2)
}

func TestPanicIsIsolated(t *testing.T) {
	s := New(Config{Workers: 1}, logx.Nop(), nil)
	s.Start(context.Background())
	defer s.Terminate()

	require.NoError(t, s.Enqueue(Task{Name: "boom", Run: func(context.Context) error { panic("bad row") }}))
	require.NoError(t, s.Enqueue(Task{Name: "after", Run: func(context.Context) error { return nil }}))

	res := reapAll(t, s, 2)
	var perr *PanicError
	require.ErrorAs(t, res[0].Err, &perr)
	assert.Equal(t, "bad row", perr.Value)
	assert.NoError(t, res[1].Err)
	assert.EqualValues(t, 1, s.Snapshot().Panics)
}

func TestEnqueueQueueFull(t *testing.T) {
	s := New(Config{Workers: 1, QueueSize: 1}, logx.Nop(), nil)
	s.Start(context.Background())
	defer s.Terminate()

	release := make(chan struct{})
	started := make(chan struct{})
	block := func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}
	require.NoError(t, s.Enqueue(Task{Name: "a", Run: block}))
	<-started
	require.NoError(t, s.Enqueue(Task{Name: "b", Run: block}))
	require.ErrorIs(t, s.Enqueue(Task{Name: "c", Run: block}), ErrQueueFull)
	assert.Equal(t, 2, s.Busy())
	close(release)
	reapAll(t, s, 2)
}

func TestStopDrainsQueuedWork(t *testing.T) {
	s := New(Config{Workers: 1}, logx.Nop(), nil)
	s.Start(context.Background())

	var done atomic.Int32
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Enqueue(Task{Name: "slow", Run: func(context.Context) error {
			time.Sleep(20 * time.Millisecond)
			done.Add(1)
			return nil
		}}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.EqualValues(t, 3, done.Load())
	assert.Len(t, s.Reap(), 3)
	require.ErrorIs(t, s.Enqueue(Task{Name: "late", Run: func(context.Context) error { return nil }}), ErrStopped)
}

func TestStopTimeoutThenTerminate(t *testing.T) {
	s := New(Config{Workers: 1}, logx.Nop(), nil)
	s.Start(context.Background())

	running := make(chan struct{})
	require.NoError(t, s.Enqueue(Task{Name: "forever", Run: func(ctx context.Context) error {
		close(running)
		<-ctx.Done()
		return ctx.Err()
	}}))
	<-running

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, s.Stop(ctx), context.DeadlineExceeded)
	require.ErrorIs(t, s.Enqueue(Task{Name: "late", Run: func(context.Context) error { return nil }}), ErrStopping)

	s.Terminate()
	res := s.Reap()
	require.Len(t, res, 1)
	assert.ErrorIs(t, res[0].Err, context.Canceled)
}
