package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lwaobs/internal/eventbus"
	"lwaobs/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	fails int
}

func (f *fakeSender) SendText(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("telegram: 502")
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeSender) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func start(t *testing.T, cfg Config, sender Sender) *Service {
	t.Helper()
	cfg.Enabled = true
	if cfg.RatePerSec == 0 {
		cfg.RatePerSec = 1000
	}
	s := New(cfg, sender, logx.Nop(), nil)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func TestNotifyDelivers(t *testing.T) {
	sender := &fakeSender{}
	s := start(t, Config{}, sender)

	require.NoError(t, s.Notify(context.Background(), "hello"))
	require.Eventually(t, func() bool { return len(sender.Sent()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "hello", s.History()[0].Text)
}

func TestNotifyRetries(t *testing.T) {
	sender := &fakeSender{fails: 2}
	s := start(t, Config{RetryMax: 2, RetryBase: time.Millisecond, RetryMaxDelay: 5 * time.Millisecond}, sender)

	require.NoError(t, s.Notify(context.Background(), "retry me"))
	require.Eventually(t, func() bool { return len(sender.Sent()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestNotifyDedup(t *testing.T) {
	sender := &fakeSender{}
	s := start(t, Config{DedupWindow: time.Minute}, sender)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Notify(context.Background(), "same"))
	}
	require.NoError(t, s.Notify(context.Background(), "other"))
	require.Eventually(t, func() bool { return len(sender.Sent()) == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.ElementsMatch(t, []string{"same", "other"}, sender.Sent())
}

func TestDisabledAndStopped(t *testing.T) {
	s := New(Config{}, &fakeSender{}, logx.Nop(), nil)
	s.Start(context.Background())
	assert.ErrorIs(t, s.Notify(context.Background(), "x"), ErrDisabled)
	assert.False(t, s.Enabled())

	s = start(t, Config{}, &fakeSender{})
	s.Stop(context.Background())
	assert.ErrorIs(t, s.Notify(context.Background(), "x"), ErrStopped)
}

func TestStopDrainsQueue(t *testing.T) {
	sender := &fakeSender{}
	s := New(Config{Enabled: true, RatePerSec: 1000}, sender, logx.Nop(), nil)
	s.Start(context.Background())
	for _, m := range []string{"a", "b", "c"} {
		require.NoError(t, s.Notify(context.Background(), m))
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, sender.Sent())
}

func TestWatchFormatsSessionEvents(t *testing.T) {
	sender := &fakeSender{}
	s := start(t, Config{}, sender)
	bus := eventbus.New()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Watch(ctx, bus)
	}()

	at := time.Date(2023, 2, 25, 12, 0, 0, 0, time.UTC)
	// subscription happens inside Watch; republish until it is seen
	require.Eventually(t, func() bool {
		bus.Publish(eventbus.Event{Type: eventbus.SessionScheduled, Data: eventbus.SessionEvent{
			SessionID: "1042", ModeName: "1042_POWER4", PIName: "Ada",
			Start: at, End: at.Add(time.Minute), Rows: 5,
		}})
		bus.Publish(eventbus.Event{Type: "task.started", Data: struct{}{}})
		return len(sender.Sent()) > 0
	}, time.Second, 10*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, "Scheduled 1042_POWER4 (PI Ada): 2023-02-25 12:00:00Z to 2023-02-25 12:01:00Z, 5 commands", sender.Sent()[0])
}

func TestFormat(t *testing.T) {
	cases := []struct {
		typ  string
		ev   eventbus.SessionEvent
		want string
	}{
		{eventbus.SessionRejected, eventbus.SessionEvent{Reason: "bad beam"}, "Rejected submission: bad beam"},
		{eventbus.SessionSkipped, eventbus.SessionEvent{ModeName: "9_POWER1", Reason: "late"}, "Skipped 9_POWER1: late"},
		{eventbus.SessionObserving, eventbus.SessionEvent{ModeName: "9_POWER1"}, "Observing 9_POWER1"},
		{eventbus.SessionCompleted, eventbus.SessionEvent{SessionID: "9"}, "Completed 9"},
		{eventbus.SessionCancelled, eventbus.SessionEvent{ModeName: "9_POWER1"}, "Cancelled 9_POWER1"},
		{eventbus.ScheduleReset, eventbus.SessionEvent{Rows: 12}, "Schedule reset, 12 pending commands dropped"},
	}
	for _, tc := range cases {
		t.Run(tc.typ, func(t *testing.T) {
			got, ok := Format(eventbus.Event{Type: tc.typ, Data: tc.ev})
			require.True(t, ok)
			assert.Equal(t, tc.want, got)
		})
	}

	_, ok := Format(eventbus.Event{Type: "task.finished", Data: eventbus.SessionEvent{}})
	assert.False(t, ok)
}

func TestRetryDelayCapped(t *testing.T) {
	cfg := Config{}.withDefaults()
	for attempt := 1; attempt < 10; attempt++ {
		d := retryDelay(cfg, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, cfg.RetryMaxDelay)
	}
}
