package coord

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lwaobs/pkg/logx"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	dir, err := OpenDir(t.TempDir(), logx.Nop())
	require.NoError(t, err)
	stores := map[string]Store{
		"memory": NewMemory(),
		"dir":    dir,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func next(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "watch channel closed")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watch event")
		return Event{}
	}
}

func TestPutGetDelete(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.Get(ctx, "/mon/observing/schedule")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Put(ctx, "/mon/observing/schedule", []byte(`{"a":1}`)))
			b, err := s.Get(ctx, "mon/observing/schedule")
			require.NoError(t, err)
			assert.JSONEq(t, `{"a":1}`, string(b))

			require.NoError(t, s.Delete(ctx, "/mon/observing/schedule"))
			require.NoError(t, s.Delete(ctx, "/mon/observing/schedule"))
			_, err = s.Get(ctx, "/mon/observing/schedule")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestJSONHelpers(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	type cmd struct {
		Command  string `json:"command"`
		Filename string `json:"filename"`
	}
	require.NoError(t, PutJSON(ctx, s, "/cmd/observing/submitsdf", cmd{Command: "submit", Filename: "a.sdf"}))

	var got cmd
	require.NoError(t, GetJSON(ctx, s, "/cmd/observing/submitsdf", &got))
	assert.Equal(t, "a.sdf", got.Filename)

	require.NoError(t, s.Put(ctx, "/bad", []byte("{")))
	err := GetJSON(ctx, s, "/bad", &got)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestWatchDeliversPutsAndDeletes(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			ch, err := s.Watch(ctx, "/cmd/observing/submitsdf")
			require.NoError(t, err)

			require.NoError(t, s.Put(ctx, "/cmd/observing/other", []byte(`{}`)))
			require.NoError(t, s.Put(ctx, "/cmd/observing/submitsdf", []byte(`{"command":"reset"}`)))

			ev := next(t, ch)
			assert.Equal(t, "/cmd/observing/submitsdf", ev.Key)
			assert.False(t, ev.Deleted)
			assert.JSONEq(t, `{"command":"reset"}`, string(ev.Value))

			require.NoError(t, s.Delete(ctx, "/cmd/observing/submitsdf"))
			ev = next(t, ch)
			assert.True(t, ev.Deleted)

			cancel()
			require.Eventually(t, func() bool {
				select {
				case _, ok := <-ch:
					return !ok
				default:
					return false
				}
			}, 5*time.Second, 10*time.Millisecond)
		})
	}
}

func TestClosedStore(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Close())
			require.NoError(t, s.Close())
			assert.ErrorIs(t, s.Put(context.Background(), "/k", nil), ErrClosed)
			_, err := s.Watch(context.Background(), "/k")
			assert.ErrorIs(t, err, ErrClosed)
		})
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "zookeeper"}, logx.Nop())
	require.ErrorIs(t, err, ErrUnknownDriver)

	s, err := Open(Config{}, logx.Nop())
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)
}
