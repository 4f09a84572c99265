package statestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lwaobs/internal/sdf"
	"lwaobs/pkg/logx"
)

func drivers(t *testing.T) map[string]func() Store {
	dir := t.TempDir()
	open := func(cfg Config) func() Store {
		return func() Store {
			st, err := Open(cfg, logx.Nop())
			require.NoError(t, err)
			return st
		}
	}
	return map[string]func() Store{
		"memory": open(Config{Driver: "memory"}),
		"file":   open(Config{Driver: "file", Path: filepath.Join(dir, "file", "state.db")}),
		"sqlite": open(Config{Driver: "sqlite", Path: filepath.Join(dir, "sqlite", "state.db")}),
	}
}

func TestStoreLifecycle(t *testing.T) {
	for name, open := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := open()
			defer st.Close()

			loaded := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
			rec := RecordFrom(sdf.Session{
				ID: "1042", Type: sdf.ObsPower, Beam: 4, PIID: "7", PIName: "Observer",
				ConfigFile: "/etc/lwa.yaml",
			}, loaded)

			created, err := st.RegisterSession(ctx, rec)
			require.NoError(t, err)
			assert.True(t, created)

			// a second registration keeps the first record
			dup := rec
			dup.PIName = "Someone Else"
			created, err = st.RegisterSession(ctx, dup)
			require.NoError(t, err)
			assert.False(t, created)

			got, err := st.Session(ctx, "1042")
			require.NoError(t, err)
			assert.Equal(t, "Observer", got.PIName)
			assert.Equal(t, StatusScheduled, got.Status)
			assert.Equal(t, "POWER", got.Mode)
			assert.Equal(t, 4, got.Beam)
			assert.True(t, loaded.Equal(got.LoadedAt))

			for _, s := range []Status{StatusObserving, StatusCompleted} {
				require.NoError(t, st.UpdateSessionStatus(ctx, "1042", s))
			}
			got, err = st.Session(ctx, "1042")
			require.NoError(t, err)
			assert.Equal(t, StatusCompleted, got.Status)

			require.ErrorIs(t, st.UpdateSessionStatus(ctx, "nope", StatusCancelled), ErrNotFound)
			_, err = st.Session(ctx, "nope")
			require.ErrorIs(t, err, ErrNotFound)

			later := RecordFrom(sdf.Session{ID: "1043", Type: sdf.ObsFast}, loaded.Add(time.Hour))
			_, err = st.RegisterSession(ctx, later)
			require.NoError(t, err)

			all, err := st.List(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, "1042", all[0].SessionID)
			assert.Equal(t, "1043", all[1].SessionID)
			assert.Zero(t, all[1].Beam)
		})
	}
}

func TestFileStoreReopens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	_, err = st.RegisterSession(ctx, RecordFrom(sdf.Session{ID: "a", Type: sdf.ObsSlow}, time.Now()))
	require.NoError(t, err)
	require.NoError(t, st.UpdateSessionStatus(ctx, "a", StatusCancelled))
	_, err = st.RegisterSession(ctx, RecordFrom(sdf.Session{ID: "b", Type: sdf.ObsSlow}, time.Now()))
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	a, err := st.Session(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, a.Status)
	_, err = st.Session(ctx, "b")
	require.NoError(t, err)
}

func TestStatusText(t *testing.T) {
	for st := StatusScheduled; st <= StatusCancelled; st++ {
		b, err := st.MarshalText()
		require.NoError(t, err)
		var back Status
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, st, back)
	}
	assert.True(t, StatusSkipped.Terminal())
	assert.False(t, StatusObserving.Terminal())
	_, err := ParseStatus("paused")
	require.Error(t, err)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "postgres"}, logx.Nop())
	require.Error(t, err)
	_, err = Open(Config{Driver: "file"}, logx.Nop())
	require.Error(t, err)
}
