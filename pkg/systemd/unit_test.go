package systemd

import (
	"errors"
	"testing"
	"time"
)

func TestUnitName(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]string{
		"lwaobs-executor":         "lwaobs-executor.service",
		"lwaobs-executor.service": "lwaobs-executor.service",
		"nightly.timer":           "nightly.timer",
	} {
		if got := unitName(in); got != want {
			t.Fatalf("unitName(%q)=%q want %q", in, got, want)
		}
	}
}

func TestStatusFromProps(t *testing.T) {
	t.Parallel()
	since := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := statusFromProps("lwaobs-executor", map[string]any{
		"ActiveState":          "active",
		"SubState":             "running",
		"LoadState":            "loaded",
		"Description":          "observing executor",
		"ActiveEnterTimestamp": uint64(since.UnixMicro()),
	})
	if !st.Running() {
		t.Fatalf("expected running: %+v", st)
	}
	if !st.ActiveSince.Equal(since) {
		t.Fatalf("ActiveSince=%v want %v", st.ActiveSince, since)
	}

	missing := statusFromProps("ghost", nil)
	if missing.LoadState != "not-found" || missing.Running() {
		t.Fatalf("unexpected status for missing unit: %+v", missing)
	}
}

func TestIsNoSuchUnitErr(t *testing.T) {
	t.Parallel()
	if !isNoSuchUnitErr(errors.New("org.freedesktop.systemd1.NoSuchUnit: Unit x not loaded")) {
		t.Fatal("expected NoSuchUnit match")
	}
	if isNoSuchUnitErr(nil) || isNoSuchUnitErr(errors.New("timeout")) {
		t.Fatal("unexpected match")
	}
}
