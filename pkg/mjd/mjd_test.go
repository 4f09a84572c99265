package mjd

import (
	"math"
	"testing"
	"time"
)

func TestFromTimeEpoch(t *testing.T) {
	t.Parallel()

	if got := FromTime(time.Unix(0, 0)); got != UnixEpoch {
		t.Fatalf("FromTime(unix 0) = %v, want %v", got, UnixEpoch)
	}
	// 2024-01-01T00:00:00Z is MJD 60310.
	if got := FromTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)); got != 60310 {
		t.Fatalf("FromTime(2024-01-01) = %v, want 60310", got)
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	in := time.Date(2025, 3, 14, 15, 9, 26, 535000000, time.UTC)
	out := ToTime(FromTime(in))
	if d := out.Sub(in); d > time.Microsecond || d < -time.Microsecond {
		t.Fatalf("round trip drift %v (in=%v out=%v)", d, in, out)
	}
}

func TestSplitJoin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		day, mpm int64
	}{
		{60310, 0},
		{60310, 43_200_000},
		{60310, 86_399_999},
		{59000, 1},
	}
	for _, tt := range tests {
		d, m := Split(Join(tt.day, tt.mpm))
		if d != tt.day || m != tt.mpm {
			t.Fatalf("Split(Join(%d,%d)) = (%d,%d)", tt.day, tt.mpm, d, m)
		}
	}
}

func TestUntil(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	target := FromTime(now) + Seconds(90)
	got := Until(target, now)
	if math.Abs(got.Seconds()-90) > 1e-3 {
		t.Fatalf("Until = %v, want 90s", got)
	}
}
