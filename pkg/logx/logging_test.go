package logx

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

type captureSender struct {
	mu   sync.Mutex
	msgs []string
}

func (c *captureSender) SendText(_ context.Context, text string) error {
	c.mu.Lock()
	c.msgs = append(c.msgs, text)
	c.mu.Unlock()
	return nil
}

func (c *captureSender) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.msgs...)
}

func TestFormatRemote(t *testing.T) {
	t.Parallel()

	got := formatRemote([]byte(`{"level":"warn","message":"submit.rejected","session":"s1","time":"x","comp":"executor"}` + "\n"))
	want := "[WARN] submit.rejected\n- comp=executor\n- session=s1"
	if got != want {
		t.Fatalf("formatRemote:\n got %q\nwant %q", got, want)
	}

	if got := formatRemote([]byte("  plain line \n")); got != "plain line" {
		t.Fatalf("non-JSON line: got %q", got)
	}
}

func TestRemoteSinkForwardsAboveMinLevel(t *testing.T) {
	sender := &captureSender{}
	svc, log := New(Config{
		Level:  "debug",
		Remote: RemoteConfig{Enabled: true, MinLevel: "warn", RatePerSec: 100},
	}, sender)
	defer svc.Close()

	log.Info("not.forwarded")
	log.Warn("forwarded", String("k", "v"))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(sender.snapshot()) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	msgs := sender.snapshot()
	if len(msgs) != 1 {
		t.Fatalf("expected exactly one forwarded message, got %d: %v", len(msgs), msgs)
	}
	if !strings.HasPrefix(msgs[0], "[WARN] forwarded") || !strings.Contains(msgs[0], "- k=v") {
		t.Fatalf("unexpected message %q", msgs[0])
	}
}

func TestValidLevel(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "info", "WARN", "warning", "trace"} {
		if !ValidLevel(s) {
			t.Fatalf("ValidLevel(%q) = false", s)
		}
	}
	if ValidLevel("loud") {
		t.Fatalf("ValidLevel(loud) = true")
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()

	var l Logger
	if !l.IsZero() {
		t.Fatalf("zero logger should report IsZero")
	}
	l.With(String("a", "b")).Info("ignored")
}
