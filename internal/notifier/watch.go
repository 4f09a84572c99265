package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lwaobs/internal/eventbus"
	"lwaobs/pkg/logx"
)

// Watch forwards session lifecycle events from bus until ctx ends.
func (s *Service) Watch(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			text, ok := Format(ev)
			if !ok {
				continue
			}
			if err := s.Notify(ctx, text); err != nil && ctx.Err() == nil {
				s.log.Debug("notifier.enqueue_failed", logx.String("type", ev.Type), logx.Err(err))
			}
		}
	}
}

// Format renders a session lifecycle event. Other events report false.
func Format(ev eventbus.Event) (string, bool) {
	se, ok := ev.Data.(eventbus.SessionEvent)
	if !ok {
		return "", false
	}
	name := se.ModeName
	if name == "" {
		name = se.SessionID
	}

	var b strings.Builder
	switch ev.Type {
	case eventbus.SessionScheduled:
		fmt.Fprintf(&b, "Scheduled %s", name)
		if se.PIName != "" {
			fmt.Fprintf(&b, " (PI %s)", se.PIName)
		}
		if !se.Start.IsZero() {
			fmt.Fprintf(&b, ": %s to %s, %d commands", stamp(se.Start), stamp(se.End), se.Rows)
		}
	case eventbus.SessionRejected:
		fmt.Fprintf(&b, "Rejected %s: %s", orUnknown(name), se.Reason)
	case eventbus.SessionSkipped:
		fmt.Fprintf(&b, "Skipped %s: %s", name, se.Reason)
	case eventbus.SessionObserving:
		fmt.Fprintf(&b, "Observing %s", name)
	case eventbus.SessionCompleted:
		fmt.Fprintf(&b, "Completed %s", name)
	case eventbus.SessionCancelled:
		fmt.Fprintf(&b, "Cancelled %s", name)
	case eventbus.ScheduleReset:
		fmt.Fprintf(&b, "Schedule reset, %d pending commands dropped", se.Rows)
	default:
		return "", false
	}
	return b.String(), true
}

func stamp(t time.Time) string { return t.UTC().Format("2006-01-02 15:04:05Z") }

func orUnknown(s string) string {
	if s == "" {
		return "submission"
	}
	return s
}
