// Package eventbus is a non-blocking in-memory pub/sub used to decouple the
// executor from its observers (notifications, diagnostics).
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Session lifecycle event types. Their Data is a SessionEvent.
const (
	SessionScheduled = "session.scheduled"
	SessionRejected  = "session.rejected"
	SessionSkipped   = "session.skipped"
	SessionObserving = "session.observing"
	SessionCompleted = "session.completed"
	SessionCancelled = "session.cancelled"
	ScheduleReset    = "schedule.reset"
)

// Event is a lightweight signal.
//
// Publish never blocks. Subscribers get buffered channels; a slow
// subscriber drops events.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// SessionEvent describes one session state change.
type SessionEvent struct {
	SessionID string    `json:"session_id"`
	ModeName  string    `json:"mode_name"`
	Start     time.Time `json:"start,omitzero"`
	End       time.Time `json:"end,omitzero"`
	Rows      int       `json:"rows,omitempty"`
	PIName    string    `json:"pi_name,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			// publishers hold the read lock while sending
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}
