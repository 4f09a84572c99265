package coord

import (
	"context"
	"sync"
)

type memWatcher struct {
	key  string
	ch   chan Event
	done <-chan struct{}

	mu     sync.Mutex
	closed bool
}

func (w *memWatcher) send(ctx context.Context, storeDone <-chan struct{}, ev Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.ch <- ev:
	case <-w.done:
	case <-storeDone:
	case <-ctx.Done():
	}
}

func (w *memWatcher) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.ch)
	}
}

// Memory is an in-process Store.
type Memory struct {
	mu       sync.Mutex
	data     map[string][]byte
	watchers map[*memWatcher]struct{}
	closed   bool
	closeCh  chan struct{}
}

func NewMemory() *Memory {
	return &Memory{
		data:     map[string][]byte{},
		watchers: map[*memWatcher]struct{}{},
		closeCh:  make(chan struct{}),
	}
}

func (m *Memory) Put(ctx context.Context, key string, value []byte) error {
	key = normKey(key)
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.data[key] = append([]byte(nil), value...)
	ws := m.watchersFor(key)
	m.mu.Unlock()

	m.notify(ctx, ws, Event{Key: key, Value: append([]byte(nil), value...)})
	return nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	key = normKey(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	key = normKey(key)
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if _, ok := m.data[key]; !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.data, key)
	ws := m.watchersFor(key)
	m.mu.Unlock()

	m.notify(ctx, ws, Event{Key: key, Deleted: true})
	return nil
}

func (m *Memory) Watch(ctx context.Context, key string) (<-chan Event, error) {
	w := &memWatcher{key: normKey(key), ch: make(chan Event, 16), done: ctx.Done()}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	m.watchers[w] = struct{}{}
	m.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-m.closeCh:
		}
		m.mu.Lock()
		delete(m.watchers, w)
		m.mu.Unlock()
		w.close()
	}()
	return w.ch, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.closeCh)
	return nil
}

func (m *Memory) watchersFor(key string) []*memWatcher {
	var out []*memWatcher
	for w := range m.watchers {
		if w.key == key {
			out = append(out, w)
		}
	}
	return out
}

// notify blocks until every watcher accepted ev, went away or ctx ended.
func (m *Memory) notify(ctx context.Context, ws []*memWatcher, ev Event) {
	for _, w := range ws {
		w.send(ctx, m.closeCh, ev)
	}
}
