package statestore

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryStore struct {
	mu     sync.Mutex
	recs   map[string]SessionRecord
	closed bool
	now    func() time.Time
}

// NewMemory returns a process-local store.
func NewMemory() Store {
	return &memoryStore{recs: map[string]SessionRecord{}, now: time.Now}
}

func (m *memoryStore) RegisterSession(_ context.Context, rec SessionRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	if _, ok := m.recs[rec.SessionID]; ok {
		return false, nil
	}
	m.recs[rec.SessionID] = rec
	return true, nil
}

func (m *memoryStore) UpdateSessionStatus(_ context.Context, id string, st Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	rec, ok := m.recs[id]
	if !ok {
		return ErrNotFound
	}
	rec.Status = st
	rec.UpdatedAt = m.now().UTC()
	m.recs[id] = rec
	return nil
}

func (m *memoryStore) Session(_ context.Context, id string) (SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return SessionRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *memoryStore) List(_ context.Context) ([]SessionRecord, error) {
	m.mu.Lock()
	out := make([]SessionRecord, 0, len(m.recs))
	for _, r := range m.recs {
		out = append(out, r)
	}
	m.mu.Unlock()
	sortRecords(out)
	return out, nil
}

func (m *memoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func sortRecords(recs []SessionRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].LoadedAt.Equal(recs[j].LoadedAt) {
			return recs[i].LoadedAt.Before(recs[j].LoadedAt)
		}
		return recs[i].SessionID < recs[j].SessionID
	})
}
