package sessions

import (
	"context"
	"sync"
)

// MemoryStore keeps the record in process memory. Used by tests and by
// trackctl when no durable store is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]string

	watchMu  sync.Mutex
	nextID   int
	watchers map[int]func()
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{watchers: map[int]func(){}}
}

func (m *MemoryStore) Load(ctx context.Context) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := make(map[string]string, len(m.entries))
	for k, v := range m.entries {
		cp[k] = v
	}
	return RecordFromEntries(cp), nil
}

func (m *MemoryStore) Save(ctx context.Context, r Record) error {
	e, err := r.Entries()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.entries = e
	m.mu.Unlock()
	m.notify()
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.entries = nil
	m.mu.Unlock()
	m.notify()
	return nil
}

// Entry returns a raw stored value.
func (m *MemoryStore) Entry(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[key]
	return v, ok
}

// Watch registers onChange for every Save and Clear.
func (m *MemoryStore) Watch(ctx context.Context, onChange func()) (func(), error) {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	id := m.nextID
	m.nextID++
	m.watchers[id] = onChange
	return func() {
		m.watchMu.Lock()
		delete(m.watchers, id)
		m.watchMu.Unlock()
	}, nil
}

func (m *MemoryStore) notify() {
	m.watchMu.Lock()
	fns := make([]func(), 0, len(m.watchers))
	for _, fn := range m.watchers {
		fns = append(fns, fn)
	}
	m.watchMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
