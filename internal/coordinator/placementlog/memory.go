package placementlog

import (
	"context"
	"sync"
)

// MemoryRepository keeps entries in a slice; used in tests.
type MemoryRepository struct {
	mu      sync.Mutex
	entries []*Entry
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (m *MemoryRepository) Save(ctx context.Context, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

// History returns the entries for one saga, in insertion order.
func (m *MemoryRepository) History(ctx context.Context, sagaID string) ([]*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Entry
	for _, e := range m.entries {
		if e.SagaID == sagaID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Entries returns a snapshot of everything saved so far.
func (m *MemoryRepository) Entries() []*Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Entry, len(m.entries))
	copy(out, m.entries)
	return out
}
