package cart

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for tests.
type MemoryStore struct {
	mu    sync.Mutex
	carts map[string]map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: make(map[string]map[string]int)}
}

func (m *MemoryStore) Add(buyerID, productID string, qty int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.carts[buyerID] == nil {
		m.carts[buyerID] = make(map[string]int)
	}
	m.carts[buyerID][productID] += qty
}

func (m *MemoryStore) Get(ctx context.Context, buyerID string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.carts[buyerID]))
	for k, v := range m.carts[buyerID] {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) Clear(ctx context.Context, buyerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, buyerID)
	return nil
}
