package catalog

import (
	"context"
	"sync"
)

// MemoryLookup is an in-memory Lookup for tests and local development.
type MemoryLookup struct {
	mu       sync.RWMutex
	products map[string]Product
}

func NewMemoryLookup() *MemoryLookup {
	return &MemoryLookup{products: make(map[string]Product)}
}

func (m *MemoryLookup) Put(p Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

func (m *MemoryLookup) GetProduct(ctx context.Context, productID string) (Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[productID]
	if !ok || !p.Active {
		return Product{}, &UnavailableError{ProductID: productID}
	}
	return p, nil
}
