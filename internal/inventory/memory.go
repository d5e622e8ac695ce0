package inventory

import (
	"context"
	"sync"
)

type stockRecord struct {
	name      string
	available int
}

// MemoryLedger is a mutex-guarded in-memory Ledger for tests and local
// development. The sqlite implementation is the system of record.
type MemoryLedger struct {
	mu    sync.Mutex
	stock map[string]*stockRecord
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{stock: make(map[string]*stockRecord)}
}

// SetStock seeds or overwrites a product's available quantity.
func (l *MemoryLedger) SetStock(productID, name string, qty int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stock[productID] = &stockRecord{name: name, available: qty}
}

// Available reports the current quantity, or -1 for unknown products.
func (l *MemoryLedger) Available(productID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.stock[productID]
	if !ok {
		return -1
	}
	return rec.available
}

// OutOfStock reports whether the product has zero units left.
func (l *MemoryLedger) OutOfStock(productID string) bool {
	return l.Available(productID) == 0
}

func (l *MemoryLedger) Reserve(ctx context.Context, productID string, qty int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.stock[productID]
	if !ok {
		return &UnknownProductError{ProductID: productID}
	}
	if rec.available < qty {
		return &InsufficientStockError{
			ProductID:   productID,
			ProductName: rec.name,
			Requested:   qty,
			Available:   rec.available,
		}
	}
	rec.available -= qty
	return nil
}

func (l *MemoryLedger) Release(ctx context.Context, productID string, qty int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.stock[productID]
	if !ok {
		return &UnknownProductError{ProductID: productID}
	}
	rec.available += qty
	return nil
}
