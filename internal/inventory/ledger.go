// Package inventory owns the available quantity of every product.
//
// All stock mutations in the system go through a Ledger. Order logic never
// writes stock fields directly; it asks the ledger to reserve or release a
// quantity and reacts to the outcome. Reserve is a single conditional
// decrement so that two concurrent placements for the last unit cannot both
// succeed.
package inventory

import (
	"context"
	"fmt"
)

// Ledger is the port for stock mutations. Implementations must guarantee
// that Reserve is atomic (decrement-if-sufficient, not read-then-write) and
// that availableQuantity never goes negative.
type Ledger interface {
	// Reserve decrements the product's available quantity by qty if at least
	// qty units are available. Returns *InsufficientStockError otherwise,
	// without mutating anything.
	Reserve(ctx context.Context, productID string, qty int) error

	// Release returns qty units to the product's available quantity and
	// clears the out-of-stock flag. Used for cancellations and for rollback
	// of a partially failed placement.
	Release(ctx context.Context, productID string, qty int) error
}

// InsufficientStockError is a normal business outcome, not a fault. It
// carries everything the caller needs to render a precise message.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d",
		e.ProductName, e.Requested, e.Available)
}

// UnknownProductError is returned when the ledger has no record for the
// product at all.
type UnknownProductError struct {
	ProductID string
}

func (e *UnknownProductError) Error() string {
	return fmt.Sprintf("unknown product %s", e.ProductID)
}
