// Package memory keeps order aggregates in a map, for tests and local
// development.
package memory

import (
	"context"
	"sync"

	"github.com/freshmarkt/orderflow/internal/order/domain"
)

type Repository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
}

func NewRepository() *Repository {
	return &Repository{orders: make(map[string]*domain.Order)}
}

func (r *Repository) Save(ctx context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = clone(o)
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return clone(o), nil
}

func (r *Repository) ListByBuyer(ctx context.Context, buyerID string) ([]*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Order
	for _, o := range r.orders {
		if o.BuyerID == buyerID {
			out = append(out, clone(o))
		}
	}
	return out, nil
}

func (r *Repository) ListBySeller(ctx context.Context, sellerID string) ([]*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Order
	for _, o := range r.orders {
		if len(o.ItemsOwnedBy(sellerID)) > 0 {
			out = append(out, clone(o))
		}
	}
	return out, nil
}

// Update merges the header fields and the listed item changes into the
// stored aggregate. The stored copy, not the caller's possibly stale read,
// is the base: items outside changes keep whatever another writer put
// there. A From mismatch on any change fails the whole update.
func (r *Repository) Update(ctx context.Context, o *domain.Order, changes []domain.ItemChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.orders[o.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	for _, ch := range changes {
		if ch.Position < 0 || ch.Position >= len(cur.Items) {
			return domain.ErrStaleOrder
		}
		if cur.Items[ch.Position].Status != ch.From {
			return domain.ErrStaleOrder
		}
	}

	updated := clone(cur)
	updated.PaymentStatus = o.PaymentStatus
	updated.RefundStatus = o.RefundStatus
	updated.RefundAmount = o.RefundAmount
	updated.CancelledAt = o.CancelledAt
	updated.CancelledBy = o.CancelledBy
	updated.CancelReason = o.CancelReason
	for _, ch := range changes {
		it := &updated.Items[ch.Position]
		it.Status = ch.To
		if ch.ExpectedDelivery != nil {
			it.ExpectedDelivery = ch.ExpectedDelivery
		}
	}
	r.orders[o.ID] = updated
	return nil
}

// clone guards against callers mutating shared state through returned
// pointers.
func clone(o *domain.Order) *domain.Order {
	cp := *o
	cp.Items = make([]domain.LineItem, len(o.Items))
	copy(cp.Items, o.Items)
	return &cp
}
