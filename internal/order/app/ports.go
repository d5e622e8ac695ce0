package app

import (
	"context"

	"github.com/freshmarkt/orderflow/internal/order/domain"
)

// Repository is the persistence port for order aggregates.
type Repository interface {
	Save(ctx context.Context, o *domain.Order) error
	Get(ctx context.Context, id string) (*domain.Order, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]*domain.Order, error)
	ListBySeller(ctx context.Context, sellerID string) ([]*domain.Order, error)

	// Update persists the aggregate's header fields plus exactly the item
	// changes listed. Items not named in changes are left as stored, so
	// two sellers mutating their own items never overwrite each other.
	// Each change is guarded on its From status; a mismatch returns
	// domain.ErrStaleOrder and persists nothing.
	Update(ctx context.Context, o *domain.Order, changes []domain.ItemChange) error
}
