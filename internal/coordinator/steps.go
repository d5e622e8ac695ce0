package coordinator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/freshmarkt/orderflow/internal/inventory"
	"github.com/freshmarkt/orderflow/internal/order/domain"
)

// OrderSaver persists the order aggregate once every reservation holds.
type OrderSaver interface {
	Save(ctx context.Context, order *domain.Order) error
}

// CartClearer empties the buyer's shopping cart after checkout.
type CartClearer interface {
	Clear(ctx context.Context, buyerID string) error
}

// --- ReserveStockStep ---

// ReserveStockStep reserves one line item's quantity. Placement builds one
// of these per line item, in request order, so the orchestrator's LIFO
// rollback releases exactly the reservations that were granted.
type ReserveStockStep struct {
	ledger      inventory.Ledger
	productID   string
	productName string
	quantity    int
}

func NewReserveStockStep(ledger inventory.Ledger, productID, productName string, quantity int) *ReserveStockStep {
	return &ReserveStockStep{
		ledger:      ledger,
		productID:   productID,
		productName: productName,
		quantity:    quantity,
	}
}

func (s *ReserveStockStep) Name() string {
	return fmt.Sprintf("reserve_stock[%s]", s.productID)
}

func (s *ReserveStockStep) Execute(ctx context.Context) error {
	// The ledger's insufficient-stock error passes through unwrapped so the
	// caller can report product name and quantities precisely.
	return s.ledger.Reserve(ctx, s.productID, s.quantity)
}

func (s *ReserveStockStep) Compensate(ctx context.Context) error {
	return s.ledger.Release(ctx, s.productID, s.quantity)
}

// --- CreateOrderStep ---

// CreateOrderStep persists the aggregate. It runs after all reservations so
// a stored order always has its stock backing.
type CreateOrderStep struct {
	repo  OrderSaver
	order *domain.Order
}

func NewCreateOrderStep(repo OrderSaver, order *domain.Order) *CreateOrderStep {
	return &CreateOrderStep{repo: repo, order: order}
}

func (s *CreateOrderStep) Name() string { return "create_order" }

func (s *CreateOrderStep) Execute(ctx context.Context) error {
	if err := s.repo.Save(ctx, s.order); err != nil {
		return fmt.Errorf("persist order %s: %w", s.order.ID, err)
	}
	return nil
}

func (s *CreateOrderStep) Compensate(ctx context.Context) error {
	// Aggregates are never deleted. If a later step ever becomes fallible,
	// compensation would transition the stored items to cancelled instead.
	return nil
}

// --- ClearCartStep ---

// ClearCartStep empties the buyer's cart. A cart that fails to clear is an
// annoyance, not a correctness problem, so the failure is logged and the
// placement still succeeds.
type ClearCartStep struct {
	carts   CartClearer
	buyerID string
}

func NewClearCartStep(carts CartClearer, buyerID string) *ClearCartStep {
	return &ClearCartStep{carts: carts, buyerID: buyerID}
}

func (s *ClearCartStep) Name() string { return "clear_cart" }

func (s *ClearCartStep) Execute(ctx context.Context) error {
	if err := s.carts.Clear(ctx, s.buyerID); err != nil {
		slog.WarnContext(ctx, "cart clear failed after placement",
			"buyer_id", s.buyerID, "error", err)
	}
	return nil
}

func (s *ClearCartStep) Compensate(ctx context.Context) error { return nil }
