// Package app coordinates the order lifecycle: placement with compensating
// rollback, seller status updates, and cancellation with inventory and
// refund reconciliation.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/freshmarkt/orderflow/internal/cart"
	"github.com/freshmarkt/orderflow/internal/catalog"
	"github.com/freshmarkt/orderflow/internal/coordinator"
	"github.com/freshmarkt/orderflow/internal/coordinator/placementlog"
	"github.com/freshmarkt/orderflow/internal/inventory"
	"github.com/freshmarkt/orderflow/internal/notification"
	"github.com/freshmarkt/orderflow/internal/order/domain"
	"github.com/freshmarkt/orderflow/internal/order/projection"
	"github.com/freshmarkt/orderflow/internal/policy"
)

// DefaultTaxRate is the flat percentage applied when the caller does not
// supply pre-computed totals.
const DefaultTaxRate = 0.05

// refundProcessingDays is the expectation conveyed to buyers when an online
// payment is refunded.
const refundProcessingDays = 3

// Service is the order lifecycle engine.
type Service struct {
	repo     Repository
	ledger   inventory.Ledger
	catalog  catalog.Lookup
	carts    cart.Store
	notifier notification.Notifier
	logs     placementlog.Repository
	policy   policy.Engine
	taxRate  float64
	now      func() time.Time
}

// Option tweaks Service construction.
type Option func(*Service)

// WithTaxRate overrides the default flat tax rate.
func WithTaxRate(rate float64) Option {
	return func(s *Service) { s.taxRate = rate }
}

// WithPolicy overrides the default cancellation policy.
func WithPolicy(engine policy.Engine) Option {
	return func(s *Service) { s.policy = engine }
}

// WithClock injects the time source; tests pin it.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(
	repo Repository,
	ledger inventory.Ledger,
	lookup catalog.Lookup,
	carts cart.Store,
	notifier notification.Notifier,
	logs placementlog.Repository,
	opts ...Option,
) *Service {
	s := &Service{
		repo:     repo,
		ledger:   ledger,
		catalog:  lookup,
		carts:    carts,
		notifier: notifier,
		logs:     logs,
		policy:   policy.Default(),
		taxRate:  DefaultTaxRate,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LineItemRequest is one requested product in a placement.
type LineItemRequest struct {
	ProductID string
	Quantity  int
}

// PlaceOrderRequest carries everything a checkout submits. Subtotal, tax
// and total may be pre-computed by the caller; when present they take
// precedence but must be non-negative.
type PlaceOrderRequest struct {
	BuyerID       string
	Billing       domain.BillingInfo
	Items         []LineItemRequest
	PaymentMethod domain.PaymentMethod

	// PaymentConfirmed asserts an upstream gateway captured PaymentRef for
	// this checkout. Signature verification happened before this service.
	PaymentConfirmed bool
	PaymentRef       string

	Subtotal    *float64
	TaxAmount   *float64
	TotalAmount *float64
}

// PlaceOrder validates the request, reserves stock for every line item in
// request order, persists the aggregate and clears the buyer's cart. A
// request without items checks out the buyer's saved cart instead. On the
// first failed reservation every earlier reservation is released before the
// error returns: the caller observes no partial stock effect.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*domain.Order, error) {
	if len(req.Items) == 0 && req.BuyerID != "" {
		items, err := s.itemsFromCart(ctx, req.BuyerID)
		if err != nil {
			return nil, err
		}
		req.Items = items
	}
	if err := validatePlacement(req); err != nil {
		return nil, err
	}

	items := make([]domain.LineItem, 0, len(req.Items))
	for _, it := range req.Items {
		p, err := s.catalog.GetProduct(ctx, it.ProductID)
		if err != nil {
			return nil, err
		}
		items = append(items, domain.LineItem{
			ProductID:   p.ID,
			ProductName: p.Name,
			SellerID:    p.SellerID,
			SellerName:  p.SellerName,
			SellerEmail: p.SellerEmail,
			Quantity:    it.Quantity,
			UnitPrice:   p.UnitPrice,
			Status:      domain.ItemPending,
		})
	}

	order := &domain.Order{
		ID:            uuid.NewString(),
		BuyerID:       req.BuyerID,
		Billing:       req.Billing,
		Items:         items,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: domain.PaymentPending,
		PaymentRef:    req.PaymentRef,
		RefundStatus:  domain.RefundNone,
		PlacedAt:      s.now().UTC(),
	}
	if req.PaymentMethod == domain.PaymentOnline && req.PaymentConfirmed {
		order.PaymentStatus = domain.PaymentPaid
	}
	if err := s.applyTotals(order, req); err != nil {
		return nil, err
	}

	steps := make([]coordinator.Step, 0, len(items)+2)
	for _, it := range items {
		steps = append(steps, coordinator.NewReserveStockStep(s.ledger, it.ProductID, it.ProductName, it.Quantity))
	}
	steps = append(steps,
		coordinator.NewCreateOrderStep(s.repo, order),
		coordinator.NewClearCartStep(s.carts, req.BuyerID),
	)

	// Synchronous on purpose: rollback must be complete before the caller
	// sees the placement outcome.
	if err := coordinator.NewOrchestrator(order.ID, steps, s.logs).Start(ctx); err != nil {
		return nil, err
	}

	s.notify(ctx, notification.Message{
		Recipient: order.Billing.Email,
		Kind:      notification.KindOrderPlaced,
		OrderID:   order.ID,
	})

	slog.InfoContext(ctx, "order placed",
		"order_id", order.ID, "buyer_id", order.BuyerID, "items", len(order.Items),
		"total", order.TotalAmount)
	return order, nil
}

// itemsFromCart turns the buyer's saved cart into line item requests when
// the checkout body carries none. Product IDs are sorted so stock is
// reserved in a deterministic order.
func (s *Service) itemsFromCart(ctx context.Context, buyerID string) ([]LineItemRequest, error) {
	saved, err := s.carts.Get(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("load cart for %s: %w", buyerID, err)
	}
	ids := make([]string, 0, len(saved))
	for id := range saved {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	items := make([]LineItemRequest, 0, len(ids))
	for _, id := range ids {
		items = append(items, LineItemRequest{ProductID: id, Quantity: saved[id]})
	}
	return items, nil
}

func validatePlacement(req PlaceOrderRequest) error {
	if req.BuyerID == "" {
		return &domain.InvalidRequestError{Field: "buyerId", Detail: "is required"}
	}
	if len(req.Items) == 0 {
		return &domain.InvalidRequestError{Field: "items", Detail: "must not be empty"}
	}
	if !req.Billing.Complete() {
		return &domain.InvalidRequestError{Field: "billing", Detail: "is incomplete"}
	}
	if !req.PaymentMethod.Valid() {
		return &domain.InvalidRequestError{Field: "paymentMethod", Detail: "is unknown"}
	}
	for _, it := range req.Items {
		if it.ProductID == "" {
			return &domain.InvalidRequestError{Field: "items.productId", Detail: "is required"}
		}
		if it.Quantity < 1 {
			return &domain.InvalidRequestError{Field: "items.quantity", Detail: "must be at least 1"}
		}
	}
	return nil
}

// applyTotals computes subtotal/tax/total, honouring caller-supplied values
// after checking they are non-negative.
func (s *Service) applyTotals(order *domain.Order, req PlaceOrderRequest) error {
	var subtotal float64
	for _, it := range order.Items {
		subtotal += it.Total()
	}
	order.Subtotal = subtotal
	order.TaxAmount = subtotal * s.taxRate
	order.TotalAmount = order.Subtotal + order.TaxAmount

	for field, override := range map[string]*float64{
		"subtotal":    req.Subtotal,
		"taxAmount":   req.TaxAmount,
		"totalAmount": req.TotalAmount,
	} {
		if override != nil && *override < 0 {
			return &domain.InvalidRequestError{Field: field, Detail: "must be non-negative"}
		}
	}
	if req.Subtotal != nil {
		order.Subtotal = *req.Subtotal
	}
	if req.TaxAmount != nil {
		order.TaxAmount = *req.TaxAmount
	}
	if req.TotalAmount != nil {
		order.TotalAmount = *req.TotalAmount
	}
	return nil
}

// UpdateItemStatus transitions the caller's own line items to newStatus and
// optionally sets their expected delivery date. Items belonging to other
// sellers are untouched. An item already at newStatus is skipped, so
// retried updates are harmless.
func (s *Service) UpdateItemStatus(
	ctx context.Context,
	orderID, sellerID string,
	newStatus domain.ItemStatus,
	expectedDelivery *time.Time,
) (*domain.Order, error) {
	if !newStatus.Valid() {
		return nil, &domain.InvalidRequestError{Field: "status", Detail: "is unknown"}
	}

	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	owned := order.ItemsOwnedBy(sellerID)
	if len(owned) == 0 {
		return nil, domain.ErrForbidden
	}

	var changes []domain.ItemChange
	var cancelled []domain.LineItem
	for _, i := range owned {
		it := &order.Items[i]
		if it.Status == newStatus {
			// Re-sending the current status is how sellers revise the
			// delivery estimate.
			if expectedDelivery != nil {
				it.ExpectedDelivery = expectedDelivery
				changes = append(changes, domain.ItemChange{
					Position: i, From: it.Status, To: it.Status, ExpectedDelivery: expectedDelivery,
				})
			}
			continue
		}
		if !it.Status.CanTransition(newStatus) {
			return nil, &domain.InvalidTransitionError{From: it.Status, To: newStatus}
		}
		prev := it.Status
		it.Status = newStatus
		if expectedDelivery != nil {
			it.ExpectedDelivery = expectedDelivery
		}
		changes = append(changes, domain.ItemChange{
			Position: i, From: prev, To: newStatus, ExpectedDelivery: expectedDelivery,
		})
		if newStatus == domain.ItemCancelled {
			cancelled = append(cancelled, *it)
		}
	}
	if len(changes) == 0 {
		return order, nil
	}

	s.markCancelledIfFullyCancelled(order, domain.ActorSeller, "seller status update")

	if err := s.repo.Update(ctx, order, changes); err != nil {
		return nil, err
	}

	// Stock comes back only once the cancellation is durable. A failed
	// write above released nothing, so the request can simply be retried.
	for _, it := range cancelled {
		s.release(ctx, order.ID, it.ProductID, it.Quantity)
	}
	return order, nil
}

// CancelRequest identifies who asks to cancel an order and why.
type CancelRequest struct {
	OrderID  string
	Actor    domain.Actor
	SellerID string // required for seller cancellations
	Reason   string
}

// CancelResult reports what the cancellation did.
type CancelResult struct {
	Order          *domain.Order
	Partial        bool
	CancelledItems int
	RefundAmount   float64
	DiscountRate   float64
}

// EvaluateCancellation is the dry-run used by the eligibility endpoint; it
// runs the pure policy without mutating anything.
func (s *Service) EvaluateCancellation(ctx context.Context, req CancelRequest) (policy.Decision, error) {
	order, err := s.repo.Get(ctx, req.OrderID)
	if err != nil {
		return policy.Decision{}, err
	}
	return s.policy.Evaluate(order, policy.Request{
		Actor:    req.Actor,
		SellerID: req.SellerID,
		Now:      s.now().UTC(),
	}), nil
}

// Cancel evaluates the policy and, when allowed, applies the compensation
// plan: cancels the selected items, releases their stock, updates refund
// bookkeeping and notifies the buyer.
func (s *Service) Cancel(ctx context.Context, req CancelRequest) (*CancelResult, error) {
	order, err := s.repo.Get(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	decision := s.policy.Evaluate(order, policy.Request{
		Actor:    req.Actor,
		SellerID: req.SellerID,
		Now:      s.now().UTC(),
	})
	if !decision.Allowed {
		return nil, s.policyError(decision)
	}

	changes := make([]domain.ItemChange, 0, len(decision.ItemIndexes))
	for _, i := range decision.ItemIndexes {
		it := &order.Items[i]
		changes = append(changes, domain.ItemChange{
			Position: i, From: it.Status, To: domain.ItemCancelled,
		})
		it.Status = domain.ItemCancelled
	}

	if decision.MarkRefundPending {
		order.RefundStatus = domain.RefundPending
		order.RefundAmount += decision.RefundAmount
	}
	if decision.NewPaymentStatus != "" {
		order.PaymentStatus = decision.NewPaymentStatus
	}
	s.markCancelledIfFullyCancelled(order, req.Actor, req.Reason)

	if err := s.repo.Update(ctx, order, changes); err != nil {
		return nil, err
	}

	// Release only after the cancelled statuses are durable: a failed
	// update means no stock moved, and a retried cancel cannot release the
	// same reservation twice.
	for _, i := range decision.ItemIndexes {
		it := order.Items[i]
		s.release(ctx, order.ID, it.ProductID, it.Quantity)
	}

	msg := notification.Message{
		Recipient:    order.Billing.Email,
		OrderID:      order.ID,
		RefundAmount: decision.RefundAmount,
	}
	switch {
	case req.Actor == domain.ActorSeller:
		msg.Kind = notification.KindSellerCancellation
		msg.DiscountRate = decision.DiscountRate
	case decision.Partial:
		msg.Kind = notification.KindPartialCancellation
	default:
		msg.Kind = notification.KindBuyerCancellation
	}
	if decision.MarkRefundPending {
		msg.RefundDays = refundProcessingDays
	}
	s.notify(ctx, msg)

	slog.InfoContext(ctx, "order cancellation applied",
		"order_id", order.ID, "actor", string(req.Actor),
		"items_cancelled", len(decision.ItemIndexes), "partial", decision.Partial)

	return &CancelResult{
		Order:          order,
		Partial:        decision.Partial,
		CancelledItems: len(decision.ItemIndexes),
		RefundAmount:   decision.RefundAmount,
		DiscountRate:   decision.DiscountRate,
	}, nil
}

// GetOrder loads one aggregate.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.repo.Get(ctx, orderID)
}

// ListForBuyer returns the buyer's view rows across all their orders.
func (s *Service) ListForBuyer(ctx context.Context, buyerID string) ([]projection.Row, error) {
	orders, err := s.repo.ListByBuyer(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	var rows []projection.Row
	for _, o := range orders {
		rows = append(rows, projection.ForBuyer(o)...)
	}
	return rows, nil
}

// ListForSeller returns the seller's view rows across all orders containing
// their line items.
func (s *Service) ListForSeller(ctx context.Context, sellerID string) ([]projection.Row, error) {
	orders, err := s.repo.ListBySeller(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	var rows []projection.Row
	for _, o := range orders {
		rows = append(rows, projection.ForSeller(o, sellerID)...)
	}
	return rows, nil
}

func (s *Service) policyError(d policy.Decision) error {
	switch d.Reason {
	case policy.ReasonWindowExpired:
		return &WindowExpiredError{ElapsedHours: d.ElapsedHours, WindowHours: s.policy.BuyerWindow.Hours()}
	case policy.ReasonAlreadyDelivered:
		return ErrAlreadyDelivered
	case policy.ReasonAlreadyCancelled:
		return ErrAlreadyCancelled
	case policy.ReasonNotOwner:
		return domain.ErrForbidden
	default:
		return ErrAlreadyCancelled
	}
}

// release restores inventory for one cancelled item. A failure here means
// stock accounting has diverged from order state; it is escalated as a
// reconciliation alert and must not abort the cancellation the buyer was
// already promised.
func (s *Service) release(ctx context.Context, orderID, productID string, qty int) {
	if err := s.ledger.Release(ctx, productID, qty); err != nil {
		slog.ErrorContext(ctx, "CRITICAL: inventory reconciliation failure, manual review required",
			"order_id", orderID, "product_id", productID, "quantity", qty, "error", err)
	}
}

func (s *Service) markCancelledIfFullyCancelled(order *domain.Order, actor domain.Actor, reason string) {
	if order.Status() != domain.ItemCancelled || order.CancelledAt != nil {
		return
	}
	now := s.now().UTC()
	order.CancelledAt = &now
	order.CancelledBy = actor
	order.CancelReason = reason
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if err := s.notifier.Send(ctx, msg); err != nil {
		slog.WarnContext(ctx, "notification send failed",
			"order_id", msg.OrderID, "kind", string(msg.Kind), "error", err)
	}
}
