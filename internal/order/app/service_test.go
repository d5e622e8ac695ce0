package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshmarkt/orderflow/internal/cart"
	"github.com/freshmarkt/orderflow/internal/catalog"
	"github.com/freshmarkt/orderflow/internal/coordinator/placementlog"
	"github.com/freshmarkt/orderflow/internal/inventory"
	"github.com/freshmarkt/orderflow/internal/notification"
	"github.com/freshmarkt/orderflow/internal/order/domain"
	"github.com/freshmarkt/orderflow/internal/order/memory"
)

type captureNotifier struct {
	sent []notification.Message
}

func (c *captureNotifier) Send(ctx context.Context, msg notification.Message) error {
	c.sent = append(c.sent, msg)
	return nil
}

type fixture struct {
	svc      *Service
	repo     *memory.Repository
	ledger   *inventory.MemoryLedger
	lookup   *catalog.MemoryLookup
	carts    *cart.MemoryStore
	notifier *captureNotifier
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     memory.NewRepository(),
		ledger:   inventory.NewMemoryLedger(),
		lookup:   catalog.NewMemoryLookup(),
		carts:    cart.NewMemoryStore(),
		notifier: &captureNotifier{},
		now:      time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(
		f.repo, f.ledger, f.lookup, f.carts, f.notifier,
		placementlog.NewMemoryRepository(),
		WithClock(func() time.Time { return f.now }),
	)
	return f
}

func (f *fixture) addProduct(id, name, sellerID string, price float64, stock int) {
	f.lookup.Put(catalog.Product{
		ID: id, Name: name, UnitPrice: price,
		SellerID: sellerID, SellerName: "Seller " + sellerID,
		SellerEmail: sellerID + "@sellers.example",
		Active:      true, Available: stock,
	})
	f.ledger.SetStock(id, name, stock)
}

func billing() domain.BillingInfo {
	return domain.BillingInfo{
		Name:    "Hotel Miramar",
		Email:   "purchasing@miramar.example",
		Address: "Av. del Puerto 12",
		City:    "Valencia",
	}
}

func TestPlaceOrderHappyPath(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", "Tomatoes", "s1", 10, 5)
	f.carts.Add("buyer_1", "p1", 3)

	order, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		BuyerID:       "buyer_1",
		Billing:       billing(),
		Items:         []LineItemRequest{{ProductID: "p1", Quantity: 3}},
		PaymentMethod: domain.PaymentCashOnDelivery,
	})

	require.NoError(t, err)
	assert.Equal(t, 2, f.ledger.Available("p1"))
	assert.InDelta(t, 30, order.Subtotal, 1e-9)
	assert.InDelta(t, 1.5, order.TaxAmount, 1e-9) // 5% default
	assert.InDelta(t, 31.5, order.TotalAmount, 1e-9)
	assert.Equal(t, domain.PaymentPending, order.PaymentStatus)
	assert.Equal(t, domain.ItemPending, order.Status())

	stored, err := f.repo.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Items, 1)

	items, _ := f.carts.Get(context.Background(), "buyer_1")
	assert.Empty(t, items, "cart cleared after placement")

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, notification.KindOrderPlaced, f.notifier.sent[0].Kind)
}

func TestPlaceOrderFromSavedCart(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", "Tomatoes", "s1", 10, 5)
	f.addProduct("p2", "Basil", "s1", 5, 5)
	f.carts.Add("buyer_1", "p2", 1)
	f.carts.Add("buyer_1", "p1", 2)

	order, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		BuyerID:       "buyer_1",
		Billing:       billing(),
		PaymentMethod: domain.PaymentCashOnDelivery,
	})

	require.NoError(t, err)
	require.Len(t, order.Items, 2)
	assert.Equal(t, "p1", order.Items[0].ProductID, "cart items checked out in product ID order")
	assert.Equal(t, 2, order.Items[0].Quantity)
	assert.Equal(t, "p2", order.Items[1].ProductID)
	assert.Equal(t, 3, f.ledger.Available("p1"))

	items, _ := f.carts.Get(context.Background(), "buyer_1")
	assert.Empty(t, items)
}

func TestPlaceOrderOnlineConfirmedPaymentIsPaid(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", "Tomatoes", "s1", 10, 5)

	order, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		BuyerID:          "buyer_1",
		Billing:          billing(),
		Items:            []LineItemRequest{{ProductID: "p1", Quantity: 1}},
		PaymentMethod:    domain.PaymentOnline,
		PaymentConfirmed: true,
		PaymentRef:       "pay_abc",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, order.PaymentStatus)
	assert.Equal(t, "pay_abc", order.PaymentRef)
}

func TestPlaceOrderRollsBackEarlierReservations(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", "Tomatoes", "s1", 10, 10)
	f.addProduct("p2", "Basil", "s1", 5, 10)
	f.addProduct("p3", "Cream", "s2", 8, 1)

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		BuyerID:       "buyer_1",
		Billing:       billing(),
		PaymentMethod: domain.PaymentCashOnDelivery,
		Items: []LineItemRequest{
			{ProductID: "p1", Quantity: 4},
			{ProductID: "p2", Quantity: 2},
			{ProductID: "p3", Quantity: 5},
		},
	})

	var insufficient *inventory.InsufficientStockError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, "Cream", insufficient.ProductName)
	assert.Equal(t, 5, insufficient.Requested)
	assert.Equal(t, 1, insufficient.Available)

	// Net zero stock change.
	assert.Equal(t, 10, f.ledger.Available("p1"))
	assert.Equal(t, 10, f.ledger.Available("p2"))
	assert.Equal(t, 1, f.ledger.Available("p3"))
}

func TestPlaceOrderInactiveProduct(t *testing.T) {
	f := newFixture(t)
	f.lookup.Put(catalog.Product{ID: "p1", Name: "Old", SellerID: "s1", Active: false})

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		BuyerID:       "buyer_1",
		Billing:       billing(),
		PaymentMethod: domain.PaymentCredit,
		Items:         []LineItemRequest{{ProductID: "p1", Quantity: 1}},
	})

	var unavailable *catalog.UnavailableError
	require.True(t, errors.As(err, &unavailable))
}

func TestPlaceOrderValidation(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", "Tomatoes", "s1", 10, 5)

	cases := []PlaceOrderRequest{
		{Billing: billing(), PaymentMethod: domain.PaymentCredit,
			Items: []LineItemRequest{{ProductID: "p1", Quantity: 1}}}, // no buyer
		{BuyerID: "b", Billing: billing(), PaymentMethod: domain.PaymentCredit}, // no items
		{BuyerID: "b", PaymentMethod: domain.PaymentCredit,
			Items: []LineItemRequest{{ProductID: "p1", Quantity: 1}}}, // no billing
		{BuyerID: "b", Billing: billing(), PaymentMethod: "barter",
			Items: []LineItemRequest{{ProductID: "p1", Quantity: 1}}}, // bad method
		{BuyerID: "b", Billing: billing(), PaymentMethod: domain.PaymentCredit,
			Items: []LineItemRequest{{ProductID: "p1", Quantity: 0}}}, // zero qty
	}
	for i, req := range cases {
		_, err := f.svc.PlaceOrder(context.Background(), req)
		var invalid *domain.InvalidRequestError
		assert.True(t, errors.As(err, &invalid), "case %d", i)
	}
	assert.Equal(t, 5, f.ledger.Available("p1"), "no reservation on invalid input")
}

func TestPlaceOrderCallerTotalsTakePrecedence(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", "Tomatoes", "s1", 10, 5)

	sub, tax, total := 100.0, 8.0, 108.0
	order, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		BuyerID:       "buyer_1",
		Billing:       billing(),
		PaymentMethod: domain.PaymentCredit,
		Items:         []LineItemRequest{{ProductID: "p1", Quantity: 1}},
		Subtotal:      &sub, TaxAmount: &tax, TotalAmount: &total,
	})

	require.NoError(t, err)
	assert.InDelta(t, 100, order.Subtotal, 1e-9)
	assert.InDelta(t, 108, order.TotalAmount, 1e-9)
}

func TestPlaceOrderNegativeCallerTotalRejected(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", "Tomatoes", "s1", 10, 5)

	bad := -1.0
	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		BuyerID:       "buyer_1",
		Billing:       billing(),
		PaymentMethod: domain.PaymentCredit,
		Items:         []LineItemRequest{{ProductID: "p1", Quantity: 1}},
		TotalAmount:   &bad,
	})

	var invalid *domain.InvalidRequestError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, 5, f.ledger.Available("p1"))
}

func (f *fixture) placeTwoSellerOrder(t *testing.T) *domain.Order {
	t.Helper()
	f.addProduct("p1", "Tomatoes", "s1", 10, 5)
	f.addProduct("p2", "Sea Bass", "s2", 25, 4)
	order, err := f.svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		BuyerID:          "buyer_1",
		Billing:          billing(),
		PaymentMethod:    domain.PaymentOnline,
		PaymentConfirmed: true,
		Items: []LineItemRequest{
			{ProductID: "p1", Quantity: 3},
			{ProductID: "p2", Quantity: 2},
		},
	})
	require.NoError(t, err)
	return order
}

func TestUpdateItemStatusScopedToSeller(t *testing.T) {
	f := newFixture(t)
	order := f.placeTwoSellerOrder(t)

	eta := f.now.Add(48 * time.Hour)
	updated, err := f.svc.UpdateItemStatus(context.Background(), order.ID, "s1", domain.ItemConfirmed, &eta)
	require.NoError(t, err)

	assert.Equal(t, domain.ItemConfirmed, updated.Items[0].Status)
	require.NotNil(t, updated.Items[0].ExpectedDelivery)
	assert.Equal(t, domain.ItemPending, updated.Items[1].Status, "other seller's item untouched")
	assert.Nil(t, updated.Items[1].ExpectedDelivery)
}

func TestUpdateItemStatusForbiddenForStranger(t *testing.T) {
	f := newFixture(t)
	order := f.placeTwoSellerOrder(t)

	_, err := f.svc.UpdateItemStatus(context.Background(), order.ID, "s9", domain.ItemConfirmed, nil)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestUpdateItemStatusRejectsSkippingStages(t *testing.T) {
	f := newFixture(t)
	order := f.placeTwoSellerOrder(t)

	_, err := f.svc.UpdateItemStatus(context.Background(), order.ID, "s1", domain.ItemReady, nil)
	var invalid *domain.InvalidTransitionError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, domain.ItemPending, invalid.From)
}

func TestUpdateItemStatusCancelReleasesStock(t *testing.T) {
	f := newFixture(t)
	order := f.placeTwoSellerOrder(t)
	require.Equal(t, 2, f.ledger.Available("p1"))

	_, err := f.svc.UpdateItemStatus(context.Background(), order.ID, "s1", domain.ItemCancelled, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, f.ledger.Available("p1"))
	assert.Equal(t, 2, f.ledger.Available("p2"), "other seller's reservation kept")
}

func TestSellerCancelEndToEnd(t *testing.T) {
	f := newFixture(t)
	order := f.placeTwoSellerOrder(t)
	require.Equal(t, 2, f.ledger.Available("p1"))

	res, err := f.svc.Cancel(context.Background(), CancelRequest{
		OrderID: order.ID, Actor: domain.ActorSeller, SellerID: "s1", Reason: "supplier failed",
	})
	require.NoError(t, err)

	assert.Equal(t, 5, f.ledger.Available("p1"), "stock restored")
	assert.False(t, f.ledger.OutOfStock("p1"))
	assert.Equal(t, 1, res.CancelledItems)
	assert.True(t, res.Partial)
	assert.InDelta(t, 30, res.RefundAmount, 1e-9) // 3 × 10
	assert.InDelta(t, 0.15, res.DiscountRate, 1e-9)
	assert.Equal(t, domain.RefundPending, res.Order.RefundStatus)
	assert.Equal(t, domain.PaymentPartiallyRefunded, res.Order.PaymentStatus)

	last := f.notifier.sent[len(f.notifier.sent)-1]
	assert.Equal(t, notification.KindSellerCancellation, last.Kind)
	assert.InDelta(t, 0.15, last.DiscountRate, 1e-9)
}

func TestBuyerCancelWithinWindow(t *testing.T) {
	f := newFixture(t)
	order := f.placeTwoSellerOrder(t)
	f.now = f.now.Add(23 * time.Hour)

	res, err := f.svc.Cancel(context.Background(), CancelRequest{
		OrderID: order.ID, Actor: domain.ActorBuyer, Reason: "changed menu",
	})
	require.NoError(t, err)

	assert.Equal(t, 5, f.ledger.Available("p1"))
	assert.Equal(t, 4, f.ledger.Available("p2"))
	assert.Equal(t, domain.ItemCancelled, res.Order.Status())
	assert.Equal(t, domain.ActorBuyer, res.Order.CancelledBy)
	require.NotNil(t, res.Order.CancelledAt)
	assert.Equal(t, domain.PaymentRefunded, res.Order.PaymentStatus)
	assert.InDelta(t, res.Order.TotalAmount, res.RefundAmount, 1e-9)

	last := f.notifier.sent[len(f.notifier.sent)-1]
	assert.Equal(t, notification.KindBuyerCancellation, last.Kind)
	assert.Equal(t, 3, last.RefundDays)
}

func TestBuyerCancelAfterWindow(t *testing.T) {
	f := newFixture(t)
	order := f.placeTwoSellerOrder(t)
	f.now = f.now.Add(25 * time.Hour)

	_, err := f.svc.Cancel(context.Background(), CancelRequest{
		OrderID: order.ID, Actor: domain.ActorBuyer,
	})

	var expired *WindowExpiredError
	require.True(t, errors.As(err, &expired))
	assert.InDelta(t, 25, expired.ElapsedHours, 1e-9)
	assert.Equal(t, 2, f.ledger.Available("p1"), "no release on denial")
}

func TestBuyerCancelTwiceReleasesOnce(t *testing.T) {
	f := newFixture(t)
	order := f.placeTwoSellerOrder(t)

	_, err := f.svc.Cancel(context.Background(), CancelRequest{OrderID: order.ID, Actor: domain.ActorBuyer})
	require.NoError(t, err)
	require.Equal(t, 5, f.ledger.Available("p1"))

	_, err = f.svc.Cancel(context.Background(), CancelRequest{OrderID: order.ID, Actor: domain.ActorBuyer})
	assert.ErrorIs(t, err, ErrAlreadyCancelled)
	assert.Equal(t, 5, f.ledger.Available("p1"), "second cancel must not release again")
}

func TestBuyerPartialCancelKeepsDeliveredItem(t *testing.T) {
	f := newFixture(t)
	order := f.placeTwoSellerOrder(t)

	// Walk s1's item through the pipeline to delivered.
	for _, st := range []domain.ItemStatus{domain.ItemConfirmed, domain.ItemPreparing, domain.ItemReady, domain.ItemDelivered} {
		_, err := f.svc.UpdateItemStatus(context.Background(), order.ID, "s1", st, nil)
		require.NoError(t, err)
	}

	res, err := f.svc.Cancel(context.Background(), CancelRequest{OrderID: order.ID, Actor: domain.ActorBuyer})
	require.NoError(t, err)

	assert.True(t, res.Partial)
	assert.Equal(t, 1, res.CancelledItems)
	assert.Equal(t, domain.ItemDelivered, res.Order.Items[0].Status)
	assert.Equal(t, domain.ItemCancelled, res.Order.Items[1].Status)
	assert.Equal(t, 2, f.ledger.Available("p1"), "delivered stock not restored")
	assert.Equal(t, 4, f.ledger.Available("p2"))

	last := f.notifier.sent[len(f.notifier.sent)-1]
	assert.Equal(t, notification.KindPartialCancellation, last.Kind)
}

func TestEvaluateCancellationIsDryRun(t *testing.T) {
	f := newFixture(t)
	order := f.placeTwoSellerOrder(t)

	d, err := f.svc.EvaluateCancellation(context.Background(), CancelRequest{
		OrderID: order.ID, Actor: domain.ActorBuyer,
	})
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, f.ledger.Available("p1"), "dry run mutates nothing")

	reloaded, err := f.svc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ItemPending, reloaded.Status())
}

func TestUpdateItemStatusSameStatusRevisesDeliveryEstimate(t *testing.T) {
	f := newFixture(t)
	order := f.placeTwoSellerOrder(t)

	first := f.now.Add(48 * time.Hour)
	_, err := f.svc.UpdateItemStatus(context.Background(), order.ID, "s1", domain.ItemConfirmed, &first)
	require.NoError(t, err)

	// Re-sending the current status with a new estimate revises it.
	revised := f.now.Add(72 * time.Hour)
	updated, err := f.svc.UpdateItemStatus(context.Background(), order.ID, "s1", domain.ItemConfirmed, &revised)
	require.NoError(t, err)
	assert.Equal(t, domain.ItemConfirmed, updated.Items[0].Status)
	require.NotNil(t, updated.Items[0].ExpectedDelivery)
	assert.True(t, revised.Equal(*updated.Items[0].ExpectedDelivery))

	stored, err := f.repo.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Items[0].ExpectedDelivery)
	assert.True(t, revised.Equal(*stored.Items[0].ExpectedDelivery))
}

// failingRepo passes through to the in-memory store but can be told to fail
// Update, simulating a write that never reached the database.
type failingRepo struct {
	*memory.Repository
	failUpdates bool
}

func (r *failingRepo) Update(ctx context.Context, o *domain.Order, changes []domain.ItemChange) error {
	if r.failUpdates {
		return errors.New("database is unavailable")
	}
	return r.Repository.Update(ctx, o, changes)
}

func TestCancelReleasesStockOnlyAfterPersist(t *testing.T) {
	repo := &failingRepo{Repository: memory.NewRepository()}
	ledger := inventory.NewMemoryLedger()
	lookup := catalog.NewMemoryLookup()
	lookup.Put(catalog.Product{
		ID: "p1", Name: "Tomatoes", UnitPrice: 10,
		SellerID: "s1", Active: true, Available: 5,
	})
	ledger.SetStock("p1", "Tomatoes", 5)
	svc := NewService(
		repo, ledger, lookup, cart.NewMemoryStore(), &captureNotifier{},
		placementlog.NewMemoryRepository(),
		WithClock(func() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) }),
	)

	order, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		BuyerID:       "buyer_1",
		Billing:       billing(),
		PaymentMethod: domain.PaymentCashOnDelivery,
		Items:         []LineItemRequest{{ProductID: "p1", Quantity: 3}},
	})
	require.NoError(t, err)
	require.Equal(t, 2, ledger.Available("p1"))

	// The cancellation never becomes durable, so no stock comes back: a
	// release here would be orphaned, and the retry below would hand the
	// same units out twice.
	repo.failUpdates = true
	_, err = svc.Cancel(context.Background(), CancelRequest{OrderID: order.ID, Actor: domain.ActorBuyer})
	require.Error(t, err)
	assert.Equal(t, 2, ledger.Available("p1"), "failed persist must release nothing")

	repo.failUpdates = false
	_, err = svc.Cancel(context.Background(), CancelRequest{OrderID: order.ID, Actor: domain.ActorBuyer})
	require.NoError(t, err)
	assert.Equal(t, 5, ledger.Available("p1"), "retry releases exactly once")
}

func TestViewRowScoping(t *testing.T) {
	f := newFixture(t)
	f.placeTwoSellerOrder(t)

	buyerRows, err := f.svc.ListForBuyer(context.Background(), "buyer_1")
	require.NoError(t, err)
	assert.Len(t, buyerRows, 2)

	sellerRows, err := f.svc.ListForSeller(context.Background(), "s2")
	require.NoError(t, err)
	require.Len(t, sellerRows, 1)
	assert.Equal(t, "p2", sellerRows[0].ProductID)
	require.NotNil(t, sellerRows[0].Billing)
	assert.InDelta(t, 50, sellerRows[0].TotalAmount, 1e-9) // 2 × 25, the row's own total
}
