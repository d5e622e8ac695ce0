// Package domain holds the order aggregate: a compound buyer checkout that
// may span several sellers' line items. The aggregate is created once at
// placement and only transitions status afterwards; it is never deleted, so
// cancelled orders remain available for audit and dispute resolution.
package domain

import "time"

type PaymentMethod string

const (
	PaymentCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentOnline         PaymentMethod = "online"
	PaymentCredit         PaymentMethod = "credit"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCashOnDelivery, PaymentOnline, PaymentCredit:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "pending"
	PaymentPaid              PaymentStatus = "paid"
	PaymentFailed            PaymentStatus = "failed"
	PaymentRefunded          PaymentStatus = "refunded"
	PaymentPartiallyRefunded PaymentStatus = "partially_refunded"
)

type RefundStatus string

const (
	RefundNone      RefundStatus = "none"
	RefundPending   RefundStatus = "pending"
	RefundProcessed RefundStatus = "processed"
)

// Actor identifies who performed a mutation on the order.
type Actor string

const (
	ActorBuyer  Actor = "buyer"
	ActorSeller Actor = "seller"
	ActorAdmin  Actor = "admin"
)

// BillingInfo is the buyer contact and delivery address captured at
// checkout. Attached to seller-facing view rows.
type BillingInfo struct {
	Name       string
	Email      string
	Phone      string
	Address    string
	City       string
	PostalCode string
}

// Complete reports whether the structurally required fields are present.
func (b BillingInfo) Complete() bool {
	return b.Name != "" && b.Email != "" && b.Address != "" && b.City != ""
}

// LineItem is one product/quantity/price entry, owned by exactly one
// seller. Seller contact is denormalised at placement time so read-side
// projections need no catalog round-trip.
type LineItem struct {
	ProductID        string
	ProductName      string
	SellerID         string
	SellerName       string
	SellerEmail      string
	Quantity         int
	UnitPrice        float64
	Status           ItemStatus
	ExpectedDelivery *time.Time
}

// Total is the item's own amount, not the order's.
func (li LineItem) Total() float64 {
	return float64(li.Quantity) * li.UnitPrice
}

// Order is the aggregate root for one checkout transaction.
type Order struct {
	ID            string
	BuyerID       string
	Billing       BillingInfo
	Items         []LineItem
	Subtotal      float64
	TaxAmount     float64
	TotalAmount   float64
	PaymentMethod PaymentMethod
	PaymentStatus PaymentStatus
	PaymentRef    string
	RefundStatus  RefundStatus
	RefundAmount  float64
	PlacedAt      time.Time
	CancelledAt   *time.Time
	CancelledBy   Actor
	CancelReason  string
}

// Status derives the order-level status from the line items. It is never
// stored: deriving it makes it impossible for the order header to disagree
// with its items, and a reader racing a partial multi-seller update simply
// sees the minimum progress of the moment.
//
// cancelled if every item is cancelled; delivered if every non-cancelled
// item is delivered; otherwise the least-progressed pipeline state among
// non-cancelled items.
func (o *Order) Status() ItemStatus {
	if len(o.Items) == 0 {
		return ItemCancelled
	}

	minRank := -1
	active := 0
	for _, it := range o.Items {
		if it.Status == ItemCancelled {
			continue
		}
		active++
		r := pipelineRank[it.Status]
		if minRank == -1 || r < minRank {
			minRank = r
		}
	}
	if active == 0 {
		return ItemCancelled
	}
	for status, rank := range pipelineRank {
		if rank == minRank {
			return status
		}
	}
	return ItemPending
}

// ItemChange describes one line item mutation for a guarded repository
// write. From is the status the caller read; the write must fail with
// ErrStaleOrder if the stored item has moved on since, so a concurrent
// mutation of the same item is never silently overwritten.
type ItemChange struct {
	Position         int
	From             ItemStatus
	To               ItemStatus
	ExpectedDelivery *time.Time
}

// ItemsOwnedBy returns the indexes of line items belonging to sellerID.
func (o *Order) ItemsOwnedBy(sellerID string) []int {
	var idx []int
	for i, it := range o.Items {
		if it.SellerID == sellerID {
			idx = append(idx, i)
		}
	}
	return idx
}
