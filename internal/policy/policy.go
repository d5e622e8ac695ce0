// Package policy decides whether an order cancellation is permitted and
// what compensations follow. Evaluate is pure: it never reads the clock or
// touches storage, so every rule has a direct table test. The caller applies
// the returned plan (status transitions, stock release, refund bookkeeping,
// notifications).
package policy

import (
	"time"

	"github.com/freshmarkt/orderflow/internal/order/domain"
)

type Reason string

const (
	ReasonNone             Reason = ""
	ReasonWindowExpired    Reason = "window_expired"
	ReasonAlreadyDelivered Reason = "already_delivered"
	ReasonAlreadyCancelled Reason = "already_cancelled"
	ReasonNotOwner         Reason = "not_owner"
)

// Engine carries the tunable policy parameters.
//
// The discount rates compensate buyers for seller-initiated cancellations.
// The current values come straight from the business side and have not been
// confirmed as final; change them here, nowhere else.
type Engine struct {
	BuyerWindow        time.Duration
	OnlineDiscountRate float64
	CODDiscountRate    float64
}

// Default returns the production policy: a 24 hour buyer window, 15%
// compensation on online-paid orders, 10% otherwise.
func Default() Engine {
	return Engine{
		BuyerWindow:        24 * time.Hour,
		OnlineDiscountRate: 0.15,
		CODDiscountRate:    0.10,
	}
}

// Request identifies who is asking and when.
type Request struct {
	Actor    domain.Actor
	SellerID string // required when Actor == seller
	Now      time.Time
}

// Decision is the evaluation result plus the compensation plan when allowed.
type Decision struct {
	Allowed      bool
	Reason       Reason
	ElapsedHours float64 // populated on window checks

	// ItemIndexes are the line items to transition to cancelled, as indexes
	// into order.Items. Inventory must be released for each.
	ItemIndexes []int

	// Partial is set when delivered items survive the cancellation; the
	// buyer is told the order was "partially cancelled".
	Partial bool

	// Refund plan. RefundAmount is the increment to the order's running
	// refund total; NewPaymentStatus is empty when payment state is
	// unchanged (e.g. cash on delivery, nothing captured yet).
	MarkRefundPending bool
	RefundAmount      float64
	NewPaymentStatus  domain.PaymentStatus

	// DiscountRate is the compensation offer conveyed to the buyer on
	// seller-initiated cancellations; zero otherwise.
	DiscountRate float64
}

// Evaluate applies the cancellation rules for one order.
func (e Engine) Evaluate(order *domain.Order, req Request) Decision {
	switch req.Actor {
	case domain.ActorSeller:
		return e.evaluateSeller(order, req.SellerID)
	default:
		// Admin cancellations follow the buyer path without the time
		// window; buyers get the full rule set.
		return e.evaluateBuyer(order, req)
	}
}

func (e Engine) evaluateBuyer(order *domain.Order, req Request) Decision {
	status := order.Status()
	if status == domain.ItemCancelled {
		return Decision{Reason: ReasonAlreadyCancelled}
	}
	if status == domain.ItemDelivered {
		return Decision{Reason: ReasonAlreadyDelivered}
	}

	elapsed := req.Now.Sub(order.PlacedAt).Hours()
	if req.Actor == domain.ActorBuyer && elapsed > e.BuyerWindow.Hours() {
		return Decision{Reason: ReasonWindowExpired, ElapsedHours: elapsed}
	}

	var idx []int
	partial := false
	for i, it := range order.Items {
		switch it.Status {
		case domain.ItemDelivered:
			partial = true
		case domain.ItemCancelled:
		default:
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		// Every item is delivered or cancelled but the aggregate status
		// said otherwise; unreachable unless the item set is empty.
		return Decision{Reason: ReasonAlreadyCancelled}
	}

	d := Decision{
		Allowed:      true,
		ElapsedHours: elapsed,
		ItemIndexes:  idx,
		Partial:      partial,
	}
	// Online payments already captured are refunded in full; cash on
	// delivery needs no refund action.
	if order.PaymentMethod == domain.PaymentOnline && order.PaymentStatus == domain.PaymentPaid {
		d.MarkRefundPending = true
		d.RefundAmount = order.TotalAmount
		d.NewPaymentStatus = domain.PaymentRefunded
	}
	return d
}

func (e Engine) evaluateSeller(order *domain.Order, sellerID string) Decision {
	owned := order.ItemsOwnedBy(sellerID)
	if len(owned) == 0 {
		return Decision{Reason: ReasonNotOwner}
	}

	var idx []int
	sawDelivered := false
	for _, i := range owned {
		switch order.Items[i].Status {
		case domain.ItemDelivered:
			sawDelivered = true
		case domain.ItemCancelled:
		default:
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		if sawDelivered {
			return Decision{Reason: ReasonAlreadyDelivered}
		}
		return Decision{Reason: ReasonAlreadyCancelled}
	}

	d := Decision{
		Allowed:      true,
		ItemIndexes:  idx,
		Partial:      len(idx) < len(order.Items),
		DiscountRate: e.CODDiscountRate,
	}
	if order.PaymentMethod == domain.PaymentOnline {
		d.DiscountRate = e.OnlineDiscountRate
	}

	if order.PaymentStatus == domain.PaymentPaid || order.PaymentStatus == domain.PaymentPartiallyRefunded {
		var amount float64
		for _, i := range idx {
			amount += order.Items[i].Total()
		}
		d.MarkRefundPending = true
		d.RefundAmount = amount
		if coversOrder(order, idx) {
			d.NewPaymentStatus = domain.PaymentRefunded
		} else {
			d.NewPaymentStatus = domain.PaymentPartiallyRefunded
		}
	}
	return d
}

// coversOrder reports whether cancelling the given items leaves no active
// line item, i.e. the refund now covers the whole order.
func coversOrder(order *domain.Order, cancelling []int) bool {
	mark := make(map[int]bool, len(cancelling))
	for _, i := range cancelling {
		mark[i] = true
	}
	for i, it := range order.Items {
		if it.Status != domain.ItemCancelled && !mark[i] {
			return false
		}
	}
	return true
}
