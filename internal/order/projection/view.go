// Package projection turns order aggregates into per-line-item view rows
// for dashboards. Rows are computed per request and never persisted; the
// aggregate stays the single source of truth.
package projection

import (
	"time"

	"github.com/freshmarkt/orderflow/internal/order/domain"
)

// Row is one line item plus the order context its viewer is allowed to see.
// TotalAmount is the row's own unitPrice × quantity, not the order total: a
// compound order spans sellers with different subtotals.
type Row struct {
	OrderID          string
	ProductID        string
	ProductName      string
	Quantity         int
	UnitPrice        float64
	TotalAmount      float64
	Status           domain.ItemStatus
	OrderStatus      domain.ItemStatus
	ExpectedDelivery *time.Time
	PaymentMethod    domain.PaymentMethod
	PaymentStatus    domain.PaymentStatus
	PlacedAt         time.Time

	// Seller contact, present on buyer-facing rows.
	SellerID    string
	SellerName  string
	SellerEmail string

	// Buyer identity and billing, present on seller-facing rows only.
	BuyerID string
	Billing *domain.BillingInfo
}

// ForBuyer expands the order into one row per line item with seller contact
// attached, regardless of which seller owns the item.
func ForBuyer(o *domain.Order) []Row {
	rows := make([]Row, 0, len(o.Items))
	for _, it := range o.Items {
		row := baseRow(o, it)
		row.SellerID = it.SellerID
		row.SellerName = it.SellerName
		row.SellerEmail = it.SellerEmail
		rows = append(rows, row)
	}
	return rows
}

// ForSeller filters to the seller's own line items and attaches buyer
// billing. Other sellers' items in the same compound order, including their
// prices, are never exposed.
func ForSeller(o *domain.Order, sellerID string) []Row {
	var rows []Row
	for _, it := range o.Items {
		if it.SellerID != sellerID {
			continue
		}
		row := baseRow(o, it)
		row.SellerID = it.SellerID
		row.BuyerID = o.BuyerID
		billing := o.Billing
		row.Billing = &billing
		rows = append(rows, row)
	}
	return rows
}

func baseRow(o *domain.Order, it domain.LineItem) Row {
	return Row{
		OrderID:          o.ID,
		ProductID:        it.ProductID,
		ProductName:      it.ProductName,
		Quantity:         it.Quantity,
		UnitPrice:        it.UnitPrice,
		TotalAmount:      it.Total(),
		Status:           it.Status,
		OrderStatus:      o.Status(),
		ExpectedDelivery: it.ExpectedDelivery,
		PaymentMethod:    o.PaymentMethod,
		PaymentStatus:    o.PaymentStatus,
		PlacedAt:         o.PlacedAt,
	}
}
