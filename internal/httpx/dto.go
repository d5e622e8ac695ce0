package httpx

import (
	"time"

	"github.com/freshmarkt/orderflow/internal/coordinator/placementlog"
	"github.com/freshmarkt/orderflow/internal/order/domain"
	"github.com/freshmarkt/orderflow/internal/order/projection"
	"github.com/freshmarkt/orderflow/internal/policy"
)

type BillingDTO struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code,omitempty"`
}

type PlaceOrderRequest struct {
	Billing          BillingDTO           `json:"billing"`
	Items            []PlaceOrderItemDTO  `json:"items"`
	PaymentMethod    domain.PaymentMethod `json:"payment_method"`
	PaymentConfirmed bool                 `json:"payment_confirmed,omitempty"`
	PaymentRef       string               `json:"payment_ref,omitempty"`

	// Optional pre-computed totals; server recomputes when absent.
	Subtotal    *float64 `json:"subtotal,omitempty"`
	TaxAmount   *float64 `json:"tax_amount,omitempty"`
	TotalAmount *float64 `json:"total_amount,omitempty"`
}

type PlaceOrderItemDTO struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type UpdateStatusRequest struct {
	Status           domain.ItemStatus `json:"status"`
	ExpectedDelivery *time.Time        `json:"expected_delivery,omitempty"`
}

type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

type OrderResponse struct {
	ID            string              `json:"id"`
	BuyerID       string              `json:"buyer_id"`
	Status        domain.ItemStatus   `json:"status"`
	Items         []OrderItemResponse `json:"items"`
	Subtotal      float64             `json:"subtotal"`
	TaxAmount     float64             `json:"tax_amount"`
	TotalAmount   float64             `json:"total_amount"`
	PaymentMethod string              `json:"payment_method"`
	PaymentStatus string              `json:"payment_status"`
	RefundStatus  string              `json:"refund_status"`
	RefundAmount  float64             `json:"refund_amount"`
	PlacedAt      time.Time           `json:"placed_at"`
	CancelledAt   *time.Time          `json:"cancelled_at,omitempty"`
	CancelledBy   string              `json:"cancelled_by,omitempty"`
	CancelReason  string              `json:"cancel_reason,omitempty"`
}

type OrderItemResponse struct {
	ProductID        string     `json:"product_id"`
	ProductName      string     `json:"product_name"`
	SellerID         string     `json:"seller_id"`
	Quantity         int        `json:"quantity"`
	UnitPrice        float64    `json:"unit_price"`
	Status           string     `json:"status"`
	ExpectedDelivery *time.Time `json:"expected_delivery,omitempty"`
}

type CancelResponse struct {
	Order          OrderResponse `json:"order"`
	Partial        bool          `json:"partial"`
	CancelledItems int           `json:"cancelled_items"`
	RefundAmount   float64       `json:"refund_amount,omitempty"`
	DiscountRate   float64       `json:"discount_rate,omitempty"`
}

type EligibilityResponse struct {
	Allowed      bool    `json:"allowed"`
	Reason       string  `json:"reason,omitempty"`
	ElapsedHours float64 `json:"elapsed_hours,omitempty"`
	Partial      bool    `json:"partial,omitempty"`
	RefundAmount float64 `json:"refund_amount,omitempty"`
}

type ViewRowResponse struct {
	OrderID          string      `json:"order_id"`
	ProductID        string      `json:"product_id"`
	ProductName      string      `json:"product_name"`
	Quantity         int         `json:"quantity"`
	UnitPrice        float64     `json:"unit_price"`
	TotalAmount      float64     `json:"total_amount"`
	Status           string      `json:"status"`
	OrderStatus      string      `json:"order_status"`
	ExpectedDelivery *time.Time  `json:"expected_delivery,omitempty"`
	PaymentMethod    string      `json:"payment_method"`
	PaymentStatus    string      `json:"payment_status"`
	PlacedAt         time.Time   `json:"placed_at"`
	SellerID         string      `json:"seller_id,omitempty"`
	SellerName       string      `json:"seller_name,omitempty"`
	SellerEmail      string      `json:"seller_email,omitempty"`
	BuyerID          string      `json:"buyer_id,omitempty"`
	Billing          *BillingDTO `json:"billing,omitempty"`
}

type PlacementLogEntryResponse struct {
	Status        string    `json:"status"`
	Step          string    `json:"step,omitempty"`
	ErrorMessages string    `json:"error_messages,omitempty"`
	TraceID       string    `json:"trace_id,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func mapBilling(b BillingDTO) domain.BillingInfo {
	return domain.BillingInfo{
		Name:       b.Name,
		Email:      b.Email,
		Phone:      b.Phone,
		Address:    b.Address,
		City:       b.City,
		PostalCode: b.PostalCode,
	}
}

func mapOrderToResponse(o *domain.Order) OrderResponse {
	items := make([]OrderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = OrderItemResponse{
			ProductID:        it.ProductID,
			ProductName:      it.ProductName,
			SellerID:         it.SellerID,
			Quantity:         it.Quantity,
			UnitPrice:        it.UnitPrice,
			Status:           string(it.Status),
			ExpectedDelivery: it.ExpectedDelivery,
		}
	}
	return OrderResponse{
		ID:            o.ID,
		BuyerID:       o.BuyerID,
		Status:        o.Status(),
		Items:         items,
		Subtotal:      o.Subtotal,
		TaxAmount:     o.TaxAmount,
		TotalAmount:   o.TotalAmount,
		PaymentMethod: string(o.PaymentMethod),
		PaymentStatus: string(o.PaymentStatus),
		RefundStatus:  string(o.RefundStatus),
		RefundAmount:  o.RefundAmount,
		PlacedAt:      o.PlacedAt,
		CancelledAt:   o.CancelledAt,
		CancelledBy:   string(o.CancelledBy),
		CancelReason:  o.CancelReason,
	}
}

func mapRows(rows []projection.Row) []ViewRowResponse {
	out := make([]ViewRowResponse, len(rows))
	for i, r := range rows {
		out[i] = ViewRowResponse{
			OrderID:          r.OrderID,
			ProductID:        r.ProductID,
			ProductName:      r.ProductName,
			Quantity:         r.Quantity,
			UnitPrice:        r.UnitPrice,
			TotalAmount:      r.TotalAmount,
			Status:           string(r.Status),
			OrderStatus:      string(r.OrderStatus),
			ExpectedDelivery: r.ExpectedDelivery,
			PaymentMethod:    string(r.PaymentMethod),
			PaymentStatus:    string(r.PaymentStatus),
			PlacedAt:         r.PlacedAt,
			SellerID:         r.SellerID,
			SellerName:       r.SellerName,
			SellerEmail:      r.SellerEmail,
			BuyerID:          r.BuyerID,
		}
		if r.Billing != nil {
			out[i].Billing = &BillingDTO{
				Name:       r.Billing.Name,
				Email:      r.Billing.Email,
				Phone:      r.Billing.Phone,
				Address:    r.Billing.Address,
				City:       r.Billing.City,
				PostalCode: r.Billing.PostalCode,
			}
		}
	}
	return out
}

func mapPlacementLog(entries []*placementlog.Entry) []PlacementLogEntryResponse {
	out := make([]PlacementLogEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = PlacementLogEntryResponse{
			Status:    string(e.Status),
			Step:      e.CurrentStep,
			TraceID:   e.TraceID,
			UpdatedAt: e.UpdatedAt,
		}
		if e.ErrorMessages != "[]" {
			out[i].ErrorMessages = e.ErrorMessages
		}
	}
	return out
}

func mapEligibility(d policy.Decision) EligibilityResponse {
	return EligibilityResponse{
		Allowed:      d.Allowed,
		Reason:       string(d.Reason),
		ElapsedHours: d.ElapsedHours,
		Partial:      d.Partial,
		RefundAmount: d.RefundAmount,
	}
}
