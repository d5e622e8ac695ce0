// Package httpx is the REST surface of the order engine. Authentication is
// handled upstream; handlers trust the X-Buyer-ID and X-Seller-ID headers
// for actor identity.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/freshmarkt/orderflow/internal/catalog"
	"github.com/freshmarkt/orderflow/internal/coordinator/placementlog"
	"github.com/freshmarkt/orderflow/internal/inventory"
	"github.com/freshmarkt/orderflow/internal/order/app"
	"github.com/freshmarkt/orderflow/internal/order/domain"
)

const (
	headerBuyerID  = "X-Buyer-ID"
	headerSellerID = "X-Seller-ID"
)

// PlacementHistory reads the audit trail of a placement saga.
type PlacementHistory interface {
	History(ctx context.Context, sagaID string) ([]*placementlog.Entry, error)
}

// Handler exposes the order lifecycle over HTTP.
type Handler struct {
	orders  *app.Service
	history PlacementHistory
}

// NewHandler builds the handler. history may be nil; the placement-log
// endpoint then reports the trail as unavailable.
func NewHandler(orders *app.Service, history PlacementHistory) *Handler {
	return &Handler{orders: orders, history: history}
}

// PlaceOrder handles POST /orders.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	buyerID := r.Header.Get(headerBuyerID)
	if buyerID == "" {
		writeError(w, http.StatusUnauthorized, "buyer_required", "X-Buyer-ID header is required")
		return
	}

	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	items := make([]app.LineItemRequest, len(req.Items))
	for i, it := range req.Items {
		items[i] = app.LineItemRequest{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	order, err := h.orders.PlaceOrder(r.Context(), app.PlaceOrderRequest{
		BuyerID:          buyerID,
		Billing:          mapBilling(req.Billing),
		Items:            items,
		PaymentMethod:    req.PaymentMethod,
		PaymentConfirmed: req.PaymentConfirmed,
		PaymentRef:       req.PaymentRef,
		Subtotal:         req.Subtotal,
		TaxAmount:        req.TaxAmount,
		TotalAmount:      req.TotalAmount,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, mapOrderToResponse(order))
}

// GetOrder handles GET /orders/{orderID}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrderToResponse(order))
}

// ListBuyerOrders handles GET /orders/buyer/{buyerID}.
func (h *Handler) ListBuyerOrders(w http.ResponseWriter, r *http.Request) {
	rows, err := h.orders.ListForBuyer(r.Context(), chi.URLParam(r, "buyerID"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapRows(rows))
}

// ListSellerOrders handles GET /orders/seller.
func (h *Handler) ListSellerOrders(w http.ResponseWriter, r *http.Request) {
	sellerID := r.Header.Get(headerSellerID)
	if sellerID == "" {
		writeError(w, http.StatusUnauthorized, "seller_required", "X-Seller-ID header is required")
		return
	}
	rows, err := h.orders.ListForSeller(r.Context(), sellerID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapRows(rows))
}

// UpdateStatus handles PUT /orders/{orderID}/status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	sellerID := r.Header.Get(headerSellerID)
	if sellerID == "" {
		writeError(w, http.StatusUnauthorized, "seller_required", "X-Seller-ID header is required")
		return
	}

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	order, err := h.orders.UpdateItemStatus(r.Context(), chi.URLParam(r, "orderID"), sellerID, req.Status, req.ExpectedDelivery)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrderToResponse(order))
}

// Cancel handles POST /orders/{orderID}/cancel. A request carrying
// X-Seller-ID is a seller cancellation; otherwise the buyer is cancelling.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
			return
		}
	}

	res, err := h.orders.Cancel(r.Context(), h.cancelRequest(r, req.Reason))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CancelResponse{
		Order:          mapOrderToResponse(res.Order),
		Partial:        res.Partial,
		CancelledItems: res.CancelledItems,
		RefundAmount:   res.RefundAmount,
		DiscountRate:   res.DiscountRate,
	})
}

// CancelEligibility handles GET /orders/{orderID}/cancel-eligibility: the
// policy evaluation without side effects, for UIs that grey out the button.
func (h *Handler) CancelEligibility(w http.ResponseWriter, r *http.Request) {
	d, err := h.orders.EvaluateCancellation(r.Context(), h.cancelRequest(r, ""))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapEligibility(d))
}

// PlacementLog handles GET /orders/{orderID}/placement-log: the saga audit
// trail, for operations digging into a failed or half-compensated placement.
func (h *Handler) PlacementLog(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotFound, "placement_log_unavailable", "placement log store is not configured")
		return
	}
	entries, err := h.history.History(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if len(entries) == 0 {
		writeError(w, http.StatusNotFound, "order_not_found", "no placement recorded for this order")
		return
	}
	writeJSON(w, http.StatusOK, mapPlacementLog(entries))
}

func (h *Handler) cancelRequest(r *http.Request, reason string) app.CancelRequest {
	req := app.CancelRequest{
		OrderID: chi.URLParam(r, "orderID"),
		Actor:   domain.ActorBuyer,
		Reason:  reason,
	}
	if sellerID := r.Header.Get(headerSellerID); sellerID != "" {
		req.Actor = domain.ActorSeller
		req.SellerID = sellerID
	}
	return req
}

// writeDomainError maps engine errors onto the HTTP taxonomy. Business
// rejections carry enough structure for a precise client message; anything
// unrecognised is a 500 with the detail kept server-side.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalid      *domain.InvalidRequestError
		unavailable  *catalog.UnavailableError
		insufficient *inventory.InsufficientStockError
		transition   *domain.InvalidTransitionError
		expired      *app.WindowExpiredError
	)
	switch {
	case errors.As(err, &invalid):
		writeError(w, http.StatusBadRequest, "invalid_request", invalid.Error())
	case errors.As(err, &unavailable):
		writeError(w, http.StatusUnprocessableEntity, "product_unavailable", unavailable.Error())
	case errors.As(err, &insufficient):
		writeError(w, http.StatusConflict, "insufficient_stock", insufficient.Error())
	case errors.As(err, &transition):
		writeError(w, http.StatusConflict, "invalid_transition", transition.Error())
	case errors.As(err, &expired):
		writeError(w, http.StatusConflict, "window_expired", expired.Error())
	case errors.Is(err, app.ErrAlreadyDelivered):
		writeError(w, http.StatusConflict, "already_delivered", err.Error())
	case errors.Is(err, app.ErrAlreadyCancelled):
		writeError(w, http.StatusConflict, "already_cancelled", err.Error())
	case errors.Is(err, domain.ErrStaleOrder):
		writeError(w, http.StatusConflict, "concurrent_modification", err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, domain.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "order_not_found", err.Error())
	default:
		slog.ErrorContext(r.Context(), "unhandled error", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: msg})
}
