package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/freshmarkt/orderflow/internal/httpx/middlewares"
	"github.com/freshmarkt/orderflow/internal/pkg/idempotency"
)

// NewRouter wires the order routes. idem may be nil, in which case replay
// protection is off (tests, local runs without Redis).
func NewRouter(handler *Handler, idem idempotency.Checker) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/orders", func(r chi.Router) {
		r.With(middlewares.Idempotency(idem)).Post("/", handler.PlaceOrder)
		r.Get("/buyer/{buyerID}", handler.ListBuyerOrders)
		r.Get("/seller", handler.ListSellerOrders)
		r.Get("/{orderID}", handler.GetOrder)
		r.Put("/{orderID}/status", handler.UpdateStatus)
		r.Post("/{orderID}/cancel", handler.Cancel)
		r.Get("/{orderID}/cancel-eligibility", handler.CancelEligibility)
		r.Get("/{orderID}/placement-log", handler.PlacementLog)
	})

	return r
}
