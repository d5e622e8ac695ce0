// Package middlewares holds the chi middlewares specific to this service.
package middlewares

import (
	"log/slog"
	"net/http"

	"github.com/freshmarkt/orderflow/internal/pkg/idempotency"
)

const headerIdempotencyKey = "X-Idempotency-Key"

// Idempotency rejects replays of requests carrying an X-Idempotency-Key,
// before any stock is touched. Requests without the header pass through;
// retrying a checkout without a key is the client's own risk.
//
// The key is claimed up front and given back whenever the handler does not
// succeed, so a checkout rejected for insufficient stock can be retried
// with the same key after restocking.
func Idempotency(checker idempotency.Checker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(headerIdempotencyKey)
			if key == "" || checker == nil {
				next.ServeHTTP(w, r)
				return
			}
			seen, err := checker.Seen(r.Context(), key)
			if err != nil {
				// Redis being down should not block checkout; the worst
				// case is a duplicate the business can refund.
				next.ServeHTTP(w, r)
				return
			}
			if seen {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusConflict)
				_, _ = w.Write([]byte(`{"error":"duplicate_request","message":"idempotency key already used"}`))
				return
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.status >= http.StatusBadRequest {
				if err := checker.Release(r.Context(), key); err != nil {
					slog.WarnContext(r.Context(), "idempotency key release failed",
						"key", key, "error", err)
				}
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
