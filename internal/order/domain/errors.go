package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrOrderNotFound is returned by repositories for unknown order IDs.
	ErrOrderNotFound = errors.New("order not found")

	// ErrForbidden is returned when an actor touches line items they do
	// not own. Not retryable with the same credentials.
	ErrForbidden = errors.New("actor does not own any line items of this order")

	// ErrStaleOrder is returned when a guarded item write finds the item
	// no longer in the status the caller read. The caller should reload
	// and retry.
	ErrStaleOrder = errors.New("order was modified concurrently")
)

// InvalidRequestError is a malformed placement or update request; always
// recoverable by the caller fixing its input.
type InvalidRequestError struct {
	Field  string
	Detail string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Detail)
}
