package app

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyDelivered rejects cancelling an order that fully arrived.
	ErrAlreadyDelivered = errors.New("order already delivered")

	// ErrAlreadyCancelled rejects cancelling an order twice.
	ErrAlreadyCancelled = errors.New("order already cancelled")
)

// WindowExpiredError rejects a buyer cancellation outside the allowed
// window, reporting how late the request was.
type WindowExpiredError struct {
	ElapsedHours float64
	WindowHours  float64
}

func (e *WindowExpiredError) Error() string {
	return fmt.Sprintf("cancellation window expired: %.2fh elapsed, window is %.0fh",
		e.ElapsedHours, e.WindowHours)
}
