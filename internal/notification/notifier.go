// Package notification defines the outbound notification port. Rendering
// and delivery (email templates, PDFs) live outside this service; the order
// engine only decides what to tell whom. Send failures are the caller's to
// log and never block a placement or cancellation outcome.
package notification

import (
	"context"
	"log/slog"
)

// Kind selects the message template on the delivery side.
type Kind string

const (
	KindOrderPlaced         Kind = "order_placed"
	KindBuyerCancellation   Kind = "buyer_cancellation"
	KindPartialCancellation Kind = "partial_cancellation"
	KindSellerCancellation  Kind = "seller_cancellation"
)

// Message is a snapshot of what the recipient needs to know; the template
// decides which fields it uses.
type Message struct {
	Recipient string
	Kind      Kind
	OrderID   string

	// RefundAmount and RefundDays describe the refund expectation conveyed
	// on cancellations of captured online payments.
	RefundAmount float64
	RefundDays   int

	// DiscountRate is the compensation offer on seller-initiated
	// cancellations.
	DiscountRate float64
}

// Notifier is the port the order engine sends through.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// LogNotifier writes every message to the structured log instead of an
// email gateway. Stands in for the real transactional-email integration in
// local and test environments.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	slog.InfoContext(ctx, "notification",
		"recipient", msg.Recipient,
		"kind", string(msg.Kind),
		"order_id", msg.OrderID,
		"refund_amount", msg.RefundAmount,
		"discount_rate", msg.DiscountRate,
	)
	return nil
}
