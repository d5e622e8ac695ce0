// Package placementlog is the durable audit trail of placement sagas.
//
// Every state transition a placement goes through is appended as a row.
// Two consumers rely on it:
//
//  1. Support/operations: when a compensation fails (stock accounting has
//     diverged), the log pinpoints which reservations were granted and
//     which release failed, so manual reconciliation has a starting point.
//
//  2. Observability: each row carries the trace_id of the span that was
//     active when it was written, so a log row links directly to the full
//     request trace.
package placementlog

import "time"

// Status is the lifecycle state of a placement saga.
type Status string

const (
	StatusStarted      Status = "STARTED"
	StatusStepDone     Status = "STEP_DONE"
	StatusCompleted    Status = "COMPLETED"
	StatusCompensating Status = "COMPENSATING"
	StatusFailed       Status = "FAILED"
)

// Entry is one row in the placement_logs table: a point-in-time snapshot of
// a saga execution. Rows are append-only and never updated.
type Entry struct {
	// SagaID is the order ID, so the log joins with business data.
	SagaID string

	Status Status

	// CurrentStep names the step just executed, compensated or failed,
	// e.g. "reserve_stock[prod_42]". Empty for STARTED/COMPLETED rows.
	CurrentStep string

	// ErrorMessages is a JSON array of failure details accumulated on this
	// transition.
	ErrorMessages string

	// TraceID and SpanID come from the active OpenTelemetry span, when one
	// exists; empty strings otherwise (e.g. unit tests).
	TraceID string
	SpanID  string

	UpdatedAt time.Time
}
