package placementlog

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// NewEntry builds an Entry with trace identifiers taken from the active
// OpenTelemetry span in ctx. With no active span (unit tests, background
// jobs before tracer init) the trace fields stay empty.
func NewEntry(ctx context.Context, sagaID string, status Status, currentStep string, errs []string) *Entry {
	entry := &Entry{
		SagaID:        sagaID,
		Status:        status,
		CurrentStep:   currentStep,
		ErrorMessages: "[]",
		UpdatedAt:     time.Now().UTC(),
	}

	if len(errs) > 0 {
		if b, err := json.Marshal(errs); err == nil {
			entry.ErrorMessages = string(b)
		}
	}

	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		entry.TraceID = sc.TraceID().String()
		entry.SpanID = sc.SpanID().String()
	}

	return entry
}
