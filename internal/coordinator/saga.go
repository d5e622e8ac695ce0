// Package coordinator runs order placement as a saga: an ordered list of
// steps where every step knows how to undo itself. On the first failure the
// already-completed steps are compensated in reverse order before control
// returns to the caller, so a half-placed order never leaks reserved stock.
package coordinator

import (
	"context"
	"log/slog"

	"github.com/freshmarkt/orderflow/internal/coordinator/placementlog"
)

// Step is a single unit of work in the placement saga.
type Step interface {
	Name() string
	Execute(ctx context.Context) error
	// Compensate undoes the effects of a successful Execute. Only called
	// for steps that completed, and exactly once each.
	Compensate(ctx context.Context) error
}

// Orchestrator executes steps sequentially and compensates on failure.
// Compensation runs synchronously: stock released during rollback must be
// visible before the placement error reaches the buyer.
type Orchestrator struct {
	sagaID string
	steps  []Step
	logs   placementlog.Repository // nil-safe: audit rows skipped if nil
}

// NewOrchestrator builds a saga for one placement. sagaID is the order ID so
// audit rows can be joined with business data and the OTel trace.
func NewOrchestrator(sagaID string, steps []Step, logs placementlog.Repository) *Orchestrator {
	return &Orchestrator{sagaID: sagaID, steps: steps, logs: logs}
}

// Start runs the steps in order. The returned error is the failing step's
// error, after all compensations have completed.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.record(ctx, placementlog.StatusStarted, "", nil)

	var done []Step
	for _, step := range o.steps {
		if err := step.Execute(ctx); err != nil {
			slog.WarnContext(ctx, "placement step failed, compensating",
				"saga_id", o.sagaID, "step", step.Name(), "error", err)
			o.record(ctx, placementlog.StatusCompensating, step.Name(), []string{err.Error()})
			o.rollback(ctx, done)
			o.record(ctx, placementlog.StatusFailed, step.Name(), []string{err.Error()})
			return err
		}
		done = append(done, step)
		o.record(ctx, placementlog.StatusStepDone, step.Name(), nil)
	}

	o.record(ctx, placementlog.StatusCompleted, "", nil)
	return nil
}

// rollback compensates completed steps in LIFO order. A failed compensation
// means stock accounting has silently diverged; that is escalated as a
// reconciliation alert, not surfaced to the buyer.
func (o *Orchestrator) rollback(ctx context.Context, done []Step) {
	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if err := step.Compensate(ctx); err != nil {
			slog.ErrorContext(ctx, "CRITICAL: inventory reconciliation failure, manual review required",
				"saga_id", o.sagaID, "step", step.Name(), "error", err)
			o.record(ctx, placementlog.StatusCompensating, step.Name(),
				[]string{"compensation failed: " + err.Error()})
		}
	}
}

func (o *Orchestrator) record(ctx context.Context, status placementlog.Status, step string, errs []string) {
	if o.logs == nil {
		return
	}
	entry := placementlog.NewEntry(ctx, o.sagaID, status, step, errs)
	if err := o.logs.Save(ctx, entry); err != nil {
		slog.ErrorContext(ctx, "placement log write failed",
			"saga_id", o.sagaID, "status", string(status), "error", err)
	}
}
