package domain

import "fmt"

// ItemStatus is the delivery-pipeline state of a single line item.
type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemConfirmed ItemStatus = "confirmed"
	ItemPreparing ItemStatus = "preparing"
	ItemReady     ItemStatus = "ready"
	ItemDelivered ItemStatus = "delivered"
	ItemCancelled ItemStatus = "cancelled"
)

// pipelineRank orders the forward states. Cancelled sits outside the
// pipeline and has no rank.
var pipelineRank = map[ItemStatus]int{
	ItemPending:   0,
	ItemConfirmed: 1,
	ItemPreparing: 2,
	ItemReady:     3,
	ItemDelivered: 4,
}

// Valid reports whether s is one of the known statuses.
func (s ItemStatus) Valid() bool {
	_, ok := pipelineRank[s]
	return ok || s == ItemCancelled
}

// CanTransition reports whether the single forward pipeline step or the
// cancellation side-transition applies. Everything else, including skipping
// pipeline stages and resurrecting a cancelled item, is rejected.
func (s ItemStatus) CanTransition(to ItemStatus) bool {
	if to == ItemCancelled {
		return s != ItemDelivered && s != ItemCancelled
	}
	from, ok := pipelineRank[s]
	if !ok {
		return false
	}
	next, ok := pipelineRank[to]
	if !ok {
		return false
	}
	return next == from+1
}

// InvalidTransitionError indicates a state-machine violation; it usually
// means a client bug rather than a race.
type InvalidTransitionError struct {
	From ItemStatus
	To   ItemStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}
