package placementlog

import "context"

// Repository is the port for persisting placement log entries. The
// orchestrator depends on this abstraction so tests can use the in-memory
// implementation and production uses SQLite.
type Repository interface {
	// Save appends a row; the log is append-only, never an upsert.
	Save(ctx context.Context, entry *Entry) error
}
