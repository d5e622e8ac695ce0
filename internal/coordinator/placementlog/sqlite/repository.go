// Package sqlite persists placement log entries. The placement saga writes
// while HTTP handlers may be reading (status and reconciliation queries),
// which is why the database is opened in WAL mode.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/freshmarkt/orderflow/internal/coordinator/placementlog"
)

const schema = `
CREATE TABLE IF NOT EXISTS placement_logs (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,

    -- The order ID. Not UNIQUE: one row per transition.
    saga_id         TEXT NOT NULL,

    status          TEXT NOT NULL,
    current_step    TEXT NOT NULL DEFAULT '',

    -- JSON array of error strings accumulated on failure/compensation.
    error_messages  TEXT NOT NULL DEFAULT '[]',

    -- W3C trace/span IDs of the active OTel span; joins the row to traces.
    trace_id        TEXT NOT NULL DEFAULT '',
    span_id         TEXT NOT NULL DEFAULT '',

    -- RFC3339 stored as TEXT, the SQLite idiom.
    updated_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_placement_logs_saga_id ON placement_logs(saga_id, updated_at);
CREATE INDEX IF NOT EXISTS idx_placement_logs_trace_id ON placement_logs(trace_id);
`

// Repository is the SQLite implementation of placementlog.Repository.
type Repository struct {
	db *sql.DB
}

// NewRepository applies the schema (idempotent) and returns the repository.
func NewRepository(db *sql.DB) (*Repository, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("placementlog: apply schema: %w", err)
	}
	return &Repository{db: db}, nil
}

// Save appends one entry. Safe for concurrent use.
func (r *Repository) Save(ctx context.Context, entry *placementlog.Entry) error {
	const q = `
		INSERT INTO placement_logs
			(saga_id, status, current_step, error_messages, trace_id, span_id, updated_at)
		VALUES
			(?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, q,
		entry.SagaID,
		string(entry.Status),
		entry.CurrentStep,
		entry.ErrorMessages,
		entry.TraceID,
		entry.SpanID,
		entry.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("placementlog: save entry for %q: %w", entry.SagaID, err)
	}
	return nil
}

// History returns every entry for a saga, oldest first. Used by the
// reconciliation workflow after a compensation failure.
func (r *Repository) History(ctx context.Context, sagaID string) ([]*placementlog.Entry, error) {
	const q = `
		SELECT saga_id, status, current_step, error_messages, trace_id, span_id, updated_at
		FROM   placement_logs
		WHERE  saga_id = ?
		ORDER  BY updated_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, q, sagaID)
	if err != nil {
		return nil, fmt.Errorf("placementlog: history for %q: %w", sagaID, err)
	}
	defer rows.Close()

	var out []*placementlog.Entry
	for rows.Next() {
		var entry placementlog.Entry
		var updatedAt string
		if err := rows.Scan(
			&entry.SagaID, &entry.Status, &entry.CurrentStep,
			&entry.ErrorMessages, &entry.TraceID, &entry.SpanID, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("placementlog: scan history row: %w", err)
		}
		entry.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("placementlog: parse time %q: %w", updatedAt, err)
		}
		out = append(out, &entry)
	}
	return out, rows.Err()
}
