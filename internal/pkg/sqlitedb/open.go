// Package sqlitedb opens the service's SQLite database with the pragmas the
// rest of the code assumes: WAL so readers never block the writer, a busy
// timeout so concurrent requests wait for locks instead of failing, and
// foreign keys enforced.
package sqlitedb

import (
	"database/sql"
	"fmt"

	// Register the pure-Go SQLite driver. modernc.org/sqlite avoids CGO,
	// which keeps Docker builds on Alpine trivial.
	_ "modernc.org/sqlite"
)

// Open opens (or creates) the database at path. SQLite performs best with a
// single writer connection; conditional stock updates rely on that writer
// serialisation plus the guarded UPDATE itself.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)

	// "sqlite", not "sqlite3": modernc registers under the short name.
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitedb: open %q: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	return db, nil
}
