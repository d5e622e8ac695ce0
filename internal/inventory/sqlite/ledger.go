// Package sqlite provides the SQLite-backed implementation of
// inventory.Ledger and owns the products table schema.
//
// The correctness of the whole placement path rests on Reserve being a
// single guarded UPDATE. There is no SELECT-then-UPDATE window: the WHERE
// clause rejects the decrement if fewer units remain than requested, so two
// concurrent orders for the last unit resolve to exactly one success.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/freshmarkt/orderflow/internal/inventory"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
    id                 TEXT    PRIMARY KEY,
    name               TEXT    NOT NULL,
    unit_price         REAL    NOT NULL,
    seller_id          TEXT    NOT NULL,
    seller_name        TEXT    NOT NULL DEFAULT '',
    seller_email       TEXT    NOT NULL DEFAULT '',
    active             INTEGER NOT NULL DEFAULT 1,

    -- Stock fields. available_quantity is mutated ONLY by the guarded
    -- UPDATEs below; out_of_stock is kept in lockstep in the same statement
    -- so the pair can never be observed inconsistent.
    available_quantity INTEGER NOT NULL CHECK (available_quantity >= 0),
    out_of_stock       INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_products_seller ON products(seller_id);
`

// Ledger is the SQLite implementation of inventory.Ledger.
type Ledger struct {
	db *sql.DB
}

// NewLedger applies the products schema and returns the ledger. Idempotent
// due to IF NOT EXISTS.
func NewLedger(db *sql.DB) (*Ledger, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("inventory: apply schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Reserve decrements available_quantity by qty in one conditional UPDATE.
// Zero rows affected means the guard failed: either the product is unknown
// or fewer than qty units remain. A follow-up read only serves the error
// message; the decision was already made atomically.
func (l *Ledger) Reserve(ctx context.Context, productID string, qty int) error {
	const q = `
		UPDATE products
		SET    available_quantity = available_quantity - ?1,
		       out_of_stock       = CASE WHEN available_quantity - ?1 = 0 THEN 1 ELSE 0 END
		WHERE  id = ?2 AND available_quantity >= ?1`

	res, err := l.db.ExecContext(ctx, q, qty, productID)
	if err != nil {
		return fmt.Errorf("inventory: reserve %d of %q: %w", qty, productID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("inventory: reserve %q rows affected: %w", productID, err)
	}
	if n == 1 {
		return nil
	}

	name, available, err := l.snapshot(ctx, productID)
	if err != nil {
		return err
	}
	return &inventory.InsufficientStockError{
		ProductID:   productID,
		ProductName: name,
		Requested:   qty,
		Available:   available,
	}
}

// Release returns qty units and clears out_of_stock. Safe to call
// concurrently; the increment is a single statement.
func (l *Ledger) Release(ctx context.Context, productID string, qty int) error {
	const q = `
		UPDATE products
		SET    available_quantity = available_quantity + ?1,
		       out_of_stock       = 0
		WHERE  id = ?2`

	res, err := l.db.ExecContext(ctx, q, qty, productID)
	if err != nil {
		return fmt.Errorf("inventory: release %d of %q: %w", qty, productID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("inventory: release %q rows affected: %w", productID, err)
	}
	if n == 0 {
		return &inventory.UnknownProductError{ProductID: productID}
	}
	return nil
}

func (l *Ledger) snapshot(ctx context.Context, productID string) (string, int, error) {
	const q = `SELECT name, available_quantity FROM products WHERE id = ?`

	var name string
	var available int
	err := l.db.QueryRowContext(ctx, q, productID).Scan(&name, &available)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, &inventory.UnknownProductError{ProductID: productID}
	}
	if err != nil {
		return "", 0, fmt.Errorf("inventory: read %q: %w", productID, err)
	}
	return name, available, nil
}
