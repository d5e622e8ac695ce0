// Package sqlite stores order aggregates. One order is one document: the
// orders row plus its order_items rows, always written inside a single
// transaction, so concurrent mutations of different orders never interfere
// and a reader sees a consistent aggregate.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/freshmarkt/orderflow/internal/order/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
    id              TEXT PRIMARY KEY,
    buyer_id        TEXT NOT NULL,

    billing_name    TEXT NOT NULL,
    billing_email   TEXT NOT NULL,
    billing_phone   TEXT NOT NULL DEFAULT '',
    billing_address TEXT NOT NULL,
    billing_city    TEXT NOT NULL,
    billing_postal  TEXT NOT NULL DEFAULT '',

    subtotal        REAL NOT NULL,
    tax_amount      REAL NOT NULL,
    total_amount    REAL NOT NULL,

    payment_method  TEXT NOT NULL,
    payment_status  TEXT NOT NULL,
    payment_ref     TEXT NOT NULL DEFAULT '',
    refund_status   TEXT NOT NULL DEFAULT 'none',
    refund_amount   REAL NOT NULL DEFAULT 0,

    -- Note: no order-level status column. Status is derived from the items
    -- on read, so the header can never drift from its line items.
    placed_at       TEXT NOT NULL,
    cancelled_at    TEXT,
    cancelled_by    TEXT NOT NULL DEFAULT '',
    cancel_reason   TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_orders_buyer ON orders(buyer_id, placed_at);

CREATE TABLE IF NOT EXISTS order_items (
    order_id          TEXT    NOT NULL REFERENCES orders(id),
    position          INTEGER NOT NULL,

    product_id        TEXT    NOT NULL,
    product_name      TEXT    NOT NULL,
    seller_id         TEXT    NOT NULL,
    seller_name       TEXT    NOT NULL DEFAULT '',
    seller_email      TEXT    NOT NULL DEFAULT '',
    quantity          INTEGER NOT NULL CHECK (quantity >= 1),
    unit_price        REAL    NOT NULL CHECK (unit_price >= 0),
    status            TEXT    NOT NULL,
    expected_delivery TEXT,

    PRIMARY KEY (order_id, position)
);

CREATE INDEX IF NOT EXISTS idx_order_items_seller ON order_items(seller_id);
`

// Repository is the SQLite implementation of the order repository port.
type Repository struct {
	db *sql.DB
}

// NewRepository applies the schema (idempotent) and returns the repository.
func NewRepository(db *sql.DB) (*Repository, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("order: apply schema: %w", err)
	}
	return &Repository{db: db}, nil
}

// Save inserts a new aggregate with all its items.
func (r *Repository) Save(ctx context.Context, o *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("order: begin save %s: %w", o.ID, err)
	}
	defer func() { _ = tx.Rollback() }()

	const insertOrder = `
		INSERT INTO orders
			(id, buyer_id, billing_name, billing_email, billing_phone,
			 billing_address, billing_city, billing_postal,
			 subtotal, tax_amount, total_amount,
			 payment_method, payment_status, payment_ref,
			 refund_status, refund_amount,
			 placed_at, cancelled_at, cancelled_by, cancel_reason)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`

	_, err = tx.ExecContext(ctx, insertOrder,
		o.ID, o.BuyerID, o.Billing.Name, o.Billing.Email, o.Billing.Phone,
		o.Billing.Address, o.Billing.City, o.Billing.PostalCode,
		o.Subtotal, o.TaxAmount, o.TotalAmount,
		string(o.PaymentMethod), string(o.PaymentStatus), o.PaymentRef,
		string(o.RefundStatus), o.RefundAmount,
		formatTime(o.PlacedAt), formatTimePtr(o.CancelledAt), string(o.CancelledBy), o.CancelReason,
	)
	if err != nil {
		return fmt.Errorf("order: insert %s: %w", o.ID, err)
	}

	const insertItem = `
		INSERT INTO order_items
			(order_id, position, product_id, product_name, seller_id,
			 seller_name, seller_email, quantity, unit_price, status, expected_delivery)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`

	for i, it := range o.Items {
		_, err = tx.ExecContext(ctx, insertItem,
			o.ID, i, it.ProductID, it.ProductName, it.SellerID,
			it.SellerName, it.SellerEmail, it.Quantity, it.UnitPrice,
			string(it.Status), formatTimePtr(it.ExpectedDelivery),
		)
		if err != nil {
			return fmt.Errorf("order: insert item %d of %s: %w", i, o.ID, err)
		}
	}

	return tx.Commit()
}

// Get loads one aggregate.
func (r *Repository) Get(ctx context.Context, id string) (*domain.Order, error) {
	const q = orderSelect + ` WHERE id = ?`

	row := r.db.QueryRowContext(ctx, q, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("order: get %s: %w", id, err)
	}
	if err := r.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// ListByBuyer returns the buyer's aggregates, newest first.
func (r *Repository) ListByBuyer(ctx context.Context, buyerID string) ([]*domain.Order, error) {
	const q = orderSelect + ` WHERE buyer_id = ? ORDER BY placed_at DESC`
	return r.list(ctx, q, buyerID)
}

// ListBySeller returns every aggregate containing at least one of the
// seller's line items, newest first. Scoping to the seller's own items is
// the projection layer's job.
func (r *Repository) ListBySeller(ctx context.Context, sellerID string) ([]*domain.Order, error) {
	const q = orderSelect + `
		WHERE id IN (SELECT DISTINCT order_id FROM order_items WHERE seller_id = ?)
		ORDER BY placed_at DESC`
	return r.list(ctx, q, sellerID)
}

// Update persists the aggregate's header fields and exactly the listed item
// changes in one transaction. Each item UPDATE is guarded on the status the
// caller read; zero rows affected means another writer got there first, and
// the whole transaction rolls back with domain.ErrStaleOrder. Items not
// listed in changes are never written, so concurrent sellers working on
// their own items cannot overwrite each other.
func (r *Repository) Update(ctx context.Context, o *domain.Order, changes []domain.ItemChange) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("order: begin update %s: %w", o.ID, err)
	}
	defer func() { _ = tx.Rollback() }()

	const updateOrder = `
		UPDATE orders
		SET payment_status = ?, refund_status = ?, refund_amount = ?,
		    cancelled_at = ?, cancelled_by = ?, cancel_reason = ?
		WHERE id = ?`

	res, err := tx.ExecContext(ctx, updateOrder,
		string(o.PaymentStatus), string(o.RefundStatus), o.RefundAmount,
		formatTimePtr(o.CancelledAt), string(o.CancelledBy), o.CancelReason, o.ID,
	)
	if err != nil {
		return fmt.Errorf("order: update %s: %w", o.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrOrderNotFound
	}

	const updateItem = `
		UPDATE order_items
		SET status = ?, expected_delivery = COALESCE(?, expected_delivery)
		WHERE order_id = ? AND position = ? AND status = ?`

	for _, ch := range changes {
		res, err := tx.ExecContext(ctx, updateItem,
			string(ch.To), formatTimePtr(ch.ExpectedDelivery), o.ID, ch.Position, string(ch.From),
		)
		if err != nil {
			return fmt.Errorf("order: update item %d of %s: %w", ch.Position, o.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return domain.ErrStaleOrder
		}
	}

	return tx.Commit()
}

const orderSelect = `
	SELECT id, buyer_id, billing_name, billing_email, billing_phone,
	       billing_address, billing_city, billing_postal,
	       subtotal, tax_amount, total_amount,
	       payment_method, payment_status, payment_ref,
	       refund_status, refund_amount,
	       placed_at, cancelled_at, cancelled_by, cancel_reason
	FROM orders`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	var placedAt string
	var cancelledAt sql.NullString
	err := row.Scan(
		&o.ID, &o.BuyerID, &o.Billing.Name, &o.Billing.Email, &o.Billing.Phone,
		&o.Billing.Address, &o.Billing.City, &o.Billing.PostalCode,
		&o.Subtotal, &o.TaxAmount, &o.TotalAmount,
		&o.PaymentMethod, &o.PaymentStatus, &o.PaymentRef,
		&o.RefundStatus, &o.RefundAmount,
		&placedAt, &cancelledAt, &o.CancelledBy, &o.CancelReason,
	)
	if err != nil {
		return nil, err
	}
	if o.PlacedAt, err = time.Parse(time.RFC3339Nano, placedAt); err != nil {
		return nil, fmt.Errorf("order: parse placed_at %q: %w", placedAt, err)
	}
	if cancelledAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, cancelledAt.String)
		if err != nil {
			return nil, fmt.Errorf("order: parse cancelled_at %q: %w", cancelledAt.String, err)
		}
		o.CancelledAt = &t
	}
	return &o, nil
}

func (r *Repository) list(ctx context.Context, q string, arg any) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, fmt.Errorf("order: list: %w", err)
	}
	defer rows.Close()

	var out []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("order: scan list row: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, o := range out {
		if err := r.loadItems(ctx, o); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Repository) loadItems(ctx context.Context, o *domain.Order) error {
	const q = `
		SELECT product_id, product_name, seller_id, seller_name, seller_email,
		       quantity, unit_price, status, expected_delivery
		FROM   order_items
		WHERE  order_id = ?
		ORDER  BY position`

	rows, err := r.db.QueryContext(ctx, q, o.ID)
	if err != nil {
		return fmt.Errorf("order: load items of %s: %w", o.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var it domain.LineItem
		var eta sql.NullString
		if err := rows.Scan(
			&it.ProductID, &it.ProductName, &it.SellerID, &it.SellerName, &it.SellerEmail,
			&it.Quantity, &it.UnitPrice, &it.Status, &eta,
		); err != nil {
			return fmt.Errorf("order: scan item of %s: %w", o.ID, err)
		}
		if eta.Valid {
			t, err := time.Parse(time.RFC3339Nano, eta.String)
			if err != nil {
				return fmt.Errorf("order: parse expected_delivery %q: %w", eta.String, err)
			}
			it.ExpectedDelivery = &t
		}
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}
