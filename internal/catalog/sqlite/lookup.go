// Package sqlite implements catalog.Lookup over the products table owned by
// the inventory package.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/freshmarkt/orderflow/internal/catalog"
)

type Lookup struct {
	db *sql.DB
}

func NewLookup(db *sql.DB) *Lookup {
	return &Lookup{db: db}
}

func (l *Lookup) GetProduct(ctx context.Context, productID string) (catalog.Product, error) {
	const q = `
		SELECT id, name, unit_price, seller_id, seller_name, seller_email,
		       active, available_quantity, out_of_stock
		FROM   products
		WHERE  id = ?`

	var p catalog.Product
	err := l.db.QueryRowContext(ctx, q, productID).Scan(
		&p.ID, &p.Name, &p.UnitPrice, &p.SellerID, &p.SellerName, &p.SellerEmail,
		&p.Active, &p.Available, &p.OutOfStock,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Product{}, &catalog.UnavailableError{ProductID: productID}
	}
	if err != nil {
		return catalog.Product{}, fmt.Errorf("catalog: get product %q: %w", productID, err)
	}
	if !p.Active {
		return catalog.Product{}, &catalog.UnavailableError{ProductID: productID}
	}
	return p, nil
}
