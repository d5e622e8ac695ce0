// Package catalog exposes read-only product lookups. Stock mutations live in
// the inventory package; this package never writes.
package catalog

import (
	"context"
	"fmt"
)

// Product is the catalog view of a product, including the denormalised
// seller contact attached to order line items at placement time.
type Product struct {
	ID          string
	Name        string
	UnitPrice   float64
	SellerID    string
	SellerName  string
	SellerEmail string
	Active      bool
	Available   int
	OutOfStock  bool
}

// Lookup is the port consumed by order placement.
type Lookup interface {
	GetProduct(ctx context.Context, productID string) (Product, error)
}

// UnavailableError covers both a missing product and one a seller has
// deactivated; placement treats the two identically.
type UnavailableError struct {
	ProductID string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("product %s is unavailable", e.ProductID)
}
