// Package product defines the catalog surface the coupon engine and order
// placement depend on.
package product

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/glowmart/coupon-engine/internal/domain/category"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// InsufficientStockError indicates a decrement request exceeded the
// remaining inventory. Nothing is changed when it is returned.
type InsufficientStockError struct {
	ProductID string
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("only %d left of product %s", e.Available, e.ProductID)
}

// Product represents a catalog item available for purchase.
type Product struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	Category category.Path
	// Available is the remaining inventory count.
	Available int
}

// Repository defines the catalog operations order placement needs.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)

	// DecrementStock atomically reduces the available quantity by qty.
	// Returns *InsufficientStockError, leaving stock untouched, when
	// fewer than qty units remain.
	DecrementStock(ctx context.Context, id string, qty int) error
}
