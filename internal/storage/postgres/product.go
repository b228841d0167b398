package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/glowmart/coupon-engine/internal/domain/category"
	"github.com/glowmart/coupon-engine/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	db *DB
}

// NewProductRepository returns a ProductRepository over the given DB.
func NewProductRepository(db *DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetByID fetches a single product; product.ErrNotFound when absent.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	var (
		p   product.Product
		cat string
	)
	err := r.db.q(ctx).QueryRow(ctx,
		`SELECT id, name, price, category, available FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Price, &cat, &p.Available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("finding product %q: %w", id, err)
	}
	p.Category = category.ParsePath(cat)
	return &p, nil
}

// GetByIDs fetches products in one query. Missing ids are simply absent
// from the result; callers detect them by comparing lengths.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.db.q(ctx).Query(ctx,
		`SELECT id, name, price, category, available FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("finding products: %w", err)
	}
	defer rows.Close()

	var out []product.Product
	for rows.Next() {
		var (
			p   product.Product
			cat string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &cat, &p.Available); err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		p.Category = category.ParsePath(cat)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating products: %w", err)
	}
	return out, nil
}

// DecrementStock reduces the available quantity in one conditional update,
// so the check and the decrement cannot be interleaved by a concurrent
// order. A shortfall leaves the row untouched.
func (r *ProductRepository) DecrementStock(ctx context.Context, id string, qty int) error {
	tag, err := r.db.q(ctx).Exec(ctx,
		`UPDATE products SET available = available - $2 WHERE id = $1 AND available >= $2`,
		id, qty)
	if err != nil {
		return fmt.Errorf("decrementing stock of %q: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var available int
	err = r.db.q(ctx).QueryRow(ctx, `SELECT available FROM products WHERE id = $1`, id).Scan(&available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return product.ErrNotFound
		}
		return fmt.Errorf("checking stock of %q: %w", id, err)
	}
	return &product.InsufficientStockError{ProductID: id, Available: available}
}
