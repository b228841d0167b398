package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/glowmart/coupon-engine/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	db *DB
}

// NewOrderRepository returns an OrderRepository over the given DB.
func NewOrderRepository(db *DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create persists a new order. Items and redeemed coupons are serialized
// to JSON for storage in JSONB columns.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	couponsJSON, err := json.Marshal(o.AppliedCoupons)
	if err != nil {
		return fmt.Errorf("marshaling order coupons: %w", err)
	}

	_, err = r.db.q(ctx).Exec(ctx, `
		INSERT INTO orders (id, user_id, items, applied_coupons, subtotal, discounts, total, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		o.ID, o.UserID, itemsJSON, couponsJSON, o.Subtotal, o.Discounts, o.Total, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}
