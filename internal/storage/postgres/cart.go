package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/glowmart/coupon-engine/internal/domain/cart"
	"github.com/glowmart/coupon-engine/internal/domain/category"
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL. Line
// items and applied coupons live in JSONB columns; concurrent saves are
// serialized with an optimistic version column.
type CartRepository struct {
	db *DB
}

// NewCartRepository returns a CartRepository over the given DB.
func NewCartRepository(db *DB) *CartRepository {
	return &CartRepository{db: db}
}

// JSONB shapes. Decimals marshal as JSON numbers via shopspring/decimal.

type lineItemDoc struct {
	ProductID string          `json:"product_id"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Category  string          `json:"category"`
}

type appliedCouponDoc struct {
	CouponID          string          `json:"coupon_id"`
	Code              string          `json:"code"`
	IndividualUseOnly bool            `json:"individual_use_only"`
	TotalDiscount     decimal.Decimal `json:"total_discount"`
}

// FindByID loads a cart. Returns cart.ErrNotFound when the id does not
// resolve.
func (r *CartRepository) FindByID(ctx context.Context, id string) (*cart.Cart, error) {
	var (
		c           cart.Cart
		status      string
		itemsJSON   []byte
		couponsJSON []byte
	)
	err := r.db.q(ctx).QueryRow(ctx, `
		SELECT id, user_id, status, items, applied_coupons, total_price, version, created_at, updated_at
		FROM carts WHERE id = $1`, id).
		Scan(&c.ID, &c.UserID, &status, &itemsJSON, &couponsJSON, &c.TotalPrice, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("finding cart %q: %w", id, err)
	}
	c.Status = cart.Status(status)

	var items []lineItemDoc
	if err := json.Unmarshal(itemsJSON, &items); err != nil {
		return nil, fmt.Errorf("unmarshaling items of cart %q: %w", id, err)
	}
	c.Items = make([]cart.LineItem, len(items))
	for i, it := range items {
		c.Items[i] = cart.LineItem{
			ProductID: it.ProductID,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			Category:  category.ParsePath(it.Category),
		}
	}

	var coupons []appliedCouponDoc
	if err := json.Unmarshal(couponsJSON, &coupons); err != nil {
		return nil, fmt.Errorf("unmarshaling coupons of cart %q: %w", id, err)
	}
	c.AppliedCoupons = make([]cart.AppliedCoupon, len(coupons))
	for i, ac := range coupons {
		c.AppliedCoupons[i] = cart.AppliedCoupon{
			CouponID:          ac.CouponID,
			Code:              ac.Code,
			IndividualUseOnly: ac.IndividualUseOnly,
			TotalDiscount:     ac.TotalDiscount,
		}
	}

	return &c, nil
}

// Save upserts the cart. For existing rows the stored version must match
// the loaded one; otherwise cart.ErrVersionConflict is returned and the
// caller should reload and retry. On success the in-memory version is
// bumped to match the store.
func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	items := make([]lineItemDoc, len(c.Items))
	for i, it := range c.Items {
		items[i] = lineItemDoc{
			ProductID: it.ProductID,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			Category:  it.Category.String(),
		}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshaling items of cart %q: %w", c.ID, err)
	}

	coupons := make([]appliedCouponDoc, len(c.AppliedCoupons))
	for i, ac := range c.AppliedCoupons {
		coupons[i] = appliedCouponDoc{
			CouponID:          ac.CouponID,
			Code:              ac.Code,
			IndividualUseOnly: ac.IndividualUseOnly,
			TotalDiscount:     ac.TotalDiscount,
		}
	}
	couponsJSON, err := json.Marshal(coupons)
	if err != nil {
		return fmt.Errorf("marshaling coupons of cart %q: %w", c.ID, err)
	}

	tag, err := r.db.q(ctx).Exec(ctx, `
		INSERT INTO carts (id, user_id, status, items, applied_coupons, total_price, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7 + 1)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			status = EXCLUDED.status,
			items = EXCLUDED.items,
			applied_coupons = EXCLUDED.applied_coupons,
			total_price = EXCLUDED.total_price,
			version = carts.version + 1,
			updated_at = now()
		WHERE carts.version = $7`,
		c.ID, c.UserID, string(c.Status), itemsJSON, couponsJSON, c.TotalPrice, c.Version)
	if err != nil {
		return fmt.Errorf("saving cart %q: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrVersionConflict
	}
	c.Version++
	return nil
}

// Delete removes the cart. Deleting an absent cart is not an error.
func (r *CartRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.q(ctx).Exec(ctx, `DELETE FROM carts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting cart %q: %w", id, err)
	}
	return nil
}

// AbandonStale marks Active carts not updated since the cutoff as
// Abandoned in one conditional update.
func (r *CartRepository) AbandonStale(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.q(ctx).Exec(ctx, `
		UPDATE carts SET status = $1, updated_at = now()
		WHERE status = $2 AND updated_at < $3`,
		string(cart.StatusAbandoned), string(cart.StatusActive), cutoff)
	if err != nil {
		return 0, fmt.Errorf("abandoning stale carts: %w", err)
	}
	return tag.RowsAffected(), nil
}
