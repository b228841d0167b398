package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/glowmart/coupon-engine/internal/domain/category"
	"github.com/glowmart/coupon-engine/internal/domain/coupon"
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	db *DB
}

// NewCouponRepository returns a CouponRepository over the given DB.
func NewCouponRepository(db *DB) *CouponRepository {
	return &CouponRepository{db: db}
}

const couponColumns = `id, name, code, discount_type, discount, description, status,
	expires_at, allowed_products, excluded_products, allowed_categories,
	excluded_categories, allowed_emails, usage_limit, user_count_limit,
	per_user_limit, minimum_spend, item_limit, individual_use_only`

// FindByCode looks up a coupon by its code, with its full usage history.
// Returns coupon.ErrNotFound when no such coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.findWhere(ctx, "code = $1", code)
}

// FindByID looks up a coupon by id, with its full usage history.
func (r *CouponRepository) FindByID(ctx context.Context, id string) (*coupon.Coupon, error) {
	return r.findWhere(ctx, "id = $1", id)
}

func (r *CouponRepository) findWhere(ctx context.Context, cond string, arg any) (*coupon.Coupon, error) {
	q := r.db.q(ctx)

	row := q.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE `+cond, arg)
	c, err := scanCoupon(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon: %w", err)
	}

	rows, err := q.Query(ctx,
		`SELECT user_id, order_id FROM coupon_usages WHERE coupon_id = $1 ORDER BY id`, c.ID)
	if err != nil {
		return nil, fmt.Errorf("loading usages for coupon %q: %w", c.Code, err)
	}
	defer rows.Close()

	for rows.Next() {
		var u coupon.Usage
		if err := rows.Scan(&u.UserID, &u.OrderID); err != nil {
			return nil, fmt.Errorf("scanning usage: %w", err)
		}
		c.Usages = append(c.Usages, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usages: %w", err)
	}

	return c, nil
}

// RecordUsage appends a redemption record. The coupon row is locked for the
// duration of the check-and-insert so the global usage limit cannot be
// oversold by concurrent checkouts; coupon.ErrUsageConflict reports a lost
// race.
func (r *CouponRepository) RecordUsage(ctx context.Context, couponID, userID, orderID string) error {
	tag, err := r.db.q(ctx).Exec(ctx, `
		WITH locked AS (
			SELECT id, usage_limit FROM coupons WHERE id = $1 FOR UPDATE
		)
		INSERT INTO coupon_usages (coupon_id, user_id, order_id)
		SELECT locked.id, $2, $3 FROM locked
		WHERE locked.usage_limit = 0
		   OR (SELECT count(*) FROM coupon_usages u WHERE u.coupon_id = locked.id) < locked.usage_limit`,
		couponID, userID, orderID)
	if err != nil {
		return fmt.Errorf("recording usage of coupon %q: %w", couponID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.db.q(ctx).QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM coupons WHERE id = $1)`, couponID).Scan(&exists); err != nil {
			return fmt.Errorf("checking coupon %q: %w", couponID, err)
		}
		if !exists {
			return coupon.ErrNotFound
		}
		return coupon.ErrUsageConflict
	}
	return nil
}

// ExpireDue flips Active coupons past their expiry date to Expired in one
// conditional update. Safe to run concurrently and repeatedly.
func (r *CouponRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.q(ctx).Exec(ctx, `
		UPDATE coupons
		SET status = $1, updated_at = now()
		WHERE status = $2 AND expires_at IS NOT NULL AND expires_at < $3`,
		string(coupon.StatusExpired), string(coupon.StatusActive), now)
	if err != nil {
		return 0, fmt.Errorf("expiring due coupons: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Upsert inserts or updates a coupon definition by code. Used by the bulk
// importer; usage history is never touched.
func (r *CouponRepository) Upsert(ctx context.Context, c *coupon.Coupon) error {
	_, err := r.db.q(ctx).Exec(ctx, `
		INSERT INTO coupons (
			name, code, discount_type, discount, description, status,
			expires_at, allowed_products, excluded_products,
			allowed_categories, excluded_categories, allowed_emails,
			usage_limit, user_count_limit, per_user_limit,
			minimum_spend, item_limit, individual_use_only
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (code) DO UPDATE SET
			discount_type = EXCLUDED.discount_type,
			discount = EXCLUDED.discount,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			expires_at = EXCLUDED.expires_at,
			allowed_products = EXCLUDED.allowed_products,
			excluded_products = EXCLUDED.excluded_products,
			allowed_categories = EXCLUDED.allowed_categories,
			excluded_categories = EXCLUDED.excluded_categories,
			allowed_emails = EXCLUDED.allowed_emails,
			usage_limit = EXCLUDED.usage_limit,
			user_count_limit = EXCLUDED.user_count_limit,
			per_user_limit = EXCLUDED.per_user_limit,
			minimum_spend = EXCLUDED.minimum_spend,
			item_limit = EXCLUDED.item_limit,
			individual_use_only = EXCLUDED.individual_use_only,
			updated_at = now()`,
		c.Name, c.Code, string(c.DiscountType), c.Discount, c.Description, string(c.Status),
		c.ExpiresAt, c.AllowedProducts, c.ExcludedProducts,
		pathsToStrings(c.AllowedCategories), pathsToStrings(c.ExcludedCategories), c.AllowedEmails,
		c.UsageLimit, c.UserCountLimit, c.PerUserLimit,
		c.MinimumSpend, c.ItemLimit, c.IndividualUseOnly)
	if err != nil {
		return fmt.Errorf("upserting coupon %q: %w", c.Code, err)
	}
	return nil
}

func scanCoupon(row pgx.Row) (*coupon.Coupon, error) {
	var (
		c                  coupon.Coupon
		discountType       string
		status             string
		allowedCategories  []string
		excludedCategories []string
	)
	err := row.Scan(
		&c.ID, &c.Name, &c.Code, &discountType, &c.Discount, &c.Description, &status,
		&c.ExpiresAt, &c.AllowedProducts, &c.ExcludedProducts, &allowedCategories,
		&excludedCategories, &c.AllowedEmails, &c.UsageLimit, &c.UserCountLimit,
		&c.PerUserLimit, &c.MinimumSpend, &c.ItemLimit, &c.IndividualUseOnly,
	)
	if err != nil {
		return nil, err
	}
	c.DiscountType = coupon.DiscountType(discountType)
	c.Status = coupon.Status(status)
	c.AllowedCategories = stringsToPaths(allowedCategories)
	c.ExcludedCategories = stringsToPaths(excludedCategories)
	return &c, nil
}

func pathsToStrings(paths []category.Path) []string {
	if paths == nil {
		return nil
	}
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = p.String()
	}
	return out
}

func stringsToPaths(raw []string) []category.Path {
	if raw == nil {
		return nil
	}
	out := make([]category.Path, len(raw))
	for i, s := range raw {
		out[i] = category.ParsePath(s)
	}
	return out
}
