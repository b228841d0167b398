// Package cart holds the shopping cart model and the coupon ledger that
// maintains the ordered list of coupons applied to a cart.
package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/glowmart/coupon-engine/internal/domain/category"
	"github.com/glowmart/coupon-engine/internal/domain/coupon"
)

// Status enumerates cart lifecycle states.
type Status string

const (
	StatusActive Status = "Active"
	// StatusAbandoned marks carts untouched past the abandonment
	// threshold; set by the background sweep.
	StatusAbandoned Status = "Abandoned"
)

// Sentinel errors for cart operations.
var (
	// ErrNotFound is returned when a cart id does not resolve.
	ErrNotFound = errors.New("cart not found")
	// ErrNotApplied is returned when removing a coupon that is not on the cart.
	ErrNotApplied = errors.New("coupon not applied to cart")
	// ErrEmptyCode is returned when an apply request carries no coupon code.
	ErrEmptyCode = errors.New("coupon code required")
	// ErrVersionConflict is returned when an optimistic save lost a race.
	// Callers should reload and retry the whole operation once.
	ErrVersionConflict = errors.New("cart version conflict")
)

// LineItem is one product position in a cart. Immutable once an order is
// placed from the cart.
type LineItem struct {
	ProductID string
	UnitPrice decimal.Decimal
	Quantity  int
	Category  category.Path
}

// AppliedCoupon is a coupon attached to a cart together with its computed
// discount. TotalDiscount is a cache; revalidation recomputes it.
type AppliedCoupon struct {
	CouponID          string
	Code              string
	IndividualUseOnly bool
	TotalDiscount     decimal.Decimal
}

// Cart is an ordered sequence of line items plus the coupons applied to
// them. TotalPrice is derived, never authoritative: RecomputeTotal restores
// the invariant total = sum of line totals - sum of applied discounts,
// clamped at zero.
type Cart struct {
	ID             string
	UserID         string
	Status         Status
	Items          []LineItem
	AppliedCoupons []AppliedCoupon
	TotalPrice     decimal.Decimal

	// Version guards concurrent saves; see Repository.Save.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Subtotal returns the sum of line totals before any discount.
func (c *Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range c.Items {
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}

// DiscountTotal returns the sum of all applied coupon discounts.
func (c *Cart) DiscountTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, ac := range c.AppliedCoupons {
		sum = sum.Add(ac.TotalDiscount)
	}
	return sum
}

// RecomputeTotal rederives TotalPrice from items and applied coupons.
// Stacked coupons can discount past the subtotal; the total is clamped at
// zero rather than going negative.
func (c *Cart) RecomputeTotal() {
	total := c.Subtotal().Sub(c.DiscountTotal())
	if total.IsNegative() {
		total = decimal.Zero
	}
	c.TotalPrice = total.Round(2)
}

// State builds the read-only snapshot the eligibility evaluator consumes.
func (c *Cart) State() coupon.CartState {
	applied := make([]coupon.AppliedRef, len(c.AppliedCoupons))
	for i, ac := range c.AppliedCoupons {
		applied[i] = coupon.AppliedRef{
			CouponID:          ac.CouponID,
			Code:              ac.Code,
			IndividualUseOnly: ac.IndividualUseOnly,
		}
	}
	return coupon.CartState{Total: c.TotalPrice, Applied: applied}
}

// CouponItems converts the cart lines to the calculator's item view.
func (c *Cart) CouponItems() []coupon.Item {
	items := make([]coupon.Item, len(c.Items))
	for i, it := range c.Items {
		items[i] = coupon.Item{
			ProductID: it.ProductID,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			Category:  it.Category,
		}
	}
	return items
}

// Repository defines persistence operations for carts.
type Repository interface {
	FindByID(ctx context.Context, id string) (*Cart, error)

	// Save persists the cart if its version still matches the stored one,
	// then bumps the version. Returns ErrVersionConflict otherwise.
	Save(ctx context.Context, c *Cart) error

	Delete(ctx context.Context, id string) error

	// AbandonStale marks Active carts not updated since the cutoff as
	// Abandoned and returns how many changed. Idempotent.
	AbandonStale(ctx context.Context, cutoff time.Time) (int64, error)
}
