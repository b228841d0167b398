// Package coupon implements the discount engine: coupon definitions,
// eligibility evaluation, and discount calculation over cart line items.
package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/glowmart/coupon-engine/internal/domain/category"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage discounts a percentage of the unit price across
	// qualifying item units, optionally capped by the coupon's item limit.
	DiscountPercentage DiscountType = "Percentage"
	// DiscountFixedProduct discounts a fixed amount per qualifying item unit.
	DiscountFixedProduct DiscountType = "FixedProductDiscount"
	// DiscountFixedCart discounts a fixed amount once for the whole cart.
	DiscountFixedCart DiscountType = "FixedCartDiscount"
)

// Status enumerates coupon lifecycle states. Expired is monotonic: once the
// sweep sets it, the coupon never becomes Active again.
type Status string

const (
	StatusActive   Status = "Active"
	StatusInactive Status = "Inactive"
	StatusExpired  Status = "Expired"
	StatusConsumed Status = "Consumed"
)

// ErrNotFound is returned when a coupon code or id does not resolve.
var ErrNotFound = errors.New("coupon not found")

// ErrUsageConflict is returned by RecordUsage when the coupon's global usage
// limit was consumed concurrently between eligibility check and record.
// Callers should retry the whole apply operation once.
var ErrUsageConflict = errors.New("coupon usage limit consumed concurrently")

// Usage is an append-only record of one redemption of a coupon. The usage
// list is the source of truth for all usage counts.
type Usage struct {
	UserID  string
	OrderID string
}

// Coupon is a named, coded discount rule with eligibility constraints and
// usage limits. The engine treats it as read-only except for usage appends
// and the Active -> Expired transition performed by the sweep.
type Coupon struct {
	ID           string
	Name         string
	Code         string
	DiscountType DiscountType
	// Discount is percentage points for DiscountPercentage, an absolute
	// amount otherwise.
	Discount    decimal.Decimal
	Description string
	Status      Status
	ExpiresAt   *time.Time

	// Filter inputs. At most one of the four is consulted, selected by
	// fixed priority; see SelectFilter.
	AllowedProducts    []string
	ExcludedProducts   []string
	AllowedCategories  []category.Path
	ExcludedCategories []category.Path

	// AllowedEmails restricts redemption to listed users. Nil or empty
	// means unrestricted.
	AllowedEmails []string

	// Limits. Zero means unlimited.
	UsageLimit     int
	UserCountLimit int
	PerUserLimit   int

	// MinimumSpend is the minimum cart total required; zero means none.
	MinimumSpend decimal.Decimal
	// ItemLimit caps how many item units a per-item discount covers;
	// zero means uncapped.
	ItemLimit int
	// IndividualUseOnly forbids combining this coupon with any other.
	IndividualUseOnly bool

	Usages []Usage
}

// Item is the engine's view of a cart line item.
type Item struct {
	ProductID string
	UnitPrice decimal.Decimal
	Quantity  int
	Category  category.Path
}

// AppliedRef identifies a coupon already applied to a cart, with the one
// flag eligibility needs to enforce exclusivity.
type AppliedRef struct {
	CouponID          string
	Code              string
	IndividualUseOnly bool
}

// CartState is the read-only cart snapshot the evaluator works over.
type CartState struct {
	Total   decimal.Decimal
	Applied []AppliedRef
}

// UsageCount returns the total number of recorded redemptions.
func (c *Coupon) UsageCount() int {
	return len(c.Usages)
}

// UserUsageCount returns how many times the given user has redeemed the coupon.
func (c *Coupon) UserUsageCount(userID string) int {
	n := 0
	for _, u := range c.Usages {
		if u.UserID == userID {
			n++
		}
	}
	return n
}

// DistinctUserCount returns how many distinct users have redeemed the coupon.
func (c *Coupon) DistinctUserCount() int {
	seen := make(map[string]struct{}, len(c.Usages))
	for _, u := range c.Usages {
		seen[u.UserID] = struct{}{}
	}
	return len(seen)
}

// Expired reports whether the coupon's expiry date has passed at the given
// instant. Coupons without an expiry date never expire.
func (c *Coupon) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}

// Repository provides lookup and mutation of coupons.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	FindByID(ctx context.Context, id string) (*Coupon, error)

	// RecordUsage appends a usage record for the coupon. Implementations
	// must re-check the coupon's global usage limit atomically with the
	// insert and return ErrUsageConflict when the limit was consumed by a
	// concurrent redemption.
	RecordUsage(ctx context.Context, couponID, userID, orderID string) error

	// ExpireDue transitions every Active coupon whose expiry date is
	// before now to Expired and returns how many changed. Idempotent.
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}

// RejectReason classifies why a coupon could not be applied.
type RejectReason string

const (
	ReasonInactive        RejectReason = "inactive"
	ReasonExpired         RejectReason = "expired"
	ReasonEmailNotAllowed RejectReason = "email_not_allowed"
	ReasonExclusivity     RejectReason = "individual_use_only"
	ReasonAlreadyApplied  RejectReason = "already_applied"
	ReasonMinimumSpend    RejectReason = "minimum_spend_not_met"
	ReasonGlobalLimit     RejectReason = "usage_limit_reached"
	ReasonUserCountLimit  RejectReason = "user_count_limit_reached"
	ReasonUserLimit       RejectReason = "user_limit_reached"
)

// EligibilityError reports that a coupon failed an eligibility check.
// The reason is surfaced verbatim to the caller.
type EligibilityError struct {
	Code   string
	Reason RejectReason
}

func (e *EligibilityError) Error() string {
	return fmt.Sprintf("coupon %s rejected: %s", e.Code, e.Reason)
}

// FilterViolationError reports that a specific product or category failed
// the coupon's allow/deny filter during calculation.
type FilterViolationError struct {
	CouponCode string
	// Kind is "product" or "category".
	Kind string
	// Name is the offending product id or category path.
	Name string
}

func (e *FilterViolationError) Error() string {
	return fmt.Sprintf("%s %s is not allowed to use coupon %s", e.Kind, e.Name, e.CouponCode)
}
