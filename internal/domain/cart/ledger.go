package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/glowmart/coupon-engine/internal/domain/coupon"
)

// Ledger applies, removes, and revalidates coupons on carts. Eligibility
// and calculation themselves are pure; the ledger owns the surrounding
// load-evaluate-append-save choreography.
type Ledger struct {
	coupons coupon.Repository
	carts   Repository
	now     func() time.Time
	lg      *zap.Logger
}

// NewLedger creates a Ledger over the given repositories.
func NewLedger(coupons coupon.Repository, carts Repository, lg *zap.Logger) *Ledger {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Ledger{coupons: coupons, carts: carts, now: time.Now, lg: lg}
}

// Apply validates the coupon against the cart and user, computes its
// discount, appends it to the cart, recomputes the total, and saves. On any
// failure the stored cart is left untouched and the eligibility reason is
// returned to the caller.
func (l *Ledger) Apply(ctx context.Context, cartID, code, userID, email string) (*Cart, error) {
	if code == "" {
		return nil, ErrEmptyCode
	}

	c, err := l.carts.FindByID(ctx, cartID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}

	cpn, err := l.coupons.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			return nil, coupon.ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	applied, err := l.attach(c, cpn, userID, email)
	if err != nil {
		return nil, err
	}

	if err := l.carts.Save(ctx, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}

	l.lg.Info("coupon applied",
		zap.String("cart_id", c.ID),
		zap.String("coupon_code", cpn.Code),
		zap.String("discount", applied.TotalDiscount.String()),
	)
	return c, nil
}

// Remove drops the coupon with the given id from the cart and recomputes
// the total. Returns ErrNotApplied when the coupon is not on the cart.
func (l *Ledger) Remove(ctx context.Context, cartID, couponID string) (*Cart, error) {
	c, err := l.carts.FindByID(ctx, cartID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}

	idx := -1
	for i, ac := range c.AppliedCoupons {
		if ac.CouponID == couponID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, ErrNotApplied
	}

	c.AppliedCoupons = append(c.AppliedCoupons[:idx], c.AppliedCoupons[idx+1:]...)
	c.RecomputeTotal()

	if err := l.carts.Save(ctx, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return c, nil
}

// Revalidate re-runs eligibility and calculation for every currently
// applied coupon, in original application order, against the cart as it
// stands now. Coupons that no longer validate are dropped without
// surfacing an error: this is a best-effort reconciliation before
// checkout, and stale coupons must strip their discount, not block the
// order. Usage counts are never touched here.
//
// The cart is modified in place and NOT saved; the caller persists it,
// typically inside the checkout transaction.
func (l *Ledger) Revalidate(ctx context.Context, c *Cart, userID, email string) (*Cart, error) {
	snapshot := c.AppliedCoupons
	c.AppliedCoupons = nil
	c.RecomputeTotal()

	for _, prev := range snapshot {
		cpn, err := l.coupons.FindByCode(ctx, prev.Code)
		if err != nil {
			if errors.Is(err, coupon.ErrNotFound) {
				l.dropCoupon(c, prev.Code, err)
				continue
			}
			return nil, errors.Wrapf(err, "lookup coupon %s", prev.Code)
		}

		if _, err := l.attach(c, cpn, userID, email); err != nil {
			l.dropCoupon(c, prev.Code, err)
		}
	}

	return c, nil
}

// attach runs evaluate + calculate and appends the result, restoring the
// total invariant. The cart is only modified on success.
func (l *Ledger) attach(c *Cart, cpn *coupon.Coupon, userID, email string) (*AppliedCoupon, error) {
	if err := coupon.Evaluate(cpn, c.State(), userID, email, l.now()); err != nil {
		return nil, err
	}

	amount, err := coupon.Calculate(cpn, c.CouponItems())
	if err != nil {
		return nil, err
	}

	c.AppliedCoupons = append(c.AppliedCoupons, AppliedCoupon{
		CouponID:          cpn.ID,
		Code:              cpn.Code,
		IndividualUseOnly: cpn.IndividualUseOnly,
		TotalDiscount:     amount,
	})
	c.RecomputeTotal()
	return &c.AppliedCoupons[len(c.AppliedCoupons)-1], nil
}

func (l *Ledger) dropCoupon(c *Cart, code string, err error) {
	l.lg.Debug("dropping stale coupon on revalidation",
		zap.String("cart_id", c.ID),
		zap.String("coupon_code", code),
		zap.Error(err),
	)
}
