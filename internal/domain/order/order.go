// Package order implements checkout: revalidating applied coupons,
// reserving inventory, recording coupon usage, and persisting the order as
// one atomic unit.
package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrEmptyCart is returned when placing an order from a cart with no items.
var ErrEmptyCart = errors.New("cart has no items")

// Order represents a completed customer order with pricing and discount
// details. Line items are immutable once the order exists.
type Order struct {
	ID             string
	UserID         string
	Items          []OrderItem
	AppliedCoupons []OrderCoupon
	Subtotal       decimal.Decimal
	Discounts      decimal.Decimal
	Total          decimal.Decimal
	CreatedAt      time.Time
}

// OrderItem is a single line item in an order.
type OrderItem struct {
	ProductID string          `json:"product_id"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// OrderCoupon records a coupon redeemed by the order, with the discount it
// contributed.
type OrderCoupon struct {
	CouponID      string          `json:"coupon_id"`
	Code          string          `json:"code"`
	TotalDiscount decimal.Decimal `json:"total_discount"`
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
}

// TxRunner executes fn within a single storage transaction. Every
// repository call made with the ctx passed to fn joins that transaction;
// an error from fn rolls everything back.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
