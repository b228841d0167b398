package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/glowmart/coupon-engine/internal/domain/cart"
	"github.com/glowmart/coupon-engine/internal/domain/coupon"
	"github.com/glowmart/coupon-engine/internal/domain/product"
)

// InvalidQuantityError indicates a cart line has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// PlaceOrderRequest holds the input for placing an order from a cart.
type PlaceOrderRequest struct {
	CartID string
	UserID string
	Email  string
}

// PlaceOrderResult holds the output of a successfully placed order.
type PlaceOrderResult struct {
	Order *Order
	// DroppedCoupons lists codes that were applied to the cart but no
	// longer validated at checkout.
	DroppedCoupons []string
}

// Service encapsulates order placement business logic.
type Service struct {
	carts    cart.Repository
	ledger   *cart.Ledger
	coupons  coupon.Repository
	products product.Repository
	orders   Repository
	tx       TxRunner
	now      func() time.Time
	lg       *zap.Logger
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	carts cart.Repository,
	ledger *cart.Ledger,
	coupons coupon.Repository,
	products product.Repository,
	orders Repository,
	tx TxRunner,
	lg *zap.Logger,
) *Service {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Service{
		carts:    carts,
		ledger:   ledger,
		coupons:  coupons,
		products: products,
		orders:   orders,
		tx:       tx,
		now:      time.Now,
		lg:       lg,
	}
}

// PlaceOrder turns the cart into an order. Applied coupons are revalidated
// first; any that no longer hold are silently stripped, never blocking
// checkout. Inventory decrement, order creation, coupon usage records, and
// cart deletion then run as a single transaction: either the order exists
// with all its side effects, or none of them happened.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	c, err := s.carts.FindByID(ctx, req.CartID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	if len(c.Items) == 0 {
		return nil, ErrEmptyCart
	}
	for _, it := range c.Items {
		if it.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: it.ProductID}
		}
	}

	before := appliedCodes(c)
	if _, err := s.ledger.Revalidate(ctx, c, req.UserID, req.Email); err != nil {
		return nil, errors.Wrap(err, "revalidate coupons")
	}
	dropped := droppedCodes(before, c)

	o := s.buildOrder(c, req.UserID)

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		for _, it := range c.Items {
			if err := s.products.DecrementStock(ctx, it.ProductID, it.Quantity); err != nil {
				return errors.Wrapf(err, "reserve stock for %s", it.ProductID)
			}
		}

		if err := s.orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}

		// Usage records are written only after the order row exists in
		// the same transaction: on a crash the count undercounts, it
		// never double-counts.
		for _, ac := range c.AppliedCoupons {
			if err := s.coupons.RecordUsage(ctx, ac.CouponID, req.UserID, o.ID); err != nil {
				return errors.Wrapf(err, "record usage of coupon %s", ac.Code)
			}
		}

		if err := s.carts.Delete(ctx, c.ID); err != nil {
			return errors.Wrap(err, "delete cart")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.lg.Info("order placed",
		zap.String("order_id", o.ID),
		zap.String("user_id", req.UserID),
		zap.String("total", o.Total.String()),
		zap.Int("coupons", len(o.AppliedCoupons)),
		zap.Strings("dropped_coupons", dropped),
	)

	return &PlaceOrderResult{Order: o, DroppedCoupons: dropped}, nil
}

func (s *Service) buildOrder(c *cart.Cart, userID string) *Order {
	items := make([]OrderItem, len(c.Items))
	for i, it := range c.Items {
		items[i] = OrderItem{
			ProductID: it.ProductID,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		}
	}

	coupons := make([]OrderCoupon, len(c.AppliedCoupons))
	for i, ac := range c.AppliedCoupons {
		coupons[i] = OrderCoupon{
			CouponID:      ac.CouponID,
			Code:          ac.Code,
			TotalDiscount: ac.TotalDiscount,
		}
	}

	return &Order{
		ID:             uuid.New().String(),
		UserID:         userID,
		Items:          items,
		AppliedCoupons: coupons,
		Subtotal:       c.Subtotal().Round(2),
		Discounts:      c.DiscountTotal().Round(2),
		Total:          c.TotalPrice,
		CreatedAt:      s.now(),
	}
}

func appliedCodes(c *cart.Cart) []string {
	codes := make([]string, len(c.AppliedCoupons))
	for i, ac := range c.AppliedCoupons {
		codes[i] = ac.Code
	}
	return codes
}

func droppedCodes(before []string, c *cart.Cart) []string {
	kept := make(map[string]struct{}, len(c.AppliedCoupons))
	for _, ac := range c.AppliedCoupons {
		kept[ac.Code] = struct{}{}
	}
	var dropped []string
	for _, code := range before {
		if _, ok := kept[code]; !ok {
			dropped = append(dropped, code)
		}
	}
	return dropped
}
