package coupon

import (
	"sort"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// Calculate computes the discount amount for an eligible coupon over the
// given cart items. It never mutates its inputs and always returns a
// non-negative amount rounded to 2 decimal places (round half up).
func Calculate(c *Coupon, items []Item) (decimal.Decimal, error) {
	switch c.DiscountType {
	case DiscountFixedCart:
		return calcFixedCart(c, items)
	case DiscountFixedProduct:
		return calcFixedProduct(c, items), nil
	case DiscountPercentage:
		return calcPercentage(c, items), nil
	default:
		return zero, errors.Errorf("unsupported discount type: %q", c.DiscountType)
	}
}

// calcFixedCart applies a flat discount once, but only when the whole cart
// qualifies under the coupon's filter. The item limit does not apply. A deny
// filter rejects only when an excluded item is actually present.
func calcFixedCart(c *Coupon, items []Item) (decimal.Decimal, error) {
	if err := SelectFilter(c).Violation(c.Code, items); err != nil {
		return zero, err
	}
	return floorAtZero(c.Discount).Round(2), nil
}

// calcFixedProduct discounts a fixed amount per qualifying item unit. The
// qualifying quantity sums quantities of filter-admitted items and is
// capped at the coupon's item limit when set.
func calcFixedProduct(c *Coupon, items []Item) decimal.Decimal {
	filter := SelectFilter(c)
	qty := 0
	for _, it := range items {
		if filter.Matches(it) {
			qty += it.Quantity
		}
	}
	if c.ItemLimit > 0 && qty > c.ItemLimit {
		qty = c.ItemLimit
	}

	amount := c.Discount.Mul(decimal.NewFromInt(int64(qty)))
	return floorAtZero(amount).Round(2)
}

// calcPercentage discounts a percentage of the unit price across qualifying
// units. Items are processed in descending unit-price order (stable for
// ties) so that when the item limit caps the counted quantity, the most
// expensive units are discounted first. Items past the limit contribute
// zero but are still visited.
func calcPercentage(c *Coupon, items []Item) decimal.Decimal {
	filter := SelectFilter(c)

	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UnitPrice.GreaterThan(sorted[j].UnitPrice)
	})

	total := zero
	counted := 0
	for _, it := range sorted {
		if !filter.Matches(it) {
			continue
		}
		qty := it.Quantity
		if c.ItemLimit > 0 {
			remaining := c.ItemLimit - counted
			if remaining <= 0 {
				counted += it.Quantity
				continue
			}
			if qty > remaining {
				qty = remaining
			}
		}
		line := it.UnitPrice.Mul(decimal.NewFromInt(int64(qty))).Mul(c.Discount).Div(hundred)
		total = total.Add(line)
		counted += it.Quantity
	}

	return floorAtZero(total).Round(2)
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}
