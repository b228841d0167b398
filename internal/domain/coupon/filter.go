package coupon

import "github.com/glowmart/coupon-engine/internal/domain/category"

// FilterKind tags the active eligibility filter of a coupon.
type FilterKind int

const (
	// FilterNone admits every item.
	FilterNone FilterKind = iota
	// FilterAllowProducts admits only items whose product is listed.
	FilterAllowProducts
	// FilterDenyProducts admits only items whose product is not listed.
	FilterDenyProducts
	// FilterAllowCategories admits only items under a listed category.
	FilterAllowCategories
	// FilterDenyCategories admits only items not under a listed category.
	FilterDenyCategories
)

// Filter is the resolved allow/deny filter of a coupon. Exactly one filter
// is active per coupon, chosen by SelectFilter; this replaces the implicit
// precedence of checking four optional lists ad hoc.
type Filter struct {
	kind       FilterKind
	products   map[string]struct{}
	categories []category.Path
}

// SelectFilter resolves the coupon's filter lists into a single Filter using
// the fixed priority order: allowed products, allowed categories, excluded
// products, excluded categories. A coupon with none of them set admits all
// items.
func SelectFilter(c *Coupon) Filter {
	switch {
	case len(c.AllowedProducts) > 0:
		return Filter{kind: FilterAllowProducts, products: productSet(c.AllowedProducts)}
	case len(c.AllowedCategories) > 0:
		return Filter{kind: FilterAllowCategories, categories: c.AllowedCategories}
	case len(c.ExcludedProducts) > 0:
		return Filter{kind: FilterDenyProducts, products: productSet(c.ExcludedProducts)}
	case len(c.ExcludedCategories) > 0:
		return Filter{kind: FilterDenyCategories, categories: c.ExcludedCategories}
	default:
		return Filter{kind: FilterNone}
	}
}

// Kind returns the filter's tag.
func (f Filter) Kind() FilterKind { return f.kind }

// Matches reports whether the item qualifies under the filter.
func (f Filter) Matches(it Item) bool {
	switch f.kind {
	case FilterAllowProducts:
		_, ok := f.products[it.ProductID]
		return ok
	case FilterDenyProducts:
		_, ok := f.products[it.ProductID]
		return !ok
	case FilterAllowCategories:
		return f.matchesCategory(it.Category)
	case FilterDenyCategories:
		return !f.matchesCategory(it.Category)
	default:
		return true
	}
}

// Violation returns a FilterViolationError for the first item the filter
// does not admit, or nil when every item qualifies. Used by the fixed-cart
// discount, which requires the whole cart to qualify.
func (f Filter) Violation(code string, items []Item) *FilterViolationError {
	for _, it := range items {
		if f.Matches(it) {
			continue
		}
		kind, name := "product", it.ProductID
		if f.kind == FilterAllowCategories || f.kind == FilterDenyCategories {
			kind, name = "category", it.Category.String()
		}
		return &FilterViolationError{CouponCode: code, Kind: kind, Name: name}
	}
	return nil
}

// matchesCategory reports whether the item category is under any of the
// filter's category paths, segment-prefix-wise.
func (f Filter) matchesCategory(p category.Path) bool {
	for _, c := range f.categories {
		if p.HasPrefix(c) {
			return true
		}
	}
	return false
}

func productSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
