package coupon

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glowmart/coupon-engine/internal/domain/category"
)

func item(productID string, price int64, qty int, cat string) Item {
	return Item{
		ProductID: productID,
		UnitPrice: decimal.NewFromInt(price),
		Quantity:  qty,
		Category:  category.ParsePath(cat),
	}
}

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	expected := decimal.RequireFromString(want)
	assert.True(t, expected.Equal(got), "expected %s, got %s", expected, got)
}

func TestCalculateFixedCart(t *testing.T) {
	items := []Item{
		item("p1", 100, 2, "/a"),
		item("p2", 50, 1, "/b"),
	}

	t.Run("no filters applies flat amount", func(t *testing.T) {
		c := &Coupon{Code: "FLAT30", DiscountType: DiscountFixedCart, Discount: decimal.NewFromInt(30)}

		got, err := Calculate(c, items)

		require.NoError(t, err)
		assertAmount(t, "30", got)
	})

	t.Run("item limit is ignored", func(t *testing.T) {
		c := &Coupon{Code: "FLAT30", DiscountType: DiscountFixedCart, Discount: decimal.NewFromInt(30), ItemLimit: 1}

		got, err := Calculate(c, items)

		require.NoError(t, err)
		assertAmount(t, "30", got)
	})

	t.Run("allowed products must cover every line", func(t *testing.T) {
		c := &Coupon{
			Code:            "FLAT30",
			DiscountType:    DiscountFixedCart,
			Discount:        decimal.NewFromInt(30),
			AllowedProducts: []string{"p1"},
		}

		_, err := Calculate(c, items)

		var violation *FilterViolationError
		require.ErrorAs(t, err, &violation)
		assert.Equal(t, "product", violation.Kind)
		assert.Equal(t, "p2", violation.Name)
	})

	t.Run("allowed categories must cover every line", func(t *testing.T) {
		c := &Coupon{
			Code:              "FLAT30",
			DiscountType:      DiscountFixedCart,
			Discount:          decimal.NewFromInt(30),
			AllowedCategories: []category.Path{category.ParsePath("/a")},
		}

		_, err := Calculate(c, items)

		var violation *FilterViolationError
		require.ErrorAs(t, err, &violation)
		assert.Equal(t, "category", violation.Kind)
		assert.Equal(t, "/b", violation.Name)
	})

	t.Run("excluded product present rejects", func(t *testing.T) {
		c := &Coupon{
			Code:             "FLAT30",
			DiscountType:     DiscountFixedCart,
			Discount:         decimal.NewFromInt(30),
			ExcludedProducts: []string{"p2"},
		}

		_, err := Calculate(c, items)

		var violation *FilterViolationError
		require.ErrorAs(t, err, &violation)
		assert.Equal(t, "p2", violation.Name)
	})

	t.Run("excluded product absent applies", func(t *testing.T) {
		c := &Coupon{
			Code:             "FLAT30",
			DiscountType:     DiscountFixedCart,
			Discount:         decimal.NewFromInt(30),
			ExcludedProducts: []string{"p9"},
		}

		got, err := Calculate(c, items)

		require.NoError(t, err)
		assertAmount(t, "30", got)
	})

	t.Run("excluded category matches subcategories", func(t *testing.T) {
		c := &Coupon{
			Code:               "FLAT30",
			DiscountType:       DiscountFixedCart,
			Discount:           decimal.NewFromInt(30),
			ExcludedCategories: []category.Path{category.ParsePath("/b")},
		}

		_, err := Calculate(c, []Item{item("p2", 50, 1, "/b/sub")})

		var violation *FilterViolationError
		require.ErrorAs(t, err, &violation)
		assert.Equal(t, "/b/sub", violation.Name)
	})
}

func TestCalculateFixedProduct(t *testing.T) {
	tests := []struct {
		name   string
		coupon *Coupon
		items  []Item
		want   string
	}{
		{
			name:   "no filter counts all units",
			coupon: &Coupon{Code: "P5", DiscountType: DiscountFixedProduct, Discount: decimal.NewFromInt(5)},
			items:  []Item{item("p1", 100, 2, "/a"), item("p2", 50, 3, "/b")},
			want:   "25",
		},
		{
			name: "allowed products restrict the count",
			coupon: &Coupon{
				Code:            "P5",
				DiscountType:    DiscountFixedProduct,
				Discount:        decimal.NewFromInt(5),
				AllowedProducts: []string{"p1"},
			},
			items: []Item{item("p1", 100, 2, "/a"), item("p2", 50, 3, "/b")},
			want:  "10",
		},
		{
			name: "excluded products count the rest",
			coupon: &Coupon{
				Code:             "P5",
				DiscountType:     DiscountFixedProduct,
				Discount:         decimal.NewFromInt(5),
				ExcludedProducts: []string{"p1"},
			},
			items: []Item{item("p1", 100, 2, "/a"), item("p2", 50, 3, "/b")},
			want:  "15",
		},
		{
			name: "allowed categories include subcategories",
			coupon: &Coupon{
				Code:              "P5",
				DiscountType:      DiscountFixedProduct,
				Discount:          decimal.NewFromInt(5),
				AllowedCategories: []category.Path{category.ParsePath("/a")},
			},
			items: []Item{item("p1", 100, 2, "/a/x"), item("p2", 50, 3, "/b")},
			want:  "10",
		},
		{
			name: "item limit caps the qualifying quantity",
			coupon: &Coupon{
				Code:         "P5",
				DiscountType: DiscountFixedProduct,
				Discount:     decimal.NewFromInt(5),
				ItemLimit:    3,
			},
			items: []Item{item("p1", 100, 2, "/a"), item("p2", 50, 3, "/b")},
			want:  "15",
		},
		{
			name: "allowed products take priority over excluded categories",
			coupon: &Coupon{
				Code:               "P5",
				DiscountType:       DiscountFixedProduct,
				Discount:           decimal.NewFromInt(5),
				AllowedProducts:    []string{"p1"},
				ExcludedCategories: []category.Path{category.ParsePath("/a")},
			},
			items: []Item{item("p1", 100, 2, "/a"), item("p2", 50, 3, "/b")},
			want:  "10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Calculate(tt.coupon, tt.items)

			require.NoError(t, err)
			assertAmount(t, tt.want, got)
		})
	}
}

func TestCalculatePercentage(t *testing.T) {
	t.Run("worked example from the pricing rules", func(t *testing.T) {
		// Cart: 2 x $100 (/a), 1 x $50 (/b). 10% off, at most 2 units.
		// Descending by price, both $100 units fit within the limit and
		// contribute 2*100*10% = 20; the $50 item contributes nothing.
		c := &Coupon{
			Code:         "TEN2",
			DiscountType: DiscountPercentage,
			Discount:     decimal.NewFromInt(10),
			ItemLimit:    2,
		}
		items := []Item{item("p1", 100, 2, "/a"), item("p2", 50, 1, "/b")}

		got, err := Calculate(c, items)

		require.NoError(t, err)
		assertAmount(t, "20", got)
	})

	t.Run("descending price order beats cart order", func(t *testing.T) {
		// The cheap item comes first in the cart. Ascending iteration
		// would discount 2 units of $10 = $2; descending must discount
		// 2 units of $100 = $20.
		c := &Coupon{
			Code:         "TEN2",
			DiscountType: DiscountPercentage,
			Discount:     decimal.NewFromInt(10),
			ItemLimit:    2,
		}
		items := []Item{item("cheap", 10, 5, "/a"), item("dear", 100, 2, "/a")}

		got, err := Calculate(c, items)

		require.NoError(t, err)
		assertAmount(t, "20", got)
	})

	t.Run("limit splits a line", func(t *testing.T) {
		// 3 units of $100 with a limit of 2: only the remainder up to
		// the limit counts.
		c := &Coupon{
			Code:         "TEN2",
			DiscountType: DiscountPercentage,
			Discount:     decimal.NewFromInt(10),
			ItemLimit:    2,
		}
		items := []Item{item("p1", 100, 3, "/a")}

		got, err := Calculate(c, items)

		require.NoError(t, err)
		assertAmount(t, "20", got)
	})

	t.Run("limit spans lines with a partial remainder", func(t *testing.T) {
		// Limit 3: both $100 units count, then 1 of the $50 units.
		c := &Coupon{
			Code:         "TEN3",
			DiscountType: DiscountPercentage,
			Discount:     decimal.NewFromInt(10),
			ItemLimit:    3,
		}
		items := []Item{item("p1", 100, 2, "/a"), item("p2", 50, 4, "/b")}

		got, err := Calculate(c, items)

		require.NoError(t, err)
		assertAmount(t, "25", got)
	})

	t.Run("no limit counts everything", func(t *testing.T) {
		c := &Coupon{
			Code:         "TEN",
			DiscountType: DiscountPercentage,
			Discount:     decimal.NewFromInt(10),
		}
		items := []Item{item("p1", 100, 2, "/a"), item("p2", 50, 1, "/b")}

		got, err := Calculate(c, items)

		require.NoError(t, err)
		assertAmount(t, "25", got)
	})

	t.Run("filter excludes items before the descending pass", func(t *testing.T) {
		// /b items are excluded, so the limit budget is spent on /a
		// units only.
		c := &Coupon{
			Code:               "TEN2",
			DiscountType:       DiscountPercentage,
			Discount:           decimal.NewFromInt(10),
			ItemLimit:          2,
			ExcludedCategories: []category.Path{category.ParsePath("/b")},
		}
		items := []Item{item("p2", 500, 1, "/b"), item("p1", 100, 2, "/a")}

		got, err := Calculate(c, items)

		require.NoError(t, err)
		assertAmount(t, "20", got)
	})

	t.Run("allowed products filter", func(t *testing.T) {
		c := &Coupon{
			Code:            "TEN",
			DiscountType:    DiscountPercentage,
			Discount:        decimal.NewFromInt(10),
			AllowedProducts: []string{"p2"},
		}
		items := []Item{item("p1", 100, 2, "/a"), item("p2", 50, 1, "/b")}

		got, err := Calculate(c, items)

		require.NoError(t, err)
		assertAmount(t, "5", got)
	})

	t.Run("final amount rounds half up to two places", func(t *testing.T) {
		// 10.05 * 10% = 1.005 -> 1.01
		c := &Coupon{
			Code:         "TEN",
			DiscountType: DiscountPercentage,
			Discount:     decimal.NewFromInt(10),
		}
		items := []Item{{ProductID: "p1", UnitPrice: decimal.RequireFromString("10.05"), Quantity: 1}}

		got, err := Calculate(c, items)

		require.NoError(t, err)
		assertAmount(t, "1.01", got)
	})
}

func TestCalculateUnsupportedType(t *testing.T) {
	c := &Coupon{Code: "X", DiscountType: "BuyOneGetOne"}

	_, err := Calculate(c, nil)

	require.Error(t, err)
}
