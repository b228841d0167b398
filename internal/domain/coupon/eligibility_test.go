package coupon

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	pastTime := fixedNow.Add(-24 * time.Hour)
	futureTime := fixedNow.Add(24 * time.Hour)

	base := func() *Coupon {
		return &Coupon{
			ID:           "c1",
			Name:         "ten-percent",
			Code:         "SAVE10",
			DiscountType: DiscountPercentage,
			Discount:     decimal.NewFromInt(10),
			Status:       StatusActive,
		}
	}

	tests := []struct {
		name       string
		coupon     func() *Coupon
		cart       CartState
		userID     string
		email      string
		wantReason RejectReason
	}{
		{
			name:   "active coupon with empty cart state passes",
			coupon: base,
			cart:   CartState{Total: decimal.NewFromInt(100)},
		},
		{
			name: "inactive coupon rejected",
			coupon: func() *Coupon {
				c := base()
				c.Status = StatusInactive
				return c
			},
			wantReason: ReasonInactive,
		},
		{
			name: "consumed coupon rejected as inactive",
			coupon: func() *Coupon {
				c := base()
				c.Status = StatusConsumed
				return c
			},
			wantReason: ReasonInactive,
		},
		{
			name: "past expiry rejected even while status is still Active",
			coupon: func() *Coupon {
				c := base()
				c.ExpiresAt = &pastTime
				return c
			},
			wantReason: ReasonExpired,
		},
		{
			name: "future expiry passes",
			coupon: func() *Coupon {
				c := base()
				c.ExpiresAt = &futureTime
				return c
			},
			cart: CartState{Total: decimal.NewFromInt(100)},
		},
		{
			name: "email not on allow-list rejected",
			coupon: func() *Coupon {
				c := base()
				c.AllowedEmails = []string{"vip@example.com"}
				return c
			},
			email:      "someone@example.com",
			wantReason: ReasonEmailNotAllowed,
		},
		{
			name: "email on allow-list passes",
			coupon: func() *Coupon {
				c := base()
				c.AllowedEmails = []string{"vip@example.com"}
				return c
			},
			email: "vip@example.com",
			cart:  CartState{Total: decimal.NewFromInt(100)},
		},
		{
			name: "individual-use coupon on cart with another coupon rejected",
			coupon: func() *Coupon {
				c := base()
				c.IndividualUseOnly = true
				return c
			},
			cart: CartState{
				Total:   decimal.NewFromInt(100),
				Applied: []AppliedRef{{CouponID: "c2", Code: "OTHER"}},
			},
			wantReason: ReasonExclusivity,
		},
		{
			name:   "applied individual-use coupon blocks any new coupon",
			coupon: base,
			cart: CartState{
				Total:   decimal.NewFromInt(100),
				Applied: []AppliedRef{{CouponID: "c2", Code: "SOLO", IndividualUseOnly: true}},
			},
			wantReason: ReasonExclusivity,
		},
		{
			name:   "already applied rejected",
			coupon: base,
			cart: CartState{
				Total:   decimal.NewFromInt(100),
				Applied: []AppliedRef{{CouponID: "c1", Code: "SAVE10"}},
			},
			wantReason: ReasonAlreadyApplied,
		},
		{
			name: "cart total below minimum spend rejected",
			coupon: func() *Coupon {
				c := base()
				c.MinimumSpend = decimal.NewFromInt(200)
				return c
			},
			cart:       CartState{Total: decimal.NewFromInt(100)},
			wantReason: ReasonMinimumSpend,
		},
		{
			name: "cart total at minimum spend passes",
			coupon: func() *Coupon {
				c := base()
				c.MinimumSpend = decimal.NewFromInt(100)
				return c
			},
			cart: CartState{Total: decimal.NewFromInt(100)},
		},
		{
			name: "global usage limit reached rejected",
			coupon: func() *Coupon {
				c := base()
				c.UsageLimit = 2
				c.Usages = []Usage{{UserID: "u1", OrderID: "o1"}, {UserID: "u2", OrderID: "o2"}}
				return c
			},
			wantReason: ReasonGlobalLimit,
		},
		{
			name: "distinct user limit reached rejected for new user",
			coupon: func() *Coupon {
				c := base()
				c.UserCountLimit = 2
				c.Usages = []Usage{{UserID: "u1", OrderID: "o1"}, {UserID: "u2", OrderID: "o2"}}
				return c
			},
			userID:     "u3",
			wantReason: ReasonUserCountLimit,
		},
		{
			name: "distinct user limit reached still passes for an existing user",
			coupon: func() *Coupon {
				c := base()
				c.UserCountLimit = 2
				c.PerUserLimit = 3
				c.Usages = []Usage{{UserID: "u1", OrderID: "o1"}, {UserID: "u2", OrderID: "o2"}}
				return c
			},
			userID: "u1",
			cart:   CartState{Total: decimal.NewFromInt(100)},
		},
		{
			name: "per-user limit reached rejected",
			coupon: func() *Coupon {
				c := base()
				c.PerUserLimit = 1
				c.Usages = []Usage{{UserID: "u1", OrderID: "o1"}}
				return c
			},
			userID:     "u1",
			wantReason: ReasonUserLimit,
		},
		{
			name: "per-user limit does not block other users",
			coupon: func() *Coupon {
				c := base()
				c.PerUserLimit = 1
				c.Usages = []Usage{{UserID: "u1", OrderID: "o1"}}
				return c
			},
			userID: "u2",
			cart:   CartState{Total: decimal.NewFromInt(100)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Evaluate(tt.coupon(), tt.cart, tt.userID, tt.email, fixedNow)

			if tt.wantReason == "" {
				require.NoError(t, err)
				return
			}

			var rejected *EligibilityError
			require.ErrorAs(t, err, &rejected)
			assert.Equal(t, tt.wantReason, rejected.Reason)
		})
	}
}

func TestEvaluateCheckOrder(t *testing.T) {
	// When several checks would fail at once, the earliest in the fixed
	// order must win.
	past := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &Coupon{
		ID:           "c1",
		Code:         "MANY",
		Status:       StatusInactive,
		ExpiresAt:    &past,
		MinimumSpend: decimal.NewFromInt(1000),
		UsageLimit:   1,
		Usages:       []Usage{{UserID: "u1", OrderID: "o1"}},
	}

	err := Evaluate(c, CartState{}, "u1", "", past.Add(time.Hour))

	var rejected *EligibilityError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, ReasonInactive, rejected.Reason)
}
