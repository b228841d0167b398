package coupon

import "time"

// Evaluate decides whether the coupon may be applied to the cart by the
// given user at the given instant. It is a pure function of its inputs:
// no lookups, no mutation. Checks run in a fixed order and the first
// failure wins, so callers always see the highest-priority reason.
//
// The expiry check deliberately precedes everything that depends on the
// stored status staying fresh: a coupon past its expiry date must never
// apply, even if the background sweep has not yet flipped it to Expired.
func Evaluate(c *Coupon, cart CartState, userID, email string, now time.Time) error {
	if c.Status != StatusActive {
		return &EligibilityError{Code: c.Code, Reason: ReasonInactive}
	}
	if c.Expired(now) {
		return &EligibilityError{Code: c.Code, Reason: ReasonExpired}
	}
	if len(c.AllowedEmails) > 0 && !contains(c.AllowedEmails, email) {
		return &EligibilityError{Code: c.Code, Reason: ReasonEmailNotAllowed}
	}
	if c.IndividualUseOnly && len(cart.Applied) > 0 {
		return &EligibilityError{Code: c.Code, Reason: ReasonExclusivity}
	}
	for _, applied := range cart.Applied {
		if applied.IndividualUseOnly {
			return &EligibilityError{Code: applied.Code, Reason: ReasonExclusivity}
		}
	}
	for _, applied := range cart.Applied {
		if applied.CouponID == c.ID || applied.Code == c.Code {
			return &EligibilityError{Code: c.Code, Reason: ReasonAlreadyApplied}
		}
	}
	if c.MinimumSpend.IsPositive() && cart.Total.LessThan(c.MinimumSpend) {
		return &EligibilityError{Code: c.Code, Reason: ReasonMinimumSpend}
	}
	if c.UsageLimit > 0 && c.UsageCount() >= c.UsageLimit {
		return &EligibilityError{Code: c.Code, Reason: ReasonGlobalLimit}
	}
	if c.UserCountLimit > 0 && c.DistinctUserCount() >= c.UserCountLimit && c.UserUsageCount(userID) == 0 {
		return &EligibilityError{Code: c.Code, Reason: ReasonUserCountLimit}
	}
	if c.PerUserLimit > 0 && c.UserUsageCount(userID) >= c.PerUserLimit {
		return &EligibilityError{Code: c.Code, Reason: ReasonUserLimit}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
