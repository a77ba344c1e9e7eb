package subscription

import (
	"math"
	"time"
)

// GracePeriod is how long a past_due subscription keeps access after its paid-through date.
const GracePeriod = 7 * 24 * time.Hour

const day = 24 * time.Hour

// Subscription is the persisted billing state of a single user.
// Rows are upserted by provider subscription id and never hard-deleted.
type Subscription struct {
	UserID               string     `json:"user_id"`
	Status               Status     `json:"status"`
	Plan                 string     `json:"plan"`
	Role                 Role       `json:"role"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end,omitempty"`
	StripeCustomerID     string     `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string     `json:"stripe_subscription_id"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// GraceEndsAt returns the instant access is lost for a past_due subscription.
// ok is false when the subscription has no period end.
func (s *Subscription) GraceEndsAt() (time.Time, bool) {
	if s == nil || s.CurrentPeriodEnd == nil {
		return time.Time{}, false
	}
	return s.CurrentPeriodEnd.Add(GracePeriod), true
}

// IsInGracePeriodAt reports whether sub is past_due and still inside the grace window at now.
// The window end is exclusive: at exactly period end + GracePeriod access is already lost.
func IsInGracePeriodAt(sub *Subscription, now time.Time) bool {
	if sub == nil || sub.Status != StatusPastDue {
		return false
	}
	end, ok := sub.GraceEndsAt()
	if !ok {
		return false
	}
	return end.After(now)
}

// IsAccessBlockedAt reports whether premium access must be denied for sub at now.
// A missing subscription is always blocked.
func IsAccessBlockedAt(sub *Subscription, now time.Time) bool {
	if sub == nil {
		return true
	}
	switch sub.Status {
	case StatusActive, StatusTrialing:
		return false
	case StatusPastDue:
		return !IsInGracePeriodAt(sub, now)
	default:
		return true
	}
}

// GracePeriodDaysRemainingAt returns the whole days left in the grace window, rounded up.
// It never returns a negative number.
func GracePeriodDaysRemainingAt(sub *Subscription, now time.Time) int {
	if !IsInGracePeriodAt(sub, now) {
		return 0
	}
	end, _ := sub.GraceEndsAt()
	days := int(math.Ceil(float64(end.Sub(now)) / float64(day)))
	return max(days, 0)
}

// IsInGracePeriod is IsInGracePeriodAt evaluated against the wall clock.
func IsInGracePeriod(sub *Subscription) bool {
	return IsInGracePeriodAt(sub, time.Now())
}

// IsAccessBlocked is IsAccessBlockedAt evaluated against the wall clock.
func IsAccessBlocked(sub *Subscription) bool {
	return IsAccessBlockedAt(sub, time.Now())
}

// GracePeriodDaysRemaining is GracePeriodDaysRemainingAt evaluated against the wall clock.
func GracePeriodDaysRemaining(sub *Subscription) int {
	return GracePeriodDaysRemainingAt(sub, time.Now())
}

// DaysSincePeriodEnd returns fractional days elapsed since the paid-through date.
// ok is false when the subscription has no period end.
func DaysSincePeriodEnd(sub *Subscription, now time.Time) (float64, bool) {
	if sub == nil || sub.CurrentPeriodEnd == nil {
		return 0, false
	}
	return float64(now.Sub(*sub.CurrentPeriodEnd)) / float64(day), true
}
