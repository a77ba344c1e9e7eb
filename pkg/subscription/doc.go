// Package subscription models the billing lifecycle of a user subscription:
// provider statuses, the post-delinquency grace period, the status transitions
// that owe the user a notification, and the plan catalog used to gate premium features.
//
// # Grace period
//
// A past_due subscription keeps access for GracePeriod (7 days) after its
// current period end. The end of the window is exclusive, so at exactly
// period end + 7 days access is blocked:
//
//	now := time.Now()
//	if subscription.IsAccessBlockedAt(sub, now) {
//		// deny premium features
//	}
//	days := subscription.GracePeriodDaysRemainingAt(sub, now) // 0 outside the window
//
// Active and trialing subscriptions are never blocked. Canceled, unpaid and
// incomplete subscriptions are always blocked. A nil subscription is blocked.
//
// # Transitions
//
// NotificationFor consults an explicit table of (from, to) status pairs.
// Every pair absent from the table is silent:
//
//	active   -> past_due : past_due
//	past_due -> active   : reactivated
//	canceled -> active   : reactivated
//	unpaid   -> active   : reactivated
//
// Cancellation notices are not transitions; the deletion event always sends one.
//
// # Access gate
//
// A Gate resolves the stored plan identifier (plan key or provider price id)
// against a Catalog. Blocked subscriptions resolve to no plan:
//
//	gate := subscription.NewGate(catalog)
//	access := gate.Evaluate(sub, time.Now())
//	if !access.CanAddPatient(count) {
//		// limit reached
//	}
//
// Plans come from a PlansListSource: NewInMemSource for static definitions or
// NewYAMLSource for a catalog file.
package subscription
