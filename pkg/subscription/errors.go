package subscription

import "errors"

var (
	ErrSubscriptionNotFound     = errors.New("subscription not found")
	ErrInvalidPlanConfiguration = errors.New("invalid subscription plan configuration")
	ErrDuplicatePlan            = errors.New("duplicate subscription plan")
	ErrFailedToLoadPlans        = errors.New("failed to load subscription plans")
)
