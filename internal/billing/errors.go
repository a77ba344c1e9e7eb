package billing

import "errors"

var (
	ErrWebhookSecretMissing = errors.New("billing: webhook secret not configured")
	ErrMissingSignature     = errors.New("billing: missing Stripe signature")
	ErrInvalidSignature     = errors.New("billing: invalid Stripe signature")
	ErrDecodeEvent          = errors.New("billing: failed to decode event object")
	ErrUpsertSubscription   = errors.New("billing: failed to store subscription")
	ErrSecretKeyMissing     = errors.New("billing: Stripe secret key not configured")
	ErrUnknownPlan          = errors.New("billing: unknown plan")
	ErrCheckoutFailed       = errors.New("billing: failed to create checkout session")
	ErrListPromotionCodes   = errors.New("billing: failed to list promotion codes")
)
