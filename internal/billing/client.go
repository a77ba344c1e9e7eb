package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82"
	stripesession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/promotioncode"

	"github.com/dmitrymomot/psikit/pkg/subscription"
)

const promotionCodesPageLimit = 100

// CheckoutRequest starts a subscription checkout for one user.
type CheckoutRequest struct {
	UserID     string
	Email      string
	CustomerID string // reused when the user already has a Stripe customer
	Plan       subscription.Plan
	SuccessURL string
	CancelURL  string
}

// CheckoutSession is the client-facing part of a created session.
type CheckoutSession struct {
	ID  string `json:"sessionId"`
	URL string `json:"url"`
}

// PromotionCode is an active promotion code as shown to administrators.
type PromotionCode struct {
	Code        string  `json:"code"`
	Type        string  `json:"type"` // percentage or fixed_amount
	Value       float64 `json:"value"`
	Origin      string  `json:"origin"`
	Redemptions int64   `json:"redemptions"`
	Status      string  `json:"status"`
	Created     int64   `json:"created"`
}

// StripeClient wraps the Stripe API calls used outside webhooks.
// Each instance carries its own key and backend.
type StripeClient struct {
	key      string
	backend  stripe.Backend
	sessions stripesession.Client
	promos   promotioncode.Client
}

type ClientOption func(*StripeClient)

// WithAPIURL points the client at another API base URL.
func WithAPIURL(url string) ClientOption {
	return func(c *StripeClient) {
		c.backend = stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:           stripe.String(url),
			LeveledLogger: &stripe.LeveledLogger{Level: stripe.LevelError},
		})
	}
}

func NewStripeClient(secretKey string, opts ...ClientOption) *StripeClient {
	c := &StripeClient{
		key:     strings.TrimSpace(secretKey),
		backend: stripe.GetBackend(stripe.APIBackend),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.sessions = stripesession.Client{B: c.backend, Key: c.key}
	c.promos = promotioncode.Client{B: c.backend, Key: c.key}
	return c
}

// CreateCheckoutSession creates a subscription-mode checkout session. The
// user id, plan key and role are attached to both the session and the
// resulting subscription so later webhook events can be correlated.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if c.key == "" {
		return nil, ErrSecretKeyMissing
	}
	if req.Plan.PriceID == "" {
		return nil, fmt.Errorf("%w: plan %q has no price", ErrUnknownPlan, req.Plan.Key)
	}

	metadata := map[string]string{
		"user_id": req.UserID,
		"plan":    req.Plan.Key,
		"role":    string(req.Plan.Role),
	}
	params := &stripe.CheckoutSessionParams{
		Mode:                stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:          stripe.String(req.SuccessURL),
		CancelURL:           stripe.String(req.CancelURL),
		AllowPromotionCodes: stripe.Bool(true),
		ClientReferenceID:   stripe.String(req.UserID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.Plan.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
		Metadata: metadata,
	}
	if req.Plan.TrialDays > 0 {
		params.SubscriptionData.TrialPeriodDays = stripe.Int64(int64(req.Plan.TrialDays))
	}
	switch {
	case req.CustomerID != "":
		params.Customer = stripe.String(req.CustomerID)
	case req.Email != "":
		params.CustomerEmail = stripe.String(req.Email)
	}
	params.Context = ctx

	sess, err := c.sessions.New(params)
	if err != nil {
		return nil, errors.Join(ErrCheckoutFailed, err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// ListActivePromotionCodes returns up to one page of active promotion codes.
func (c *StripeClient) ListActivePromotionCodes(ctx context.Context) ([]PromotionCode, error) {
	if c.key == "" {
		return nil, ErrSecretKeyMissing
	}

	params := &stripe.PromotionCodeListParams{Active: stripe.Bool(true)}
	params.Limit = stripe.Int64(promotionCodesPageLimit)
	params.AddExpand("data.coupon")
	params.Context = ctx

	out := make([]PromotionCode, 0)
	it := c.promos.List(params)
	for it.Next() && len(out) < promotionCodesPageLimit {
		out = append(out, toPromotionCode(it.PromotionCode()))
	}
	if err := it.Err(); err != nil {
		return nil, errors.Join(ErrListPromotionCodes, err)
	}
	return out, nil
}

func toPromotionCode(pc *stripe.PromotionCode) PromotionCode {
	out := PromotionCode{
		Code:        pc.Code,
		Origin:      "unknown",
		Redemptions: pc.TimesRedeemed,
		Status:      "inactive",
		Created:     pc.Created,
	}
	if origin := pc.Metadata["origin"]; origin != "" {
		out.Origin = origin
	}
	if pc.Active {
		out.Status = "active"
	}
	if pc.Coupon != nil {
		if pc.Coupon.PercentOff > 0 {
			out.Type = "percentage"
			out.Value = pc.Coupon.PercentOff
		} else {
			out.Type = "fixed_amount"
			out.Value = float64(pc.Coupon.AmountOff)
		}
	}
	return out
}
