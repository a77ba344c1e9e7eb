// Package billing applies Stripe webhook events to stored subscriptions and
// talks to the Stripe API for checkout and promotion codes.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dmitrymomot/psikit/internal/notify"
	"github.com/dmitrymomot/psikit/pkg/logger"
	"github.com/dmitrymomot/psikit/pkg/subscription"
)

const (
	defaultPlan        = "default"
	checkoutPeriodDays = 30
)

// SubscriptionStore persists subscriptions keyed by provider subscription id.
type SubscriptionStore interface {
	Upsert(ctx context.Context, sub subscription.Subscription) error
}

// Notifier delivers lifecycle notifications.
type Notifier interface {
	Notify(ctx context.Context, userID string, kind subscription.NotificationKind) (notify.Outcome, error)
}

// CacheInvalidator drops cached per-user subscription state.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// Result describes what Process did with an event.
type Result struct {
	Kind         EventKind
	EventID      string
	UserID       string
	Skipped      bool
	Status       subscription.Status
	Notification subscription.NotificationKind
	Outcome      notify.Outcome
}

// Processor verifies and applies Stripe webhook events.
type Processor struct {
	secret   string
	store    SubscriptionStore
	notifier Notifier
	cache    CacheInvalidator
	now      func() time.Time
	log      *slog.Logger
}

type ProcessorOption func(*Processor)

// WithCache invalidates the per-user cache after every stored change.
func WithCache(c CacheInvalidator) ProcessorOption {
	return func(p *Processor) { p.cache = c }
}

func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) { p.now = now }
}

func WithLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if l != nil {
			p.log = l
		}
	}
}

func NewProcessor(webhookSecret string, store SubscriptionStore, notifier Notifier, opts ...ProcessorOption) *Processor {
	p := &Processor{
		secret:   strings.TrimSpace(webhookSecret),
		store:    store,
		notifier: notifier,
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Configured reports whether a webhook secret is set.
func (p *Processor) Configured() bool { return p.secret != "" }

// Verify checks the Stripe-Signature header against payload and decodes the event.
func (p *Processor) Verify(payload []byte, signature string) (stripe.Event, error) {
	if !p.Configured() {
		return stripe.Event{}, ErrWebhookSecretMissing
	}
	if strings.TrimSpace(signature) == "" {
		return stripe.Event{}, ErrMissingSignature
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, errors.Join(ErrInvalidSignature, err)
	}
	return event, nil
}

// Process applies event. Storage failures are returned so the provider
// redelivers; notification failures are logged and never returned.
func (p *Processor) Process(ctx context.Context, event stripe.Event) (Result, error) {
	res := Result{Kind: ParseEventKind(string(event.Type)), EventID: event.ID}
	log := p.log.With(logger.EventType(string(event.Type)), logger.EventID(event.ID))

	if event.Data == nil {
		if res.Kind == EventUnknown {
			return res, nil
		}
		return res, fmt.Errorf("%w: event has no data", ErrDecodeEvent)
	}

	switch res.Kind {
	case EventCheckoutCompleted:
		var session checkoutSessionObject
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return res, errors.Join(ErrDecodeEvent, err)
		}
		return p.handleCheckout(ctx, log, res, session)

	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return res, errors.Join(ErrDecodeEvent, err)
		}
		previous, _ := event.Data.PreviousAttributes["status"].(string)
		return p.handleSubscription(ctx, log, res, sub, subscription.Status(previous))

	default:
		log.InfoContext(ctx, "stripe webhook ignored (unhandled type)")
		return res, nil
	}
}

func (p *Processor) handleCheckout(ctx context.Context, log *slog.Logger, res Result, session checkoutSessionObject) (Result, error) {
	userID := strings.TrimSpace(session.Metadata["user_id"])
	if userID == "" {
		log.InfoContext(ctx, "skipping checkout without metadata.user_id", slog.String("session_id", session.ID))
		res.Skipped = true
		return res, nil
	}
	res.UserID = userID
	if strings.TrimSpace(session.Subscription) == "" {
		log.InfoContext(ctx, "skipping checkout without a subscription", slog.String("session_id", session.ID), slog.String("mode", session.Mode))
		res.Skipped = true
		return res, nil
	}
	res.Status = subscription.StatusActive

	periodEnd := p.now().UTC().Add(checkoutPeriodDays * 24 * time.Hour)
	sub := subscription.Subscription{
		UserID:               userID,
		Status:               subscription.StatusActive,
		Plan:                 metadataOr(session.Metadata, "plan", defaultPlan),
		Role:                 subscription.Role(metadataOr(session.Metadata, "role", string(subscription.RolePatient))),
		CurrentPeriodEnd:     &periodEnd,
		StripeCustomerID:     session.Customer,
		StripeSubscriptionID: session.Subscription,
	}
	if err := p.upsert(ctx, log, sub); err != nil {
		return res, err
	}
	log.InfoContext(ctx, "subscription activated by checkout",
		logger.UserID(userID), logger.SubscriptionID(session.Subscription))
	return res, nil
}

func (p *Processor) handleSubscription(ctx context.Context, log *slog.Logger, res Result, in Subscription, previous subscription.Status) (Result, error) {
	userID := strings.TrimSpace(in.Metadata["user_id"])
	if userID == "" {
		log.InfoContext(ctx, "skipping subscription event without metadata.user_id", logger.SubscriptionID(in.ID))
		res.Skipped = true
		return res, nil
	}
	res.UserID = userID

	status := subscription.Status(in.Status)
	if res.Kind == EventSubscriptionDeleted {
		status = subscription.StatusCanceled
	}
	res.Status = status
	if !status.Known() {
		log.WarnContext(ctx, "unrecognized subscription status stored verbatim", slog.String("status", in.Status))
	}

	sub := subscription.Subscription{
		UserID:               userID,
		Status:               status,
		Plan:                 in.FirstPriceID(),
		Role:                 subscription.Role(metadataOr(in.Metadata, "role", string(subscription.RolePatient))),
		CurrentPeriodEnd:     in.PeriodEnd(),
		StripeCustomerID:     in.Customer,
		StripeSubscriptionID: in.ID,
	}
	if err := p.upsert(ctx, log, sub); err != nil {
		return res, err
	}

	var (
		kind subscription.NotificationKind
		ok   bool
	)
	if res.Kind == EventSubscriptionDeleted {
		kind, ok = subscription.NotificationCanceled, true
	} else {
		kind, ok = subscription.NotificationFor(previous, status)
	}
	if !ok {
		return res, nil
	}

	res.Notification = kind
	res.Outcome = p.notify(ctx, log, userID, kind)
	return res, nil
}

func (p *Processor) upsert(ctx context.Context, log *slog.Logger, sub subscription.Subscription) error {
	if err := p.store.Upsert(ctx, sub); err != nil {
		return errors.Join(ErrUpsertSubscription, err)
	}
	if p.cache != nil {
		if err := p.cache.Invalidate(ctx, sub.UserID); err != nil {
			log.WarnContext(ctx, "failed to invalidate subscription cache", logger.UserID(sub.UserID), logger.Error(err))
		}
	}
	return nil
}

func (p *Processor) notify(ctx context.Context, log *slog.Logger, userID string, kind subscription.NotificationKind) notify.Outcome {
	outcome, err := p.notifier.Notify(ctx, userID, kind)
	if err != nil {
		log.ErrorContext(ctx, "subscription notification not delivered",
			logger.UserID(userID),
			slog.String("notification", kind.String()),
			logger.Error(err))
		if outcome == "" {
			outcome = notify.OutcomeFailed
		}
	}
	return outcome
}
