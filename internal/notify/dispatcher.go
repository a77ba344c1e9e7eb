// Package notify sends lifecycle emails for subscriptions and records every
// attempt in the communication ledger.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/psikit/internal/metrics"
	"github.com/dmitrymomot/psikit/pkg/email"
	"github.com/dmitrymomot/psikit/pkg/email/templates"
	"github.com/dmitrymomot/psikit/pkg/logger"
	"github.com/dmitrymomot/psikit/pkg/subscription"
)

// Outcome is what Notify did for a single request.
type Outcome string

const (
	OutcomeSent        Outcome = "sent"
	OutcomeFailed      Outcome = "failed"
	OutcomeOptedOut    Outcome = "opt_out"
	OutcomeNoRecipient Outcome = "no_recipient"
)

// OptOutReason is stored in the ledger metadata of opt_out entries.
const OptOutReason = "user_disabled_notifications"

var (
	ErrUnknownKind  = errors.New("notify: unknown notification kind")
	ErrDeliveryFail = errors.New("notify: delivery failed")
)

// Dispatcher resolves preferences and contact data, sends the email and
// writes the ledger entry.
type Dispatcher struct {
	sender   email.EmailSender
	ledger   Ledger
	prefs    PreferenceStore
	profiles ProfileStore
	baseURL  string
	now      func() time.Time
	log      *slog.Logger
}

type Option func(*Dispatcher)

// WithBaseURL sets the public site URL used for links in emails.
func WithBaseURL(u string) Option {
	return func(d *Dispatcher) {
		if u != "" {
			d.baseURL = strings.TrimRight(u, "/")
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

func NewDispatcher(sender email.EmailSender, ledger Ledger, prefs PreferenceStore, profiles ProfileStore, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sender:   sender,
		ledger:   ledger,
		prefs:    prefs,
		profiles: profiles,
		baseURL:  "https://149psi.com.br",
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify delivers kind to userID.
//
// A user with email disabled gets an opt_out ledger entry. A user without a
// profile email is skipped without a ledger entry. Delivery failures are
// recorded as failed and returned wrapped in ErrDeliveryFail. Lookup errors
// are recorded as failed too and returned as is. Ledger write failures are
// logged only.
func (d *Dispatcher) Notify(ctx context.Context, userID string, kind subscription.NotificationKind) (Outcome, error) {
	msg, ok := messages[kind]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	log := d.log.With(logger.UserID(userID), slog.String("notification", kind.String()))

	enabled, err := d.prefs.EmailNotificationsEnabled(ctx, userID)
	if err != nil {
		return d.lookupFailed(ctx, log, userID, kind, fmt.Errorf("notify: load preferences: %w", err))
	}
	if !enabled {
		d.record(ctx, log, userID, kind, StatusOptOut, map[string]any{"reason": OptOutReason})
		return OutcomeOptedOut, nil
	}

	profile, err := d.profiles.Contact(ctx, userID)
	switch {
	case errors.Is(err, ErrProfileNotFound):
		log.InfoContext(ctx, "no profile for notification recipient")
		return OutcomeNoRecipient, nil
	case err != nil:
		return d.lookupFailed(ctx, log, userID, kind, fmt.Errorf("notify: load profile: %w", err))
	case strings.TrimSpace(profile.Email) == "":
		log.InfoContext(ctx, "notification recipient has no email")
		return OutcomeNoRecipient, nil
	}

	html, err := templates.Render(ctx, msg.body(templateData{
		FullName:        profile.FullName,
		SubscriptionURL: d.baseURL + "/subscription",
	}))
	if err == nil {
		err = d.sender.SendEmail(ctx, email.SendEmailParams{
			SendTo:   profile.Email,
			Subject:  msg.subject,
			BodyHTML: html,
			Tag:      kind.String(),
		})
	}
	if err != nil {
		log.ErrorContext(ctx, "notification delivery failed", logger.Error(err))
		d.record(ctx, log, userID, kind, StatusFailed, map[string]any{"error": err.Error()})
		return OutcomeFailed, errors.Join(ErrDeliveryFail, err)
	}

	d.record(ctx, log, userID, kind, StatusSent, map[string]any{
		"email":        profile.Email,
		"triggered_at": d.now().UTC().Format(time.RFC3339),
	})
	return OutcomeSent, nil
}

// lookupFailed records a failed attempt for errors before sending.
func (d *Dispatcher) lookupFailed(ctx context.Context, log *slog.Logger, userID string, kind subscription.NotificationKind, err error) (Outcome, error) {
	log.ErrorContext(ctx, "notification recipient lookup failed", logger.Error(err))
	d.record(ctx, log, userID, kind, StatusFailed, map[string]any{"error": err.Error()})
	return OutcomeFailed, err
}

func (d *Dispatcher) record(ctx context.Context, log *slog.Logger, userID string, kind subscription.NotificationKind, status LogStatus, meta map[string]any) {
	metrics.NotificationsTotal.WithLabelValues(kind.String(), string(status)).Inc()

	entry := LogEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      kind,
		Status:    status,
		Metadata:  meta,
		CreatedAt: d.now().UTC(),
	}
	if err := d.ledger.Append(ctx, entry); err != nil {
		log.ErrorContext(ctx, "failed to write communication log",
			slog.String("status", string(status)),
			logger.Error(err))
	}
}
