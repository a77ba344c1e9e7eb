// Package graceperiod warns past_due subscribers a few days before their
// grace period ends.
package graceperiod

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/psikit/internal/metrics"
	"github.com/dmitrymomot/psikit/internal/notify"
	"github.com/dmitrymomot/psikit/pkg/logger"
	"github.com/dmitrymomot/psikit/pkg/subscription"
)

// The eligibility window and the dedup lookback assume one run per day.
// Changing the run cadence requires revisiting both.
const (
	WindowStart   = 3.5 // days since period end, inclusive
	WindowEnd     = 4.5 // days since period end, inclusive
	DedupLookback = 7 * 24 * time.Hour
)

// Config schedules the daily run.
type Config struct {
	NotifyHour   int    `env:"GRACE_NOTIFY_HOUR" envDefault:"9"`
	NotifyMinute int    `env:"GRACE_NOTIFY_MINUTE" envDefault:"0"`
	TimeZone     string `env:"GRACE_NOTIFY_TZ" envDefault:"America/Sao_Paulo"`
}

// Location resolves TimeZone, falling back to UTC when it is unknown.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SubscriptionLister returns subscriptions in a given status.
type SubscriptionLister interface {
	ListByStatus(ctx context.Context, status subscription.Status) ([]subscription.Subscription, error)
}

// RecentChecker is the ledger lookup used for deduplication.
type RecentChecker interface {
	HasRecent(ctx context.Context, userID string, kind subscription.NotificationKind, since time.Time) (bool, error)
}

// Notifier sends the warning and records the attempt.
type Notifier interface {
	Notify(ctx context.Context, userID string, kind subscription.NotificationKind) (notify.Outcome, error)
}

// Result aggregates a single run.
type Result struct {
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

var ErrListSubscriptions = errors.New("graceperiod: failed to list past_due subscriptions")

// Job is one pass of the grace period notifier.
type Job struct {
	subs     SubscriptionLister
	ledger   RecentChecker
	notifier Notifier
	now      func() time.Time
	log      *slog.Logger
}

type Option func(*Job)

func WithClock(now func() time.Time) Option {
	return func(j *Job) { j.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(j *Job) {
		if l != nil {
			j.log = l
		}
	}
}

func NewJob(subs SubscriptionLister, ledger RecentChecker, notifier Notifier, opts ...Option) *Job {
	j := &Job{
		subs:     subs,
		ledger:   ledger,
		notifier: notifier,
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run scans past_due subscriptions sequentially. Per-subscription failures
// are counted in Errors; only a failed scan or cancellation returns an error.
func (j *Job) Run(ctx context.Context) (Result, error) {
	var res Result
	now := j.now()

	subs, err := j.subs.ListByStatus(ctx, subscription.StatusPastDue)
	if err != nil {
		metrics.GraceRunsTotal.WithLabelValues("error").Inc()
		return res, errors.Join(ErrListSubscriptions, err)
	}

	for i := range subs {
		if err := ctx.Err(); err != nil {
			metrics.GraceRunsTotal.WithLabelValues("canceled").Inc()
			return res, fmt.Errorf("graceperiod: run interrupted: %w", err)
		}
		j.handle(ctx, now, &subs[i], &res)
	}

	metrics.GraceRunsTotal.WithLabelValues("ok").Inc()
	metrics.GraceLastRun.WithLabelValues("sent").Set(float64(res.Sent))
	metrics.GraceLastRun.WithLabelValues("skipped").Set(float64(res.Skipped))
	metrics.GraceLastRun.WithLabelValues("errors").Set(float64(res.Errors))

	j.log.InfoContext(ctx, "grace period notifier finished",
		slog.Int("candidates", len(subs)),
		slog.Int("sent", res.Sent),
		slog.Int("skipped", res.Skipped),
		slog.Int("errors", res.Errors))
	return res, nil
}

// Eligible reports whether sub is inside the warning window at now.
func Eligible(sub *subscription.Subscription, now time.Time) bool {
	if sub == nil || sub.Status != subscription.StatusPastDue {
		return false
	}
	days, ok := subscription.DaysSincePeriodEnd(sub, now)
	return ok && days >= WindowStart && days <= WindowEnd
}

func (j *Job) handle(ctx context.Context, now time.Time, sub *subscription.Subscription, res *Result) {
	if !Eligible(sub, now) {
		return
	}
	log := j.log.With(logger.UserID(sub.UserID), logger.SubscriptionID(sub.StripeSubscriptionID))

	sent, err := j.ledger.HasRecent(ctx, sub.UserID, subscription.NotificationGraceWarning, now.Add(-DedupLookback))
	if err != nil {
		log.ErrorContext(ctx, "grace warning dedup lookup failed", logger.Error(err))
		res.Errors++
		return
	}
	if sent {
		res.Skipped++
		return
	}

	outcome, err := j.notifier.Notify(ctx, sub.UserID, subscription.NotificationGraceWarning)
	switch {
	case outcome == notify.OutcomeSent:
		res.Sent++
	case outcome == notify.OutcomeOptedOut:
		res.Skipped++
	case outcome == notify.OutcomeNoRecipient:
		log.DebugContext(ctx, "grace warning has no recipient")
	default:
		if err == nil {
			err = fmt.Errorf("unexpected outcome %q", outcome)
		}
		log.ErrorContext(ctx, "grace warning not delivered", logger.Error(err))
		res.Errors++
	}
}
