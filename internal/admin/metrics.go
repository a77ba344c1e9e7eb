// Package admin aggregates subscription and promotion data for the
// administrator dashboard.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/psikit/internal/billing"
	"github.com/dmitrymomot/psikit/pkg/logger"
)

// ChurnWindow is how far back canceled subscriptions count as churn.
const ChurnWindow = 30 * 24 * time.Hour

var ErrLoadMetrics = errors.New("admin: failed to load subscription metrics")

type SubscriptionMetrics struct {
	PlanCounts   map[string]int64 `json:"plan_counts"`
	TotalActive  int64            `json:"total_active"`
	ChurnLast30d int64            `json:"churn_last_30d"`
}

type Overview struct {
	Subscriptions SubscriptionMetrics     `json:"subscription_metrics"`
	Coupons       []billing.PromotionCode `json:"coupons"`
}

// MetricsStore runs the aggregate queries. ActivePlanCounts groups
// active, past_due and trialing subscriptions by plan.
type MetricsStore interface {
	ActivePlanCounts(ctx context.Context) (map[string]int64, error)
	CanceledSince(ctx context.Context, since time.Time) (int64, error)
}

type PromotionLister interface {
	ListActivePromotionCodes(ctx context.Context) ([]billing.PromotionCode, error)
}

type Metrics struct {
	store  MetricsStore
	promos PromotionLister
	now    func() time.Time
	log    *slog.Logger
}

type Option func(*Metrics)

func WithClock(now func() time.Time) Option {
	return func(m *Metrics) { m.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Metrics) {
		if l != nil {
			m.log = l
		}
	}
}

// NewMetrics creates the aggregator. promos may be nil, in which case the
// overview carries no coupons.
func NewMetrics(store MetricsStore, promos PromotionLister, opts ...Option) *Metrics {
	m := &Metrics{store: store, promos: promos, now: time.Now, log: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Metrics) Subscriptions(ctx context.Context) (SubscriptionMetrics, error) {
	counts, err := m.store.ActivePlanCounts(ctx)
	if err != nil {
		return SubscriptionMetrics{}, errors.Join(ErrLoadMetrics, err)
	}
	churn, err := m.store.CanceledSince(ctx, m.now().Add(-ChurnWindow))
	if err != nil {
		return SubscriptionMetrics{}, errors.Join(ErrLoadMetrics, err)
	}

	out := SubscriptionMetrics{PlanCounts: make(map[string]int64, len(counts)), ChurnLast30d: churn}
	for plan, n := range counts {
		out.PlanCounts[plan] = n
		out.TotalActive += n
	}
	return out, nil
}

// Overview never fails because of the payment provider: promotion codes
// degrade to an empty list.
func (m *Metrics) Overview(ctx context.Context) (Overview, error) {
	subs, err := m.Subscriptions(ctx)
	if err != nil {
		return Overview{}, err
	}

	out := Overview{Subscriptions: subs, Coupons: []billing.PromotionCode{}}
	if m.promos == nil {
		return out, nil
	}
	codes, err := m.promos.ListActivePromotionCodes(ctx)
	if err != nil {
		m.log.WarnContext(ctx, "promotion codes unavailable", logger.Error(err))
		return out, nil
	}
	if codes != nil {
		out.Coupons = codes
	}
	return out, nil
}
