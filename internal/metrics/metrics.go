// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookRequestsTotal counts Stripe webhook requests by event type and HTTP status.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "psikit",
		Name:      "webhook_requests_total",
		Help:      "Total Stripe webhook requests by event type and HTTP status.",
	}, []string{"event_type", "status"})

	// WebhookDuration tracks Stripe webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "psikit",
		Name:      "webhook_duration_seconds",
		Help:      "Stripe webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// NotificationsTotal counts notification attempts by kind and ledger status.
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "psikit",
		Name:      "notifications_total",
		Help:      "Notification attempts by kind and outcome.",
	}, []string{"kind", "status"})

	// GraceRunsTotal counts grace period notifier runs by outcome.
	GraceRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "psikit",
		Subsystem: "grace",
		Name:      "runs_total",
		Help:      "Grace period notifier runs by outcome.",
	}, []string{"outcome"})

	// GraceLastRun reports per-run counters of the last grace period notifier run.
	GraceLastRun = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "psikit",
		Subsystem: "grace",
		Name:      "last_run",
		Help:      "Counters of the last grace period notifier run.",
	}, []string{"counter"})

	// CacheLookupsTotal counts subscription cache lookups by result (hit, miss, error).
	CacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "psikit",
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Subscription cache lookups by result.",
	}, []string{"result"})
)
