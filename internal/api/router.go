// Package api exposes the HTTP surface: the payment webhook, the scheduler
// callback, the authenticated /v1 routes and operational endpoints.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/psikit/pkg/clientip"
	"github.com/dmitrymomot/psikit/pkg/jwt"
	"github.com/dmitrymomot/psikit/pkg/ratelimiter"
	"github.com/dmitrymomot/psikit/pkg/requestid"
	"github.com/dmitrymomot/psikit/pkg/subscription"
)

// Deps are the collaborators the router dispatches to.
type Deps struct {
	Webhook       http.Handler
	Grace         GraceRunner
	CronSecret    string
	Verifier      *jwt.Verifier
	Gate          *subscription.Gate
	Subscriptions subscription.Reader
	Checkout      CheckoutCreator
	BaseURL       string
	Exporter      DataExporter
	Deletions     DeletionRequests
	Metrics       AdminMetrics
	Audit         AuditFinder
	Roles         RoleChecker
	Live          http.HandlerFunc
	Ready         http.HandlerFunc
	Clock         func() time.Time
	Log           *slog.Logger

	// ExportLimit throttles data exports and checkout creation per user.
	// Nil disables it.
	ExportLimit *ratelimiter.Bucket
}

type server struct {
	deps Deps
	log  *slog.Logger
	now  func() time.Time
}

func NewRouter(deps Deps) http.Handler {
	s := &server{deps: deps, log: deps.Log, now: deps.Clock}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestid.Middleware)
	r.Use(clientip.Middleware)

	if deps.Live != nil {
		r.Get("/health/live", deps.Live)
	}
	if deps.Ready != nil {
		r.Get("/health/ready", deps.Ready)
	}
	r.Handle("/metrics", promhttp.Handler())

	if deps.Webhook != nil {
		r.Handle("/webhooks/stripe", deps.Webhook)
	}
	r.With(RequireCronSecret(deps.CronSecret, s.log)).
		Post("/internal/tasks/grace-period", s.handleGraceTask)

	r.Route("/v1", func(r chi.Router) {
		r.Use(jwt.Middleware(deps.Verifier))

		r.Get("/me/subscription", s.handleMySubscription)
		r.Post("/me/deletion-request", s.handleCreateDeletionRequest)
		r.Get("/me/deletion-request", s.handlePendingDeletionRequest)

		r.Group(func(r chi.Router) {
			if deps.ExportLimit != nil {
				r.Use(ratelimiter.Middleware(deps.ExportLimit, userKey, s.log))
			}
			r.Get("/me/export", s.handleExport)
			r.Post("/checkout", s.handleCheckout)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireRole(deps.Roles, RoleAdmin, s.log))
			r.Post("/deletion-requests/{id}", s.handleResolveDeletionRequest)
			r.Get("/metrics", s.handleAdminMetrics)
			r.Get("/audit-logs", s.handleAuditLogs)
		})
	})

	return r
}

func userKey(r *http.Request) string {
	uid, _ := jwt.UserIDFromContext(r.Context())
	return uid
}
