package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/psikit/internal/api"
	"github.com/dmitrymomot/psikit/internal/billing"
	"github.com/dmitrymomot/psikit/pkg/audit"
	"github.com/dmitrymomot/psikit/pkg/httpserver"
	"github.com/dmitrymomot/psikit/pkg/jwt"
	"github.com/dmitrymomot/psikit/pkg/logger"
	"github.com/dmitrymomot/psikit/pkg/pg"
	"github.com/dmitrymomot/psikit/pkg/redis"
	"github.com/dmitrymomot/psikit/pkg/scheduler"
	"github.com/dmitrymomot/psikit/pkg/subscription"
)

const graceTaskName = "grace-period-warning"

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the daily grace-period notifier",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.migrate(ctx); err != nil {
		return err
	}
	verifier, err := jwt.NewVerifier(a.cfg.JWT)
	if err != nil {
		return err
	}
	gate, err := a.gate(ctx)
	if err != nil {
		return err
	}

	var reader subscription.Reader = a.subs
	ready := []func(context.Context) error{pg.Healthcheck(a.pool)}
	cache := a.connectCache(ctx)
	if cache != nil {
		reader = cache
		ready = append(ready, redis.Healthcheck(a.rdb))
	}

	if a.cfg.Billing.WebhookSecret == "" {
		a.log.WarnContext(ctx, "STRIPE_WEBHOOK_SECRET is not set, webhook deliveries will be rejected")
	}
	if a.cfg.Billing.SecretKey == "" {
		a.log.WarnContext(ctx, "STRIPE_SECRET_KEY is not set, checkout and promotion codes are unavailable")
	}

	exportLimit, err := a.exportLimit()
	if err != nil {
		return err
	}

	auditLog := a.auditLogger()
	stripe := billing.NewStripeClient(a.cfg.Billing.SecretKey)
	handler := api.NewRouter(api.Deps{
		Webhook:       billing.NewWebhookHandler(a.processor(cache), a.log.With(logger.Component("webhook"))),
		Grace:         a.grace,
		CronSecret:    a.cfg.App.CronSecret,
		Verifier:      verifier,
		Gate:          gate,
		Subscriptions: reader,
		Checkout:      stripe,
		BaseURL:       a.cfg.App.BaseURL,
		Exporter:      a.exporter(auditLog),
		Deletions:     a.deletions(auditLog),
		Metrics:       a.adminMetrics(stripe),
		Audit:         audit.NewReader(a.auditStore),
		Roles:         a.users,
		ExportLimit:   exportLimit,
		Live:          httpserver.HealthCheckHandler(a.log),
		Ready:         httpserver.HealthCheckHandler(a.log, ready...),
		Log:           a.log.With(logger.Component("api")),
	})

	sched := scheduler.New(scheduler.WithLogger(a.log.With(logger.Component("scheduler"))))
	schedule := scheduler.DailyAtIn(a.cfg.Grace.NotifyHour, a.cfg.Grace.NotifyMinute, a.cfg.Grace.Location())
	if err := sched.AddTask(graceTaskName, schedule, func(ctx context.Context) error {
		_, err := a.grace.Run(ctx)
		return err
	}); err != nil {
		return err
	}

	srv := httpserver.New(a.cfg.HTTP, httpserver.WithLogger(a.log))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, handler)
	})
	g.Go(func() error {
		if err := sched.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	return g.Wait()
}
