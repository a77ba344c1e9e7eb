package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/psikit/internal/admin"
	"github.com/dmitrymomot/psikit/internal/billing"
	"github.com/dmitrymomot/psikit/internal/config"
	"github.com/dmitrymomot/psikit/internal/graceperiod"
	"github.com/dmitrymomot/psikit/internal/migrations"
	"github.com/dmitrymomot/psikit/internal/notify"
	"github.com/dmitrymomot/psikit/internal/privacy"
	"github.com/dmitrymomot/psikit/internal/store/postgres"
	"github.com/dmitrymomot/psikit/internal/store/rediscache"
	"github.com/dmitrymomot/psikit/pkg/audit"
	"github.com/dmitrymomot/psikit/pkg/clientip"
	"github.com/dmitrymomot/psikit/pkg/email"
	"github.com/dmitrymomot/psikit/pkg/jwt"
	"github.com/dmitrymomot/psikit/pkg/logger"
	"github.com/dmitrymomot/psikit/pkg/pg"
	"github.com/dmitrymomot/psikit/pkg/ratelimiter"
	"github.com/dmitrymomot/psikit/pkg/redis"
	"github.com/dmitrymomot/psikit/pkg/requestid"
	"github.com/dmitrymomot/psikit/pkg/subscription"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg  config.Config
	log  *slog.Logger
	pool *pgxpool.Pool
	db   *sql.DB
	rdb  *goredis.Client

	subs       *postgres.SubscriptionRepository
	users      *postgres.UserRepository
	ledger     *postgres.CommunicationLog
	privacy    *postgres.PrivacyRepository
	auditStore *postgres.AuditRepository

	dispatcher *notify.Dispatcher
	grace      *graceperiod.Job
}

func newLogger(cfg config.Config) *slog.Logger {
	log := logger.New(
		logger.WithEnvironment(cfg.Environment(), cfg.App.Name),
		logger.WithContextExtractors(requestid.LoggerExtractor(), jwt.LoggerExtractor()),
	)
	logger.SetAsDefault(log)
	return log
}

// bootstrap connects to PostgreSQL and builds the components every command
// needs. Redis is only connected for serve.
func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := newLogger(cfg)

	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return nil, err
	}
	db := pg.OpenDB(pool)

	a := &app{
		cfg:        cfg,
		log:        log,
		pool:       pool,
		db:         db,
		subs:       postgres.NewSubscriptionRepository(db),
		users:      postgres.NewUserRepository(db),
		ledger:     postgres.NewCommunicationLog(db),
		privacy:    postgres.NewPrivacyRepository(db),
		auditStore: postgres.NewAuditRepository(db),
	}

	sender, err := email.New(cfg.Email)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("email sender: %w", err)
	}
	sender = email.NewBreakerSender(sender, email.DefaultBreakerConfig(), log.With(logger.Component("email")))

	a.dispatcher = notify.NewDispatcher(sender, a.ledger, a.users, a.users,
		notify.WithBaseURL(cfg.App.BaseURL),
		notify.WithLogger(log.With(logger.Component("notify"))),
	)
	a.grace = graceperiod.NewJob(a.subs, a.ledger, a.dispatcher,
		graceperiod.WithLogger(log.With(logger.Component("graceperiod"))),
	)
	return a, nil
}

func (a *app) migrate(ctx context.Context) error {
	return pg.Migrate(ctx, a.db, migrations.FS, migrations.Dir, a.cfg.PG, a.log)
}

// connectCache returns nil when Redis is unreachable; the access gate then
// reads PostgreSQL directly.
func (a *app) connectCache(ctx context.Context) *rediscache.SubscriptionCache {
	rdb, err := redis.Connect(ctx, a.cfg.Redis)
	if err != nil {
		a.log.WarnContext(ctx, "redis unavailable, subscription cache disabled", logger.Error(err))
		return nil
	}
	a.rdb = rdb
	return rediscache.New(rdb, a.subs,
		rediscache.WithTTL(a.cfg.App.CacheTTL),
		rediscache.WithLogger(a.log.With(logger.Component("cache"))),
	)
}

func (a *app) auditLogger() *audit.Logger {
	return audit.NewLogger(a.auditStore,
		audit.WithUserIDExtractor(jwt.UserIDFromContext),
		audit.WithRequestIDExtractor(func(ctx context.Context) (string, bool) {
			id := requestid.FromContext(ctx)
			return id, id != ""
		}),
		audit.WithIPExtractor(clientip.FromContext),
		audit.WithUserAgentExtractor(clientip.UserAgentFromContext),
	)
}

func (a *app) gate(ctx context.Context) (*subscription.Gate, error) {
	src := subscription.NewInMemSource(subscription.DefaultPlans()...)
	if a.cfg.App.PlansFile != "" {
		src = subscription.NewYAMLSource(a.cfg.App.PlansFile)
	}
	return subscription.NewGateFromSource(ctx, src)
}

func (a *app) processor(cache *rediscache.SubscriptionCache) *billing.Processor {
	opts := []billing.ProcessorOption{billing.WithLogger(a.log.With(logger.Component("billing")))}
	if cache != nil {
		opts = append(opts, billing.WithCache(cache))
	}
	return billing.NewProcessor(a.cfg.Billing.WebhookSecret, a.subs, a.dispatcher, opts...)
}

func (a *app) exporter(auditLog *audit.Logger) *privacy.Exporter {
	return privacy.NewExporter(a.privacy, auditLog, privacy.WithExportLogger(a.log.With(logger.Component("privacy"))))
}

func (a *app) deletions(auditLog *audit.Logger) *privacy.Requests {
	return privacy.NewRequests(a.privacy, a.users, auditLog, privacy.WithRequestsLogger(a.log.With(logger.Component("privacy"))))
}

func (a *app) adminMetrics(stripe *billing.StripeClient) *admin.Metrics {
	return admin.NewMetrics(a.subs, stripe, admin.WithLogger(a.log.With(logger.Component("admin"))))
}

// exportLimit is shared through Redis when available so every instance
// counts against the same bucket. A non-positive limit disables it.
func (a *app) exportLimit() (*ratelimiter.Bucket, error) {
	rl := a.cfg.RateLimit
	if rl.Requests <= 0 {
		return nil, nil
	}
	var store ratelimiter.Store = ratelimiter.NewMemoryStore()
	if a.rdb != nil {
		store = ratelimiter.NewRedisStore(a.rdb, "psikit:ratelimit:export:")
	}
	return ratelimiter.NewBucket(store, ratelimiter.Config{
		Capacity:       rl.Requests,
		RefillRate:     rl.Requests,
		RefillInterval: rl.Window,
	})
}

func (a *app) close() {
	var errs []error
	if a.rdb != nil {
		errs = append(errs, a.rdb.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if err := errors.Join(errs...); err != nil && a.log != nil {
		a.log.Error("failed to close resources", logger.Error(err))
	}
}
