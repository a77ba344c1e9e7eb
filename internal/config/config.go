// Package config aggregates the per-package configuration structs into the
// application configuration.
package config

import (
	"strings"
	"time"

	"github.com/dmitrymomot/psikit/internal/billing"
	"github.com/dmitrymomot/psikit/internal/graceperiod"
	"github.com/dmitrymomot/psikit/pkg/config"
	"github.com/dmitrymomot/psikit/pkg/email"
	"github.com/dmitrymomot/psikit/pkg/environment"
	"github.com/dmitrymomot/psikit/pkg/httpserver"
	"github.com/dmitrymomot/psikit/pkg/jwt"
	"github.com/dmitrymomot/psikit/pkg/pg"
	"github.com/dmitrymomot/psikit/pkg/redis"
)

type App struct {
	Env        string        `env:"APP_ENV" envDefault:"development"`
	Name       string        `env:"APP_NAME" envDefault:"psikit"`
	BaseURL    string        `env:"APP_BASE_URL" envDefault:"https://149psi.com.br"`
	CronSecret string        `env:"CRON_SECRET"`
	PlansFile  string        `env:"PLANS_FILE"`
	CacheTTL   time.Duration `env:"CACHE_TTL" envDefault:"5m"`
}

// RateLimit bounds data exports and checkout sessions per user.
type RateLimit struct {
	Requests int           `env:"EXPORT_RATE_LIMIT" envDefault:"10"`
	Window   time.Duration `env:"EXPORT_RATE_WINDOW" envDefault:"1h"`
}

type Config struct {
	App       App
	RateLimit RateLimit
	HTTP      httpserver.Config
	PG        pg.Config
	Redis     redis.Config
	Email     email.Config
	JWT       jwt.Config
	Billing   billing.Config
	Grace     graceperiod.Config
}

// Load reads the whole configuration from the environment and an optional
// .env file. Provider credentials may be empty; the components that need
// them fail when first used.
func Load() (Config, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return Config{}, err
	}
	cfg.App.BaseURL = strings.TrimRight(cfg.App.BaseURL, "/")
	return cfg, nil
}

func (c Config) Environment() environment.Environment {
	return environment.Parse(c.App.Env)
}
