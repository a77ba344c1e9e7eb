package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/psikit/pkg/environment"
	"github.com/dmitrymomot/psikit/pkg/logger"
)

type ctxKey struct{}

func TestNew_JSONWithExtractors(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(
		logger.WithEnvironment(environment.Production, "psikit"),
		logger.WithOutput(&buf),
		logger.WithContextExtractors(func(ctx context.Context) (slog.Attr, bool) {
			v, ok := ctx.Value(ctxKey{}).(string)
			return slog.String("request_id", v), ok
		}),
	)

	ctx := context.WithValue(context.Background(), ctxKey{}, "req-1")
	log.InfoContext(ctx, "hello", logger.UserID("u-1"), logger.Error(errors.New("boom")))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "psikit", rec["service"])
	assert.Equal(t, "production", rec["env"])
	assert.Equal(t, "req-1", rec["request_id"])
	assert.Equal(t, "u-1", rec["user_id"])
	assert.Equal(t, "boom", rec["error"])
}

func TestNew_DevelopmentIsTextAtDebug(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(logger.WithEnvironment(environment.Development, "psikit"), logger.WithOutput(&buf))
	log.Debug("visible")

	assert.Contains(t, buf.String(), "msg=visible")
	assert.Contains(t, buf.String(), "env=development")
}

func TestNew_LevelFilters(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(logger.WithOutput(&buf), logger.WithLevel(slog.LevelWarn))
	log.Info("hidden")
	assert.Empty(t, buf.String())
}

func TestWithFormat_PanicsOnUnknown(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { logger.New(logger.WithFormat("xml")) })
}

func TestAttrHelpers_EmptyValues(t *testing.T) {
	t.Parallel()

	assert.True(t, logger.Error(nil).Equal(slog.Attr{}))
	assert.True(t, logger.UserID("").Equal(slog.Attr{}))
	assert.True(t, logger.SubscriptionID("").Equal(slog.Attr{}))
}
