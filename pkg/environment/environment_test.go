package environment_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/psikit/pkg/environment"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := map[string]environment.Environment{
		"production":  environment.Production,
		"prod":        environment.Production,
		"staging":     environment.Staging,
		"stage":       environment.Staging,
		"development": environment.Development,
		"":            environment.Development,
		"whatever":    environment.Development,
	}
	for in, want := range tests {
		assert.Equal(t, want, environment.Parse(in), in)
	}
}

func TestContext(t *testing.T) {
	t.Parallel()

	assert.Equal(t, environment.Development, environment.FromContext(context.Background()))

	ctx := environment.WithContext(context.Background(), environment.Production)
	assert.Equal(t, environment.Production, environment.FromContext(ctx))
	assert.True(t, environment.FromContext(ctx).IsProduction())

	attr, ok := environment.LoggerExtractor()(ctx)
	assert.True(t, ok)
	assert.Equal(t, "production", attr.Value.String())

	_, ok = environment.LoggerExtractor()(context.Background())
	assert.False(t, ok)
}
