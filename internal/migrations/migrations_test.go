package migrations_test

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/psikit/internal/migrations"
)

func TestMigrationsAreEmbedded(t *testing.T) {
	t.Parallel()

	files, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	var all strings.Builder
	for _, name := range files {
		body, err := fs.ReadFile(migrations.FS, name)
		require.NoError(t, err)
		assert.Contains(t, string(body), "-- +goose Up", name)
		assert.Contains(t, string(body), "-- +goose Down", name)
		all.Write(body)
	}

	for _, table := range []string{
		"subscriptions", "communication_logs", "user_preferences", "profiles", "user_roles",
		"user_consents", "check_ins", "diary_entries", "emotional_records", "audit_logs",
		"account_deletion_requests",
	} {
		assert.Contains(t, all.String(), "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}
}
