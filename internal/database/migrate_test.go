package database

import (
	"io/fs"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsAreEmbeddedInPairs(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected file in migrations: %s", name)
		}
	}
	assert.Equal(t, ups, downs)
}

func TestInitialMigrationCreatesTables(t *testing.T) {
	data, err := fs.ReadFile(migrationsFS, "migrations/000001_init.up.sql")
	require.NoError(t, err)
	sql := string(data)
	for _, table := range []string{"users", "books", "authors", "loans"} {
		assert.Contains(t, sql, "CREATE TABLE IF NOT EXISTS "+table)
	}
	assert.Contains(t, sql, "users_email_unique_idx")
}

func TestRunMigrationsAgainstDatabase(t *testing.T) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("set DATABASE_URL to run migrations against PostgreSQL")
	}
	require.NoError(t, RunMigrations(dbURL))
	// 2 回目は ErrNoChange を吸収して成功する
	require.NoError(t, RunMigrations(dbURL))
}
