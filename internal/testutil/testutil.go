// Package testutil opens migrated backends for tests.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Siddarth2230/asset-labels/internal/backend"
)

// PostgresURLEnv names the variable holding a disposable PostgreSQL database.
const PostgresURLEnv = "TEST_POSTGRES_URL"

// SQLiteConfig returns a config for a fresh database file under t.TempDir().
func SQLiteConfig(t testing.TB) backend.Config {
	t.Helper()
	return backend.Config{
		URL:          "sqlite://" + filepath.Join(t.TempDir(), "labels.db"),
		MaxOpenConns: 8,
		LockTimeout:  10 * time.Second,
		MaxHold:      5 * time.Second,
	}
}

// SQLite opens and migrates a fresh SQLite backend.
func SQLite(t testing.TB) *backend.SQLite {
	t.Helper()
	b, err := backend.OpenSQLite(context.Background(), SQLiteConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	require.NoError(t, b.Migrate(context.Background()))
	return b
}

// Postgres opens the database named by TEST_POSTGRES_URL, migrates it and
// empties both tables. The test is skipped when the variable is unset.
func Postgres(t testing.TB) *backend.Postgres {
	t.Helper()
	url := os.Getenv(PostgresURLEnv)
	if url == "" {
		t.Skipf("%s not set", PostgresURLEnv)
	}
	ctx := context.Background()
	b, err := backend.OpenPostgres(ctx, backend.Config{
		URL:          url,
		MaxOpenConns: 20,
		LockTimeout:  10 * time.Second,
		MaxHold:      5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	require.NoError(t, b.Migrate(ctx))
	Reset(t, b)
	return b
}

// Reset deletes every item and rewinds the counter to zero.
func Reset(t testing.TB, b backend.Backend) {
	t.Helper()
	ctx := context.Background()
	_, err := b.DB().ExecContext(ctx, "DELETE FROM items")
	require.NoError(t, err)
	SetCounter(t, b, 0)
}

// SetCounter forces the counter to v.
func SetCounter(t testing.TB, b backend.Backend, v int64) {
	t.Helper()
	_, err := b.DB().ExecContext(context.Background(),
		b.Rebind("UPDATE label_counter SET current_value = ? WHERE id = 1"), v)
	require.NoError(t, err)
}

// Backends lists an opener per engine; PostgreSQL openers skip without a URL.
func Backends() map[string]func(testing.TB) backend.Backend {
	return map[string]func(testing.TB) backend.Backend{
		"sqlite":   func(t testing.TB) backend.Backend { return SQLite(t) },
		"postgres": func(t testing.TB) backend.Backend { return Postgres(t) },
	}
}
