// Package repositorytest opens migrated throwaway SQLite databases for tests.
package repositorytest

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/veefedtechnologies-coder/Veefore-sub010/internal/repository"
)

// Open returns a fresh SQLite database in t.TempDir() with all migrations applied.
func Open(t testing.TB) *sqlx.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "automation.db")
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)

	db, err := repository.NewDB(repository.DriverSQLite, dsn, zap.NewNop())
	require.NoError(t, err)
	// a single connection serializes writers the way a real database would lock rows
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, repository.MigrateDB(db, zap.NewNop()))
	return db
}
