// Package dbtest opens migrated in-memory SQLite databases for tests.
package dbtest

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"orgops/internal/migrate"
)

var seq atomic.Int64

// Open returns a fresh, fully migrated database private to t.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	// A named shared-cache memory DB keeps every pooled connection on the
	// same database.
	dsn := fmt.Sprintf("file:orgops_test_%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", seq.Add(1))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migrate.Up(gdb))
	return gdb
}
