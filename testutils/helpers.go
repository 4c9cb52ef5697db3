package testutils

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/fuelqr/faults"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB opens a private in-memory sqlite database pinned to a single
// connection, since each :memory: connection sees its own schema.
func SetupTestDB(t *testing.T, models ...any) *gorm.DB {
	t.Helper()
	return openTestDB(t, ":memory:", 1, models)
}

// SetupFileDB opens a sqlite file in the test's temp dir with a small pool, for
// tests that need concurrent connections against one schema.
func SetupFileDB(t *testing.T, models ...any) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "fuelqr.db") + "?_busy_timeout=5000&_journal_mode=WAL"
	return openTestDB(t, dsn, 4, models)
}

func openTestDB(t *testing.T, dsn string, maxConns int, models []any) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(maxConns)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if len(models) > 0 {
		require.NoError(t, db.AutoMigrate(models...))
	}
	return db
}

func AssertErrorType(t *testing.T, expected error, actual error) {
	t.Helper()
	require.Error(t, actual)
	require.ErrorIs(t, actual, expected)
}

// RequireValidation asserts err is a faults.ValidationError on the given field.
func RequireValidation(t *testing.T, err error, field string) {
	t.Helper()

	var verr *faults.ValidationError
	require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)
	require.Equal(t, field, verr.Field)
}
