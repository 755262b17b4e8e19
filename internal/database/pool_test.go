package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// =============================================================================
// 🧪 PoolManager 测试
// =============================================================================

func setupMockDB(t *testing.T) (sqlmock.Sqlmock, *PoolManager) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{})
	require.NoError(t, err)

	pm, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}, zap.NewNop())
	require.NoError(t, err)
	return mock, pm
}

func TestPoolManager_Ping(t *testing.T) {
	mock, pm := setupMockDB(t)

	mock.ExpectPing()
	assert.NoError(t, pm.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	assert.Error(t, pm.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransaction(t *testing.T) {
	mock, pm := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectCommit()
	require.NoError(t, pm.WithTransaction(context.Background(), func(*gorm.DB) error { return nil }))

	mock.ExpectBegin()
	mock.ExpectRollback()
	assert.ErrorIs(t, pm.WithTransaction(context.Background(), func(*gorm.DB) error { return assert.AnError }), assert.AnError)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransactionRetry(t *testing.T) {
	mock, pm := setupMockDB(t)

	attempts := 0
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	err := pm.WithTransactionRetry(context.Background(), 3, func(*gorm.DB) error {
		attempts++
		if attempts == 1 {
			return errors.New("ERROR: deadlock detected")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransactionRetry_NonRetryable(t *testing.T) {
	mock, pm := setupMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	attempts := 0
	err := pm.WithTransactionRetry(context.Background(), 3, func(*gorm.DB) error {
		attempts++
		return errors.New("unique constraint violated")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestPoolManager_CloseIdempotent(t *testing.T) {
	mock, pm := setupMockDB(t)
	mock.ExpectClose()

	require.NoError(t, pm.Close())
	require.NoError(t, pm.Close())
	assert.ErrorIs(t, pm.Ping(context.Background()), ErrPoolClosed)
	assert.ErrorIs(t, pm.WithTransaction(context.Background(), func(*gorm.DB) error { return nil }), ErrPoolClosed)
}

func TestOpen_SQLiteMemory(t *testing.T) {
	pm, err := Open("sqlite", ":memory:", DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pm.Close() })

	assert.NoError(t, pm.Ping(context.Background()))
	assert.Equal(t, 1, pm.GetStats().MaxOpenConnections)
	assert.Equal(t, "sqlite", pm.DB().Dialector.Name())
}

func TestDialector(t *testing.T) {
	for _, driver := range []string{"", "sqlite", "postgres", "mysql"} {
		d, err := Dialector(driver, "")
		require.NoError(t, err, driver)
		assert.NotNil(t, d)
	}
	_, err := Dialector("oracle", "")
	assert.Error(t, err)
}

func TestPoolConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultPoolConfig().Validate())
	assert.Error(t, PoolConfig{MaxOpenConns: 0, MaxIdleConns: 1}.Validate())
	assert.Error(t, PoolConfig{MaxOpenConns: 1, MaxIdleConns: 0}.Validate())
	assert.Error(t, PoolConfig{MaxOpenConns: 5, MaxIdleConns: 10}.Validate())
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, isRetryableError(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.True(t, isRetryableError(errors.New("driver: bad connection")))
	assert.False(t, isRetryableError(errors.New("syntax error")))
	assert.False(t, isRetryableError(nil))
}

func TestHealthCheckLoopStopsOnClose(t *testing.T) {
	pm, err := Open("sqlite", ":memory:", PoolConfig{HealthCheckInterval: 10 * time.Millisecond}, nil)
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)
	assert.NoError(t, pm.Close())
}
