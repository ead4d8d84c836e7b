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
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/tymigrawr/config"
)

// =============================================================================
// 🧪 PoolManager 测试
// =============================================================================

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *gorm.DB) {
	// 创建 mock DB
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	// 创建 GORM DB
	dialector := postgres.New(postgres.Config{
		Conn: mockDB,
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		DisableAutomaticPing: true,
		Logger:               gormlogger.Discard,
	})
	require.NoError(t, err)

	return mockDB, mock, gormDB
}

func newTestManager(t *testing.T, cfg PoolConfig) (*PoolManager, sqlmock.Sqlmock) {
	mockDB, mock, gormDB := setupTestDB(t)
	t.Cleanup(func() { mockDB.Close() })

	manager, err := NewPoolManager(gormDB, cfg, zap.NewNop())
	require.NoError(t, err)
	return manager, mock
}

func TestNewPoolManager(t *testing.T) {
	config := PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 1 * time.Hour,
	}

	manager, _ := newTestManager(t, config)

	assert.NotNil(t, manager.db)
	assert.NotNil(t, manager.logger)
	assert.Equal(t, config, manager.config)
	assert.Equal(t, "postgres", manager.Dialect())
	assert.Equal(t, 10, manager.Stats().MaxOpenConnections)
}

func TestNewPoolManager_NilDB(t *testing.T) {
	_, err := NewPoolManager(nil, DefaultPoolConfig(), nil)
	assert.Error(t, err)
}

func TestPoolManager_Ping(t *testing.T) {
	manager, mock := newTestManager(t, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5})

	// Mock ping 成功
	mock.ExpectPing()
	assert.NoError(t, manager.Ping(context.Background()))

	// Mock ping 失败
	mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	assert.Error(t, manager.Ping(context.Background()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransaction(t *testing.T) {
	manager, mock := newTestManager(t, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5})

	// Mock 事务
	mock.ExpectBegin()
	mock.ExpectCommit()

	err := manager.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		return nil
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransactionRollback(t *testing.T) {
	manager, mock := newTestManager(t, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5})

	// Mock 事务回滚
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := manager.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransactionRetry(t *testing.T) {
	manager, mock := newTestManager(t, PoolConfig{
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
	})

	// 第一次死锁回滚，第二次成功
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	attempts := 0
	err := manager.WithTransactionRetry(context.Background(), func(tx *gorm.DB) error {
		attempts++
		if attempts == 1 {
			return errors.New("ERROR: deadlock detected (SQLSTATE 40P01)")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransactionRetry_GivesUp(t *testing.T) {
	manager, mock := newTestManager(t, PoolConfig{
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	})
	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}

	attempts := 0
	err := manager.WithTransactionRetry(context.Background(), func(tx *gorm.DB) error {
		attempts++
		return errors.New("driver: bad connection")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, 2, attempts)
}

func TestPoolManager_WithTransactionRetry_NonRetryable(t *testing.T) {
	manager, mock := newTestManager(t, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5, MaxRetries: 5})
	mock.ExpectBegin()
	mock.ExpectRollback()

	attempts := 0
	err := manager.WithTransactionRetry(context.Background(), func(tx *gorm.DB) error {
		attempts++
		return errors.New("syntax error at or near")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_Close(t *testing.T) {
	manager, mock := newTestManager(t, PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5})

	mock.ExpectClose()
	require.NoError(t, manager.Close())
	// 重复关闭是安全的
	require.NoError(t, manager.Close())
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Error(t, manager.Ping(context.Background()))
	assert.Error(t, manager.WithTransaction(context.Background(), func(*gorm.DB) error { return nil }))
}

func TestPoolManager_HealthCheckStopsOnClose(t *testing.T) {
	manager, mock := newTestManager(t, PoolConfig{
		MaxOpenConns:        10,
		MaxIdleConns:        5,
		HealthCheckInterval: 20 * time.Millisecond,
	})
	mock.ExpectPing()

	time.Sleep(50 * time.Millisecond)

	mock.ExpectClose()
	require.NoError(t, manager.Close())

	select {
	case <-manager.stop:
	default:
		t.Fatal("stop channel should be closed")
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("ERROR: deadlock detected"), true},
		{errors.New("pq: could not serialize access due to concurrent update (SQLSTATE 40001)"), true},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("Error 1205: Lock wait timeout exceeded"), true},
		{errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{errors.New("driver: bad connection"), true},
		{errors.New("UNIQUE constraint failed: widget.id"), false},
		{errors.New("syntax error"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRetryableError(tt.err), "%v", tt.err)
	}
}

// =============================================================================
// 🔧 配置与方言
// =============================================================================

func TestPoolConfigFrom(t *testing.T) {
	pc := PoolConfigFrom(config.DatabaseConfig{MaxOpenConns: 7, MaxRetries: 9})
	assert.Equal(t, 7, pc.MaxOpenConns)
	assert.Equal(t, 9, pc.MaxRetries)
	assert.Equal(t, DefaultPoolConfig().MaxIdleConns, pc.MaxIdleConns)
	assert.Equal(t, DefaultPoolConfig().RetryBackoff, pc.RetryBackoff)
}

func TestDialector(t *testing.T) {
	for _, driver := range []string{"postgres", "mysql", "sqlite", "sqlite3"} {
		d, err := Dialector(config.DatabaseConfig{Driver: driver, Name: "x"})
		require.NoError(t, err, driver)
		assert.NotNil(t, d)
	}

	_, err := Dialector(config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestOpen_SQLite(t *testing.T) {
	cfg := config.DefaultDatabaseConfig()
	cfg.Driver = "sqlite"
	cfg.Name = t.TempDir() + "/pool.db"
	cfg.MaxOpenConns = 1

	manager, err := Open(cfg, zap.NewNop())
	require.NoError(t, err)
	defer manager.Close()

	assert.Equal(t, "sqlite", manager.Dialect())
	require.NoError(t, manager.Ping(context.Background()))
	require.NoError(t, manager.WithTransactionRetry(context.Background(), func(tx *gorm.DB) error {
		return tx.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY)").Error
	}))
}

// =============================================================================
// 📝 GORM 日志适配
// =============================================================================

func TestGormLogger_Trace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewGormLogger(zap.New(core))

	l.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 1 }, nil)
	assert.Equal(t, 0, logs.Len(), "warn level hides fast queries")

	l.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 0 }, gorm.ErrRecordNotFound)
	assert.Equal(t, 0, logs.Len(), "record not found is not an error")

	l.Trace(context.Background(), time.Now(), func() (string, int64) { return "INSERT", 0 }, errors.New("boom"))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "query failed", logs.All()[0].Message)

	l.Trace(context.Background(), time.Now().Add(-time.Second), func() (string, int64) { return "SELECT slow", 3 }, nil)
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "slow query", logs.All()[1].Message)

	verbose := l.LogMode(gormlogger.Info)
	verbose.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 2", 1 }, nil)
	require.Equal(t, 3, logs.Len())
	assert.Equal(t, "query", logs.All()[2].Message)

	silent := l.LogMode(gormlogger.Silent)
	silent.Error(context.Background(), "hidden %d", 1)
	assert.Equal(t, 3, logs.Len())
}
