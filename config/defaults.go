// =============================================================================
// 📦 tymigrawr 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"reflect"
	"time"
)

// DefaultBackendName 是默认后端实例名称
const DefaultBackendName = "default"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Backends: map[string]BackendConfig{
			DefaultBackendName: DefaultBackendConfig("memory"),
		},
		Routing:   DefaultRoutingConfig(),
		Log:       DefaultLogConfig(),
		Metrics:   DefaultMetricsConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultBackendConfig 返回指定类型后端的默认配置
func DefaultBackendConfig(typ string) BackendConfig {
	return BackendConfig{
		Type:     typ,
		SQLite:   DefaultSQLiteConfig(),
		Database: DefaultDatabaseConfig(),
		Redis:    DefaultRedisConfig(),
		Bolt:     DefaultBoltConfig(),
		DynamoDB: DefaultDynamoDBConfig(),
		Mongo:    DefaultMongoConfig(),
	}
}

// DefaultRoutingConfig 返回默认路由配置
func DefaultRoutingConfig() RoutingConfig {
	return RoutingConfig{
		Default: DefaultBackendName,
		Tables:  map[string]string{},
	}
}

// DefaultSQLiteConfig 返回默认 SQLite 配置
func DefaultSQLiteConfig() SQLiteConfig {
	return SQLiteConfig{
		Path:         "tymigrawr.db",
		JournalMode:  "WAL",
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 1,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "tymigrawr",
		Password:        "",
		Name:            "tymigrawr",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		MaxRetries:      3,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		KeyPrefix:    "tymigrawr",
	}
}

// DefaultBoltConfig 返回默认 bbolt 配置
func DefaultBoltConfig() BoltConfig {
	return BoltConfig{
		Path:    "tymigrawr.bolt",
		Timeout: time.Second,
	}
}

// DefaultDynamoDBConfig 返回默认 DynamoDB 配置
func DefaultDynamoDBConfig() DynamoDBConfig {
	return DynamoDBConfig{
		Region:           "us-east-1",
		WritesPerSecond:  0,
		TableWaitTimeout: 2 * time.Minute,
	}
}

// DefaultMongoConfig 返回默认 MongoDB 配置
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:            "mongodb://localhost:27017",
		Database:       "tymigrawr",
		ConnectTimeout: 10 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   false,
		Namespace: "tymigrawr",
		Job:       "tymigrawr_migrate",
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:        false,
		OTLPEndpoint:   "localhost:4317",
		ServiceName:    "tymigrawr",
		SampleRate:     0.1,
		ExportInterval: 10 * time.Second,
	}
}

// applyBackendDefaults 为 YAML 中声明的后端补齐零值字段
func (c *Config) applyBackendDefaults() {
	if c.Routing.Tables == nil {
		c.Routing.Tables = map[string]string{}
	}
	for name, b := range c.Backends {
		d := DefaultBackendConfig(b.Type)
		fillZero(&b.SQLite, d.SQLite)
		fillZero(&b.Database, d.Database)
		fillZero(&b.Redis, d.Redis)
		fillZero(&b.Bolt, d.Bolt)
		fillZero(&b.DynamoDB, d.DynamoDB)
		fillZero(&b.Mongo, d.Mongo)
		c.Backends[name] = b
	}
}

// fillZero 用 def 中的值填充 dst 里仍为零值的字段
func fillZero[T any](dst *T, def T) {
	dv := reflect.ValueOf(dst).Elem()
	sv := reflect.ValueOf(def)
	for i := 0; i < dv.NumField(); i++ {
		if f := dv.Field(i); f.CanSet() && f.IsZero() {
			f.Set(sv.Field(i))
		}
	}
}
