// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"

	"github.com/BaSui01/tymigrawr/config"
	"github.com/BaSui01/tymigrawr/migrate"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器，实现 migrate.Observer
type Collector struct {
	// 迁移指标
	passesTotal    *prometheus.CounterVec
	passDuration   *prometheus.HistogramVec
	passesInFlight *prometheus.GaugeVec
	rowsMigrated   *prometheus.CounterVec
	tablesCleared  *prometheus.CounterVec

	// 后端指标
	backendOpsTotal   *prometheus.CounterVec
	backendOpDuration *prometheus.HistogramVec

	registry *prometheus.Registry
	logger   *zap.Logger
}

var _ migrate.Observer = (*Collector)(nil)

// NewCollector 创建指标收集器。reg 为 nil 时创建独立 Registry，
// 批处理进程之间互不污染
func NewCollector(namespace string, reg *prometheus.Registry, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	// 迁移指标
	c.passesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migration_passes_total",
			Help:      "Total number of migration passes",
		},
		[]string{"chain", "status"},
	)

	c.passDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "migration_pass_duration_seconds",
			Help:      "Migration pass duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"chain"},
	)

	c.passesInFlight = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "migration_passes_in_flight",
			Help:      "Number of migration passes currently running",
		},
		[]string{"chain"},
	)

	c.rowsMigrated = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migration_rows_total",
			Help:      "Total number of rows moved to a newer or older version",
		},
		[]string{"chain", "source", "target"},
	)

	c.tablesCleared = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migration_tables_cleared_total",
			Help:      "Total number of source tables cleared after migration",
		},
		[]string{"chain", "table"},
	)

	// 后端指标
	c.backendOpsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_operations_total",
			Help:      "Total number of backend operations",
		},
		[]string{"backend", "operation", "status"},
	)

	c.backendOpDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_operation_duration_seconds",
			Help:      "Backend operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	c.logger.Debug("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// Registry 返回指标注册表
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// =============================================================================
// 🔄 迁移指标记录
// =============================================================================

func (c *Collector) PassStarted(p migrate.PassInfo) {
	c.passesInFlight.WithLabelValues(p.Chain).Inc()
}

func (c *Collector) SourceStarted(migrate.PassInfo, string) {}

func (c *Collector) SourceFinished(p migrate.PassInfo, source, target string, rows int) {
	c.rowsMigrated.WithLabelValues(p.Chain, source, target).Add(float64(rows))
}

func (c *Collector) TableCleared(p migrate.PassInfo, table string) {
	c.tablesCleared.WithLabelValues(p.Chain, table).Inc()
}

func (c *Collector) PassFinished(p migrate.PassInfo, err error, elapsed time.Duration) {
	c.passesInFlight.WithLabelValues(p.Chain).Dec()
	c.passesTotal.WithLabelValues(p.Chain, status(err)).Inc()
	c.passDuration.WithLabelValues(p.Chain).Observe(elapsed.Seconds())
}

// =============================================================================
// 🗄️ 后端指标记录
// =============================================================================

// RecordBackendOp 记录一次后端操作
func (c *Collector) RecordBackendOp(backendName, operation string, err error, duration time.Duration) {
	c.backendOpsTotal.WithLabelValues(backendName, operation, status(err)).Inc()
	c.backendOpDuration.WithLabelValues(backendName, operation).Observe(duration.Seconds())
}

// =============================================================================
// 📤 Pushgateway
// =============================================================================

// Push 将当前指标推送到 Pushgateway。迁移是短生命周期任务，
// 没有可供抓取的常驻端点
func (c *Collector) Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	if job == "" {
		job = "tymigrawr"
	}
	if err := push.New(url, job).Gatherer(c.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	c.logger.Info("metrics pushed", zap.String("url", url), zap.String("job", job))
	return nil
}

// PushConfigured 按配置推送，未启用或未配置地址时不做任何事
func (c *Collector) PushConfigured(ctx context.Context, cfg config.MetricsConfig) error {
	if !cfg.Enabled {
		return nil
	}
	return c.Push(ctx, cfg.PushgatewayURL, cfg.Job)
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// status 将错误归类为 success/error 标签
func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
