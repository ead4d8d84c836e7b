package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/tymigrawr/backend/registry"
	"github.com/BaSui01/tymigrawr/config"
	"github.com/BaSui01/tymigrawr/internal/metrics"
	"github.com/BaSui01/tymigrawr/internal/telemetry"
	"github.com/BaSui01/tymigrawr/migrate"
)

// =============================================================================
// 🧩 运行环境
// =============================================================================

// app 持有一次命令执行所需的配置、日志、后端与观测组件
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	registry  *registry.Registry
	collector *metrics.Collector
	otel      *telemetry.Providers
	observer  migrate.Observer
}

// newApp 加载配置并打开所有后端
func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := initLogger(cfg.Log)
	logger.Debug("starting tymigrawr",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	providers, err := telemetry.Init(ctx, cfg, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	reg, err := registry.Open(ctx, cfg, logger)
	if err != nil {
		_ = providers.Shutdown(ctx)
		_ = logger.Sync()
		return nil, err
	}

	collector := metrics.NewCollector(cfg.Metrics.Namespace, nil, logger)
	observers := []migrate.Observer{collector}
	if otelObserver, err := telemetry.NewObserver(providers.MeterProvider()); err != nil {
		logger.Warn("failed to create otel migration instruments", zap.Error(err))
	} else {
		observers = append(observers, otelObserver)
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		registry:  reg,
		collector: collector,
		otel:      providers,
		observer:  migrate.Observers(observers...),
	}, nil
}

// chainOptions 为迁移链挂上日志、指标与追踪
func (a *app) chainOptions() []migrate.Option {
	return []migrate.Option{
		migrate.WithObserver(a.observer),
		migrate.WithLogger(a.logger),
		migrate.WithTracerProvider(a.otel.TracerProvider()),
	}
}

// close 推送指标、关闭后端并刷新遥测
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.collector.PushConfigured(ctx, a.cfg.Metrics); err != nil {
		a.logger.Warn("failed to push metrics", zap.Error(err))
	}
	if err := a.registry.Close(); err != nil {
		a.logger.Warn("failed to close backends", zap.Error(err))
	}
	if err := a.otel.Shutdown(ctx); err != nil {
		a.logger.Warn("failed to shutdown telemetry", zap.Error(err))
	}
	_ = a.logger.Sync()
}
