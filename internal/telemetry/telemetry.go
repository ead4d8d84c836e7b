// =============================================================================
// 📡 tymigrawr OpenTelemetry 初始化
// =============================================================================
// 按 config.Config 构建 OTLP 导出的 TracerProvider 与 MeterProvider。
// Resource 除服务名和版本外还带上已配置的后端与默认路由，
// 同一服务名下的不同部署可以据此区分。未启用时不连接任何外部服务。
// =============================================================================

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"

	"github.com/BaSui01/tymigrawr/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Resource 属性键
const (
	AttrBackends       = attribute.Key("tymigrawr.backends")
	AttrDefaultBackend = attribute.Key("tymigrawr.routing.default")
	AttrRoutedTables   = attribute.Key("tymigrawr.routing.tables")
)

// Providers 持有 SDK 的 TracerProvider 与 MeterProvider，未启用时两者均为 nil
type Providers struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// Init 按 cfg.Telemetry 初始化 SDK 并注册为全局 provider。
// cfg 为 nil 或未启用时返回空 Providers，迁移链的 span 交给全局 noop provider
func Init(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil || !cfg.Telemetry.Enabled {
		logger.Debug("telemetry disabled, using noop providers")
		return &Providers{}, nil
	}
	tc := cfg.Telemetry

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	tp, err := newTracerProvider(ctx, tc, res)
	if err != nil {
		return nil, err
	}
	mp, err := newMeterProvider(ctx, tc, res)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("telemetry initialized",
		zap.String("endpoint", tc.OTLPEndpoint),
		zap.String("service_name", serviceName(tc)),
		zap.Strings("backends", backendLabels(cfg)),
		zap.Float64("sample_rate", tc.SampleRate),
		zap.Duration("export_interval", tc.ExportInterval),
	)
	return &Providers{tp: tp, mp: mp}, nil
}

// newResource 描述一次迁移部署：服务、版本、后端实例与路由
func newResource(ctx context.Context, cfg *config.Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(serviceName(cfg.Telemetry)),
		semconv.ServiceVersionKey.String(moduleVersion()),
		AttrBackends.StringSlice(backendLabels(cfg)),
		AttrRoutedTables.Int(len(cfg.Routing.Tables)),
	}
	if cfg.Routing.Default != "" {
		attrs = append(attrs, AttrDefaultBackend.String(cfg.Routing.Default))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}
	return res, nil
}

func newTracerProvider(ctx context.Context, tc config.TelemetryConfig, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(tc.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	// 上游已采样的 pass 保持一致，根 span 按比例采样
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(tc.SampleRate))),
	), nil
}

func newMeterProvider(ctx context.Context, tc config.TelemetryConfig, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(tc.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	var opts []sdkmetric.PeriodicReaderOption
	if tc.ExportInterval > 0 {
		opts = append(opts, sdkmetric.WithInterval(tc.ExportInterval))
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, opts...)),
		sdkmetric.WithResource(res),
	), nil
}

// TracerProvider 返回 SDK provider，未启用时返回全局 provider
func (p *Providers) TracerProvider() trace.TracerProvider {
	if p == nil || p.tp == nil {
		return otel.GetTracerProvider()
	}
	return p.tp
}

// MeterProvider 返回 SDK provider，未启用时返回全局 provider
func (p *Providers) MeterProvider() metric.MeterProvider {
	if p == nil || p.mp == nil {
		return otel.GetMeterProvider()
	}
	return p.mp
}

// Shutdown 先刷出迁移指标再关闭 span 导出，nil 或未启用时为 no-op
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	if p.tp != nil {
		if err := p.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

func serviceName(tc config.TelemetryConfig) string {
	if tc.ServiceName == "" {
		return "tymigrawr"
	}
	return tc.ServiceName
}

// backendLabels 返回排序后的 "名称:类型" 列表
func backendLabels(cfg *config.Config) []string {
	out := make([]string, 0, len(cfg.Backends))
	for name, b := range cfg.Backends {
		out = append(out, name+":"+b.Type)
	}
	sort.Strings(out)
	return out
}

// moduleVersion 取构建信息中的模块版本，本地构建为 "dev"
func moduleVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
	}
	return "dev"
}
