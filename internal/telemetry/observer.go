package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/BaSui01/tymigrawr/migrate"
)

const meterName = "github.com/BaSui01/tymigrawr"

// Observer records migration progress as OTel metrics.
type Observer struct {
	passes   metric.Int64Counter
	rows     metric.Int64Counter
	cleared  metric.Int64Counter
	duration metric.Float64Histogram
}

var _ migrate.Observer = (*Observer)(nil)

// NewObserver creates the migration instruments on mp.
func NewObserver(mp metric.MeterProvider) (*Observer, error) {
	meter := mp.Meter(meterName)
	o := &Observer{}
	var err error
	if o.passes, err = meter.Int64Counter("tymigrawr.migration.passes",
		metric.WithDescription("Migration passes by outcome")); err != nil {
		return nil, err
	}
	if o.rows, err = meter.Int64Counter("tymigrawr.migration.rows",
		metric.WithDescription("Rows moved between versions")); err != nil {
		return nil, err
	}
	if o.cleared, err = meter.Int64Counter("tymigrawr.migration.tables_cleared",
		metric.WithDescription("Source tables cleared after migration")); err != nil {
		return nil, err
	}
	if o.duration, err = meter.Float64Histogram("tymigrawr.migration.duration",
		metric.WithDescription("Migration pass duration"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Observer) PassStarted(migrate.PassInfo)           {}
func (o *Observer) SourceStarted(migrate.PassInfo, string) {}

func (o *Observer) SourceFinished(p migrate.PassInfo, source, target string, rows int) {
	o.rows.Add(context.Background(), int64(rows), metric.WithAttributes(
		attribute.String("chain", p.Chain),
		attribute.String("source", source),
		attribute.String("target", target),
	))
}

func (o *Observer) TableCleared(p migrate.PassInfo, table string) {
	o.cleared.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("chain", p.Chain),
		attribute.String("table", table),
	))
}

func (o *Observer) PassFinished(p migrate.PassInfo, err error, elapsed time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	ctx := context.Background()
	o.passes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("chain", p.Chain),
		attribute.String("status", outcome),
	))
	o.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("chain", p.Chain)))
}
