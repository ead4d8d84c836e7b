package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/BaSui01/tymigrawr/migrate"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumOf(t *testing.T, data metricdata.Aggregation) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok, "want Sum[int64], got %T", data)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestObserver_RecordsPass(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	o, err := NewObserver(mp)
	require.NoError(t, err)

	pass := migrate.PassInfo{RunID: "r", Chain: "players.PlayerV3", Versions: 3}
	o.PassStarted(pass)
	o.SourceStarted(pass, "playerv1")
	o.SourceFinished(pass, "playerv1", "playerv3", 4)
	o.TableCleared(pass, "playerv1")
	o.SourceFinished(pass, "playerv2", "playerv3", 2)
	o.TableCleared(pass, "playerv2")
	o.PassFinished(pass, nil, 20*time.Millisecond)
	o.PassFinished(pass, errors.New("boom"), time.Millisecond)

	got := collect(t, reader)
	assert.Equal(t, int64(6), sumOf(t, got["tymigrawr.migration.rows"]))
	assert.Equal(t, int64(2), sumOf(t, got["tymigrawr.migration.tables_cleared"]))
	assert.Equal(t, int64(2), sumOf(t, got["tymigrawr.migration.passes"]))

	hist, ok := got["tymigrawr.migration.duration"].(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
}
