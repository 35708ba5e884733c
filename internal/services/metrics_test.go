package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// collectSum returns the int64 sum points recorded for name.
func collectSum(t *testing.T, reader *sdkmetric.ManualReader, name string) []metricdata.DataPoint[int64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s has data type %T", name, m.Data)
			return sum.DataPoints
		}
	}
	return nil
}

func TestFailedForkRecordsCompensation(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	svc, store := newTestService(t, WithMeterProvider(provider))
	src := createPublished(t, svc, alice, "Source", []string{"a"})
	store.Fail("InsertSteps", errBoom)

	_, err := svc.ForkProject(ctx, src.ID, bob)
	require.Error(t, err)

	points := collectSum(t, reader, "promptflows.saga.compensations")
	require.Len(t, points, 1)
	assert.Equal(t, int64(1), points[0].Value)
	op, ok := points[0].Attributes.Value(attribute.Key("op"))
	require.True(t, ok)
	assert.Equal(t, "services.fork", op.AsString())

	assert.Empty(t, collectSum(t, reader, "promptflows.forks"), "a rolled back fork is not counted")
}

func TestForkAndCounterFailureMetrics(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	svc, store := newTestService(t, WithMeterProvider(provider))
	src := createPublished(t, svc, alice, "Source", []string{"a"})
	store.Fail("AddCounter", errBoom)

	_, err := svc.ForkProject(ctx, src.ID, bob)
	require.NoError(t, err)

	forks := collectSum(t, reader, "promptflows.forks")
	require.Len(t, forks, 1)
	assert.Equal(t, int64(1), forks[0].Value)

	failures := collectSum(t, reader, "promptflows.counter.sync_failures")
	require.Len(t, failures, 1)
	counter, _ := failures[0].Attributes.Value(attribute.Key("counter"))
	assert.Equal(t, "fork_count", counter.AsString())
}
