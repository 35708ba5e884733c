package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "promptflows/backend/services"

// engineMetrics counts the engine's degraded paths. Without WithMeterProvider
// instruments come from the global MeterProvider, which is a no-op until
// telemetry installs one.
type engineMetrics struct {
	counterFailures metric.Int64Counter
	compensations   metric.Int64Counter
	forks           metric.Int64Counter
	slugExhaustions metric.Int64Counter
}

func newEngineMetrics(provider metric.MeterProvider) *engineMetrics {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	m := provider.Meter(meterName)
	counterFailures, _ := m.Int64Counter("promptflows.counter.sync_failures",
		metric.WithDescription("Denormalized counter writes that failed and were skipped"),
	)
	compensations, _ := m.Int64Counter("promptflows.saga.compensations",
		metric.WithDescription("Multi-step writes rolled back after a failure"),
	)
	forks, _ := m.Int64Counter("promptflows.forks",
		metric.WithDescription("Completed forks"),
	)
	slugExhaustions, _ := m.Int64Counter("promptflows.slug.exhausted",
		metric.WithDescription("Slug allocations that ran out of attempts"),
	)
	return &engineMetrics{
		counterFailures: counterFailures,
		compensations:   compensations,
		forks:           forks,
		slugExhaustions: slugExhaustions,
	}
}

func (m *engineMetrics) counterFailed(ctx context.Context, field string) {
	m.counterFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("counter", field)))
}

func (m *engineMetrics) compensated(ctx context.Context, op string) {
	m.compensations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

func (m *engineMetrics) forked(ctx context.Context) {
	m.forks.Add(ctx, 1)
}

func (m *engineMetrics) slugExhausted(ctx context.Context, op string) {
	m.slugExhaustions.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}
