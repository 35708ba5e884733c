// Package telemetry installs the OpenTelemetry meter and tracer providers
// the engine metrics and the echo middleware report to.
//
// Telemetry is off by default. When enabled, metrics go to an OTLP/HTTP
// collector when telemetry.otlp_endpoint is set, and spans and metrics are
// pretty-printed to stdout when telemetry.stdout is set. Enabled with no
// exporter configured falls back to stdout.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"promptflows/backend/internal/config"
)

// ShutdownFunc flushes and stops the installed providers.
type ShutdownFunc func(context.Context) error

// Providers are the SDK providers Init built. Both are nil when telemetry
// is disabled.
type Providers struct {
	Meter  *sdkmetric.MeterProvider
	Tracer *sdktrace.TracerProvider
}

// Shutdown flushes and stops both providers.
func (p Providers) Shutdown(ctx context.Context) error {
	var errs []error
	if p.Tracer != nil {
		errs = append(errs, p.Tracer.Shutdown(ctx))
	}
	if p.Meter != nil {
		errs = append(errs, p.Meter.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// Init builds providers from cfg and installs them globally. When
// cfg.Enabled is false it installs no-op providers.
func Init(ctx context.Context, cfg config.TelemetryConfig, version string) (ShutdownFunc, error) {
	providers, err := Build(ctx, cfg, version, os.Stdout)
	if err != nil {
		return nil, err
	}
	if providers.Meter == nil {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return func(context.Context) error { return nil }, nil
	}
	otel.SetTracerProvider(providers.Tracer)
	otel.SetMeterProvider(providers.Meter)
	return providers.Shutdown, nil
}

// Build creates the providers without installing them. Stdout exporters
// write to out.
func Build(ctx context.Context, cfg config.TelemetryConfig, version string, out io.Writer) (Providers, error) {
	if !cfg.Enabled {
		return Providers{}, nil
	}
	name := cfg.ServiceName
	if name == "" {
		name = "promptflows"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(name),
			semconv.ServiceVersionKey.String(version),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return Providers{}, fmt.Errorf("telemetry: resource: %w", err)
	}

	useStdout := cfg.Stdout || cfg.OTLPEndpoint == ""

	mp, err := buildMeterProvider(ctx, cfg, res, useStdout, out)
	if err != nil {
		return Providers{}, fmt.Errorf("telemetry: meter provider: %w", err)
	}
	tp, err := buildTracerProvider(res, useStdout, out)
	if err != nil {
		_ = mp.Shutdown(ctx)
		return Providers{}, fmt.Errorf("telemetry: tracer provider: %w", err)
	}
	return Providers{Meter: mp, Tracer: tp}, nil
}

func buildMeterProvider(ctx context.Context, cfg config.TelemetryConfig, res *resource.Resource, useStdout bool, out io.Writer) (*sdkmetric.MeterProvider, error) {
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if useStdout {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(out), stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(cfg.ExportInterval)),
		))
	}

	if cfg.OTLPEndpoint != "" {
		exp, err := otlpmetrichttp.New(ctx,
			otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetrichttp.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("otlp metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(cfg.ExportInterval)),
		))
	}

	return sdkmetric.NewMeterProvider(opts...), nil
}

// buildTracerProvider samples every request span. Spans are only exported
// to stdout; with an OTLP metrics-only setup they are recorded and dropped.
func buildTracerProvider(res *resource.Resource, useStdout bool, out io.Writer) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}
	if useStdout {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(out), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}
