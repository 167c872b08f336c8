// Package telemetry sets up OTLP trace and metric export for the server.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// Options configures the exporters. Empty endpoints defer to the
// OTEL_EXPORTER_OTLP_* environment variables, or http://localhost:4318.
type Options struct {
	ServiceName     string
	Environment     string
	TracesEndpoint  string
	MetricsEndpoint string
	MetricInterval  time.Duration
}

// Providers holds the SDK providers installed by Setup.
type Providers struct {
	Tracer *sdktrace.TracerProvider
	Meter  *sdkmetric.MeterProvider
}

// Setup installs OTLP trace and metric providers as the global providers
// and starts runtime metrics collection.
func Setup(ctx context.Context, opts Options) (*Providers, error) {
	tp, err := TracerProvider(ctx, opts)
	if err != nil {
		return nil, err
	}
	mp, err := MeterProvider(ctx, opts)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	if err := runtime.Start(runtime.WithMeterProvider(mp)); err != nil {
		p := &Providers{Tracer: tp, Meter: mp}
		_ = p.Shutdown(ctx)
		return nil, fmt.Errorf("starting runtime metrics: %w", err)
	}
	return &Providers{Tracer: tp, Meter: mp}, nil
}

// Shutdown flushes and stops both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	if err := p.Tracer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutting down tracer provider: %w", err))
	}
	if err := p.Meter.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutting down meter provider: %w", err))
	}
	return errors.Join(errs...)
}

// TracerProvider returns a batching tracer provider exporting over OTLP/HTTP.
func TracerProvider(ctx context.Context, opts Options) (*sdktrace.TracerProvider, error) {
	var expOpts []otlptracehttp.Option
	if opts.TracesEndpoint != "" {
		expOpts = append(expOpts, otlptracehttp.WithEndpointURL(opts.TracesEndpoint))
	}
	exp, err := otlptracehttp.New(ctx, expOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(newResource(opts)),
	), nil
}

// MeterProvider returns a meter provider pushing to OTLP/HTTP every
// opts.MetricInterval (30s when zero).
func MeterProvider(ctx context.Context, opts Options) (*sdkmetric.MeterProvider, error) {
	var expOpts []otlpmetrichttp.Option
	if opts.MetricsEndpoint != "" {
		expOpts = append(expOpts, otlpmetrichttp.WithEndpointURL(opts.MetricsEndpoint))
	}
	exporter, err := otlpmetrichttp.New(ctx, expOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	interval := opts.MetricInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(newResource(opts)),
	), nil
}

func newResource(opts Options) *resource.Resource {
	name := opts.ServiceName
	if name == "" {
		name = "todo-server"
	}
	env := opts.Environment
	if env == "" {
		env = "development"
	}
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(name),
		semconv.DeploymentEnvironmentKey.String(env),
	)
}
