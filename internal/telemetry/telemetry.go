// Package telemetry wires the OpenTelemetry SDK for span export. When
// tracing is disabled no exporter is created and the global tracer provider
// stays no-op.
package telemetry

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/hupe1980/reviewswarm/config"
	"github.com/hupe1980/reviewswarm/logging"
)

// Options overrides exporter construction.
type Options struct {
	// Exporter replaces the OTLP/gRPC exporter.
	Exporter sdktrace.SpanExporter
	// Synchronous exports spans as they end instead of batching them.
	Synchronous bool
	Logger      logging.Logger
}

// Provider owns the SDK tracer provider. A zero Provider is a no-op.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// Init installs a global tracer provider according to cfg.
func Init(ctx context.Context, cfg config.TracingConfig, optFns ...func(o *Options)) (*Provider, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	if !cfg.Enabled {
		opts.Logger.Debug("telemetry.disabled")
		return &Provider{}, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(buildVersion()),
	))
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}

	exporter := opts.Exporter
	if exporter == nil {
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("create trace exporter: %w", err)
		}
	}

	processor := sdktrace.WithBatcher(exporter)
	if opts.Synchronous {
		processor = sdktrace.WithSyncer(exporter)
	}

	tp := sdktrace.NewTracerProvider(
		processor,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	opts.Logger.Info("telemetry.initialized",
		"telemetry.endpoint", cfg.Endpoint,
		"telemetry.service", cfg.ServiceName,
		"telemetry.sample_rate", cfg.SampleRate,
	)

	return &Provider{tp: tp}, nil
}

// Shutdown flushes pending spans. Safe on a no-op Provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	if err := p.tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown tracer provider: %w", err)
	}
	return nil
}

func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
