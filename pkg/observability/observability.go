// Package observability wires OpenTelemetry tracing and metrics, plus the
// Prometheus collectors scraped from /metrics.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "helm.bridge"

// Config selects where upgrade telemetry is exported and how the node is
// identified in it.
type Config struct {
	Enabled  bool
	Endpoint string // OTLP gRPC, e.g. "localhost:4317"
	Insecure bool

	Version string
	// Program and Chain become resource attributes so that every span and
	// data point names the deployment that produced it.
	Program string
	Chain   uint16
	// SampleRate is the fraction of upgrade spans kept; 1 keeps all.
	SampleRate float64
}

// DefaultConfig exports every span to a local collector.
func DefaultConfig() *Config {
	return &Config{
		Enabled:    true,
		Endpoint:   "localhost:4317",
		Version:    "1.0.0",
		SampleRate: 1.0,
	}
}

// Provider exports upgrade spans and upgrade metrics over OTLP.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	logger         *slog.Logger

	upgrades        metric.Int64Counter
	upgradeDuration metric.Float64Histogram
}

// New creates a provider. A disabled config yields a provider whose spans and
// instruments are no-ops.
func New(ctx context.Context, cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	p := &Provider{logger: slog.Default().With("component", "observability")}
	if !cfg.Enabled {
		p.logger.DebugContext(ctx, "telemetry export disabled")
		return p, nil
	}

	// No schema URL: semconv here is older than the SDK's default resource.
	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName("helm-bridge"),
			semconv.ServiceVersion(cfg.Version),
			AttrProgram.String(cfg.Program),
			AttrChain.Int(int(cfg.Chain)),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	spanExporter, metricExporter, err := exporters(ctx, cfg)
	if err != nil {
		return nil, err
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(spanExporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(15*time.Second))),
	)
	otel.SetTracerProvider(p.tracerProvider)
	otel.SetMeterProvider(p.meterProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	p.tracer = p.tracerProvider.Tracer(instrumentationName, trace.WithInstrumentationVersion(cfg.Version))
	meter := p.meterProvider.Meter(instrumentationName, metric.WithInstrumentationVersion(cfg.Version))
	if err := p.initUpgradeMetrics(meter); err != nil {
		return nil, fmt.Errorf("upgrade instruments: %w", err)
	}

	p.logger.InfoContext(ctx, "exporting upgrade telemetry",
		"endpoint", cfg.Endpoint,
		"program", cfg.Program,
		"sample_rate", cfg.SampleRate,
	)
	return p, nil
}

func exporters(ctx context.Context, cfg *Config) (sdktrace.SpanExporter, sdkmetric.Exporter, error) {
	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}

	spans, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("span exporter: %w", err)
	}
	metrics, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		_ = spans.Shutdown(ctx)
		return nil, nil, fmt.Errorf("metric exporter: %w", err)
	}
	return spans, metrics, nil
}

func (p *Provider) initUpgradeMetrics(meter metric.Meter) error {
	var err error
	p.upgrades, err = meter.Int64Counter("bridge.upgrades",
		metric.WithDescription("Contract upgrade instructions by outcome"),
		metric.WithUnit("{instruction}"),
	)
	if err != nil {
		return err
	}

	p.upgradeDuration, err = meter.Float64Histogram("bridge.upgrade.duration",
		metric.WithDescription("Contract upgrade instruction latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	)
	return err
}

// Shutdown flushes pending spans and data points.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.tracerProvider != nil {
		errs = append(errs, p.tracerProvider.Shutdown(ctx))
	}
	if p.meterProvider != nil {
		errs = append(errs, p.meterProvider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// TrackUpgrade starts the span of one upgrade instruction for program. The
// returned function ends the span, sets its status from err and records the
// instruction under outcome. It must be called exactly once.
func (p *Provider) TrackUpgrade(ctx context.Context, program string) (context.Context, func(outcome string, err error)) {
	start := time.Now()
	tracer := p.tracer
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}
	ctx, span := tracer.Start(ctx, "upgrade_contract",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(AttrProgram.String(program)),
	)

	return ctx, func(outcome string, err error) {
		SetSpanStatus(ctx, err)
		span.SetAttributes(AttrOutcome.String(outcome))
		span.End()

		if p.upgrades == nil {
			return
		}
		attrs := metric.WithAttributes(AttrProgram.String(program), AttrOutcome.String(outcome))
		p.upgrades.Add(ctx, 1, attrs)
		p.upgradeDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
}
