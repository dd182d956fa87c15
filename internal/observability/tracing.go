package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// TracingConfig holds configuration for OpenTelemetry tracing.
type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	ServiceName    string  `mapstructure:"service_name"`
	ServiceVersion string  `mapstructure:"service_version"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	SampleRate     float64 `mapstructure:"sample_rate"`
}

// TracingManager manages the OTLP trace pipeline. When disabled it hands
// out a no-op tracer so call sites never branch.
type TracingManager struct {
	logger   *zap.SugaredLogger
	config   TracingConfig
	tracer   oteltrace.Tracer
	provider *trace.TracerProvider
}

// NewTracingManager sets up the tracer provider and registers it globally.
func NewTracingManager(logger *zap.SugaredLogger, config TracingConfig) (*TracingManager, error) {
	tm := &TracingManager{
		logger: logger,
		config: config,
	}

	if !config.Enabled {
		logger.Info("OpenTelemetry tracing disabled")
		tm.tracer = noop.NewTracerProvider().Tracer("limbodancer-mcp")
		return tm, nil
	}

	exporter, err := otlptracehttp.New(context.Background(),
		otlptracehttp.WithEndpoint(config.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tm.provider = trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.TraceIDRatioBased(config.SampleRate)),
	)

	otel.SetTracerProvider(tm.provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	tm.tracer = otel.Tracer(config.ServiceName)

	tm.logger.Infow("OpenTelemetry tracing initialized",
		"service_name", config.ServiceName,
		"otlp_endpoint", config.OTLPEndpoint,
		"sample_rate", config.SampleRate)

	return tm, nil
}

// Tracer returns the tracer for manual span creation.
func (tm *TracingManager) Tracer() oteltrace.Tracer {
	return tm.tracer
}

// Shutdown flushes pending spans.
func (tm *TracingManager) Shutdown(ctx context.Context) error {
	if tm.provider == nil {
		return nil
	}
	return tm.provider.Shutdown(ctx)
}
