package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/pedalmetry/pedalmetry/internal/config"
	"github.com/pedalmetry/pedalmetry/internal/support/exception"
	"github.com/pedalmetry/pedalmetry/internal/support/logger"
)

const tracerModule = "tracer"

// TracerProvider wraps an OTLP trace pipeline with its shutdown hook.
// When tracing is disabled Provider is a noop and Shutdown does nothing.
type TracerProvider struct {
	Provider trace.TracerProvider
	shutdown func(context.Context) error
}

// NewTracerProvider builds a TracerProvider from the tracing configuration.
// The OTLP exporter speaks grpc or http per cfg.Protocol.
func NewTracerProvider(ctx context.Context, cfg *config.TracingConfig) (*TracerProvider, error) {
	if cfg == nil || !cfg.Enabled {
		logger.Debugf("Tracing disabled, using noop tracer provider.")
		return &TracerProvider{Provider: tracenoop.NewTracerProvider()}, nil
	}

	exporter, err := newTraceExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	res, err := sdkresource.Merge(sdkresource.Default(), sdkresource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
	))
	if err != nil {
		return nil, exception.NewBatchError(tracerModule, "failed to build trace resource", err, false, false)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Infof("Tracing enabled: exporting to '%s' over %s.", cfg.Endpoint, cfg.Protocol)
	return &TracerProvider{Provider: tp, shutdown: tp.Shutdown}, nil
}

func newTraceExporter(ctx context.Context, cfg *config.TracingConfig) (*otlptrace.Exporter, error) {
	switch cfg.Protocol {
	case "grpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, exception.NewBatchError(tracerModule, "failed to create otlp grpc exporter", err, false, true)
		}
		return exporter, nil
	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, exception.NewBatchError(tracerModule, "failed to create otlp http exporter", err, false, true)
		}
		return exporter, nil
	default:
		return nil, exception.NewBatchError(tracerModule,
			fmt.Sprintf("unsupported tracing protocol '%s' (expected grpc or http)", cfg.Protocol), nil, false, false)
	}
}

// Tracer returns a named tracer from the wrapped provider.
func (p *TracerProvider) Tracer(name string) trace.Tracer {
	return p.Provider.Tracer(name)
}

// Shutdown flushes pending spans. Safe to call on a noop provider.
func (p *TracerProvider) Shutdown(ctx context.Context) error {
	if p.shutdown == nil {
		return nil
	}
	if err := p.shutdown(ctx); err != nil {
		return exception.NewBatchError(tracerModule, "failed to shut down tracer provider", err, false, false)
	}
	return nil
}
