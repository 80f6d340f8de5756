// Package telemetry installs the OpenTelemetry tracer provider used for
// cart persistence and HTTP server spans.
package telemetry

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/gomarketplace/cartd/internal/policy"
)

// ServiceName is reported as service.name on every span.
const ServiceName = "cartd"

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

// Setup installs a global tracer provider according to cfg and returns a tracer for
// cartd spans. With tracing disabled it returns a no-op tracer and shutdown.
// The stdout exporter writes JSON spans to w.
func Setup(ctx context.Context, cfg policy.TracingConfig, version string, w io.Writer) (trace.Tracer, ShutdownFunc, error) {
	if !cfg.Enabled || cfg.Exporter == policy.ExporterNone {
		return noop.NewTracerProvider().Tracer(ServiceName), func(context.Context) error { return nil }, nil
	}
	if cfg.Exporter != "" && cfg.Exporter != policy.ExporterStdout {
		return nil, nil, fmt.Errorf("tracing exporter %q: want stdout or none", cfg.Exporter)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, nil, fmt.Errorf("stdout exporter: %w", err)
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", ServiceName),
		attribute.String("service.version", version),
	))
	if err != nil {
		return nil, nil, fmt.Errorf("tracing resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Tracer(ServiceName), tp.Shutdown, nil
}
