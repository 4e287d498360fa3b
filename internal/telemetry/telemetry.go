// Package telemetry wires the process's OpenTelemetry tracer provider: an
// OTLP/gRPC exporter shipping spans to a collector. The control plane is
// HTTP-only (no gRPC service of our own), so this exporter's own use of
// gRPC as a transport is the only gRPC surface in the process.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Shutdown flushes and stops the tracer provider.
type Shutdown func(context.Context) error

// Setup configures the global tracer provider with an OTLP/gRPC exporter
// pointed at collectorEndpoint (host:port). A zero-value endpoint disables
// export but still installs a provider, so Tracer() is always usable.
func Setup(ctx context.Context, serviceName, collectorEndpoint string) (Shutdown, error) {
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: building resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if collectorEndpoint != "" {
		exporter, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(collectorEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("telemetry: creating otlp exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Tracer returns the process's named tracer.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
