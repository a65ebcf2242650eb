// Package obstrace provides the OpenTelemetry tracer used to wrap ingestion
// runs and chunk fetches, mirroring the teacher's span-per-stage approach in
// engine/internal/telemetry/tracing.
package obstrace

import (
	"context"

	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/Datata1/umweltmonitoring"

// Tracer returns the package-wide tracer.
func Tracer() trace.Tracer { return otel.Tracer(tracerName) }

// Start is a thin convenience wrapper around Tracer().Start, kept so
// call-sites read the same way regardless of tracer provider wiring.
func Start(ctx context.Context, name string, attrs ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, attrs...)
}

// InitProvider installs a process-wide TracerProvider carrying serviceName
// and environment as resource attributes. No span exporter is attached by
// default, mirroring the teacher's own no-exporter tracer setup; a future
// collector exporter can be added here without touching call sites.
func InitProvider(serviceName, environment string) (shutdown func(context.Context) error, err error) {
	res, err := resource.New(context.Background(),
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.DeploymentEnvironmentKey.String(environment),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
