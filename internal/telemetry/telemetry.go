// Package telemetry sets up OpenTelemetry tracing for the console. Spans are
// written by the stdout exporter; backend calls and console requests are
// traced through otelhttp.
package telemetry

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName identifies spans created by keydeck itself.
const TracerName = "github.com/keydeck/keydeck"

// Setup installs a global tracer provider exporting to w. When disabled it
// installs nothing and returns a no-op shutdown.
func Setup(ctx context.Context, enabled bool, w io.Writer) (func(context.Context) error, error) {
	if !enabled {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

// Tracer returns the keydeck tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// Start opens a span named name.
func Start(ctx context.Context, name string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name)
}
