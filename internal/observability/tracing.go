package observability

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope used by the simulation packages.
const TracerName = "ising"

// Tracer returns the simulation tracer from the global provider. It is a
// no-op until SetupTracing installs a real provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// SetupTracing installs a global tracer provider that writes spans as JSON
// to w. The returned function flushes and shuts the provider down.
func SetupTracing(w io.Writer) (func(context.Context) error, error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
