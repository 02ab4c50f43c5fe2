package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// NewDebugTracerProvider builds a TracerProvider that writes spans as
// formatted JSON to stdout, for local debugging; pass its Tracer to
// WithTracer (the demo CLI does so when tracing_enabled is set). Call
// Shutdown on the returned provider when the Connection closes so buffered
// spans flush.
func NewDebugTracerProvider() (*sdktrace.TracerProvider, error) {
	exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("observability: build stdout trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp)), nil
}

// ShutdownTracerProvider flushes and stops tp, logging nothing itself; the
// caller decides how to surface a shutdown error.
func ShutdownTracerProvider(ctx context.Context, tp *sdktrace.TracerProvider) error {
	return tp.Shutdown(ctx)
}
