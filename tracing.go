package rpcconn

import "go.opentelemetry.io/otel"

// otelTracer is the default tracer used when a Connection is not configured
// with WithTracer: otel.Tracer returns a no-op implementation until the
// process installs a global TracerProvider, so this is safe with or without
// a configured exporter.
var otelTracer = otel.Tracer("github.com/relaywire/rpcconn")
