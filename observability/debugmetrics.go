package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// NewDebugMeterProvider builds a MeterProvider that periodically prints
// collected OpenTelemetry metrics to stdout, for local debugging alongside
// NewDebugTracerProvider. Independent of the Prometheus Metrics above: this
// exists for otel-instrumented collaborators (e.g. a custom Handler) that
// want metric.Meter rather than the prometheus client directly.
func NewDebugMeterProvider() (*sdkmetric.MeterProvider, error) {
	exp, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("observability: build stdout metric exporter: %w", err)
	}
	reader := sdkmetric.NewPeriodicReader(exp)
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)), nil
}
