package rpcconn

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/relaywire/rpcconn/handler"
	"github.com/relaywire/rpcconn/observability"
)

// config accumulates the options Expose and Wrap share (spec §6 "Options").
type config struct {
	nestedProxies bool
	debug         bool
	handlers      []handler.Handler
	logger        *slog.Logger
	metrics       *observability.Metrics
	tracer        trace.Tracer
}

func defaultConfig() *config {
	return &config{
		logger: slog.Default(),
		tracer: otelTracer,
	}
}

// Option is a functional option accepted by both Expose and Wrap.
type Option func(*config)

// WithNestedProxies enables recursive traversal on both send and receive so
// that callables, then-ables, and explicit markers nested arbitrarily deep
// are handled uniformly. Default false.
func WithNestedProxies() Option {
	return func(c *config) { c.nestedProxies = true }
}

// WithDebug enables traversal without nested-proxy semantics, so a nested
// non-cloneable value produces a precise structural error identifying its
// path instead of relying on the transport's opaque error. Default false.
func WithDebug() Option {
	return func(c *config) { c.debug = true }
}

// WithHandlers sets the ordered list of pluggable value handlers. The first
// handler whose CanHandle returns true for a given value wins. Default
// empty.
func WithHandlers(handlers ...handler.Handler) Option {
	return func(c *config) { c.handlers = handlers }
}

// WithLogger sets the structured logger used for connection lifecycle and
// swallowed-error diagnostics. If not set, defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics attaches a Prometheus-backed Metrics recorder. If not set, the
// Connection records no metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithTracer sets the OpenTelemetry tracer spans are recorded against. If
// not set, defaults to the global no-op tracer.
func WithTracer(t trace.Tracer) Option {
	return func(c *config) {
		if t != nil {
			c.tracer = t
		}
	}
}
