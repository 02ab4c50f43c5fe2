// Package observability holds the Prometheus metrics and OpenTelemetry
// tracing glue a Connection reports through, kept separate from the engine
// so the core stays instrumentation-agnostic (WithMetrics/WithTracer are the
// only coupling points).
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics a Connection records. Pass to
// WithMetrics; nil (the default) means no metrics are recorded.
type Metrics struct {
	CallsSentTotal      *prometheus.CounterVec
	CallsReceivedTotal  *prometheus.CounterVec
	CallDuration        prometheus.Histogram
	LocalRegistrySize   prometheus.Gauge
	RemoteProxyCacheSize prometheus.Gauge
	ReleasesSentTotal   prometheus.Counter
	HandlerErrorsTotal  *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		CallsSentTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rpcconn",
				Name:      "calls_sent_total",
				Help:      "Total outgoing call/get/set messages sent",
			},
			[]string{"action"},
		),
		CallsReceivedTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rpcconn",
				Name:      "calls_received_total",
				Help:      "Total incoming call messages dispatched, by outcome",
			},
			[]string{"outcome"}, // outcome=dispatched (every call) / throw (calls answered with a throw)
		),
		CallDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "rpcconn",
				Name:      "call_duration_seconds",
				Help:      "Round-trip duration of an outgoing call",
				Buckets:   prometheus.DefBuckets,
			},
		),
		LocalRegistrySize: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "rpcconn",
				Name:      "local_registry_size",
				Help:      "Objects currently registered for peer access",
			},
		),
		RemoteProxyCacheSize: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "rpcconn",
				Name:      "remote_proxy_cache_size",
				Help:      "Live remote proxy cache entries",
			},
		),
		ReleasesSentTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "rpcconn",
				Name:      "releases_sent_total",
				Help:      "Release messages sent after remote proxy finalization",
			},
		),
		HandlerErrorsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rpcconn",
				Name:      "handler_errors_total",
				Help:      "Errors swallowed while decoding or delivering handler sideband messages",
			},
			[]string{"wireType"},
		),
	}
}
