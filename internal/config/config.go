// Package config provides configuration loading for the rpcconn demo CLI.
//
// It is intentionally small: the demo has one server process exposing a
// fixed root object over one transport, so there is no multi-tenant, no
// persisted state, and no admin surface to configure. Everything here
// configures how that single Connection is built.
package config

// Config is the top-level configuration for the rpcconn demo CLI.
type Config struct {
	// Server configures the transport the demo root object is exposed over.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Connection configures the Connection engine options applied to every
	// Expose/Wrap call the demo makes (see rpcconn.Option).
	Connection ConnectionConfig `yaml:"connection" mapstructure:"connection"`

	// Observability configures the optional metrics and tracing exporters.
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`

	// DevMode enables development defaults (debug logging, nested-proxy
	// traversal; see SetDevDefaults) the way OSSConfig.DevMode does for its
	// host CLI.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig selects and configures the demo's transport.
type ServerConfig struct {
	// Transport is one of "stdio", "socketpair", or "websocket".
	Transport string `yaml:"transport" mapstructure:"transport" validate:"required,oneof=stdio socketpair websocket"`

	// ListenAddr is the host:port the websocket transport listens on.
	// Required when Transport is "websocket".
	ListenAddr string `yaml:"listen_addr" mapstructure:"listen_addr" validate:"omitempty,hostname_port"`

	// Command launches a subprocess peer instead of serving in-process,
	// mirroring UpstreamConfig.Command's subprocess launch mode. Only
	// meaningful to the "wrap" side of the demo CLI.
	Command []string `yaml:"command" mapstructure:"command"`
}

// ConnectionConfig configures the rpcconn.Option values the demo applies.
type ConnectionConfig struct {
	// NestedProxies enables recursion into plain containers during
	// serialization (rpcconn.WithNestedProxies).
	NestedProxies bool `yaml:"nested_proxies" mapstructure:"nested_proxies"`

	// Debug enables the stricter mode that rejects non-cloneable values at
	// non-top-level paths with a NonCloneableError naming the path, instead
	// of the generic JSON encoding error they otherwise produce
	// (rpcconn.WithDebug).
	Debug bool `yaml:"debug" mapstructure:"debug"`

	// Handlers lists the reference sideband handlers to register by name.
	// Currently supports "map" (handler/mapsignal).
	Handlers []string `yaml:"handlers" mapstructure:"handlers" validate:"omitempty,dive,oneof=map"`
}

// ObservabilityConfig configures optional metrics and tracing.
type ObservabilityConfig struct {
	// MetricsEnabled registers a Prometheus registry and passes it to
	// rpcconn.WithMetrics.
	MetricsEnabled bool `yaml:"metrics_enabled" mapstructure:"metrics_enabled"`

	// MetricsAddr is the host:port the Prometheus /metrics endpoint listens
	// on when MetricsEnabled is true.
	MetricsAddr string `yaml:"metrics_addr" mapstructure:"metrics_addr" validate:"omitempty,hostname_port"`

	// TracingEnabled starts an OpenTelemetry stdout trace exporter and
	// passes its tracer to rpcconn.WithTracer.
	TracingEnabled bool `yaml:"tracing_enabled" mapstructure:"tracing_enabled"`
}

// SetDefaults fills in zero-valued optional fields, mirroring
// OSSConfig.SetDefaults's role of making an empty or partial config file
// usable.
func (c *Config) SetDefaults() {
	if c.Server.Transport == "" {
		c.Server.Transport = "stdio"
	}
	if c.Server.ListenAddr == "" && c.Server.Transport == "websocket" {
		c.Server.ListenAddr = "127.0.0.1:8765"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Observability.MetricsEnabled && c.Observability.MetricsAddr == "" {
		c.Observability.MetricsAddr = "127.0.0.1:9090"
	}
}

// SetDevDefaults applies permissive overrides when DevMode is set, mirroring
// OSSConfig.SetDevDefaults's "dev mode relaxes validation, not security"
// scoping note (here: verbose logging and full protocol traversal, nothing
// that weakens behavior that matters outside a local demo).
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	c.LogLevel = "debug"
	c.Connection.NestedProxies = true
}
