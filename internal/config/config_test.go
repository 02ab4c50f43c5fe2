package config

import "testing"

func TestSetDefaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	cfg.SetDefaults()

	if cfg.Server.Transport != "stdio" {
		t.Errorf("Server.Transport = %q, want stdio", cfg.Server.Transport)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.Server.ListenAddr != "" {
		t.Errorf("ListenAddr = %q, want empty for a non-websocket transport", cfg.Server.ListenAddr)
	}
}

func TestSetDefaults_WebsocketGetsListenAddr(t *testing.T) {
	t.Parallel()

	cfg := &Config{Server: ServerConfig{Transport: "websocket"}}
	cfg.SetDefaults()

	if cfg.Server.ListenAddr == "" {
		t.Error("ListenAddr is empty, want a default for the websocket transport")
	}
}

func TestSetDefaults_MetricsAddrOnlyWhenEnabled(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	cfg.SetDefaults()
	if cfg.Observability.MetricsAddr != "" {
		t.Errorf("MetricsAddr = %q, want empty when metrics are disabled", cfg.Observability.MetricsAddr)
	}

	cfg = &Config{Observability: ObservabilityConfig{MetricsEnabled: true}}
	cfg.SetDefaults()
	if cfg.Observability.MetricsAddr == "" {
		t.Error("MetricsAddr is empty, want a default when metrics are enabled")
	}
}

func TestSetDevDefaults_NoOpWhenNotDevMode(t *testing.T) {
	t.Parallel()

	cfg := &Config{LogLevel: "error"}
	cfg.SetDevDefaults()

	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want unchanged \"error\"", cfg.LogLevel)
	}
	if cfg.Connection.NestedProxies {
		t.Error("NestedProxies = true, want false when DevMode is off")
	}
}

func TestSetDevDefaults_AppliesWhenDevMode(t *testing.T) {
	t.Parallel()

	cfg := &Config{DevMode: true, LogLevel: "error"}
	cfg.SetDevDefaults()

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if !cfg.Connection.NestedProxies {
		t.Error("NestedProxies = false, want true in dev mode")
	}
}
