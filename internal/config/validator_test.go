package config

import (
	"strings"
	"testing"
)

func minimalValidConfig() *Config {
	cfg := &Config{Server: ServerConfig{Transport: "stdio"}}
	cfg.SetDefaults()
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_UnknownTransport(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Server.Transport = "carrier-pigeon"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error, got nil")
	}
	if !strings.Contains(err.Error(), "must be one of") {
		t.Errorf("error = %q, want to mention the allowed values", err.Error())
	}
}

func TestValidate_WebsocketRequiresListenAddr(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Server.Transport = "websocket"
	cfg.Server.ListenAddr = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error, got nil")
	}
	if !strings.Contains(err.Error(), "listen_addr") {
		t.Errorf("error = %q, want to mention listen_addr", err.Error())
	}
}

func TestValidate_WebsocketWithListenAddr(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Server.Transport = "websocket"
	cfg.Server.ListenAddr = "127.0.0.1:8765"

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.LogLevel = "verbose"

	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() expected error for invalid log_level, got nil")
	}
}

func TestValidate_UnknownHandler(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Connection.Handlers = []string{"not-a-real-handler"}

	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() expected error for unknown handler, got nil")
	}
}
