package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for rpcconn.yaml/.yml in
// standard locations, grounded on Sentinel Gate's InitViper search order
// (current directory, then a dotfile under the user's home directory, then
// an OS-specific system directory).
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		viper.SetConfigName("rpcconn")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("RPCCONN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".rpcconn"),
		"/etc/rpcconn",
	}
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "rpcconn"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds the config keys a demo deployment is most likely
// to want overridden without editing a file, e.g. RPCCONN_SERVER_LISTEN_ADDR.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.transport")
	_ = viper.BindEnv("server.listen_addr")
	_ = viper.BindEnv("connection.nested_proxies")
	_ = viper.BindEnv("connection.debug")
	_ = viper.BindEnv("observability.metrics_enabled")
	_ = viper.BindEnv("observability.metrics_addr")
	_ = viper.BindEnv("observability.tracing_enabled")
	_ = viper.BindEnv("log_level")
	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults (including dev defaults), and validates the result.
func LoadConfig() (*Config, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigRaw reads the configuration file and applies non-dev defaults,
// without validating. Use this when a CLI flag may still override DevMode
// before validation runs (see cmd/rpcconn's --dev flag handling).
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was loaded,
// or the empty string in env-vars-only mode.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
