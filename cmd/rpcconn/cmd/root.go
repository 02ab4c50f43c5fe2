// Package cmd provides the CLI commands for the rpcconn demo.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/relaywire/rpcconn/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "rpcconn",
	Short: "rpcconn - a bidirectional, type-safe RPC connection demo",
	Long: `rpcconn exposes a small demo object graph over a wire-protocol
connection and demonstrates calling it back, minting proxies and opaque
handles, and invoking a callback the peer supplies.

Quick start:
  1. Create a config file: rpcconn.yaml
  2. Run: rpcconn serve

Configuration:
  Config is loaded from rpcconn.yaml in the current directory,
  $HOME/.rpcconn/, or /etc/rpcconn/.

  Environment variables can override config values with the RPCCONN_ prefix.
  Example: RPCCONN_SERVER_LISTEN_ADDR=127.0.0.1:8765

Commands:
  serve       Expose the demo root object over the configured transport
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./rpcconn.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
