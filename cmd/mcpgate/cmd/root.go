// Package cmd provides the CLI commands for mcpgate.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcpgate/mcpgate/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "mcpgate",
	Short: "mcpgate - HTTP bridge for stdio MCP servers",
	Long: `mcpgate exposes a single long-lived MCP server subprocess to HTTP clients.

The subprocess speaks newline-delimited JSON-RPC 2.0 over stdio. mcpgate
launches it once, keeps it running, and correlates concurrent HTTP requests
onto the shared stdio stream.

Quick start:
  1. Create a config file: mcpgate.yaml
  2. Run: mcpgate serve

Configuration:
  Config is loaded from mcpgate.yaml in the current directory,
  $HOME/.mcpgate/, or /etc/mcpgate/.

  Environment variables can override config values with the MCPGATE_ prefix.
  Example: MCPGATE_SERVER_HTTP_ADDR=:9090

Commands:
  serve       Start the bridge server
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
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./mcpgate.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
