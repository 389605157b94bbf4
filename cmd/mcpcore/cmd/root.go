// Package cmd provides the CLI commands for mcpcore.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcpcore/mcpcore/internal/config"
)

var cfgFile string
var devMode bool

var rootCmd = &cobra.Command{
	Use:   "mcpcore",
	Short: "mcpcore - MCP runtime core",
	Long: `mcpcore is a Model Context Protocol (MCP) runtime: a JSON-RPC
session dispatcher that sits between MCP clients and the upstream MCP
server(s) it fronts, handling the initialize handshake, capability
negotiation, and the tools/resources/prompts method dispatch, with
authentication, authorization, rate limiting, and audit logging applied
uniformly regardless of transport.

Quick start:
  1. Create a config file: mcpcore.yaml
  2. Run: mcpcore run        (stdio transport, one client)
     or:  mcpcore serve      (Streamable HTTP transport)

Configuration:
  Config is loaded from mcpcore.yaml in the current directory,
  $HOME/.mcpcore/, or /etc/mcpcore/.

  Environment variables can override config values with the MCPCORE_
  prefix. Example: MCPCORE_SERVER_HTTP_ADDR=:9090

Commands:
  run         Run the stdio transport, serving one client over stdin/stdout
  serve       Run the Streamable HTTP transport
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
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./mcpcore.yaml)")
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false, "enable development mode (permissive defaults, verbose logging)")
}

func initConfig() {
	config.InitViper(cfgFile)
}

// loadConfig reads the config file, applies the --dev override ahead of
// validation (dev defaults fill in required fields the raw file may be
// missing), and validates the result.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return nil, err
	}
	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}
