package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/mcpcore/mcpcore/internal/adapter/stdio"
	"github.com/mcpcore/mcpcore/internal/config"
	"github.com/mcpcore/mcpcore/internal/engine"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the stdio transport, serving one client over stdin/stdout",
	Long: `Run starts mcpcore over newline-delimited JSON-RPC on stdin/stdout,
the transport MCP clients use to launch a server as a subprocess.

One client, one session, for the lifetime of the process. Stdout carries
only the JSON-RPC stream -- all logging goes to stderr.`,
	RunE: runStdio,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runStdio(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	defer stop()
	go func() {
		<-ctx.Done()
		stop()
	}()

	deps, err := buildRuntime(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build runtime: %w", err)
	}
	defer deps.closeAll(logger)

	session := deps.newSession()
	eng := engine.New(session.Handle, deps.mws...)
	transport := stdio.New(eng, os.Stdin, os.Stdout, logger)
	defer transport.Close()

	logger.Info("mcpcore starting", "version", Version, "transport", "stdio", "dev_mode", cfg.DevMode)

	if err := transport.Start(ctx); err != nil {
		return fmt.Errorf("stdio transport: %w", err)
	}

	logger.Info("mcpcore stopped")
	return nil
}

// parseLogLevel converts a string log level to slog.Level, defaulting to
// info for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
