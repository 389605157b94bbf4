package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcpcore/mcpcore/internal/adapter/httptransport"
	"github.com/mcpcore/mcpcore/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Streamable HTTP transport",
	Long: `Serve starts mcpcore on the MCP Streamable HTTP transport: POST for
client->server calls, GET for an SSE stream of server-initiated messages,
DELETE to terminate a session, bound by Mcp-Session-Id.

Authentication, authorization, rate limiting, and tool policy are applied
the same way as the stdio transport, via the shared engine middleware
chain.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address, overrides server.http_addr")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.HTTPAddr = addr
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

	healthChecker := httptransport.NewHealthChecker(nil, deps.rateLimiter, deps.auditService, Version)
	upstreamsHandler := httptransport.NewUpstreamsHandler(deps.upstreamStore)

	opts := []httptransport.Option{
		httptransport.WithAddr(cfg.Server.HTTPAddr),
		httptransport.WithLogger(logger),
		httptransport.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		httptransport.WithHealthChecker(healthChecker),
		httptransport.WithUpstreamsHandler(upstreamsHandler),
		httptransport.WithAuthStrategy(deps.httpAuthStrategy),
		httptransport.WithPolicy(deps.httpPolicy),
		httptransport.WithSessionTimeout(parseDurationDefault(cfg.Server.SessionTimeout, 30*time.Minute, "server.session_timeout", logger)),
	}
	if cfg.Server.TLSCertFile != "" {
		opts = append(opts, httptransport.WithTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile))
	}

	transport := httptransport.New(deps.newSession, deps.mws, opts...)

	logger.Info("mcpcore starting",
		"version", Version,
		"transport", "http",
		"addr", cfg.Server.HTTPAddr,
		"dev_mode", cfg.DevMode,
		"rate_limit", cfg.RateLimit.Enabled,
	)

	if err := transport.Start(ctx); err != nil {
		return fmt.Errorf("http transport: %w", err)
	}

	logger.Info("mcpcore stopped")
	return nil
}
