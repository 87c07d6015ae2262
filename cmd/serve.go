package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/inboxdigest/internal/events"
	"github.com/teemow/inboxdigest/internal/google"
	"github.com/teemow/inboxdigest/internal/instrumentation"
	"github.com/teemow/inboxdigest/internal/logging"
	"github.com/teemow/inboxdigest/internal/server"
	"github.com/teemow/inboxdigest/internal/session"
	"github.com/teemow/inboxdigest/internal/tools/google_tools"
	"github.com/teemow/inboxdigest/internal/tools/mailbox_tools"
)

const (
	transportStdio          = "stdio"
	transportStreamableHTTP = "streamable-http"
)

// serveOptions holds the serve command's flags.
type serveOptions struct {
	backend          backendOptions
	transport        string
	httpAddr         string
	readOnly         bool
	disableStreaming bool
	metricsEnabled   bool
	metricsAddr      string
	natsURL          string
	idleTimeout      time.Duration
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server exposing the mailbox engine
to AI assistants.

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - streamable-http: Streamable HTTP transport

Each account gets its own session that shows the cached snapshot at once,
re-scans in the background and keeps local changes until a later scan
confirms them. Failed changes are rolled back and reported through the
mailbox_notifications tool, the log and, with --nats-url, a JetStream stream.

Use --read-only to register only the tools that do not change the mailbox.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.backend.resolve(); err != nil {
				return err
			}
			if err := opts.resolveEnv(); err != nil {
				return err
			}
			return runServe(cmd.Context(), opts)
		},
	}

	opts.backend.register(cmd)
	cmd.Flags().StringVar(&opts.transport, "transport", transportStdio, "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&opts.httpAddr, "http-addr", ":8080", "HTTP server address (for streamable-http transport)")
	cmd.Flags().BoolVar(&opts.readOnly, "read-only", false, "Register only tools that do not change the mailbox")
	cmd.Flags().BoolVar(&opts.disableStreaming, "disable-streaming", false, "Disable streaming for HTTP transport (for compatibility with certain clients)")
	cmd.Flags().BoolVar(&opts.metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port (HTTP transport only). Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")
	cmd.Flags().StringVar(&opts.natsURL, "nats-url", "", "Publish notifications to this NATS server (JetStream). Can also use NATS_URL env var.")
	cmd.Flags().DurationVar(&opts.idleTimeout, "idle-timeout", server.DefaultIdleTimeout, "Close account sessions unused for this long (0 uses the default, negative disables)")

	return cmd
}

func (o *serveOptions) resolveEnv() error {
	if v := os.Getenv("METRICS_ENABLED"); v == "false" {
		o.metricsEnabled = false
	}
	if o.metricsAddr == server.DefaultMetricsAddr {
		if addr := os.Getenv("METRICS_ADDR"); addr != "" {
			o.metricsAddr = addr
		}
	}
	if o.natsURL == "" {
		o.natsURL = os.Getenv("NATS_URL")
	}
	switch o.transport {
	case transportStdio, transportStreamableHTTP:
		return nil
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: %s, %s)", o.transport, transportStdio, transportStreamableHTTP)
	}
}

func runServe(ctx context.Context, opts serveOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	shutdownCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// stdout carries the stdio transport, so logs always go to stderr.
	logger := logging.WithService(opts.backend.logger(os.Stderr), "inboxdigest")
	slog.SetDefault(logger)

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	instrConfig.Backend = opts.backend.kind
	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Warn("instrumentation shutdown failed", logging.Err(err))
		}
	}()
	metrics := provider.Metrics()

	notifiers := []session.Notifier{events.NewLog(logger)}
	if opts.natsURL != "" {
		pub, err := events.NewPublisher(opts.natsURL, logger)
		if err != nil {
			return err
		}
		defer pub.Close()
		if err := pub.EnsureStream(); err != nil {
			return err
		}
		notifiers = append(notifiers, pub)
		logger.Info("publishing notifications to NATS", slog.String("stream", events.StreamName))
	}

	pool := newBackendPool(&opts.backend, logger, metrics)
	defer func() {
		if err := pool.Close(); err != nil {
			logger.Warn("failed to close backends", logging.Err(err))
		}
	}()

	sc, err := server.NewServerContext(shutdownCtx, server.Config{
		Factory:     pool.SessionConfig,
		Notifiers:   notifiers,
		IdleTimeout: opts.idleTimeout,
		Logger:      logger,
		Metrics:     metrics,
		Audit:       instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.Audit),
	})
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		if err := sc.Shutdown(); err != nil {
			logger.Warn("server context shutdown failed", logging.Err(err))
		}
	}()

	mcpSrv := mcpserver.NewMCPServer("inboxdigest", version,
		mcpserver.WithToolCapabilities(true),
	)
	if err := mailbox_tools.RegisterMailboxTools(mcpSrv, sc, opts.readOnly); err != nil {
		return fmt.Errorf("failed to register mailbox tools: %w", err)
	}
	if opts.backend.kind == backendGmail {
		oauthCfg, err := google.OAuthConfig(opts.backend.credentials)
		if err != nil {
			return err
		}
		if err := google_tools.RegisterGoogleTools(mcpSrv, sc, google_tools.Authorizer{
			Config:       oauthCfg,
			OnAuthorized: pool.Forget,
		}); err != nil {
			return fmt.Errorf("failed to register Google tools: %w", err)
		}
	}
	logger.Info("mcp server configured",
		slog.String("transport", opts.transport),
		slog.String("backend", opts.backend.kind),
		slog.Bool("read_only", opts.readOnly))

	if opts.transport == transportStdio {
		return runStdioServer(mcpSrv)
	}

	health := server.NewHealthChecker(sc)
	if opts.metricsEnabled && provider.Enabled() {
		metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    opts.metricsAddr,
			InstrumentationProvider: provider,
			Health:                  health,
			Logger:                  logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error("metrics server failed", logging.Err(err))
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
			defer cancel()
			if err := metricsServer.Shutdown(ctx); err != nil {
				logger.Warn("metrics server shutdown failed", logging.Err(err))
			}
		}()
	}

	return runStreamableHTTPServer(shutdownCtx, mcpSrv, health, opts, logger)
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	if err := mcpserver.ServeStdio(mcpSrv); err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

func runStreamableHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, health *server.HealthChecker, opts serveOptions, logger *slog.Logger) error {
	httpOpts := []mcpserver.StreamableHTTPOption{mcpserver.WithEndpointPath("/mcp")}
	if opts.disableStreaming {
		httpOpts = append(httpOpts, mcpserver.WithDisableStreaming(true))
	}

	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(mcpSrv, httpOpts...))
	health.RegisterHealthEndpoints(mux)

	httpServer := &http.Server{
		Addr:              opts.httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		logger.Info("starting streamable HTTP server", slog.String("addr", opts.httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()
	health.SetReady(true)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping HTTP server")
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
		return nil
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
		return nil
	}
}
