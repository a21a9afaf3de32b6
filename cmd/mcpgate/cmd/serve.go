package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcpgate/mcpgate/internal/adapter/inbound/http"
	"github.com/mcpgate/mcpgate/internal/bridge"
	"github.com/mcpgate/mcpgate/internal/config"
	"github.com/mcpgate/mcpgate/internal/proc"
)

var serveCmd = &cobra.Command{
	Use:   "serve [-- command [args...]]",
	Short: "Start the bridge server",
	Long: `Start the mcpgate bridge server.

The MCP server subprocess can be configured three ways:

1. Servers file: point upstream.servers_file at a standard mcpServers JSON
   file and select an entry with upstream.server_name.

2. Inline: configure upstream.command and upstream.args in mcpgate.yaml.

3. Command line: pass the command after --.

Examples:
  # Start with config file settings
  mcpgate serve

  # Start with a specific MCP server command
  mcpgate serve -- npx @modelcontextprotocol/server-filesystem /tmp

  # Start with a specific config file
  mcpgate --config /path/to/config.yaml serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Load without validation so CLI args can override the upstream first.
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Command after -- replaces any configured upstream source.
	if len(args) > 0 {
		cfg.Upstream.Command = args[0]
		cfg.Upstream.Args = args[1:]
		cfg.Upstream.ServersFile = ""
		cfg.Upstream.ServerName = ""
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// Logger to stderr; stdout stays clean.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("mcpgate stopped")
	return nil
}

// run wires the supervisor, bridge, and HTTP transport together and blocks
// until shutdown.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	spec, err := cfg.Upstream.ResolveCommand()
	if err != nil {
		return err
	}

	// Durations are validated by config.Validate; parse failures here
	// would be programming errors.
	callTimeout, _ := time.ParseDuration(cfg.Server.CallTimeout)
	shutdownTimeout, _ := time.ParseDuration(cfg.Server.ShutdownTimeout)
	restartBackoff, _ := time.ParseDuration(cfg.Upstream.RestartBackoff)

	supervisor := proc.NewSupervisor(spec, logger)
	br := bridge.New(supervisor,
		bridge.WithLogger(logger),
		bridge.WithCallTimeout(callTimeout),
	)

	if err := br.Start(); err != nil {
		return fmt.Errorf("failed to start MCP server: %w", err)
	}
	defer func() {
		if err := br.Close(); err != nil {
			logger.Warn("error closing bridge", "error", err)
		}
	}()

	handle := supervisor.Handle()
	logger.Info("MCP server started",
		"command", spec.Path,
		"args", strings.Join(spec.Args, " "),
		"pid", handle.PID,
	)

	if cfg.Upstream.Restart {
		go superviseRestarts(ctx, supervisor, br, logger, restartBackoff)
	}

	healthChecker := http.NewHealthChecker(supervisor, br, Version)
	transport := http.NewHTTPTransport(br,
		http.WithAddr(cfg.Server.HTTPAddr),
		http.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		http.WithLogger(logger),
		http.WithHealthChecker(healthChecker),
		http.WithStatusSources(br, supervisor),
		http.WithShutdownTimeout(shutdownTimeout),
	)

	return transport.Start(ctx)
}

// superviseRestarts relaunches the subprocess when it exits unexpectedly.
// Every in-flight call fails when the process dies; the restart only serves
// new requests. Runs until the context is cancelled.
func superviseRestarts(ctx context.Context, supervisor *proc.Supervisor, br *bridge.Bridge, logger *slog.Logger, backoff time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-supervisor.Done():
		}
		if ctx.Err() != nil {
			return
		}

		handle := supervisor.Handle()
		logger.Warn("MCP server exited, scheduling restart",
			"exit_code", handle.ExitCode,
			"backoff", backoff,
		)
		if tail := supervisor.StderrTail(); len(tail) > 0 {
			logger.Warn("MCP server stderr before exit", "last_line", tail[len(tail)-1])
		}

		if !sleepCtx(ctx, backoff) {
			return
		}

		if err := br.Start(); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("MCP server restart failed", "error", err)
			// The exited cycle's done channel stays closed, so the loop
			// comes straight back here and retries after another backoff.
			continue
		}

		logger.Info("MCP server restarted", "pid", supervisor.Handle().PID)
	}
}

// sleepCtx sleeps for d unless the context is cancelled first.
// Returns false when cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
