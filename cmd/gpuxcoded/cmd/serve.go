package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nodnarbrox/gpuxcode/internal/config"
	"github.com/nodnarbrox/gpuxcode/internal/engine"
	gpuxhttp "github.com/nodnarbrox/gpuxcode/internal/http"
	"github.com/nodnarbrox/gpuxcode/internal/http/handlers"
	"github.com/nodnarbrox/gpuxcode/internal/observability"
	"github.com/nodnarbrox/gpuxcode/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the transcoding worker HTTP server",
	Long: `serve loads configuration, wires the job registry/scheduler/driver, and
starts the HTTP API. It blocks until SIGINT or SIGTERM, then drains the
scheduler and shuts the server down gracefully.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.Logging.Format = format
	}

	logger := observability.NewLogger(cfg.Logging)
	observability.SetDefault(logger)

	eng := engine.New(cfg, logger)

	serverCfg := gpuxhttp.DefaultServerConfig()
	serverCfg.Host = cfg.Server.Host
	serverCfg.Port = cfg.Server.Port

	server := gpuxhttp.NewServer(serverCfg, logger, version.Short())

	handlers.NewHealthHandler(cfg.Accelerator.Type, cfg.Storage.TempDir, eng.Detector, eng.Scheduler).Register(server.API())
	handlers.NewTranscodeHandler(cfg, eng.Registry, eng.Scheduler).Register(server.API())
	handlers.NewJobHandler(cfg, eng.Registry).Register(server.API())
	handlers.NewProbeHandler(cfg).Register(server.API())

	handlers.NewStreamHandler(cfg, eng.Registry, eng.Driver, logger).RegisterRoutes(server.Router())
	handlers.NewBeamHandler(cfg, eng.Registry, eng.Driver, logger).RegisterRoutes(server.Router())
	handlers.NewSegmentsHandler(cfg, eng.Registry).RegisterRoutes(server.Router())
	handlers.NewProgressHandler(eng.Registry, logger).RegisterRoutes(server.Router())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng.Start(ctx)

	logger.Info("gpuxcoded starting",
		slog.String("version", version.Short()),
		slog.String("accelerator", string(cfg.Accelerator.Type)),
		slog.String("address", serverCfg.Host+":"+fmt.Sprint(serverCfg.Port)),
	)

	if err := server.ListenAndServe(ctx); err != nil {
		eng.Shutdown()
		return fmt.Errorf("running server: %w", err)
	}

	eng.Shutdown()
	logger.Info("gpuxcoded stopped")
	return nil
}
