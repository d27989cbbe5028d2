package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/dsstar/internal/config"
	"github.com/Iron-Ham/dsstar/internal/event"
	"github.com/Iron-Ham/dsstar/internal/metrics"
	"github.com/Iron-Ham/dsstar/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP and WebSocket API",
	Long: `Serve the DS-STAR API.

Endpoints:
  GET    /                         health check
  GET    /metrics                  Prometheus metrics
  POST   /api/upload               upload a data file (multipart field "file")
  GET    /api/uploads              list uploaded files
  DELETE /api/uploads/:filename    delete an uploaded file
  GET    /ws/query                 run sessions over a WebSocket`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default \":8000\")")
	serveCmd.Flags().String("upload-dir", "", "directory for uploaded files (default: a temporary directory)")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("server.upload_dir", serveCmd.Flags().Lookup("upload-dir"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg, false)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Close() }()

	if cfg.LLM.ResolveAPIKey() == "" {
		logger.Warn("no API key configured; queries will fail until OPENAI_API_KEY is set")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	bus := event.NewBus(event.WithLogger(logger))
	metrics.New(reg).Subscribe(bus)

	gin.SetMode(gin.ReleaseMode)
	srv, err := server.New(cfg.Server, server.NewSessionFactory(cfg, bus, logger),
		server.WithLogger(logger.WithPhase("server")),
		server.WithGatherer(reg),
		server.WithVersion(Version),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Warn("failed to remove upload directory", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "DS-STAR API listening on %s\n", cfg.Server.Addr)
	return srv.ListenAndServe(ctx, cfg.Server.Addr)
}
