package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sakif/coderunner/internal/config"
	"github.com/sakif/coderunner/internal/handler"
	"github.com/sakif/coderunner/internal/repository/sqlite"
	"github.com/sakif/coderunner/internal/server"
	"github.com/sakif/coderunner/internal/service"
)

var portFlag int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API.

Examples:
  coderunner serve
  coderunner serve --port 9090
  CODERUNNER_RUNTIME_BACKEND=cli coderunner serve`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger(os.Stdout)

	cfg, err := config.Load(configFlag)
	if err != nil {
		return err
	}
	if portFlag > 0 {
		cfg.Server.Port = portFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := buildStack(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.close()

	if cfg.Runtime.PullImages {
		go rt.pullImages(ctx, logger)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DBPath), 0o755); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}
	db, err := sqlite.New(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	srv, err := server.New(server.Config{
		Port:           cfg.Server.Port,
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
		WriteTimeout:   cfg.WriteTimeout(),
	}, server.Deps{
		Executor: rt.engine,
		Snippets: service.NewSnippetService(db, rt.engine, logger),
		Health:   map[string]handler.Pinger{"database": db},
	}, logger)
	if err != nil {
		return err
	}

	logger.Info("configuration loaded",
		slog.String("backend", cfg.Runtime.Backend),
		slog.String("database", cfg.Storage.DBPath),
	)
	return srv.Start(ctx)
}
