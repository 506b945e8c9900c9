package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/coderunner/internal/config"
	"github.com/sakif/coderunner/internal/executor"
	"github.com/sakif/coderunner/internal/executor/cli"
	"github.com/sakif/coderunner/internal/executor/docker"
	"github.com/sakif/coderunner/internal/language"
	"github.com/sakif/coderunner/internal/workspace"
)

// stack is the assembled execution stack plus whatever must be released
// when the command exits.
type stack struct {
	engine *executor.Engine
	runner executor.Runner
	close  func() error
}

func buildStack(cfg *config.Config, logger *slog.Logger) (*stack, error) {
	workspaces, err := workspace.NewManager(cfg.Workspace.Root, logger)
	if err != nil {
		return nil, err
	}

	rt := &stack{close: func() error { return nil }}
	switch cfg.Runtime.Backend {
	case config.BackendCLI:
		c := cli.DefaultConfig()
		c.DockerBin = cfg.Runtime.DockerBin
		c.OutputLimit = cfg.Runtime.OutputLimit
		c.CleanupTimeout = cfg.CleanupTimeout()
		rt.runner = cli.New(c, logger)
	default:
		c := docker.DefaultConfig()
		c.OutputLimit = cfg.Runtime.OutputLimit
		c.CleanupTimeout = cfg.CleanupTimeout()
		r, err := docker.New(c, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to docker: %w", err)
		}
		rt.runner = r
		rt.close = r.Close
	}

	rt.engine = executor.NewEngine(workspaces, rt.runner, executor.Config{
		DefaultTimeout: cfg.DefaultTimeout(),
		MaxTimeout:     cfg.MaxTimeout(),
	}, logger)

	logger.Debug("execution engine ready",
		slog.String("backend", cfg.Runtime.Backend),
		slog.String("workspace_root", workspaces.Root()),
	)
	return rt, nil
}

// pullImages warms every language image. Failures are logged and left for the
// first run of that language to report.
func (rt *stack) pullImages(ctx context.Context, logger *slog.Logger) {
	puller, ok := rt.runner.(executor.ImagePuller)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Minute)
	defer cancel()

	failed := 0
	for _, res := range puller.PullImages(ctx, language.Images()) {
		if res.Err != nil {
			failed++
		}
	}
	logger.Info("image warm-up finished",
		slog.Int("images", len(language.Images())),
		slog.Int("failed", failed),
	)
}
