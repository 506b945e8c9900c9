// Package cli runs sandbox invocations by shelling out to the docker binary.
// It needs no Engine API access, only a docker CLI on PATH.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/sakif/coderunner/internal/apperror"
	"github.com/sakif/coderunner/internal/executor"
	"github.com/sakif/coderunner/internal/sandbox"
)

// launchFailureCode is what `docker run` exits with when it could not start
// the container at all.
const launchFailureCode = 125

// Config holds the CLI runner settings.
type Config struct {
	DockerBin       string
	OutputLimit     int
	PullConcurrency int
	PullTimeout     time.Duration
	CleanupTimeout  time.Duration
}

// DefaultConfig uses the docker binary on PATH.
func DefaultConfig() Config {
	return Config{
		DockerBin:       "docker",
		OutputLimit:     64 * 1024,
		PullConcurrency: 2,
		PullTimeout:     5 * time.Minute,
		CleanupTimeout:  10 * time.Second,
	}
}

// Runner implements executor.Runner on top of `docker run`.
type Runner struct {
	config Config
	logger *slog.Logger
}

var (
	_ executor.Runner      = (*Runner)(nil)
	_ executor.ImagePuller = (*Runner)(nil)
)

// New returns a runner. It does not check that the binary exists.
func New(cfg Config, logger *slog.Logger) *Runner {
	d := DefaultConfig()
	if cfg.DockerBin == "" {
		cfg.DockerBin = d.DockerBin
	}
	if cfg.PullConcurrency <= 0 {
		cfg.PullConcurrency = d.PullConcurrency
	}
	if cfg.PullTimeout <= 0 {
		cfg.PullTimeout = d.PullTimeout
	}
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = d.CleanupTimeout
	}
	return &Runner{config: cfg, logger: logger}
}

// Run executes inv with `docker run --rm`. On timeout or cancellation the
// client process is killed and the container is killed and removed by name.
func (r *Runner) Run(ctx context.Context, inv sandbox.Invocation, timeout time.Duration) (*executor.Outcome, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout := &executor.LimitedBuffer{Limit: r.config.OutputLimit}
	stderr := &executor.LimitedBuffer{Limit: r.config.OutputLimit}

	cmd := exec.CommandContext(runCtx, r.config.DockerBin, inv.DockerArgs()...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = r.config.CleanupTimeout

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	logger := r.logger.With(slog.String("sandbox", inv.Name))

	switch {
	case ctx.Err() != nil:
		r.destroy(inv.Name, logger)
		return nil, ctx.Err()
	case runCtx.Err() != nil:
		r.destroy(inv.Name, logger)
		logger.Debug("container killed after deadline", slog.Duration("timeout", timeout))
		return &executor.Outcome{TimedOut: true, Duration: duration}, nil
	}

	if err == nil {
		return &executor.Outcome{Stdout: stdout.String(), Stderr: stderr.String(), Duration: duration}, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return nil, apperror.LaunchFailed(fmt.Errorf("run %s: %w", r.config.DockerBin, err))
	}
	if exitErr.ExitCode() == launchFailureCode {
		return nil, apperror.LaunchFailed(fmt.Errorf("docker run: %s", strings.TrimSpace(stderr.String())))
	}

	return &executor.Outcome{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitErr.ExitCode(),
		Duration: duration,
	}, nil
}

// destroy kills and removes the named container. Killing the client process
// alone would leave the container running.
func (r *Runner) destroy(name string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.CleanupTimeout)
	defer cancel()

	if out, err := exec.CommandContext(ctx, r.config.DockerBin, "kill", name).CombinedOutput(); err != nil {
		logger.Debug("docker kill", slog.String("output", strings.TrimSpace(string(out))))
	}
	if out, err := exec.CommandContext(ctx, r.config.DockerBin, "rm", "-f", name).CombinedOutput(); err != nil {
		if !strings.Contains(string(out), "No such container") {
			logger.Warn("failed to remove container",
				slog.String("error", err.Error()),
				slog.String("output", strings.TrimSpace(string(out))),
			)
		}
	}
}

// PullImages runs `docker pull` for refs with bounded concurrency.
func (r *Runner) PullImages(ctx context.Context, refs []string) []executor.PullResult {
	return executor.PullAll(ctx, refs, r.config.PullConcurrency, r.pull)
}

func (r *Runner) pull(ctx context.Context, ref string) executor.PullResult {
	ctx, cancel := context.WithTimeout(ctx, r.config.PullTimeout)
	defer cancel()

	start := time.Now()
	r.logger.Info("pulling image", slog.String("image", ref))

	out, err := exec.CommandContext(ctx, r.config.DockerBin, "pull", "--quiet", ref).CombinedOutput()
	elapsed := time.Since(start)
	if err != nil {
		r.logger.Warn("image pull failed",
			slog.String("image", ref),
			slog.String("error", err.Error()),
			slog.String("output", strings.TrimSpace(string(out))),
		)
		return executor.PullResult{Image: ref, Err: fmt.Errorf("pull %s: %w", ref, err), Duration: elapsed}
	}

	r.logger.Info("image ready", slog.String("image", ref), slog.Duration("duration", elapsed))
	return executor.PullResult{Image: ref, Duration: elapsed}
}
