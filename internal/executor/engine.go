package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/coderunner/internal/apperror"
	"github.com/sakif/coderunner/internal/language"
	"github.com/sakif/coderunner/internal/metrics"
	"github.com/sakif/coderunner/internal/sandbox"
	"github.com/sakif/coderunner/internal/workspace"
)

// Config bounds request timeouts.
type Config struct {
	DefaultTimeout time.Duration
	MaxTimeout     time.Duration
}

// DefaultConfig: 5 second default, 30 second ceiling.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout: DefaultTimeoutSeconds * time.Second,
		MaxTimeout:     30 * time.Second,
	}
}

// Engine implements Executor. It holds no per-request state, so one Engine
// serves any number of concurrent requests.
type Engine struct {
	workspaces *workspace.Manager
	runner     Runner
	config     Config
	logger     *slog.Logger
}

var _ Executor = (*Engine)(nil)

// NewEngine wires the pipeline together.
func NewEngine(workspaces *workspace.Manager, runner Runner, cfg Config, logger *slog.Logger) *Engine {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTimeoutSeconds * time.Second
	}
	if cfg.MaxTimeout < cfg.DefaultTimeout {
		cfg.MaxTimeout = cfg.DefaultTimeout
	}
	return &Engine{
		workspaces: workspaces,
		runner:     runner,
		config:     cfg,
		logger:     logger,
	}
}

// Execute runs one request.
//
// An unsupported language is rejected before anything touches the filesystem.
// Once a workspace is staged it is torn down on every return path.
func (e *Engine) Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error) {
	desc, err := language.Resolve(req.Language)
	if err != nil {
		metrics.ExecutionsTotal.WithLabelValues("unknown", metrics.OutcomeUnsupported).Inc()
		return nil, err
	}
	lang := string(desc.Language)

	timeout, err := e.timeout(req.TimeoutSeconds)
	if err != nil {
		metrics.ExecutionsTotal.WithLabelValues(lang, metrics.OutcomeInvalid).Inc()
		return nil, err
	}

	ws, err := e.workspaces.Stage(desc, req.Code, req.Stdin)
	if err != nil {
		metrics.ExecutionsTotal.WithLabelValues(lang, metrics.OutcomeStagingFailed).Inc()
		e.logger.Error("staging failed",
			slog.String("language", lang),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer e.workspaces.Teardown(ws)

	inv, err := sandbox.Build(desc, ws)
	if err != nil {
		metrics.ExecutionsTotal.WithLabelValues(lang, metrics.OutcomeLaunchFailed).Inc()
		return nil, apperror.LaunchFailed(err)
	}

	metrics.ActiveExecutions.Inc()
	out, err := e.runner.Run(ctx, inv, timeout)
	metrics.ActiveExecutions.Dec()
	if err != nil {
		return nil, e.runFailed(lang, inv.Name, err)
	}

	result := Assemble(*out)
	metrics.ExecutionDuration.WithLabelValues(lang).Observe(out.Duration.Seconds())

	if result.TimedOut {
		metrics.ExecutionsTotal.WithLabelValues(lang, metrics.OutcomeTimedOut).Inc()
		e.logger.Warn("execution timed out",
			slog.String("language", lang),
			slog.String("sandbox", inv.Name),
			slog.Duration("timeout", timeout),
		)
		return &result, nil
	}

	metrics.ExecutionsTotal.WithLabelValues(lang, metrics.OutcomeCompleted).Inc()
	e.logger.Info("execution completed",
		slog.String("language", lang),
		slog.String("sandbox", inv.Name),
		slog.Int("exitCode", *result.ExitCode),
		slog.Duration("duration", out.Duration),
	)
	return &result, nil
}

// runFailed classifies a runner error. Cancellation passes through unchanged;
// everything else is a launch failure.
func (e *Engine) runFailed(lang, name string, err error) error {
	if errors.Is(err, context.Canceled) {
		e.logger.Info("execution cancelled",
			slog.String("language", lang),
			slog.String("sandbox", name),
		)
		return err
	}

	metrics.ExecutionsTotal.WithLabelValues(lang, metrics.OutcomeLaunchFailed).Inc()
	e.logger.Error("sandbox launch failed",
		slog.String("language", lang),
		slog.String("sandbox", name),
		slog.String("error", err.Error()),
	)
	if errors.Is(err, apperror.ErrLaunch) {
		return err
	}
	return apperror.LaunchFailed(err)
}

// timeout turns the requested seconds into the wall-clock budget:
// 0 means the default, negatives are rejected, anything above the ceiling is clamped.
func (e *Engine) timeout(seconds int) (time.Duration, error) {
	if seconds < 0 {
		return 0, apperror.ValidationFailed("timeoutSeconds",
			fmt.Sprintf("timeoutSeconds must be positive, got %d", seconds))
	}
	if seconds == 0 {
		return e.config.DefaultTimeout, nil
	}
	// Compare in seconds first; a huge value would overflow time.Duration.
	if int64(seconds) > int64(e.config.MaxTimeout/time.Second) {
		e.logger.Debug("clamping timeout",
			slog.Int("requested", seconds),
			slog.Duration("max", e.config.MaxTimeout),
		)
		return e.config.MaxTimeout, nil
	}
	return time.Duration(seconds) * time.Second, nil
}
