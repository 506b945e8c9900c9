package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types/image"

	"github.com/sakif/coderunner/internal/executor"
)

// PullImages pulls refs with at most Config.PullConcurrency pulls in flight.
// A failed pull is reported, not fatal: the first run of that language will
// surface a launch failure instead.
func (r *Runner) PullImages(ctx context.Context, refs []string) []executor.PullResult {
	return executor.PullAll(ctx, refs, r.config.PullConcurrency, r.pull)
}

func (r *Runner) pull(ctx context.Context, ref string) executor.PullResult {
	ctx, cancel := context.WithTimeout(ctx, r.config.PullTimeout)
	defer cancel()

	start := time.Now()
	r.logger.Info("pulling image", slog.String("image", ref))

	reader, err := r.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		r.logger.Warn("image pull failed", slog.String("image", ref), slog.String("error", err.Error()))
		return executor.PullResult{Image: ref, Err: fmt.Errorf("pull %s: %w", ref, err), Duration: time.Since(start)}
	}
	defer reader.Close()

	// The pull only completes once the progress stream is drained.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		r.logger.Warn("image pull interrupted", slog.String("image", ref), slog.String("error", err.Error()))
		return executor.PullResult{Image: ref, Err: fmt.Errorf("pull %s: %w", ref, err), Duration: time.Since(start)}
	}

	elapsed := time.Since(start)
	r.logger.Info("image ready", slog.String("image", ref), slog.Duration("duration", elapsed))
	return executor.PullResult{Image: ref, Duration: elapsed}
}
