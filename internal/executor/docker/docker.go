// Package docker runs sandbox invocations through the Docker Engine API.
package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	specs "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/sakif/coderunner/internal/apperror"
	"github.com/sakif/coderunner/internal/executor"
	"github.com/sakif/coderunner/internal/sandbox"
)

// dockerClient is the slice of the Engine API the runner uses.
type dockerClient interface {
	Close() error
	ImagePull(ctx context.Context, ref string, opts image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *specs.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerKill(ctx context.Context, containerID, signal string) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
}

const languageLabel = "coderunner.language"

// Runner implements executor.Runner with one fresh container per run.
type Runner struct {
	cli    dockerClient
	config Config
	logger *slog.Logger
}

var (
	_ executor.Runner      = (*Runner)(nil)
	_ executor.ImagePuller = (*Runner)(nil)
)

// New connects to the daemon configured by the DOCKER_* environment.
func New(cfg Config, logger *slog.Logger) (*Runner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return newWithClient(cli, cfg, logger), nil
}

func newWithClient(cli dockerClient, cfg Config, logger *slog.Logger) *Runner {
	return &Runner{
		cli:    cli,
		config: cfg.normalize(),
		logger: logger,
	}
}

// Close releases the daemon connection.
func (r *Runner) Close() error {
	return r.cli.Close()
}

// Run creates, starts and waits for the container described by inv.
//
// The deadline covers start and wait. When it passes the container is killed
// before Run returns. The container is always force-removed.
func (r *Runner) Run(ctx context.Context, inv sandbox.Invocation, timeout time.Duration) (*executor.Outcome, error) {
	start := time.Now()

	config, hostConfig := containerSpec(inv)
	resp, err := r.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, inv.Name)
	if err != nil {
		return nil, apperror.LaunchFailed(fmt.Errorf("create container: %w", err))
	}
	defer r.remove(resp.ID)

	logger := r.logger.With(
		slog.String("sandbox", inv.Name),
		slog.String("container", shortID(resp.ID)),
	)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := r.cli.ContainerStart(runCtx, resp.ID, container.StartOptions{}); err != nil {
		if runCtx.Err() == nil {
			return nil, apperror.LaunchFailed(fmt.Errorf("start container: %w", err))
		}
	}

	status, err := r.waitForExit(runCtx, resp.ID)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			r.kill(resp.ID, logger)
			return nil, ctx.Err()
		case runCtx.Err() != nil:
			r.kill(resp.ID, logger)
			logger.Debug("container killed after deadline", slog.Duration("timeout", timeout))
			return &executor.Outcome{TimedOut: true, Duration: time.Since(start)}, nil
		default:
			return nil, apperror.LaunchFailed(err)
		}
	}
	duration := time.Since(start)

	stdout, stderr, err := r.fetchLogs(ctx, resp.ID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperror.LaunchFailed(fmt.Errorf("read container logs: %w", err))
	}

	return &executor.Outcome{
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: int(status.StatusCode),
		Duration: duration,
	}, nil
}

// containerSpec maps an invocation onto Engine API create options.
func containerSpec(inv sandbox.Invocation) (*container.Config, *container.HostConfig) {
	policy := inv.Policy
	pids := policy.PidsLimit

	config := &container.Config{
		Image:           inv.Image,
		Cmd:             inv.Command,
		WorkingDir:      inv.WorkDir,
		NetworkDisabled: policy.NetworkMode == "none",
		Labels:          map[string]string{languageLabel: string(inv.Language)},
	}

	hostConfig := &container.HostConfig{
		NetworkMode: container.NetworkMode(policy.NetworkMode),
		Mounts: []mount.Mount{{
			Type:     mount.TypeBind,
			Source:   inv.HostDir,
			Target:   inv.MountPath,
			ReadOnly: true,
		}},
		Resources: container.Resources{
			Memory:     policy.MemoryBytes,
			MemorySwap: policy.MemoryBytes,
			NanoCPUs:   policy.NanoCPUs,
			PidsLimit:  &pids,
		},
	}
	if policy.DropAllCaps {
		hostConfig.CapDrop = []string{"ALL"}
	}
	if policy.NoNewPrivileges {
		hostConfig.SecurityOpt = []string{"no-new-privileges"}
	}
	return config, hostConfig
}

func (r *Runner) waitForExit(ctx context.Context, containerID string) (*container.WaitResponse, error) {
	statusCh, errCh := r.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		if status.Error != nil {
			return nil, fmt.Errorf("container error: %s", status.Error.Message)
		}
		return &status, nil
	case err := <-errCh:
		return nil, fmt.Errorf("wait for container: %w", err)
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for container: %w", ctx.Err())
	}
}

func (r *Runner) fetchLogs(ctx context.Context, containerID string) (stdout, stderr string, err error) {
	logs, err := r.cli.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", "", err
	}
	defer logs.Close()

	outBuf := &executor.LimitedBuffer{Limit: r.config.OutputLimit}
	errBuf := &executor.LimitedBuffer{Limit: r.config.OutputLimit}
	if _, err := stdcopy.StdCopy(outBuf, errBuf, logs); err != nil {
		return "", "", err
	}
	return outBuf.String(), errBuf.String(), nil
}

// kill sends SIGKILL on a fresh context; the run context is already done.
func (r *Runner) kill(containerID string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.CleanupTimeout)
	defer cancel()

	if err := r.cli.ContainerKill(ctx, containerID, "KILL"); err != nil && !client.IsErrNotFound(err) {
		logger.Warn("failed to kill container", slog.String("error", err.Error()))
	}
}

func (r *Runner) remove(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.CleanupTimeout)
	defer cancel()

	err := r.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
	if err != nil && !client.IsErrNotFound(err) {
		r.logger.Error("failed to remove container",
			slog.String("container", shortID(containerID)),
			slog.String("error", err.Error()),
		)
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
