// Package executor runs untrusted code through the pipeline
// resolve → stage → build → run → assemble → teardown.
//
// The Engine owns the pipeline; a Runner (package docker or cli) owns the
// sandboxed process itself.
package executor

import (
	"context"
	"time"

	"github.com/sakif/coderunner/internal/sandbox"
)

// TimeoutMessage is the stderr text of every timed-out run.
const TimeoutMessage = "Execution timed out."

// DefaultTimeoutSeconds applies when a request does not name a timeout.
const DefaultTimeoutSeconds = 5

// ExecutionRequest is one submitted program.
type ExecutionRequest struct {
	Language       string  `json:"language"`
	Code           string  `json:"code"`
	Stdin          *string `json:"stdin,omitempty"`
	TimeoutSeconds int     `json:"timeoutSeconds,omitempty"`
}

// ExecutionResult is the response contract. ExitCode is nil exactly when
// TimedOut is true.
type ExecutionResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode *int   `json:"exitCode"`
	TimedOut bool   `json:"timedOut"`
}

// Executor represents the core interface for running code in an isolated environment.
type Executor interface {
	Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error)
}

// Outcome is what a Runner observed. ExitCode is meaningless when TimedOut is set.
type Outcome struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// Runner starts one sandboxed invocation and waits for it for at most timeout.
//
// On timeout the sandbox must be forcefully stopped before Run returns, and the
// Outcome reports TimedOut. Errors are reserved for runs that never started
// (apperror.ErrLaunch) or were cancelled through ctx.
type Runner interface {
	Run(ctx context.Context, inv sandbox.Invocation, timeout time.Duration) (*Outcome, error)
}

// PullResult reports one image warm-up pull.
type PullResult struct {
	Image    string
	Err      error
	Duration time.Duration
}

// Outcome is the metrics label of the pull.
func (p PullResult) Outcome() string {
	if p.Err != nil {
		return "error"
	}
	return "ok"
}

// ImagePuller pre-fetches runtime images so first runs do not pay for a pull.
type ImagePuller interface {
	PullImages(ctx context.Context, refs []string) []PullResult
}
