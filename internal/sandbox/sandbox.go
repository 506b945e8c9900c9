// Package sandbox turns a language descriptor and a staged workspace into a
// concrete isolated-execution invocation.
//
// The resource policy is a set of constants. Nothing in an execution request
// can influence the memory, CPU, process or network budget of its own run.
package sandbox

import (
	"fmt"
	"path"
	"strconv"

	"github.com/sakif/coderunner/internal/language"
	"github.com/sakif/coderunner/internal/workspace"
)

const (
	// MountPath is where the workspace is bind-mounted, read-only.
	MountPath = "/workspace"
	// WorkDir is the in-sandbox working directory.
	WorkDir = MountPath

	namePrefix = "coderunner-"
)

// Policy is the fixed resource and isolation budget of every run.
type Policy struct {
	NetworkMode     string // "none" disables networking
	MemoryBytes     int64  // memory ceiling; swap is pinned to the same value
	NanoCPUs        int64  // CPU share in units of 1e-9 cores
	PidsLimit       int64  // fork bomb guard; counts threads too
	DropAllCaps     bool
	NoNewPrivileges bool
}

// DefaultPolicy: no network, 256 MiB, half a core.
var DefaultPolicy = Policy{
	NetworkMode:     "none",
	MemoryBytes:     256 * 1024 * 1024,
	NanoCPUs:        500_000_000,
	// The JVM and the go toolchain size thread pools from the host core
	// count, not the CPU quota.
	PidsLimit:       256,
	DropAllCaps:     true,
	NoNewPrivileges: true,
}

// CPUs returns the CPU share as a fractional core count.
func (p Policy) CPUs() float64 {
	return float64(p.NanoCPUs) / 1e9
}

// Invocation is everything a runner needs to start one sandboxed program.
type Invocation struct {
	Name      string // unique container name
	Language  language.Language
	Image     string
	HostDir   string // workspace directory on the host
	MountPath string
	WorkDir   string
	Command   []string // argv run inside the sandbox
	Policy    Policy
}

// Script returns the shell command the invocation runs.
func (inv Invocation) Script() string {
	if len(inv.Command) == 0 {
		return ""
	}
	return inv.Command[len(inv.Command)-1]
}

// Build composes the invocation for a staged workspace.
//
// Only the in-sandbox source path and working directory are substituted into
// the template. When the workspace carries a stdin file, the command reads it
// through a redirect from a fixed path.
func Build(desc language.Descriptor, ws *workspace.Workspace) (Invocation, error) {
	if ws == nil {
		return Invocation{}, fmt.Errorf("sandbox: nil workspace")
	}
	if err := language.ValidateTemplate(desc.Template); err != nil {
		return Invocation{}, fmt.Errorf("sandbox: %w", err)
	}

	file := path.Join(MountPath, ws.SourceName)
	script := language.Render(desc.Template, file, WorkDir)
	if ws.HasStdin {
		script = "( " + script + " ) < " + path.Join(MountPath, workspace.StdinName)
	}

	return Invocation{
		Name:      namePrefix + ws.Name,
		Language:  desc.Language,
		Image:     desc.Image,
		HostDir:   ws.Dir,
		MountPath: MountPath,
		WorkDir:   WorkDir,
		Command:   []string{"bash", "-c", script},
		Policy:    DefaultPolicy,
	}, nil
}

// DockerArgs renders the invocation as arguments to the docker CLI, starting
// with the "run" subcommand.
func (inv Invocation) DockerArgs() []string {
	args := []string{
		"run", "--rm",
		"--name", inv.Name,
		"--network", inv.Policy.NetworkMode,
		"--memory", strconv.FormatInt(inv.Policy.MemoryBytes, 10),
		"--memory-swap", strconv.FormatInt(inv.Policy.MemoryBytes, 10),
		"--cpus", strconv.FormatFloat(inv.Policy.CPUs(), 'f', -1, 64),
		"--pids-limit", strconv.FormatInt(inv.Policy.PidsLimit, 10),
	}
	if inv.Policy.DropAllCaps {
		args = append(args, "--cap-drop", "ALL")
	}
	if inv.Policy.NoNewPrivileges {
		args = append(args, "--security-opt", "no-new-privileges")
	}
	args = append(args,
		"-v", inv.HostDir+":"+inv.MountPath+":ro",
		"--workdir", inv.WorkDir,
		inv.Image,
	)
	return append(args, inv.Command...)
}
