// Package workspace stages submitted source code into per-request temporary
// directories and removes them afterwards.
//
// OWNERSHIP:
// A Workspace belongs to exactly one execution request. Its directory name is
// "run-<xid>": xid is unique across goroutines and processes, and nothing from
// the request leaks into the path.
//
// Callers must pair every successful Stage with a deferred Teardown:
//
//	ws, err := mgr.Stage(desc, code, stdin)
//	if err != nil { ... }
//	defer mgr.Teardown(ws)
package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/xid"

	"github.com/sakif/coderunner/internal/apperror"
	"github.com/sakif/coderunner/internal/language"
	"github.com/sakif/coderunner/internal/metrics"
)

// StdinName is the file the optional stdin payload is written to.
const StdinName = "input.txt"

// The container user may differ from the host user, so staged content must be
// world-readable. It is mounted read-only, so it never needs to be writable.
const (
	dirMode  os.FileMode = 0o755
	fileMode os.FileMode = 0o644
)

// Workspace is one staged request.
type Workspace struct {
	Name       string // run-<xid>
	Dir        string // absolute host path
	SourceName string // code.<ext> or Main.java
	HasStdin   bool

	teardown sync.Once
}

// SourcePath is the host path of the staged source file.
func (w *Workspace) SourcePath() string {
	return filepath.Join(w.Dir, w.SourceName)
}

// StdinPath is the host path of the stdin file, or "" when none was staged.
func (w *Workspace) StdinPath() string {
	if !w.HasStdin {
		return ""
	}
	return filepath.Join(w.Dir, StdinName)
}

// Manager creates and destroys workspaces under a root directory.
type Manager struct {
	root   string
	logger *slog.Logger
}

// NewManager returns a Manager rooted at root; an empty root means os.TempDir().
// The root is created if missing.
func NewManager(root string, logger *slog.Logger) (*Manager, error) {
	if root == "" {
		root = os.TempDir()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, dirMode); err != nil {
		return nil, fmt.Errorf("creating workspace root: %w", err)
	}
	return &Manager{root: abs, logger: logger}, nil
}

// Root returns the absolute directory workspaces are created in.
func (m *Manager) Root() string {
	return m.root
}

// Stage creates a fresh directory, writes the source file and, when stdin is
// non-nil, the stdin file. On error nothing is left on disk.
func (m *Manager) Stage(desc language.Descriptor, code string, stdin *string) (*Workspace, error) {
	name := "run-" + xid.New().String()
	dir := filepath.Join(m.root, name)

	// os.Mkdir (not MkdirAll) fails if the name is somehow taken.
	if err := os.Mkdir(dir, dirMode); err != nil {
		return nil, apperror.StagingFailed(fmt.Errorf("creating %s: %w", name, err))
	}
	// Mkdir is subject to umask; the container must still be able to traverse it.
	if err := os.Chmod(dir, dirMode); err != nil {
		m.remove(dir)
		return nil, apperror.StagingFailed(fmt.Errorf("chmod %s: %w", name, err))
	}

	ws := &Workspace{
		Name:       name,
		Dir:        dir,
		SourceName: desc.SourceName(),
	}

	if err := writeFile(ws.SourcePath(), code); err != nil {
		m.remove(dir)
		return nil, apperror.StagingFailed(err)
	}

	if stdin != nil {
		ws.HasStdin = true
		if err := writeFile(ws.StdinPath(), *stdin); err != nil {
			m.remove(dir)
			return nil, apperror.StagingFailed(err)
		}
	}

	m.logger.Debug("workspace staged",
		slog.String("workspace", name),
		slog.String("language", string(desc.Language)),
		slog.Bool("stdin", ws.HasStdin),
	)
	return ws, nil
}

// Teardown removes the workspace directory. It runs at most once per workspace
// and never fails the caller: removal errors are logged and counted.
func (m *Manager) Teardown(ws *Workspace) {
	if ws == nil {
		return
	}
	ws.teardown.Do(func() {
		m.remove(ws.Dir)
	})
}

func (m *Manager) remove(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		metrics.TeardownFailures.Inc()
		m.logger.Error("failed to remove workspace",
			slog.String("dir", dir),
			slog.String("error", err.Error()),
		)
		return
	}
	m.logger.Debug("workspace removed", slog.String("dir", dir))
}

func writeFile(path, content string) error {
	if err := os.WriteFile(path, []byte(content), fileMode); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	// WriteFile honours umask; make sure the sandbox user can read it.
	if err := os.Chmod(path, fileMode); err != nil {
		return fmt.Errorf("chmod %s: %w", filepath.Base(path), err)
	}
	return nil
}
