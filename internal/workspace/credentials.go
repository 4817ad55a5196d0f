package workspace

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/agentsocial/agentsocial/internal/common/logger"
	"go.uber.org/zap"
)

// Projector copies an agent CLI's authentication artifacts from the operator's
// global state directory into a workspace-local state directory, so the agent
// process can authenticate while its state home is redirected into the
// workspace.
//
// Projection is best effort. Missing source artifacts are skipped, and a
// failed artifact never blocks the run; the agent will surface its own
// authentication error if credentials turn out to be required.
type Projector struct {
	sourceDir string
	stateDir  string
	artifacts []string
	logger    *logger.Logger

	mu   sync.Mutex
	done map[string]struct{}
}

// NewProjector creates a Projector.
//
// sourceDir is the global credential directory (for example ~/.gemini).
// stateDir is the name of the state directory created inside each workspace
// (for example ".gemini"). artifacts lists the file names to project.
func NewProjector(sourceDir, stateDir string, artifacts []string, log *logger.Logger) *Projector {
	if log == nil {
		log = logger.Default()
	}
	return &Projector{
		sourceDir: sourceDir,
		stateDir:  stateDir,
		artifacts: artifacts,
		logger:    log.WithFields(zap.String("component", "credentials")),
		done:      make(map[string]struct{}),
	}
}

// StateDir returns the workspace-local state directory for a workspace.
func (p *Projector) StateDir(workspaceDir string) string {
	return filepath.Join(workspaceDir, p.stateDir)
}

// Project ensures the workspace-local state directory exists and holds the
// credential artifacts. Each workspace is projected at most once per process;
// later calls return immediately.
func (p *Projector) Project(workspaceDir string) error {
	p.mu.Lock()
	if _, ok := p.done[workspaceDir]; ok {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	target := p.StateDir(workspaceDir)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return err
	}

	for _, name := range p.artifacts {
		src := filepath.Join(p.sourceDir, name)
		dst := filepath.Join(target, name)

		if _, err := os.Stat(dst); err == nil {
			continue
		}
		if _, err := os.Stat(src); err != nil {
			continue
		}

		// Hard links keep token refreshes visible in both places.
		// Fall back to a copy when linking is not possible.
		if err := os.Link(src, dst); err != nil {
			if err := copyFile(src, dst); err != nil {
				p.logger.Warn("credential artifact projection failed",
					zap.String("artifact", name), zap.Error(err))
				continue
			}
		}
		p.logger.Debug("credential artifact projected",
			zap.String("artifact", name), zap.String("workspace", workspaceDir))
	}

	p.mu.Lock()
	p.done[workspaceDir] = struct{}{}
	p.mu.Unlock()
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
