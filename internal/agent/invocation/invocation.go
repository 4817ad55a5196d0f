// Package invocation builds agent CLI command lines.
//
// Building is pure: no process is spawned here. Arguments are assembled as an
// argv slice, never a shell string, so command text from chat can not inject
// extra arguments or shell syntax.
package invocation

import (
	"fmt"
	"runtime"

	"github.com/agentsocial/agentsocial/internal/agent/registry"
	v1 "github.com/agentsocial/agentsocial/pkg/api/v1"
)

// Request describes one agent run to build a command line for.
type Request struct {
	Profile *registry.Profile
	Mode    v1.RunMode

	// Command is the user's instruction text.
	Command string

	// WorkspaceDir holds the conversation's agent state. It becomes the
	// working directory only when no project root is configured.
	WorkspaceDir string

	// ProjectRoot, when set, is the process working directory and is granted
	// to the agent via the profile's include-directory flag.
	ProjectRoot string

	// Resume requests resumption of the latest session. Honored only in
	// autonomous mode; plan runs always start fresh.
	Resume bool
}

// Invocation is a fully assembled command line ready to spawn.
type Invocation struct {
	Path string
	Args []string
	Dir  string
}

// Build assembles the command line for a run.
func Build(req Request) (*Invocation, error) {
	p := req.Profile
	if p == nil {
		return nil, fmt.Errorf("invocation: profile is required")
	}
	if req.Command == "" {
		return nil, fmt.Errorf("invocation: command text is required")
	}
	if req.WorkspaceDir == "" {
		return nil, fmt.Errorf("invocation: workspace directory is required")
	}

	command := req.Command
	var args []string

	switch req.Mode {
	case v1.RunModePlan:
		args = append(args, p.PlanArgs...)
		command += p.PlanSuffix
	case v1.RunModeAuto:
		args = append(args, p.AutoArgs...)
		if req.Resume {
			args = append(args, p.ResumeArgs...)
		}
	default:
		return nil, fmt.Errorf("invocation: unknown run mode %q", req.Mode)
	}

	if req.ProjectRoot != "" && p.IncludeDirFlag != "" {
		args = append(args, p.IncludeDirFlag, req.ProjectRoot)
	}

	args = append(args, p.PromptFlag, command)

	path := p.Executable
	// Node-based CLIs install as .cmd shims on Windows, which exec cannot
	// start directly.
	if runtime.GOOS == "windows" {
		args = append([]string{"/c", path}, args...)
		path = "cmd"
	}

	// The agent works on the project tree; only its state home lives in the
	// workspace, redirected through the profile's state-home env var.
	dir := req.ProjectRoot
	if dir == "" {
		dir = req.WorkspaceDir
	}

	return &Invocation{Path: path, Args: args, Dir: dir}, nil
}

// WithoutResume returns a copy of the request with session resumption
// disabled, for the single retry after a resume miss.
func (r Request) WithoutResume() Request {
	r.Resume = false
	return r
}
