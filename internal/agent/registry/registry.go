// Package registry manages the CLI coding-agent profiles the engine can drive.
//
// A profile captures everything invocation building and output scanning need
// to know about one agent CLI: its executable, the flags for plan and
// autonomous modes, how session resumption is requested, which stderr lines
// mean a resume failed, and which credential artifacts the agent expects in
// its state directory.
package registry

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/agentsocial/agentsocial/internal/common/logger"
)

// Profile holds configuration for one agent CLI.
type Profile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// Executable is the binary name or path to spawn.
	Executable string `json:"executable"`

	// PromptFlag passes the user command text (e.g. "-p").
	PromptFlag string `json:"prompt_flag"`

	// PlanArgs select read-only advisory mode (e.g. "--approval-mode plan").
	PlanArgs []string `json:"plan_args"`

	// PlanSuffix is appended to the command text in plan mode.
	PlanSuffix string `json:"plan_suffix,omitempty"`

	// AutoArgs select full autonomous mode (e.g. "--yolo").
	AutoArgs []string `json:"auto_args"`

	// ResumeArgs request resumption of the latest session (e.g. "--resume latest").
	// Only autonomous runs resume; plan runs always start fresh.
	ResumeArgs []string `json:"resume_args"`

	// IncludeDirFlag grants the agent access to a directory outside its
	// working directory (e.g. "--include-directories").
	IncludeDirFlag string `json:"include_dir_flag,omitempty"`

	// StateHomeEnv is the environment variable that relocates the agent's
	// state directory. Pointing it at the workspace keeps session history
	// per conversation.
	StateHomeEnv string `json:"state_home_env"`

	// StateDirName is the dot-directory the agent keeps under its state home
	// (e.g. ".gemini").
	StateDirName string `json:"state_dir_name"`

	// CredentialArtifacts are the file names projected from the operator's
	// global state directory into each workspace.
	CredentialArtifacts []string `json:"credential_artifacts,omitempty"`

	// ResumeMissSignatures are stderr substrings that mean the requested
	// session resumption failed and the run should be retried once without
	// the resume arguments.
	ResumeMissSignatures []string `json:"resume_miss_signatures,omitempty"`

	// NotifyMarker introduces a proactive notification line on stdout.
	NotifyMarker string `json:"notify_marker,omitempty"`

	// ApprovalMarker introduces a sensitive-operation approval request line
	// on stdout. The answer is written back to the process's stdin.
	ApprovalMarker string `json:"approval_marker,omitempty"`

	// ExtraEnv is merged into every spawned process environment.
	ExtraEnv map[string]string `json:"extra_env,omitempty"`

	Enabled bool `json:"enabled"`
}

// Registry manages agent profiles.
type Registry struct {
	profiles map[string]*Profile
	mu       sync.RWMutex
	logger   *logger.Logger
}

// NewRegistry creates a new profile registry.
func NewRegistry(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Default()
	}
	return &Registry{
		profiles: make(map[string]*Profile),
		logger:   log.WithFields(zap.String("component", "registry")),
	}
}

// LoadDefaults registers the built-in profiles.
func (r *Registry) LoadDefaults() {
	defaults := DefaultProfiles()

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range defaults {
		r.profiles[p.ID] = p
		r.logger.Info("loaded default agent profile", zap.String("id", p.ID))
	}
}

// Register adds a new agent profile.
func (r *Registry) Register(p *Profile) error {
	if err := ValidateProfile(p); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.profiles[p.ID]; exists {
		return fmt.Errorf("agent profile %q already registered", p.ID)
	}

	r.profiles[p.ID] = p
	r.logger.Info("registered agent profile", zap.String("id", p.ID))
	return nil
}

// Get returns an agent profile by ID.
func (r *Registry) Get(id string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.profiles[id]
	if !exists {
		return nil, fmt.Errorf("agent profile %q not found", id)
	}
	return p, nil
}

// GetDefault returns the default agent profile.
// It tries "gemini" first, then falls back to the first enabled profile.
func (r *Registry) GetDefault() (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, exists := r.profiles["gemini"]; exists && p.Enabled {
		return p, nil
	}
	for _, p := range r.profiles {
		if p.Enabled {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no default agent profile available")
}

// List returns all registered profiles.
func (r *Registry) List() []*Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		result = append(result, p)
	}
	return result
}

// Exists checks if a profile is registered.
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.profiles[id]
	return exists
}

// ValidateProfile validates an agent profile.
func ValidateProfile(p *Profile) error {
	if p.ID == "" {
		return fmt.Errorf("agent profile ID is required")
	}
	if p.Name == "" {
		return fmt.Errorf("agent profile name is required")
	}
	if p.Executable == "" {
		return fmt.Errorf("agent profile executable is required")
	}
	if p.PromptFlag == "" {
		return fmt.Errorf("agent profile prompt flag is required")
	}
	if p.StateHomeEnv == "" {
		return fmt.Errorf("agent profile state home variable is required")
	}
	return nil
}
