package v1

import "time"

// RunMode selects the execution posture of an agent invocation.
type RunMode string

const (
	// RunModePlan runs the agent in read-only advisory mode. Plan runs always
	// start a fresh session so the plan reflects the current project state.
	RunModePlan RunMode = "plan"
	// RunModeAuto runs the agent with full autonomous tool use, resuming the
	// most recent session for the conversation's workspace when one exists.
	RunModeAuto RunMode = "auto"
)

// CommandState represents the lifecycle state of a user-issued command.
type CommandState string

const (
	CommandStatePlanRequested CommandState = "PLAN_REQUESTED"
	CommandStatePlanReady     CommandState = "PLAN_READY"
	CommandStateApproved      CommandState = "APPROVED"
	CommandStateDenied        CommandState = "DENIED"
	CommandStateExecuting     CommandState = "EXECUTING"
	CommandStateCompleted     CommandState = "COMPLETED"
	CommandStateFailed        CommandState = "FAILED"
)

// Terminal reports whether the state admits no further transitions.
func (s CommandState) Terminal() bool {
	return s == CommandStateCompleted || s == CommandStateFailed || s == CommandStateDenied
}

// CommandRecord is the persisted view of one user-issued command and its
// progress through the plan/approve/execute workflow.
type CommandRecord struct {
	ID            string       `json:"id"`
	CorrelationID string       `json:"correlation_id"`
	AppID         string       `json:"app_id"`
	ChatID        string       `json:"chat_id"`
	Command       string       `json:"command"`
	ProjectRoot   string       `json:"project_root,omitempty"`
	State         CommandState `json:"state"`
	Plan          string       `json:"plan,omitempty"`
	Output        string       `json:"output,omitempty"`
	ExitCode      *int         `json:"exit_code,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// ExecutionSnapshot describes one live agent process for the status API.
type ExecutionSnapshot struct {
	AppID     string    `json:"app_id"`
	ChatID    string    `json:"chat_id"`
	Mode      RunMode   `json:"mode"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}

// LaneSnapshot describes one conversation queue lane for the status API.
type LaneSnapshot struct {
	Key      string `json:"key"`
	Pending  int    `json:"pending"`
	InFlight bool   `json:"in_flight"`
}
