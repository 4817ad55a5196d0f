// Package lifecycle drives the plan/approve/execute state machine for
// user-issued commands.
//
// One lifecycle exists per command, keyed by the upstream correlation ID.
// Inbound events arrive at-least-once; a capacity-bounded idempotency guard
// drops replays before they reach the state machine. The valid transitions:
//
//	PLAN_REQUESTED -> PLAN_READY -> APPROVED -> EXECUTING -> COMPLETED | FAILED
//	PLAN_REQUESTED -> FAILED
//	PLAN_READY -> DENIED
//
// Sensitive-operation approvals during EXECUTING are forwarded straight to
// the running process's stdin and do not change the lifecycle state.
package lifecycle

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/agentsocial/agentsocial/internal/agent/executor"
	apperrors "github.com/agentsocial/agentsocial/internal/common/errors"
	"github.com/agentsocial/agentsocial/internal/common/logger"
	"github.com/agentsocial/agentsocial/internal/events/bus"
	"github.com/agentsocial/agentsocial/internal/lifecycle/store"
	"github.com/agentsocial/agentsocial/internal/queue"
	v1 "github.com/agentsocial/agentsocial/pkg/api/v1"
)

// InboundCommand is a user instruction delivered by a platform adapter.
type InboundCommand struct {
	AppID         string
	ChatID        string
	Command       string
	CorrelationID string
	ProjectRoot   string
}

// Decision is an approval verdict delivered by a platform adapter.
type Decision struct {
	CorrelationID string
	Approve       bool
	// EventID deduplicates the upstream delivery, distinct from the
	// correlation ID which names the command.
	EventID string
}

// TaskQueue serializes runs per conversation.
type TaskQueue interface {
	Enqueue(ctx context.Context, task queue.Task) <-chan queue.Result
}

// Responder injects input into a live agent process.
type Responder interface {
	Respond(appID, chatID, input string) bool
}

// Listener receives workflow milestones for presentation to the user.
// Implementations must not block; they are called from workflow goroutines.
type Listener interface {
	PlanReady(ctx context.Context, rec *v1.CommandRecord)
	CommandFinished(ctx context.Context, rec *v1.CommandRecord)
	AgentNotify(ctx context.Context, appID, chatID, message string)
	ApprovalRequested(ctx context.Context, rec *v1.CommandRecord, prompt string)
}

// Manager coordinates command lifecycles.
type Manager struct {
	queue     TaskQueue
	responder Responder
	store     store.Store
	bus       bus.EventBus
	logger    *logger.Logger
	guard     *idempotencyGuard

	mu       sync.RWMutex
	listener Listener
}

// NewManager creates a lifecycle Manager. The bus may be nil in tests.
func NewManager(q TaskQueue, responder Responder, st store.Store, eventBus bus.EventBus, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Default()
	}
	return &Manager{
		queue:     q,
		responder: responder,
		store:     st,
		bus:       eventBus,
		logger:    log.WithFields(zap.String("component", "lifecycle")),
		guard:     newIdempotencyGuard(1000),
	}
}

// SetListener registers the presentation-layer listener.
func (m *Manager) SetListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = l
}

func (m *Manager) getListener() Listener {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listener
}

// HandleCommand starts a new lifecycle: it persists the command, enqueues the
// plan run, and returns immediately. Replayed deliveries are rejected with a
// duplicate error.
func (m *Manager) HandleCommand(ctx context.Context, cmd InboundCommand) (*v1.CommandRecord, error) {
	if cmd.Command == "" {
		return nil, apperrors.BadRequest("command text is required")
	}
	if !m.guard.markIfNew(cmd.CorrelationID) {
		return nil, apperrors.Duplicate(cmd.CorrelationID)
	}

	rec := &v1.CommandRecord{
		CorrelationID: cmd.CorrelationID,
		AppID:         cmd.AppID,
		ChatID:        cmd.ChatID,
		Command:       cmd.Command,
		ProjectRoot:   cmd.ProjectRoot,
		State:         v1.CommandStatePlanRequested,
	}
	if err := m.store.Create(ctx, rec); err != nil {
		return nil, apperrors.Wrap(err, "persisting command")
	}

	m.logger.Info("command accepted",
		zap.String("correlation_id", cmd.CorrelationID),
		zap.String("app_id", cmd.AppID),
		zap.String("chat_id", cmd.ChatID))

	go m.runPlan(context.WithoutCancel(ctx), rec, cmd)
	return rec, nil
}

func (m *Manager) runPlan(ctx context.Context, rec *v1.CommandRecord, cmd InboundCommand) {
	results := m.queue.Enqueue(ctx, queue.Task{Request: executor.RunRequest{
		AppID:       cmd.AppID,
		ChatID:      cmd.ChatID,
		Mode:        v1.RunModePlan,
		Command:     cmd.Command,
		ProjectRoot: cmd.ProjectRoot,
		OnNotify:    m.notifyFunc(ctx, cmd.AppID, cmd.ChatID),
	}})

	res := <-results
	if res.Err != nil {
		m.fail(ctx, rec, "", res.Err)
		return
	}
	if !res.Execution.Success() {
		code := res.Execution.ExitCode
		rec.ExitCode = &code
		rec.Output = res.Execution.Stderr
		m.fail(ctx, rec, res.Execution.Stderr, nil)
		return
	}

	rec.State = v1.CommandStatePlanReady
	rec.Plan = res.Execution.Output
	if err := m.store.Update(ctx, rec); err != nil {
		m.logger.Error("persisting plan failed", zap.Error(err))
	}

	m.publish(ctx, bus.SubjectPlanReady, "plan_ready", rec, nil)
	if l := m.getListener(); l != nil {
		l.PlanReady(ctx, rec)
	}
}

// HandleDecision routes an approval verdict. For a command awaiting plan
// approval it advances or terminates the lifecycle; for an executing command
// it injects the verdict into the live process.
func (m *Manager) HandleDecision(ctx context.Context, d Decision) error {
	if !m.guard.markIfNew(d.EventID) {
		return apperrors.Duplicate(d.EventID)
	}

	rec, err := m.store.GetByCorrelation(ctx, d.CorrelationID)
	if err != nil {
		return err
	}

	switch rec.State {
	case v1.CommandStatePlanReady:
		if d.Approve {
			return m.approve(ctx, rec)
		}
		return m.deny(ctx, rec)

	case v1.CommandStateExecuting:
		token := "n"
		if d.Approve {
			token = "y"
		}
		m.responder.Respond(rec.AppID, rec.ChatID, token)
		return nil

	default:
		return apperrors.NotAwaitingApproval(d.CorrelationID)
	}
}

func (m *Manager) approve(ctx context.Context, rec *v1.CommandRecord) error {
	rec.State = v1.CommandStateApproved
	if err := m.store.Update(ctx, rec); err != nil {
		return apperrors.Wrap(err, "persisting approval")
	}

	m.logger.Info("plan approved",
		zap.String("correlation_id", rec.CorrelationID),
		zap.String("chat_id", rec.ChatID))

	go m.runAuto(context.WithoutCancel(ctx), rec)
	return nil
}

func (m *Manager) deny(ctx context.Context, rec *v1.CommandRecord) error {
	rec.State = v1.CommandStateDenied
	if err := m.store.Update(ctx, rec); err != nil {
		return apperrors.Wrap(err, "persisting denial")
	}

	m.logger.Info("plan denied",
		zap.String("correlation_id", rec.CorrelationID),
		zap.String("chat_id", rec.ChatID))

	m.publish(ctx, bus.SubjectCommandCompleted, "denied", rec, nil)
	if l := m.getListener(); l != nil {
		l.CommandFinished(ctx, rec)
	}
	return nil
}

func (m *Manager) runAuto(ctx context.Context, rec *v1.CommandRecord) {
	rec.State = v1.CommandStateExecuting
	if err := m.store.Update(ctx, rec); err != nil {
		m.logger.Error("persisting execution start failed", zap.Error(err))
	}

	results := m.queue.Enqueue(ctx, queue.Task{Request: executor.RunRequest{
		AppID:       rec.AppID,
		ChatID:      rec.ChatID,
		Mode:        v1.RunModeAuto,
		Command:     rec.Command,
		ProjectRoot: rec.ProjectRoot,
		OnNotify:    m.notifyFunc(ctx, rec.AppID, rec.ChatID),
		OnApprovalPrompt: func(prompt string) {
			m.publish(ctx, bus.SubjectApprovalRequested, "approval_requested", rec, map[string]interface{}{
				"prompt": prompt,
			})
			if l := m.getListener(); l != nil {
				l.ApprovalRequested(ctx, rec, prompt)
			}
		},
	}})

	res := <-results
	if res.Err != nil {
		m.fail(ctx, rec, "", res.Err)
		return
	}

	code := res.Execution.ExitCode
	rec.ExitCode = &code
	rec.Output = res.Execution.Output
	if res.Execution.Success() {
		rec.State = v1.CommandStateCompleted
	} else {
		rec.State = v1.CommandStateFailed
		if rec.Output == "" {
			rec.Output = res.Execution.Stderr
		}
	}
	if err := m.store.Update(ctx, rec); err != nil {
		m.logger.Error("persisting result failed", zap.Error(err))
	}

	m.publish(ctx, bus.SubjectCommandCompleted, string(rec.State), rec, nil)
	if l := m.getListener(); l != nil {
		l.CommandFinished(ctx, rec)
	}
}

func (m *Manager) fail(ctx context.Context, rec *v1.CommandRecord, detail string, cause error) {
	rec.State = v1.CommandStateFailed
	if detail != "" && rec.Output == "" {
		rec.Output = detail
	}
	if err := m.store.Update(ctx, rec); err != nil {
		m.logger.Error("persisting failure failed", zap.Error(err))
	}

	m.logger.Warn("command failed",
		zap.String("correlation_id", rec.CorrelationID),
		zap.String("chat_id", rec.ChatID),
		zap.Error(cause))

	m.publish(ctx, bus.SubjectCommandCompleted, "failed", rec, nil)
	if l := m.getListener(); l != nil {
		l.CommandFinished(ctx, rec)
	}
}

func (m *Manager) notifyFunc(ctx context.Context, appID, chatID string) func(string) {
	return func(message string) {
		m.publish(ctx, bus.SubjectAgentNotify, "notify", nil, map[string]interface{}{
			"app_id":  appID,
			"chat_id": chatID,
			"message": message,
		})
		if l := m.getListener(); l != nil {
			l.AgentNotify(ctx, appID, chatID, message)
		}
	}
}

func (m *Manager) publish(ctx context.Context, subject, eventType string, rec *v1.CommandRecord, extra map[string]interface{}) {
	if m.bus == nil {
		return
	}

	data := make(map[string]interface{}, 4+len(extra))
	if rec != nil {
		data["correlation_id"] = rec.CorrelationID
		data["app_id"] = rec.AppID
		data["chat_id"] = rec.ChatID
		data["state"] = string(rec.State)
	}
	for k, v := range extra {
		data[k] = v
	}

	if err := m.bus.Publish(ctx, subject, bus.NewEvent(eventType, "lifecycle", data)); err != nil {
		m.logger.Warn("event publish failed",
			zap.String("subject", subject), zap.Error(err))
	}
}
