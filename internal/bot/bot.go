// Package bot binds a chat platform app to the command engine. It translates
// inbound messages into lifecycle commands, card actions into approval
// decisions, and workflow milestones back into chat messages and cards.
package bot

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/agentsocial/agentsocial/internal/common/errors"
	"github.com/agentsocial/agentsocial/internal/common/logger"
	"github.com/agentsocial/agentsocial/internal/lifecycle"
	"github.com/agentsocial/agentsocial/internal/platform"
	"github.com/agentsocial/agentsocial/internal/workspace"
	v1 "github.com/agentsocial/agentsocial/pkg/api/v1"
)

const (
	// replyLimit is the longest message sent back to chat. Longer output is
	// cut at truncateAt and marked.
	replyLimit = 4000
	truncateAt = 3900

	truncationMarker = "\n... (output truncated)"
)

// Engine accepts commands and decisions. Implemented by lifecycle.Manager.
type Engine interface {
	HandleCommand(ctx context.Context, cmd lifecycle.InboundCommand) (*v1.CommandRecord, error)
	HandleDecision(ctx context.Context, d lifecycle.Decision) error
}

// Bot serves one platform app identity.
type Bot struct {
	messenger   platform.Messenger
	listener    platform.Listener
	lifecycle   Engine
	workspaces  *workspace.Resolver
	projectRoot string
	logger      *logger.Logger
}

// New creates a Bot. projectRoot is granted to the agent on every run for
// this app; it may be empty.
func New(messenger platform.Messenger, listener platform.Listener, lc Engine, workspaces *workspace.Resolver, projectRoot string, log *logger.Logger) *Bot {
	if log == nil {
		log = logger.Default()
	}
	return &Bot{
		messenger:   messenger,
		listener:    listener,
		lifecycle:   lc,
		workspaces:  workspaces,
		projectRoot: projectRoot,
		logger:      log.WithFields(zap.String("component", "bot"), zap.String("app_id", messenger.AppID())),
	}
}

// AppID returns the platform app identity this bot serves.
func (b *Bot) AppID() string {
	return b.messenger.AppID()
}

// Run announces the bot, prewarms workspaces for joined chats, and serves
// the inbound event stream until the context is cancelled. An offline notice
// is sent on the way out.
func (b *Bot) Run(ctx context.Context) error {
	chats, err := b.messenger.JoinedChats(ctx)
	if err != nil {
		b.logger.Warn("listing joined chats failed", zap.Error(err))
	}
	for _, chatID := range chats {
		if b.workspaces != nil {
			if _, err := b.workspaces.Resolve(b.AppID(), chatID); err != nil {
				b.logger.Warn("workspace prewarm failed",
					zap.String("chat_id", chatID), zap.Error(err))
			}
		}
		_ = b.messenger.SendCard(ctx, chatID, statusCard("Agent online",
			"The coding agent is ready. Mention me with an instruction to get a plan."))
	}

	err = b.listener.Listen(ctx, b)

	offCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), offlineNoticeTimeout)
	defer cancel()
	for _, chatID := range chats {
		_ = b.messenger.SendCard(offCtx, chatID, statusCard("Agent offline",
			"The coding agent is shutting down. Queued work will resume after restart."))
	}

	if ctx.Err() != nil {
		return nil
	}
	return err
}

// HandleMessage turns a chat message into a new command lifecycle.
func (b *Bot) HandleMessage(ctx context.Context, msg platform.InboundMessage) {
	correlationID := msg.EventID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	_, err := b.lifecycle.HandleCommand(ctx, lifecycle.InboundCommand{
		AppID:         msg.AppID,
		ChatID:        msg.ChatID,
		Command:       msg.Text,
		CorrelationID: correlationID,
		ProjectRoot:   b.projectRoot,
	})
	if err != nil {
		if apperrors.IsDuplicate(err) {
			return
		}
		b.logger.Error("command rejected", zap.Error(err))
		_ = b.messenger.SendText(ctx, msg.ChatID, "Could not accept that command: "+err.Error())
		return
	}

	_ = b.messenger.SendText(ctx, msg.ChatID, "Got it. Drafting an execution plan...")
}

// HandleCardAction routes an approve/deny button press to the lifecycle.
func (b *Bot) HandleCardAction(ctx context.Context, action platform.CardAction) {
	err := b.lifecycle.HandleDecision(ctx, lifecycle.Decision{
		CorrelationID: action.CorrelationID,
		Approve:       action.Approve,
		EventID:       action.EventID,
	})
	if err != nil {
		if apperrors.IsDuplicate(err) {
			return
		}
		b.logger.Warn("decision rejected",
			zap.String("correlation_id", action.CorrelationID), zap.Error(err))
		_ = b.messenger.SendText(ctx, action.ChatID, "That decision could not be applied: "+err.Error())
	}
}

// PlanReady presents the drafted plan with approve/deny buttons.
func (b *Bot) PlanReady(ctx context.Context, rec *v1.CommandRecord) {
	card := decisionCard("Execution plan", truncateReply(rec.Plan), rec.CorrelationID,
		"Approve and execute", "Deny")
	if err := b.messenger.SendCard(ctx, rec.ChatID, card); err != nil {
		b.logger.Error("plan card delivery failed", zap.Error(err))
	}
}

// CommandFinished reports the terminal outcome of a command.
func (b *Bot) CommandFinished(ctx context.Context, rec *v1.CommandRecord) {
	var text string
	switch rec.State {
	case v1.CommandStateCompleted:
		text = "Done.\n" + truncateReply(rec.Output)
	case v1.CommandStateDenied:
		text = "Plan denied. Nothing was executed."
	case v1.CommandStateFailed:
		text = "The command failed."
		if rec.ExitCode != nil {
			text = fmt.Sprintf("The command failed (exit code %d).", *rec.ExitCode)
		}
		if rec.Output != "" {
			text += "\n" + truncateReply(rec.Output)
		}
	default:
		return
	}
	_ = b.messenger.SendText(ctx, rec.ChatID, text)
}

// AgentNotify relays a proactive notification from a running agent.
func (b *Bot) AgentNotify(ctx context.Context, appID, chatID, message string) {
	if appID != b.AppID() {
		return
	}
	_ = b.messenger.SendText(ctx, chatID, message)
}

// ApprovalRequested presents a sensitive-operation prompt with y/n buttons.
func (b *Bot) ApprovalRequested(ctx context.Context, rec *v1.CommandRecord, prompt string) {
	card := decisionCard("Approval needed", prompt, rec.CorrelationID, "Allow", "Reject")
	if err := b.messenger.SendCard(ctx, rec.ChatID, card); err != nil {
		b.logger.Error("approval card delivery failed", zap.Error(err))
	}
}

// truncateReply bounds a chat reply, cutting long output and marking the cut.
func truncateReply(s string) string {
	runes := []rune(s)
	if len(runes) <= replyLimit {
		return s
	}
	return string(runes[:truncateAt]) + truncationMarker
}
