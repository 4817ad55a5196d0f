package bot

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/agentsocial/agentsocial/internal/common/logger"
	v1 "github.com/agentsocial/agentsocial/pkg/api/v1"
)

// Hub fans lifecycle milestones out to the bot serving each app identity.
// One lifecycle manager serves every configured app, so the hub routes by
// the record's app ID.
type Hub struct {
	mu     sync.RWMutex
	bots   map[string]*Bot
	logger *logger.Logger
}

// NewHub creates an empty Hub.
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Default()
	}
	return &Hub{
		bots:   make(map[string]*Bot),
		logger: log.WithFields(zap.String("component", "bot-hub")),
	}
}

// Register adds a bot to the hub, replacing any bot with the same app ID.
func (h *Hub) Register(b *Bot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bots[b.AppID()] = b
}

func (h *Hub) bot(appID string) *Bot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	b, ok := h.bots[appID]
	if !ok {
		h.logger.Warn("no bot registered for app", zap.String("app_id", appID))
	}
	return b
}

// PlanReady routes a drafted plan to the owning bot.
func (h *Hub) PlanReady(ctx context.Context, rec *v1.CommandRecord) {
	if b := h.bot(rec.AppID); b != nil {
		b.PlanReady(ctx, rec)
	}
}

// CommandFinished routes a terminal outcome to the owning bot.
func (h *Hub) CommandFinished(ctx context.Context, rec *v1.CommandRecord) {
	if b := h.bot(rec.AppID); b != nil {
		b.CommandFinished(ctx, rec)
	}
}

// AgentNotify routes a live agent notification to the owning bot.
func (h *Hub) AgentNotify(ctx context.Context, appID, chatID, message string) {
	if b := h.bot(appID); b != nil {
		b.AgentNotify(ctx, appID, chatID, message)
	}
}

// ApprovalRequested routes a sensitive-operation prompt to the owning bot.
func (h *Hub) ApprovalRequested(ctx context.Context, rec *v1.CommandRecord, prompt string) {
	if b := h.bot(rec.AppID); b != nil {
		b.ApprovalRequested(ctx, rec, prompt)
	}
}
