// Package api exposes the read-only operational HTTP surface: health,
// engine status, command history, and agent profiles.
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agentsocial/agentsocial/internal/agent/registry"
	"github.com/agentsocial/agentsocial/internal/common/errors"
	"github.com/agentsocial/agentsocial/internal/common/logger"
	"github.com/agentsocial/agentsocial/internal/lifecycle/store"
	v1 "github.com/agentsocial/agentsocial/pkg/api/v1"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// ExecutionSource reports live agent executions.
type ExecutionSource interface {
	Snapshot() []v1.ExecutionSnapshot
}

// LaneSource reports per-conversation queue lanes.
type LaneSource interface {
	Snapshot() []v1.LaneSnapshot
}

// BusSource reports event bus connectivity.
type BusSource interface {
	IsConnected() bool
}

// Handler contains HTTP handlers for the operational API.
type Handler struct {
	store      store.Store
	executions ExecutionSource
	lanes      LaneSource
	bus        BusSource
	registry   *registry.Registry
	logger     *logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(st store.Store, executions ExecutionSource, lanes LaneSource, eventBus BusSource, reg *registry.Registry, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Default()
	}
	return &Handler{
		store:      st,
		executions: executions,
		lanes:      lanes,
		bus:        eventBus,
		registry:   reg,
		logger:     log.WithFields(zap.String("component", "api")),
	}
}

// Health reports process liveness.
// GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Status reports live executions, queue lanes, and bus connectivity.
// GET /api/v1/status
func (h *Handler) Status(c *gin.Context) {
	executions := h.executions.Snapshot()
	lanes := h.lanes.Snapshot()

	c.JSON(http.StatusOK, gin.H{
		"executions":    executions,
		"lanes":         lanes,
		"bus_connected": h.bus.IsConnected(),
	})
}

// ListCommands returns recent command records, optionally scoped to one
// conversation via app_id and chat_id.
// GET /api/v1/commands
func (h *Handler) ListCommands(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			appErr := errors.BadRequest("limit must be a positive integer")
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
		limit = n
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	appID := c.Query("app_id")
	chatID := c.Query("chat_id")

	var (
		records []*v1.CommandRecord
		err     error
	)
	if appID != "" && chatID != "" {
		records, err = h.store.ListByChat(c.Request.Context(), appID, chatID, limit)
	} else {
		records, err = h.store.ListRecent(c.Request.Context(), limit)
	}
	if err != nil {
		h.logger.Error("failed to list commands", zap.Error(err))
		appErr := errors.InternalError("failed to list commands", err)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"commands": records,
		"count":    len(records),
	})
}

// GetCommand retrieves one command record by ID.
// GET /api/v1/commands/:commandId
func (h *Handler) GetCommand(c *gin.Context) {
	commandID := c.Param("commandId")
	if commandID == "" {
		appErr := errors.BadRequest("commandId is required")
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	rec, err := h.store.Get(c.Request.Context(), commandID)
	if err != nil {
		appErr := errors.NotFound("command", commandID)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, rec)
}

// ListAgentProfiles returns the registered agent profiles.
// GET /api/v1/agents
func (h *Handler) ListAgentProfiles(c *gin.Context) {
	profiles := h.registry.List()
	c.JSON(http.StatusOK, gin.H{
		"agents": profiles,
		"count":  len(profiles),
	})
}

// GetAgentProfile returns one agent profile.
// GET /api/v1/agents/:agentId
func (h *Handler) GetAgentProfile(c *gin.Context) {
	agentID := c.Param("agentId")
	profile, err := h.registry.Get(agentID)
	if err != nil {
		appErr := errors.NotFound("agent", agentID)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}
	c.JSON(http.StatusOK, profile)
}
