package api

import (
	"github.com/gin-gonic/gin"

	"github.com/agentsocial/agentsocial/internal/agent/registry"
	"github.com/agentsocial/agentsocial/internal/common/logger"
	"github.com/agentsocial/agentsocial/internal/lifecycle/store"
)

// NewRouter builds the gin engine with middleware and all routes mounted.
func NewRouter(st store.Store, executions ExecutionSource, lanes LaneSource, eventBus BusSource, reg *registry.Registry, log *logger.Logger) *gin.Engine {
	if log == nil {
		log = logger.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(Recovery(log))
	router.Use(RequestLogger(log))
	router.Use(ErrorHandler(log))
	router.Use(CORS())

	handler := NewHandler(st, executions, lanes, eventBus, reg, log)

	router.GET("/health", handler.Health)

	apiV1 := router.Group("/api/v1")
	{
		apiV1.GET("/status", handler.Status)

		commands := apiV1.Group("/commands")
		{
			commands.GET("", handler.ListCommands)
			commands.GET("/:commandId", handler.GetCommand)
		}

		agents := apiV1.Group("/agents")
		{
			agents.GET("", handler.ListAgentProfiles)
			agents.GET("/:agentId", handler.GetAgentProfile)
		}
	}

	return router
}
