package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all routes of the orchestrator service.
func RegisterRoutes(router *gin.Engine, api *API) {
	router.GET("/health", api.HealthHandler)

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/query", api.QueryHandler)
		apiGroup.GET("/agents", api.GetAgentsHandler)
		apiGroup.POST("/agents", api.UpdateAgentsHandler)
		apiGroup.GET("/runs/:runId", api.GetRunHandler)
		apiGroup.GET("/sessions/:sessionId/runs", api.GetSessionRunsHandler)
		apiGroup.GET("/sessions/:sessionId/history", api.GetSessionHistoryHandler)
	}

	ws := router.Group("/ws")
	{
		ws.GET("/:sessionId", api.WebSocketHandler)
	}
}
