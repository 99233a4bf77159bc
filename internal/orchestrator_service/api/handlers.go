package api

import (
	"net/http"
	"strconv"

	"GraphMind/internal/agent"
	"GraphMind/internal/models"
	"GraphMind/internal/orchestrator_service/service"
	"GraphMind/internal/orchestrator_service/store"
	"GraphMind/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// API provides handlers for the orchestrator service.
type API struct {
	orchestrator *service.Orchestrator
	registry     *agent.Registry
	connections  *service.ConnectionManager
	broadcaster  *service.StatusBroadcaster
	sessions     *store.SessionStore // may be nil when Redis is unavailable
	runs         store.RunStore      // may be nil when MongoDB is unavailable
	logger       *logger.Logger
	upgrader     websocket.Upgrader
}

// NewAPI creates a new API handler.
func NewAPI(orchestrator *service.Orchestrator, registry *agent.Registry, connections *service.ConnectionManager, broadcaster *service.StatusBroadcaster, sessions *store.SessionStore, runs store.RunStore, log *logger.Logger) *API {
	return &API{
		orchestrator: orchestrator,
		registry:     registry,
		connections:  connections,
		broadcaster:  broadcaster,
		sessions:     sessions,
		runs:         runs,
		logger:       log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // In production, implement a proper origin check.
			},
		},
	}
}

// QueryHandler handles the submission of a new query. It always answers with
// a well-formed response object; degraded answers still come back as 200.
func (a *API) QueryHandler(c *gin.Context) {
	var req models.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error(), StatusCode: http.StatusBadRequest}).Warn("Invalid query payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}

	// A non-empty agent list replaces the registry wholesale and takes
	// effect for this and all subsequent queries.
	if len(req.Agents) > 0 {
		a.registry.ReplaceDescriptors(req.Agents)
	}

	history := req.ConversationHistory
	if len(history) == 0 && a.sessions != nil {
		stored, err := a.sessions.History(c.Request.Context(), req.SessionID)
		if err != nil {
			a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Failed to load session history")
		} else {
			history = stored
		}
	}

	response := a.orchestrator.ProcessQuery(c.Request.Context(), req.Message, req.SessionID, history)
	c.JSON(http.StatusOK, response)
}

// GetAgentsHandler returns all registered agent descriptors.
func (a *API) GetAgentsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": a.registry.Descriptors()})
}

// UpdateAgentsHandler replaces the registry's descriptors wholesale.
func (a *API) UpdateAgentsHandler(c *gin.Context) {
	var payload struct {
		Agents []models.AgentDescriptor `json:"agents" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}

	a.registry.ReplaceDescriptors(payload.Agents)
	c.JSON(http.StatusOK, gin.H{"agents": a.registry.Descriptors()})
}

// GetSessionRunsHandler returns the archived runs of a session, newest first.
func (a *API) GetSessionRunsHandler(c *gin.Context) {
	if a.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Run archive is not configured"})
		return
	}

	sessionID := c.Param("sessionId")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	runs, err := a.runs.GetSessionRuns(c.Request.Context(), sessionID, limit)
	if err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to retrieve session runs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve runs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// GetRunHandler returns a single archived run by its ID.
func (a *API) GetRunHandler(c *gin.Context) {
	if a.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Run archive is not configured"})
		return
	}

	run, err := a.runs.GetByID(c.Request.Context(), c.Param("runId"))
	if err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to retrieve run")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve run"})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"run": run})
}

// GetSessionHistoryHandler returns the stored conversation of a session.
func (a *API) GetSessionHistoryHandler(c *gin.Context) {
	if a.sessions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Session store is not configured"})
		return
	}

	sessionID := c.Param("sessionId")
	history, err := a.sessions.History(c.Request.Context(), sessionID)
	if err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to retrieve session history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve history"})
		return
	}

	title := ""
	if t, err := a.sessions.Title(c.Request.Context(), sessionID); err == nil {
		title = t
	}

	c.JSON(http.StatusOK, gin.H{"history": history, "title": title})
}

// WebSocketHandler upgrades the connection and registers it as the push
// channel for the session's live status updates.
func (a *API) WebSocketHandler(c *gin.Context) {
	sessionID := c.Param("sessionId")

	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to upgrade WebSocket connection")
		return
	}

	a.connections.Add(sessionID, conn)

	conn.SetCloseHandler(func(code int, text string) error {
		a.connections.Remove(sessionID)
		a.broadcaster.CloseSession(sessionID)
		return nil
	})

	go func() {
		defer func() {
			a.connections.Remove(sessionID)
			a.broadcaster.CloseSession(sessionID)
		}()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				break
			}
		}
	}()
}

// HealthHandler reports service liveness.
func (a *API) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
