// Package handlers exposes the execution-history HTTP API.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agentrun/agentrun/internal/common/logger"
	"github.com/agentrun/agentrun/internal/history/controller"
	"github.com/agentrun/agentrun/internal/history/models"
)

// Handlers manages history HTTP handlers.
type Handlers struct {
	controller *controller.Controller
	logger     *logger.Logger
}

// NewHandlers creates history HTTP handlers.
func NewHandlers(ctrl *controller.Controller, log *logger.Logger) *Handlers {
	return &Handlers{
		controller: ctrl,
		logger:     log.WithFields(zap.String("component", "history-handlers")),
	}
}

// RegisterRoutes registers the history routes.
func RegisterRoutes(router *gin.Engine, ctrl *controller.Controller, log *logger.Logger) {
	handlers := NewHandlers(ctrl, log)
	handlers.registerHTTP(router)
}

func (h *Handlers) registerHTTP(router *gin.Engine) {
	api := router.Group("/api/v1")

	api.GET("/executions", h.httpListExecutions)
	// Param name matches the resume route registered by the scenario
	// handlers; gin rejects differing wildcard names on one segment.
	api.GET("/executions/:instance_id", h.httpGetInstanceExecutions)
}

func (h *Handlers) httpListExecutions(c *gin.Context) {
	filter := models.ListFilter{
		ScenarioID: c.Query("scenario_id"),
		AgentID:    c.Query("agent_id"),
		Status:     c.Query("status"),
		Query:      c.Query("q"),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		filter.Limit = limit
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offset"})
			return
		}
		filter.Offset = offset
	}

	resp, err := h.controller.ListExecutions(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list executions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list executions"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) httpGetInstanceExecutions(c *gin.Context) {
	filter := models.ListFilter{InstanceID: c.Param("instance_id")}
	resp, err := h.controller.ListExecutions(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list executions",
			zap.String("instance_id", filter.InstanceID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list executions"})
		return
	}
	c.JSON(http.StatusOK, resp)
}
