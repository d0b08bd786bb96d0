// Package handlers exposes the scenario and agent HTTP API.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agentrun/agentrun/internal/common/logger"
	"github.com/agentrun/agentrun/internal/scenario/controller"
	"github.com/agentrun/agentrun/internal/scenario/models"
	"github.com/agentrun/agentrun/internal/scenario/repository"
)

// Handlers manages scenario HTTP handlers.
type Handlers struct {
	controller *controller.Controller
	webhook    *WebhookHandler
	logger     *logger.Logger
}

// NewHandlers creates scenario HTTP handlers. The webhook handler is optional
// and only registered when a messenger is configured.
func NewHandlers(ctrl *controller.Controller, webhook *WebhookHandler, log *logger.Logger) *Handlers {
	return &Handlers{
		controller: ctrl,
		webhook:    webhook,
		logger:     log.WithFields(zap.String("component", "scenario-handlers")),
	}
}

// RegisterRoutes registers the scenario, agent and execution routes.
func RegisterRoutes(router *gin.Engine, ctrl *controller.Controller, webhook *WebhookHandler, log *logger.Logger) {
	handlers := NewHandlers(ctrl, webhook, log)
	handlers.registerHTTP(router)
}

func (h *Handlers) registerHTTP(router *gin.Engine) {
	api := router.Group("/api/v1")

	// Scenario routes
	api.GET("/scenarios", h.httpListScenarios)
	api.POST("/scenarios", h.httpCreateScenario)
	api.GET("/scenarios/:id", h.httpGetScenario)
	api.PUT("/scenarios/:id", h.httpUpdateScenario)
	api.DELETE("/scenarios/:id", h.httpDeleteScenario)
	api.POST("/scenarios/:id/execute", h.httpExecuteScenario)

	// Agent routes
	api.GET("/agents", h.httpListAgents)
	api.POST("/agents", h.httpCreateAgent)
	api.GET("/agents/:id", h.httpGetAgent)
	api.PUT("/agents/:id", h.httpUpdateAgent)
	api.DELETE("/agents/:id", h.httpDeleteAgent)
	api.POST("/agent-actions/:agent_id/execute", h.httpExecuteAgent)

	// Execution routes
	api.POST("/executions/:instance_id/resume", h.httpResume)

	if h.webhook != nil {
		api.POST("/telegram/callback", h.webhook.Handle)
	}
}

func notFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}

// Scenarios

func (h *Handlers) httpListScenarios(c *gin.Context) {
	resp, err := h.controller.ListScenarios(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list scenarios", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list scenarios"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) httpGetScenario(c *gin.Context) {
	resp, err := h.controller.GetScenario(c.Request.Context(), c.Param("id"))
	if err != nil {
		if notFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Scenario not found"})
			return
		}
		h.logger.Error("failed to get scenario", zap.String("scenario_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get scenario"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) httpCreateScenario(c *gin.Context) {
	var scenario models.Scenario
	if err := c.ShouldBindJSON(&scenario); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	resp, err := h.controller.CreateScenario(c.Request.Context(), &scenario)
	if err != nil {
		h.logger.Error("failed to create scenario", zap.String("scenario_id", scenario.ScenarioID), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handlers) httpUpdateScenario(c *gin.Context) {
	var scenario models.Scenario
	if err := c.ShouldBindJSON(&scenario); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	scenario.ScenarioID = c.Param("id")
	resp, err := h.controller.UpdateScenario(c.Request.Context(), &scenario)
	if err != nil {
		if notFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Scenario not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) httpDeleteScenario(c *gin.Context) {
	if err := h.controller.DeleteScenario(c.Request.Context(), c.Param("id")); err != nil {
		if notFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Scenario not found"})
			return
		}
		h.logger.Error("failed to delete scenario", zap.String("scenario_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete scenario"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Agents

func (h *Handlers) httpListAgents(c *gin.Context) {
	resp, err := h.controller.ListAgents(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list agents", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list agents"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) httpGetAgent(c *gin.Context) {
	resp, err := h.controller.GetAgent(c.Request.Context(), c.Param("id"))
	if err != nil {
		if notFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Agent not found"})
			return
		}
		h.logger.Error("failed to get agent", zap.String("agent_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get agent"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) httpCreateAgent(c *gin.Context) {
	var agent models.Agent
	if err := c.ShouldBindJSON(&agent); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	resp, err := h.controller.CreateAgent(c.Request.Context(), &agent)
	if err != nil {
		h.logger.Error("failed to create agent", zap.String("agent_id", agent.ID), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handlers) httpUpdateAgent(c *gin.Context) {
	var agent models.Agent
	if err := c.ShouldBindJSON(&agent); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	agent.ID = c.Param("id")
	resp, err := h.controller.UpdateAgent(c.Request.Context(), &agent)
	if err != nil {
		if notFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Agent not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) httpDeleteAgent(c *gin.Context) {
	if err := h.controller.DeleteAgent(c.Request.Context(), c.Param("id")); err != nil {
		if notFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Agent not found"})
			return
		}
		h.logger.Error("failed to delete agent", zap.String("agent_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete agent"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Executions

func (h *Handlers) httpExecuteAgent(c *gin.Context) {
	var req controller.ExecuteRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}
	}
	resp, err := h.controller.ExecuteAgent(c.Request.Context(), c.Param("agent_id"), req)
	if err != nil {
		if notFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Agent not found"})
			return
		}
		h.logger.Error("failed to execute agent", zap.String("agent_id", c.Param("agent_id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to execute agent"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) httpExecuteScenario(c *gin.Context) {
	var req controller.ExecuteRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}
	}
	resp, err := h.controller.ExecuteScenario(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		if notFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Scenario not found"})
			return
		}
		h.logger.Error("failed to execute scenario", zap.String("scenario_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to execute scenario"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) httpResume(c *gin.Context) {
	var req controller.ResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	resp := h.controller.Resume(c.Request.Context(), c.Param("instance_id"), req)
	c.JSON(http.StatusOK, resp)
}
