// Package handlers exposes the scheduler HTTP API.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agentrun/agentrun/internal/common/logger"
	"github.com/agentrun/agentrun/internal/scheduler/controller"
	"github.com/agentrun/agentrun/internal/scheduler/models"
	"github.com/agentrun/agentrun/internal/scheduler/repository"
	"github.com/agentrun/agentrun/internal/scheduler/service"
)

// Handlers manages scheduler HTTP handlers.
type Handlers struct {
	controller *controller.Controller
	logger     *logger.Logger
}

// NewHandlers creates scheduler HTTP handlers.
func NewHandlers(ctrl *controller.Controller, log *logger.Logger) *Handlers {
	return &Handlers{
		controller: ctrl,
		logger:     log.WithFields(zap.String("component", "scheduler-handlers")),
	}
}

// RegisterRoutes registers the scheduler routes.
func RegisterRoutes(router *gin.Engine, ctrl *controller.Controller, log *logger.Logger) {
	handlers := NewHandlers(ctrl, log)
	handlers.registerHTTP(router)
}

func (h *Handlers) registerHTTP(router *gin.Engine) {
	api := router.Group("/api/v1/scheduler")

	api.GET("/tasks", h.httpListTasks)
	api.POST("/tasks", h.httpCreateTask)
	api.GET("/tasks/:id", h.httpGetTask)
	api.PUT("/tasks/:id", h.httpUpdateTask)
	api.DELETE("/tasks/:id", h.httpDeleteTask)
	api.POST("/tasks/:id/enable", h.httpEnableTask)
	api.POST("/tasks/:id/disable", h.httpDisableTask)

	api.GET("/status", h.httpStatus)
	api.POST("/start", h.httpStart)
	api.POST("/stop", h.httpStop)
}

func (h *Handlers) httpListTasks(c *gin.Context) {
	resp, err := h.controller.ListTasks(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list tasks", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list tasks"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) httpGetTask(c *gin.Context) {
	resp, err := h.controller.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
			return
		}
		h.logger.Error("failed to get task", zap.String("task_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get task"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) httpCreateTask(c *gin.Context) {
	var task models.Task
	if err := c.ShouldBindJSON(&task); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	resp, err := h.controller.CreateTask(c.Request.Context(), &task)
	if err != nil {
		h.logger.Error("failed to create task", zap.String("name", task.Name), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handlers) httpUpdateTask(c *gin.Context) {
	var task models.Task
	if err := c.ShouldBindJSON(&task); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	task.TaskID = c.Param("id")
	resp, err := h.controller.UpdateTask(c.Request.Context(), &task)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) httpDeleteTask(c *gin.Context) {
	if err := h.controller.DeleteTask(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
			return
		}
		h.logger.Error("failed to delete task", zap.String("task_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete task"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handlers) httpEnableTask(c *gin.Context) {
	h.setEnabled(c, true)
}

func (h *Handlers) httpDisableTask(c *gin.Context) {
	h.setEnabled(c, false)
}

func (h *Handlers) setEnabled(c *gin.Context, enabled bool) {
	if err := h.controller.SetTaskEnabled(c.Request.Context(), c.Param("id"), enabled); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update task"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handlers) httpStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.controller.Status())
}

// httpStart runs the loop on a background context: the request context dies
// with the response.
func (h *Handlers) httpStart(c *gin.Context) {
	if err := h.controller.Start(context.Background()); err != nil {
		if errors.Is(err, service.ErrSchedulerAlreadyRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handlers) httpStop(c *gin.Context) {
	if err := h.controller.Stop(); err != nil {
		if errors.Is(err, service.ErrSchedulerNotRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
