// Package controller adapts scheduler service operations to request/response
// payloads shared by the HTTP handlers.
package controller

import (
	"context"

	"github.com/agentrun/agentrun/internal/scheduler/models"
	"github.com/agentrun/agentrun/internal/scheduler/service"
)

// Controller handles scheduled-task requests.
type Controller struct {
	svc *service.Service
}

// NewController creates a scheduler controller.
func NewController(svc *service.Service) *Controller {
	return &Controller{svc: svc}
}

type ListTasksResponse struct {
	Tasks []*models.Task `json:"tasks"`
}

type GetTaskResponse struct {
	Task *models.Task `json:"task"`
}

type StatusResponse struct {
	Status service.Status `json:"status"`
}

func (c *Controller) ListTasks(ctx context.Context) (*ListTasksResponse, error) {
	tasks, err := c.svc.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	return &ListTasksResponse{Tasks: tasks}, nil
}

func (c *Controller) GetTask(ctx context.Context, id string) (*GetTaskResponse, error) {
	task, err := c.svc.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	return &GetTaskResponse{Task: task}, nil
}

func (c *Controller) CreateTask(ctx context.Context, task *models.Task) (*GetTaskResponse, error) {
	if err := c.svc.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	return &GetTaskResponse{Task: task}, nil
}

func (c *Controller) UpdateTask(ctx context.Context, task *models.Task) (*GetTaskResponse, error) {
	if err := c.svc.UpdateTask(ctx, task); err != nil {
		return nil, err
	}
	return &GetTaskResponse{Task: task}, nil
}

func (c *Controller) SetTaskEnabled(ctx context.Context, id string, enabled bool) error {
	return c.svc.SetTaskEnabled(ctx, id, enabled)
}

func (c *Controller) DeleteTask(ctx context.Context, id string) error {
	return c.svc.DeleteTask(ctx, id)
}

func (c *Controller) Status() *StatusResponse {
	return &StatusResponse{Status: c.svc.GetStatus()}
}

func (c *Controller) Start(ctx context.Context) error {
	return c.svc.Start(ctx)
}

func (c *Controller) Stop() error {
	return c.svc.Stop()
}
