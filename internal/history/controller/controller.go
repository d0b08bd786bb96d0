// Package controller adapts history service operations to request/response
// payloads shared by the HTTP handlers.
package controller

import (
	"context"

	"github.com/agentrun/agentrun/internal/history/models"
	"github.com/agentrun/agentrun/internal/history/service"
)

// Controller handles execution-history requests.
type Controller struct {
	svc *service.Service
}

// NewController creates a history controller.
func NewController(svc *service.Service) *Controller {
	return &Controller{svc: svc}
}

type ListExecutionsResponse struct {
	Executions []*models.Record `json:"executions"`
}

func (c *Controller) ListExecutions(ctx context.Context, filter models.ListFilter) (*ListExecutionsResponse, error) {
	records, err := c.svc.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &ListExecutionsResponse{Executions: records}, nil
}
