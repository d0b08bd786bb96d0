// Package controller adapts scenario service operations to request/response
// payloads shared by the HTTP handlers.
package controller

import (
	"context"

	"github.com/agentrun/agentrun/internal/scenario/models"
	"github.com/agentrun/agentrun/internal/scenario/service"
)

// Controller handles scenario and agent requests.
type Controller struct {
	svc *service.Service
}

// NewController creates a scenario controller.
func NewController(svc *service.Service) *Controller {
	return &Controller{svc: svc}
}

// Scenario payloads

type ListScenariosResponse struct {
	Scenarios []*models.Scenario `json:"scenarios"`
}

type GetScenarioResponse struct {
	Scenario *models.Scenario `json:"scenario"`
}

func (c *Controller) ListScenarios(ctx context.Context) (*ListScenariosResponse, error) {
	scenarios, err := c.svc.ListScenarios(ctx)
	if err != nil {
		return nil, err
	}
	return &ListScenariosResponse{Scenarios: scenarios}, nil
}

func (c *Controller) GetScenario(ctx context.Context, id string) (*GetScenarioResponse, error) {
	scenario, err := c.svc.GetScenario(ctx, id)
	if err != nil {
		return nil, err
	}
	return &GetScenarioResponse{Scenario: scenario}, nil
}

func (c *Controller) CreateScenario(ctx context.Context, scenario *models.Scenario) (*GetScenarioResponse, error) {
	if err := c.svc.CreateScenario(ctx, scenario); err != nil {
		return nil, err
	}
	return &GetScenarioResponse{Scenario: scenario}, nil
}

func (c *Controller) UpdateScenario(ctx context.Context, scenario *models.Scenario) (*GetScenarioResponse, error) {
	if err := c.svc.UpdateScenario(ctx, scenario); err != nil {
		return nil, err
	}
	return &GetScenarioResponse{Scenario: scenario}, nil
}

func (c *Controller) DeleteScenario(ctx context.Context, id string) error {
	return c.svc.DeleteScenario(ctx, id)
}

// Agent payloads

type ListAgentsResponse struct {
	Agents []*models.Agent `json:"agents"`
}

type GetAgentResponse struct {
	Agent *models.Agent `json:"agent"`
}

func (c *Controller) ListAgents(ctx context.Context) (*ListAgentsResponse, error) {
	agents, err := c.svc.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	return &ListAgentsResponse{Agents: agents}, nil
}

func (c *Controller) GetAgent(ctx context.Context, id string) (*GetAgentResponse, error) {
	agent, err := c.svc.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	return &GetAgentResponse{Agent: agent}, nil
}

func (c *Controller) CreateAgent(ctx context.Context, agent *models.Agent) (*GetAgentResponse, error) {
	if err := c.svc.CreateAgent(ctx, agent); err != nil {
		return nil, err
	}
	return &GetAgentResponse{Agent: agent}, nil
}

func (c *Controller) UpdateAgent(ctx context.Context, agent *models.Agent) (*GetAgentResponse, error) {
	if err := c.svc.UpdateAgent(ctx, agent); err != nil {
		return nil, err
	}
	return &GetAgentResponse{Agent: agent}, nil
}

func (c *Controller) DeleteAgent(ctx context.Context, id string) error {
	return c.svc.DeleteAgent(ctx, id)
}

// Execution payloads

type ExecuteRequest struct {
	// ScenarioID overrides the agent's default scenario when set.
	ScenarioID string         `json:"scenario_id,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
}

type ExecuteResponse struct {
	Result *models.ExecutionResult `json:"result"`
}

type ResumeRequest struct {
	Input any `json:"input"`
}

func (c *Controller) ExecuteAgent(ctx context.Context, agentID string, req ExecuteRequest) (*ExecuteResponse, error) {
	result, err := c.svc.ExecuteAgent(ctx, agentID, req.ScenarioID, req.Context)
	if err != nil {
		return nil, err
	}
	return &ExecuteResponse{Result: result}, nil
}

func (c *Controller) ExecuteScenario(ctx context.Context, scenarioID string, req ExecuteRequest) (*ExecuteResponse, error) {
	result, err := c.svc.ExecuteScenario(ctx, scenarioID, req.Context)
	if err != nil {
		return nil, err
	}
	return &ExecuteResponse{Result: result}, nil
}

func (c *Controller) Resume(ctx context.Context, instanceID string, req ResumeRequest) *ExecuteResponse {
	return &ExecuteResponse{Result: c.svc.Resume(ctx, instanceID, req.Input)}
}
