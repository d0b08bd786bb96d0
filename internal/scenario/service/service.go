// Package service provides scenario and agent business logic: CRUD with
// validation and change events, plus execution entry points.
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/agentrun/agentrun/internal/common/logger"
	"github.com/agentrun/agentrun/internal/events"
	"github.com/agentrun/agentrun/internal/events/bus"
	"github.com/agentrun/agentrun/internal/scenario/engine"
	"github.com/agentrun/agentrun/internal/scenario/executor"
	"github.com/agentrun/agentrun/internal/scenario/models"
)

const eventSource = "scenario-service"

// Store is the persistence surface the service needs from the repository.
type Store interface {
	CreateScenario(ctx context.Context, scenario *models.Scenario) error
	GetScenarioByID(ctx context.Context, scenarioID string) (*models.Scenario, error)
	ListScenarios(ctx context.Context) ([]*models.Scenario, error)
	UpdateScenario(ctx context.Context, scenario *models.Scenario) error
	DeleteScenario(ctx context.Context, scenarioID string) error

	CreateAgent(ctx context.Context, agent *models.Agent) error
	GetAgentByID(ctx context.Context, agentID string) (*models.Agent, error)
	ListAgents(ctx context.Context) ([]*models.Agent, error)
	UpdateAgent(ctx context.Context, agent *models.Agent) error
	DeleteAgent(ctx context.Context, agentID string) error
}

// Recorder persists execution results for the history API. Paused results
// are recorded too; the resume produces a second record for the same
// instance.
type Recorder interface {
	Record(ctx context.Context, result *models.ExecutionResult) error
}

// Service provides scenario and agent operations.
type Service struct {
	store    Store
	executor *executor.Executor
	eventBus bus.EventBus
	recorder Recorder
	logger   *logger.Logger
}

// NewService creates a scenario service.
func NewService(store Store, exec *executor.Executor, eventBus bus.EventBus, log *logger.Logger) *Service {
	return &Service{
		store:    store,
		executor: exec,
		eventBus: eventBus,
		logger:   log.WithFields(zap.String("component", "scenario-service")),
	}
}

// Scenario operations

// CreateScenario validates and stores a new scenario.
func (s *Service) CreateScenario(ctx context.Context, scenario *models.Scenario) error {
	if err := validateScenario(scenario); err != nil {
		return err
	}
	if err := s.store.CreateScenario(ctx, scenario); err != nil {
		s.logger.Error("failed to create scenario", zap.String("scenario_id", scenario.ScenarioID), zap.Error(err))
		return err
	}
	s.publish(ctx, events.ScenarioCreated, map[string]interface{}{"scenario_id": scenario.ScenarioID})
	return nil
}

// GetScenario retrieves a scenario by id.
func (s *Service) GetScenario(ctx context.Context, scenarioID string) (*models.Scenario, error) {
	return s.store.GetScenarioByID(ctx, scenarioID)
}

// ListScenarios returns all scenarios.
func (s *Service) ListScenarios(ctx context.Context) ([]*models.Scenario, error) {
	return s.store.ListScenarios(ctx)
}

// UpdateScenario validates and replaces a stored scenario.
func (s *Service) UpdateScenario(ctx context.Context, scenario *models.Scenario) error {
	if err := validateScenario(scenario); err != nil {
		return err
	}
	if err := s.store.UpdateScenario(ctx, scenario); err != nil {
		s.logger.Error("failed to update scenario", zap.String("scenario_id", scenario.ScenarioID), zap.Error(err))
		return err
	}
	s.publish(ctx, events.ScenarioUpdated, map[string]interface{}{"scenario_id": scenario.ScenarioID})
	return nil
}

// DeleteScenario removes a scenario.
func (s *Service) DeleteScenario(ctx context.Context, scenarioID string) error {
	if err := s.store.DeleteScenario(ctx, scenarioID); err != nil {
		return err
	}
	s.publish(ctx, events.ScenarioDeleted, map[string]interface{}{"scenario_id": scenarioID})
	return nil
}

// Agent operations

// CreateAgent stores a new agent after checking its scenario exists.
func (s *Service) CreateAgent(ctx context.Context, agent *models.Agent) error {
	if agent.ScenarioID == "" {
		return fmt.Errorf("agent %q: scenario_id is required", agent.ID)
	}
	if _, err := s.store.GetScenarioByID(ctx, agent.ScenarioID); err != nil {
		return fmt.Errorf("agent %q references unknown scenario: %w", agent.ID, err)
	}
	if err := s.store.CreateAgent(ctx, agent); err != nil {
		s.logger.Error("failed to create agent", zap.String("agent_id", agent.ID), zap.Error(err))
		return err
	}
	s.publish(ctx, events.AgentCreated, map[string]interface{}{"agent_id": agent.ID})
	return nil
}

// GetAgent retrieves an agent by id.
func (s *Service) GetAgent(ctx context.Context, agentID string) (*models.Agent, error) {
	return s.store.GetAgentByID(ctx, agentID)
}

// ListAgents returns all agents.
func (s *Service) ListAgents(ctx context.Context) ([]*models.Agent, error) {
	return s.store.ListAgents(ctx)
}

// UpdateAgent replaces a stored agent.
func (s *Service) UpdateAgent(ctx context.Context, agent *models.Agent) error {
	if err := s.store.UpdateAgent(ctx, agent); err != nil {
		s.logger.Error("failed to update agent", zap.String("agent_id", agent.ID), zap.Error(err))
		return err
	}
	s.publish(ctx, events.AgentUpdated, map[string]interface{}{"agent_id": agent.ID})
	return nil
}

// DeleteAgent removes an agent.
func (s *Service) DeleteAgent(ctx context.Context, agentID string) error {
	if err := s.store.DeleteAgent(ctx, agentID); err != nil {
		return err
	}
	s.publish(ctx, events.AgentDeleted, map[string]interface{}{"agent_id": agentID})
	return nil
}

// Execution operations

// ExecuteAgent runs a scenario on behalf of an agent with the caller
// context. An empty scenarioID selects the agent's default scenario.
func (s *Service) ExecuteAgent(ctx context.Context, agentID, scenarioID string, callerCtx map[string]any) (*models.ExecutionResult, error) {
	agent, err := s.store.GetAgentByID(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if scenarioID == "" {
		scenarioID = agent.ScenarioID
	}
	scenario, err := s.store.GetScenarioByID(ctx, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("agent %q scenario: %w", agentID, err)
	}
	return s.record(ctx, s.executor.Execute(ctx, scenario, callerCtx, agentID)), nil
}

// ExecuteScenario runs a scenario directly, without an agent.
func (s *Service) ExecuteScenario(ctx context.Context, scenarioID string, callerCtx map[string]any) (*models.ExecutionResult, error) {
	scenario, err := s.store.GetScenarioByID(ctx, scenarioID)
	if err != nil {
		return nil, err
	}
	return s.record(ctx, s.executor.Execute(ctx, scenario, callerCtx, "")), nil
}

// Resume feeds external input into a paused execution.
func (s *Service) Resume(ctx context.Context, instanceID string, input any) *models.ExecutionResult {
	return s.record(ctx, s.executor.Resume(ctx, instanceID, input))
}

// ResumeByMessage routes a pressed inline button back to the execution that
// sent the message. Returns the waiting record alongside the result so the
// caller can acknowledge the originating chat.
func (s *Service) ResumeByMessage(ctx context.Context, chatID, messageID any, data string) (models.WaitingRecord, *models.ExecutionResult) {
	waiting, ok := s.executor.Pauses().FindWaitingByMessage(chatID, messageID)
	if !ok {
		s.logger.Debug("No waiting execution for callback",
			zap.Any("chat_id", chatID), zap.Any("message_id", messageID))
		return models.WaitingRecord{}, nil
	}
	return waiting, s.record(ctx, s.executor.Resume(ctx, waiting.InstanceID, data))
}

// SetRecorder attaches the execution-history recorder. A nil recorder
// disables recording.
func (s *Service) SetRecorder(recorder Recorder) {
	s.recorder = recorder
}

// record hands the result to the history recorder. Recording failures are
// logged, never surfaced to the caller.
func (s *Service) record(ctx context.Context, result *models.ExecutionResult) *models.ExecutionResult {
	if s.recorder == nil || result == nil {
		return result
	}
	if err := s.recorder.Record(ctx, result); err != nil {
		s.logger.Warn("failed to record execution result",
			zap.String("instance_id", result.InstanceID), zap.Error(err))
	}
	return result
}

func (s *Service) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if s.eventBus == nil {
		return
	}
	event := bus.NewEvent(eventType, eventSource, data)
	if err := s.eventBus.Publish(ctx, eventType, event); err != nil {
		s.logger.Warn("failed to publish event", zap.String("type", eventType), zap.Error(err))
	}
}

// validateScenario builds a throwaway state machine to reuse its structural
// validation (non-empty steps, unique ids).
func validateScenario(scenario *models.Scenario) error {
	if scenario.ScenarioID == "" {
		return fmt.Errorf("scenario_id is required")
	}
	if _, err := engine.New(scenario, nil); err != nil {
		return fmt.Errorf("scenario %q: %w", scenario.ScenarioID, err)
	}
	return nil
}
