package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/agentrun/agentrun/internal/common/logger"
	"github.com/agentrun/agentrun/internal/events"
	"github.com/agentrun/agentrun/internal/events/bus"
	"github.com/agentrun/agentrun/internal/plugins"
	"github.com/agentrun/agentrun/internal/scenario/executor"
	"github.com/agentrun/agentrun/internal/scenario/models"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "debug", Format: "console", OutputPath: "stdout"})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return log
}

type fakeStore struct {
	scenarios map[string]*models.Scenario
	agents    map[string]*models.Agent
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		scenarios: make(map[string]*models.Scenario),
		agents:    make(map[string]*models.Agent),
	}
}

func (f *fakeStore) CreateScenario(_ context.Context, sc *models.Scenario) error {
	if _, exists := f.scenarios[sc.ScenarioID]; exists {
		return fmt.Errorf("scenario %q already exists", sc.ScenarioID)
	}
	f.scenarios[sc.ScenarioID] = sc
	return nil
}

func (f *fakeStore) GetScenarioByID(_ context.Context, id string) (*models.Scenario, error) {
	if sc, ok := f.scenarios[id]; ok {
		return sc, nil
	}
	return nil, fmt.Errorf("scenario %q not found", id)
}

func (f *fakeStore) ListScenarios(_ context.Context) ([]*models.Scenario, error) {
	var all []*models.Scenario
	for _, sc := range f.scenarios {
		all = append(all, sc)
	}
	return all, nil
}

func (f *fakeStore) UpdateScenario(_ context.Context, sc *models.Scenario) error {
	if _, ok := f.scenarios[sc.ScenarioID]; !ok {
		return fmt.Errorf("scenario %q not found", sc.ScenarioID)
	}
	f.scenarios[sc.ScenarioID] = sc
	return nil
}

func (f *fakeStore) DeleteScenario(_ context.Context, id string) error {
	if _, ok := f.scenarios[id]; !ok {
		return fmt.Errorf("scenario %q not found", id)
	}
	delete(f.scenarios, id)
	return nil
}

func (f *fakeStore) CreateAgent(_ context.Context, a *models.Agent) error {
	f.agents[a.ID] = a
	return nil
}

func (f *fakeStore) GetAgentByID(_ context.Context, id string) (*models.Agent, error) {
	if a, ok := f.agents[id]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("agent %q not found", id)
}

func (f *fakeStore) ListAgents(_ context.Context) ([]*models.Agent, error) {
	var all []*models.Agent
	for _, a := range f.agents {
		all = append(all, a)
	}
	return all, nil
}

func (f *fakeStore) UpdateAgent(_ context.Context, a *models.Agent) error {
	f.agents[a.ID] = a
	return nil
}

func (f *fakeStore) DeleteAgent(_ context.Context, id string) error {
	delete(f.agents, id)
	return nil
}

func validScenario(id string) *models.Scenario {
	return &models.Scenario{
		ScenarioID: id,
		Steps: []models.Step{
			{ID: "start", Type: models.StepTypeStart},
			{ID: "set", Type: models.StepTypeAction, Params: map[string]any{
				"action_type": "update_context",
				"updates":     map[string]any{"ran": true},
			}},
			{ID: "end", Type: models.StepTypeEnd},
		},
	}
}

func newTestService(t *testing.T, store Store, eventBus bus.EventBus) *Service {
	t.Helper()
	log := newTestLogger(t)
	caps := &plugins.Registry{}
	if sr, ok := store.(plugins.ScenarioRepository); ok {
		caps.Scenarios = sr
	}
	exec := executor.New(executor.NewRegistry(log), caps, executor.NewPauseStore(log), eventBus, log, executor.Options{})
	return NewService(store, exec, eventBus, log)
}

func TestCreateScenario_PublishesEvent(t *testing.T) {
	log := newTestLogger(t)
	memBus := bus.NewMemoryEventBus(log)
	defer memBus.Close()

	var seen []string
	_, err := memBus.Subscribe(events.ScenarioCreated, func(_ context.Context, event *bus.Event) error {
		seen = append(seen, event.Type)
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	svc := newTestService(t, newFakeStore(), memBus)
	if err := svc.CreateScenario(context.Background(), validScenario("greeter")); err != nil {
		t.Fatalf("CreateScenario failed: %v", err)
	}
	if len(seen) != 1 || seen[0] != events.ScenarioCreated {
		t.Fatalf("expected a scenario.created event, got %v", seen)
	}
}

func TestCreateScenario_RejectsInvalidGraph(t *testing.T) {
	svc := newTestService(t, newFakeStore(), nil)

	err := svc.CreateScenario(context.Background(), &models.Scenario{ScenarioID: "empty"})
	if err == nil {
		t.Fatalf("expected validation error for scenario without steps")
	}

	err = svc.CreateScenario(context.Background(), &models.Scenario{
		ScenarioID: "dupes",
		Steps: []models.Step{
			{ID: "a", Type: models.StepTypeStart},
			{ID: "a", Type: models.StepTypeEnd},
		},
	})
	if err == nil {
		t.Fatalf("expected validation error for duplicate step ids")
	}
}

func TestCreateAgent_RequiresExistingScenario(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, nil)

	err := svc.CreateAgent(context.Background(), &models.Agent{ID: "bot", ScenarioID: "missing"})
	if err == nil {
		t.Fatalf("expected error for unknown scenario")
	}

	if err := svc.CreateScenario(context.Background(), validScenario("greeter")); err != nil {
		t.Fatalf("CreateScenario failed: %v", err)
	}
	if err := svc.CreateAgent(context.Background(), &models.Agent{ID: "bot", ScenarioID: "greeter"}); err != nil {
		t.Fatalf("CreateAgent failed: %v", err)
	}
}

func TestExecuteAgent(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, nil)
	ctx := context.Background()

	if err := svc.CreateScenario(ctx, validScenario("greeter")); err != nil {
		t.Fatalf("CreateScenario failed: %v", err)
	}
	if err := svc.CreateAgent(ctx, &models.Agent{ID: "bot", ScenarioID: "greeter"}); err != nil {
		t.Fatalf("CreateAgent failed: %v", err)
	}

	result, err := svc.ExecuteAgent(ctx, "bot", "", nil)
	if err != nil {
		t.Fatalf("ExecuteAgent failed: %v", err)
	}
	if result.Status != models.StatusSuccess {
		t.Fatalf("expected success, got %s (%s)", result.Status, result.Error)
	}
	if result.Context["ran"] != true {
		t.Fatalf("scenario did not run: %+v", result.Context)
	}
	if result.AgentID != "bot" {
		t.Fatalf("agent id missing from result: %+v", result)
	}
}

func TestExecuteAgent_UnknownAgent(t *testing.T) {
	svc := newTestService(t, newFakeStore(), nil)
	if _, err := svc.ExecuteAgent(context.Background(), "ghost", "", nil); err == nil {
		t.Fatalf("expected error for unknown agent")
	}
}

func TestExecuteAgent_ScenarioOverride(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, nil)
	ctx := context.Background()

	if err := svc.CreateScenario(ctx, validScenario("greeter")); err != nil {
		t.Fatalf("CreateScenario failed: %v", err)
	}
	other := &models.Scenario{
		ScenarioID: "farewell",
		Steps: []models.Step{
			{ID: "start", Type: models.StepTypeStart},
			{ID: "set", Type: models.StepTypeAction, Params: map[string]any{
				"action_type": "update_context",
				"updates":     map[string]any{"which": "farewell"},
			}},
			{ID: "end", Type: models.StepTypeEnd},
		},
	}
	if err := svc.CreateScenario(ctx, other); err != nil {
		t.Fatalf("CreateScenario failed: %v", err)
	}
	if err := svc.CreateAgent(ctx, &models.Agent{ID: "bot", ScenarioID: "greeter"}); err != nil {
		t.Fatalf("CreateAgent failed: %v", err)
	}

	result, err := svc.ExecuteAgent(ctx, "bot", "farewell", nil)
	if err != nil {
		t.Fatalf("ExecuteAgent failed: %v", err)
	}
	if result.Status != models.StatusSuccess {
		t.Fatalf("expected success, got %s (%s)", result.Status, result.Error)
	}
	if result.Context["which"] != "farewell" {
		t.Fatalf("override scenario did not run: %+v", result.Context)
	}

	if _, err := svc.ExecuteAgent(ctx, "bot", "missing", nil); err == nil {
		t.Fatalf("expected error for unknown override scenario")
	}
}
