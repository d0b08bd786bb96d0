// Package repository provides MongoDB-backed storage for scenario and agent
// documents.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/agentrun/agentrun/internal/scenario/models"
)

const (
	scenariosCollection = "scenarios"
	agentsCollection    = "agents"
	opTimeout           = 10 * time.Second
)

// ErrNotFound is returned when a scenario or agent does not exist.
var ErrNotFound = errors.New("not found")

// Repository stores scenario and agent documents in MongoDB.
type Repository struct {
	scenarios *mongo.Collection
	agents    *mongo.Collection
}

// New creates a repository over a connected client and database name.
func New(client *mongo.Client, database string) *Repository {
	db := client.Database(database)
	return &Repository{
		scenarios: db.Collection(scenariosCollection),
		agents:    db.Collection(agentsCollection),
	}
}

// Scenarios

// CreateScenario inserts a scenario document. The scenario_id must be unique.
func (r *Repository) CreateScenario(ctx context.Context, scenario *models.Scenario) error {
	if scenario.ScenarioID == "" {
		return errors.New("scenario_id is required")
	}
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	scenario.CreatedAt = now
	scenario.UpdatedAt = now

	count, err := r.scenarios.CountDocuments(opCtx, bson.M{"scenario_id": scenario.ScenarioID})
	if err != nil {
		return fmt.Errorf("check scenario existence: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("scenario %q already exists", scenario.ScenarioID)
	}
	if _, err := r.scenarios.InsertOne(opCtx, scenario); err != nil {
		return fmt.Errorf("insert scenario: %w", err)
	}
	return nil
}

// GetScenarioByID loads one scenario document.
func (r *Repository) GetScenarioByID(ctx context.Context, scenarioID string) (*models.Scenario, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var scenario models.Scenario
	err := r.scenarios.FindOne(opCtx, bson.M{"scenario_id": scenarioID}).Decode(&scenario)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("scenario %q: %w", scenarioID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find scenario %q: %w", scenarioID, err)
	}
	return &scenario, nil
}

// ListScenarios returns all stored scenarios.
func (r *Repository) ListScenarios(ctx context.Context) ([]*models.Scenario, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cursor, err := r.scenarios.Find(opCtx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	defer func() { _ = cursor.Close(opCtx) }()

	var scenarios []*models.Scenario
	if err := cursor.All(opCtx, &scenarios); err != nil {
		return nil, fmt.Errorf("decode scenarios: %w", err)
	}
	return scenarios, nil
}

// UpdateScenario replaces a scenario document, keeping its creation time.
func (r *Repository) UpdateScenario(ctx context.Context, scenario *models.Scenario) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	scenario.UpdatedAt = time.Now().UTC()
	res, err := r.scenarios.ReplaceOne(opCtx, bson.M{"scenario_id": scenario.ScenarioID}, scenario)
	if err != nil {
		return fmt.Errorf("update scenario %q: %w", scenario.ScenarioID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("scenario %q: %w", scenario.ScenarioID, ErrNotFound)
	}
	return nil
}

// UpsertScenario inserts or replaces a scenario document. Used by seeding.
func (r *Repository) UpsertScenario(ctx context.Context, scenario *models.Scenario) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	scenario.UpdatedAt = time.Now().UTC()
	if scenario.CreatedAt.IsZero() {
		scenario.CreatedAt = scenario.UpdatedAt
	}
	_, err := r.scenarios.ReplaceOne(opCtx,
		bson.M{"scenario_id": scenario.ScenarioID}, scenario,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert scenario %q: %w", scenario.ScenarioID, err)
	}
	return nil
}

// DeleteScenario removes a scenario document.
func (r *Repository) DeleteScenario(ctx context.Context, scenarioID string) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.scenarios.DeleteOne(opCtx, bson.M{"scenario_id": scenarioID})
	if err != nil {
		return fmt.Errorf("delete scenario %q: %w", scenarioID, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("scenario %q: %w", scenarioID, ErrNotFound)
	}
	return nil
}

// Agents

// CreateAgent inserts an agent document. The id must be unique.
func (r *Repository) CreateAgent(ctx context.Context, agent *models.Agent) error {
	if agent.ID == "" {
		return errors.New("agent id is required")
	}
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	agent.CreatedAt = now
	agent.UpdatedAt = now

	count, err := r.agents.CountDocuments(opCtx, bson.M{"id": agent.ID})
	if err != nil {
		return fmt.Errorf("check agent existence: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("agent %q already exists", agent.ID)
	}
	if _, err := r.agents.InsertOne(opCtx, agent); err != nil {
		return fmt.Errorf("insert agent: %w", err)
	}
	return nil
}

// GetAgentByID loads one agent document.
func (r *Repository) GetAgentByID(ctx context.Context, agentID string) (*models.Agent, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var agent models.Agent
	err := r.agents.FindOne(opCtx, bson.M{"id": agentID}).Decode(&agent)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("agent %q: %w", agentID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find agent %q: %w", agentID, err)
	}
	return &agent, nil
}

// ListAgents returns all stored agents.
func (r *Repository) ListAgents(ctx context.Context) ([]*models.Agent, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cursor, err := r.agents.Find(opCtx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer func() { _ = cursor.Close(opCtx) }()

	var agents []*models.Agent
	if err := cursor.All(opCtx, &agents); err != nil {
		return nil, fmt.Errorf("decode agents: %w", err)
	}
	return agents, nil
}

// UpdateAgent replaces an agent document.
func (r *Repository) UpdateAgent(ctx context.Context, agent *models.Agent) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	agent.UpdatedAt = time.Now().UTC()
	res, err := r.agents.ReplaceOne(opCtx, bson.M{"id": agent.ID}, agent)
	if err != nil {
		return fmt.Errorf("update agent %q: %w", agent.ID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("agent %q: %w", agent.ID, ErrNotFound)
	}
	return nil
}

// UpsertAgent inserts or replaces an agent document. Used by seeding.
func (r *Repository) UpsertAgent(ctx context.Context, agent *models.Agent) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	agent.UpdatedAt = time.Now().UTC()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = agent.UpdatedAt
	}
	_, err := r.agents.ReplaceOne(opCtx,
		bson.M{"id": agent.ID}, agent,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert agent %q: %w", agent.ID, err)
	}
	return nil
}

// DeleteAgent removes an agent document.
func (r *Repository) DeleteAgent(ctx context.Context, agentID string) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.agents.DeleteOne(opCtx, bson.M{"id": agentID})
	if err != nil {
		return fmt.Errorf("delete agent %q: %w", agentID, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("agent %q: %w", agentID, ErrNotFound)
	}
	return nil
}
