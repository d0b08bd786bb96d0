// Package steps installs the step handlers that call out through the
// capability registry: messaging, LLM, retrieval, document storage and task
// scheduling. Handlers receive steps with params already resolved against the
// execution context.
package steps

import (
	"fmt"

	"github.com/agentrun/agentrun/internal/common/logger"
	"github.com/agentrun/agentrun/internal/plugins"
	"github.com/agentrun/agentrun/internal/scenario/executor"
	"github.com/agentrun/agentrun/internal/scenario/models"
)

// Set binds the capability registry to the step handlers.
type Set struct {
	caps   *plugins.Registry
	logger *logger.Logger
}

// Register installs all capability-backed handlers into the registry.
func Register(reg *executor.Registry, caps *plugins.Registry, log *logger.Logger) {
	s := &Set{caps: caps, logger: log}
	reg.Register(models.StepTypeTelegramSendMessage, s.handleTelegramSendMessage)
	reg.Register(models.StepTypeTelegramEditMessage, s.handleTelegramEditMessage)
	reg.Register(models.StepTypeLLMQuery, s.handleLLMQuery)
	reg.Register(models.StepTypeRAGSearch, s.handleRAGSearch)
	reg.Register(models.StepTypeMongoInsertOne, s.handleMongoInsertOne)
	reg.Register(models.StepTypeMongoFindOne, s.handleMongoFindOne)
	reg.Register(models.StepTypeMongoUpdateOne, s.handleMongoUpdateOne)
	reg.Register(models.StepTypeMongoDeleteOne, s.handleMongoDeleteOne)
	reg.Register(models.StepTypeScheduleScenarioRun, s.handleScheduleScenarioRun)
}

func missingCapability(step *models.Step, name string) executor.Outcome {
	return executor.Fail(fmt.Errorf("step %q: %s capability is not configured", step.ID, name))
}

// paramInt reads a numeric param. Values arrive as float64 from JSON and as
// int from YAML.
func paramInt(step *models.Step, key string) (int64, bool) {
	if step.Params == nil {
		return 0, false
	}
	switch v := step.Params[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

func paramFloat(step *models.Step, key string) (float64, bool) {
	if step.Params == nil {
		return 0, false
	}
	switch v := step.Params[key].(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func paramMap(step *models.Step, key string) (map[string]any, bool) {
	if step.Params == nil {
		return nil, false
	}
	m, ok := step.Params[key].(map[string]any)
	return m, ok
}
