package executor

import (
	"context"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/agentrun/agentrun/internal/events"
	"github.com/agentrun/agentrun/internal/scenario/engine"
	"github.com/agentrun/agentrun/internal/scenario/models"
)

// Resume feeds external input into a paused execution and re-enters the
// execution loop. Each pause can be resumed at most once; a second matching
// event finds no records and is reported as an error without side effects.
func (e *Executor) Resume(ctx context.Context, instanceID string, receivedInput any) *models.ExecutionResult {
	paused, waiting, ok := e.pauses.Peek(instanceID)
	if !ok {
		e.logger.Warn("Resume for unknown or already resumed instance",
			zap.String("instance_id", instanceID))
		return &models.ExecutionResult{
			Status:     models.StatusFailed,
			InstanceID: instanceID,
			Message:    "Resume failed",
			Error:      fmt.Sprintf("no paused scenario found for instance %q", instanceID),
		}
	}

	if waiting.ExpectedPattern != "" {
		input := fmt.Sprintf("%v", receivedInput)
		matched, err := regexp.MatchString(waiting.ExpectedPattern, input)
		if err != nil || !matched {
			e.logger.Warn("Resume input does not match expected pattern",
				zap.String("instance_id", instanceID),
				zap.String("pattern", waiting.ExpectedPattern))
			return e.failedResult(paused.Scenario.ScenarioID, paused.AgentID,
				fmt.Sprintf("input does not match expected pattern %q", waiting.ExpectedPattern))
		}
	}

	paused, waiting, ok = e.pauses.Take(instanceID)
	if !ok {
		// Raced with a concurrent resume for the same instance.
		return &models.ExecutionResult{
			Status:     models.StatusFailed,
			InstanceID: instanceID,
			Message:    "Resume failed",
			Error:      fmt.Sprintf("instance %q was already resumed", instanceID),
		}
	}

	snapshot := paused.Snapshot
	if waiting.OutputVar != "" {
		snapshot.Context[waiting.OutputVar] = receivedInput
	}

	machine, err := engine.Restore(paused.Scenario, snapshot)
	if err != nil {
		return e.failedResult(paused.Scenario.ScenarioID, paused.AgentID, err.Error())
	}

	e.logger.Info("Resuming scenario",
		zap.String("scenario_id", paused.Scenario.ScenarioID),
		zap.String("instance_id", instanceID),
		zap.String("output_var", waiting.OutputVar))
	e.publish(ctx, events.ExecutionResumed, map[string]any{
		"scenario_id": paused.Scenario.ScenarioID,
		"agent_id":    paused.AgentID,
		"instance_id": instanceID,
	})

	return e.runLoop(ctx, machine, paused.Scenario, paused.AgentID, instanceID, true)
}
