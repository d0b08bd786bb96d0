package steps

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agentrun/agentrun/internal/plugins"
	"github.com/agentrun/agentrun/internal/scenario/executor"
	"github.com/agentrun/agentrun/internal/scenario/models"
)

// handleScheduleScenarioRun registers a one-shot task that re-invokes the
// current agent after params.run_in_seconds, passing params.context_to_pass
// as the initial payload. The new task id is written under
// params.task_id_output_var.
func (s *Set) handleScheduleScenarioRun(ctx context.Context, step *models.Step, execCtx map[string]any) executor.Outcome {
	if s.caps == nil || s.caps.Scheduler == nil {
		return missingCapability(step, "scheduler")
	}
	runInSeconds, ok := paramInt(step, "run_in_seconds")
	if !ok || runInSeconds < 0 {
		return executor.Fail(fmt.Errorf("step %q: params.run_in_seconds must be a non-negative number", step.ID))
	}
	initiatorUserID, _ := execCtx["initiator_user_id"].(string)
	if initiatorUserID == "" {
		return executor.Fail(fmt.Errorf("step %q: initiator_user_id is required in context to schedule a run", step.ID))
	}
	agentID, _ := execCtx[models.KeyCurrentAgentID].(string)
	if agentID == "" {
		return executor.Fail(fmt.Errorf("step %q: no agent to schedule a run for", step.ID))
	}

	initialContext := map[string]any{}
	if passed, ok := paramMap(step, "context_to_pass"); ok {
		initialContext = passed
	}

	runAt := time.Now().UTC().Add(time.Duration(runInSeconds) * time.Second)
	name := step.ParamString("name")
	if name == "" {
		name = fmt.Sprintf("scheduled run of agent %s", agentID)
	}

	taskID, err := s.caps.Scheduler.AddTask(ctx, plugins.TaskSpec{
		Name:          name,
		TriggerType:   "once",
		Datetime:      runAt.Format(time.RFC3339),
		MarginSeconds: 60,
		ActionType:    "run_agent",
		ActionConfig: map[string]any{
			"agent_id": agentID,
			"initial_payload": map[string]any{
				"context": initialContext,
			},
		},
		UserID:  initiatorUserID,
		Enabled: true,
	})
	if err != nil {
		return executor.Fail(fmt.Errorf("step %q: schedule run: %w", step.ID, err))
	}
	s.logger.Info("Scheduled deferred agent run",
		zap.String("task_id", taskID),
		zap.String("agent_id", agentID),
		zap.Time("run_at", runAt))

	if taskIDVar := step.ParamString("task_id_output_var"); taskIDVar != "" {
		execCtx[taskIDVar] = taskID
	}
	return executor.OK()
}
