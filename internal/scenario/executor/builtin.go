package executor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agentrun/agentrun/internal/scenario/ctxpath"
	"github.com/agentrun/agentrun/internal/scenario/expr"
	"github.com/agentrun/agentrun/internal/scenario/models"
	"github.com/agentrun/agentrun/internal/scenario/resolver"
)

// registerBuiltins installs the handlers the executor owns directly.
func (e *Executor) registerBuiltins() {
	e.registry.Register(models.StepTypeStart, e.handleStart)
	e.registry.Register(models.StepTypeEnd, e.handleEnd)
	e.registry.Register(models.StepTypeBranch, e.handleBranch)
	e.registry.Register(models.StepTypeAction, e.handleAction)
	e.registry.Register(models.StepTypeExecuteCode, e.handleExecuteCode)
	e.registry.Register(models.StepTypeInput, e.handleInput)
	e.registry.Register(models.StepTypeLogMessage, e.handleLogMessage)
	e.registry.Register(models.StepTypeExecuteSubScenario, e.handleExecuteSubScenario)
}

func (e *Executor) handleStart(_ context.Context, step *models.Step, execCtx map[string]any) Outcome {
	e.logger.Debug("Scenario started",
		zap.String("step_id", step.ID),
		zap.Any("scenario_id", execCtx[models.KeyCurrentScenarioID]))
	return OK()
}

func (e *Executor) handleEnd(_ context.Context, _ *models.Step, _ map[string]any) Outcome {
	return OK()
}

// handleBranch is a noop: branch selection happens in the state machine when
// it advances past the step.
func (e *Executor) handleBranch(_ context.Context, _ *models.Step, _ map[string]any) Outcome {
	return OK()
}

// handleAction dispatches on params.action_type.
func (e *Executor) handleAction(ctx context.Context, step *models.Step, execCtx map[string]any) Outcome {
	switch actionType := step.ParamString("action_type"); actionType {
	case "update_context":
		return e.applyUpdates(step, execCtx)
	case "execute_code":
		return e.handleExecuteCode(ctx, step, execCtx)
	default:
		return Fail(fmt.Errorf("step %q: unknown action_type %q", step.ID, actionType))
	}
}

// applyUpdates writes params.updates (dotted-path to already resolved value)
// into the live context, creating intermediate maps as needed.
func (e *Executor) applyUpdates(step *models.Step, execCtx map[string]any) Outcome {
	updates, ok := step.Params["updates"].(map[string]any)
	if !ok {
		return Fail(fmt.Errorf("step %q: params.updates must be a mapping", step.ID))
	}
	for path, value := range updates {
		ctxpath.Set(execCtx, path, value)
	}
	return OK()
}

// handleExecuteCode runs a small statement program over the context.
func (e *Executor) handleExecuteCode(_ context.Context, step *models.Step, execCtx map[string]any) Outcome {
	code := step.ParamString("code")
	if code == "" {
		return Fail(fmt.Errorf("step %q: params.code is required", step.ID))
	}
	if err := expr.RunProgram(code, execCtx, ctxpath.Set); err != nil {
		return Fail(fmt.Errorf("step %q: %w", step.ID, err))
	}
	return OK()
}

// handleInput implements the callback_query input step: on first pass it
// registers a waiting record and pauses; on the resume pass the output_var is
// already bound and the step succeeds.
func (e *Executor) handleInput(_ context.Context, step *models.Step, execCtx map[string]any) Outcome {
	outputVar := step.OutputVar()
	if outputVar == "" {
		return Fail(fmt.Errorf("step %q: params.output_var is required", step.ID))
	}
	if value, ok := execCtx[outputVar]; ok && value != nil {
		return OK()
	}

	chatID, hasChat := execCtx[models.KeyTelegramChatID]
	userID, hasUser := execCtx[models.KeyUserID]
	scenarioID, _ := execCtx[models.KeyCurrentScenarioID].(string)
	if !hasChat || !hasUser || scenarioID == "" {
		return Fail(fmt.Errorf("step %q: chat_id, user_id and scenario_id are required to wait for input", step.ID))
	}
	instanceID, _ := execCtx[models.KeyScenarioInstanceID].(string)

	e.pauses.PutWaiting(models.WaitingRecord{
		InstanceID:      instanceID,
		ScenarioID:      scenarioID,
		StepID:          step.ID,
		OutputVar:       outputVar,
		ExpectedPattern: step.ParamString("expected_callback_data_pattern"),
		MessageID:       execCtx[models.KeyMessageWithButtons],
		ChatID:          chatID,
		UserID:          userID,
		Status:          "waiting",
		Timestamp:       time.Now().UTC(),
	})
	return Paused()
}

func (e *Executor) handleLogMessage(_ context.Context, step *models.Step, execCtx map[string]any) Outcome {
	message := step.ParamString("message")
	fields := []zap.Field{
		zap.String("step_id", step.ID),
		zap.Any("scenario_id", execCtx[models.KeyCurrentScenarioID]),
	}
	switch step.ParamString("level") {
	case "debug":
		e.logger.Debug(message, fields...)
	case "warn", "warning":
		e.logger.Warn(message, fields...)
	case "error":
		e.logger.Error(message, fields...)
	default:
		e.logger.Info(message, fields...)
	}
	return OK()
}

// handleExecuteSubScenario loads and runs another scenario inline, mapping
// selected context keys in and out.
func (e *Executor) handleExecuteSubScenario(ctx context.Context, step *models.Step, execCtx map[string]any) Outcome {
	subScenarioID := step.ParamString("sub_scenario_id")
	if subScenarioID == "" {
		return Fail(fmt.Errorf("step %q: params.sub_scenario_id is required", step.ID))
	}
	if e.caps == nil || e.caps.Scenarios == nil {
		return Fail(fmt.Errorf("step %q: scenario repository is not configured", step.ID))
	}

	subScenario, err := e.caps.Scenarios.GetScenarioByID(ctx, subScenarioID)
	if err != nil {
		return Fail(fmt.Errorf("step %q: load sub-scenario %q: %w", step.ID, subScenarioID, err))
	}

	// input_mapping values were already resolved against the parent context.
	subContext := map[string]any{}
	if mapping, ok := step.Params["input_mapping"].(map[string]any); ok {
		subContext = ctxpath.CloneMap(mapping)
	}

	agentID, _ := execCtx[models.KeyCurrentAgentID].(string)
	result := e.Execute(ctx, subScenario, subContext, agentID)
	switch result.Status {
	case models.StatusSuccess:
	case models.StatusPaused:
		return Fail(fmt.Errorf("step %q: sub-scenario %q paused, which is not supported inline", step.ID, subScenarioID))
	default:
		return Fail(fmt.Errorf("step %q: sub-scenario %q failed: %s", step.ID, subScenarioID, result.Error))
	}

	if mapping, ok := step.Params["output_mapping"].(map[string]any); ok {
		for parentKey, template := range mapping {
			execCtx[parentKey] = resolver.Resolve(template, result.Context)
		}
	}
	return OK()
}
