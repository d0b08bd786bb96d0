package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentrun/agentrun/internal/common/logger"
	"github.com/agentrun/agentrun/internal/events"
	"github.com/agentrun/agentrun/internal/events/bus"
	"github.com/agentrun/agentrun/internal/plugins"
	"github.com/agentrun/agentrun/internal/scenario/ctxpath"
	"github.com/agentrun/agentrun/internal/scenario/engine"
	"github.com/agentrun/agentrun/internal/scenario/models"
	"github.com/agentrun/agentrun/internal/scenario/resolver"
)

const (
	defaultMaxSteps    = 1000
	defaultStepTimeout = 2 * time.Minute

	unserializableMarker = "<unserializable>"
	eventSource          = "scenario-executor"
)

// Options tune the execution loop.
type Options struct {
	// MaxSteps caps handler invocations per execution, guarding against
	// cyclic control flow.
	MaxSteps int
	// StepTimeout bounds each handler call.
	StepTimeout time.Duration
}

// Executor drives scenario executions. One Executor is shared across all
// concurrent instances; per-instance state lives in the state machine.
type Executor struct {
	registry    *Registry
	caps        *plugins.Registry
	pauses      *PauseStore
	bus         bus.EventBus
	logger      *logger.Logger
	maxSteps    int
	stepTimeout time.Duration
}

// New creates an executor and registers the built-in step handlers.
func New(registry *Registry, caps *plugins.Registry, pauses *PauseStore, eventBus bus.EventBus, log *logger.Logger, opts Options) *Executor {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = defaultMaxSteps
	}
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = defaultStepTimeout
	}
	e := &Executor{
		registry:    registry,
		caps:        caps,
		pauses:      pauses,
		bus:         eventBus,
		logger:      log,
		maxSteps:    opts.MaxSteps,
		stepTimeout: opts.StepTimeout,
	}
	e.registerBuiltins()
	return e
}

// Registry exposes the handler registry so plugins can install their step
// handlers at startup.
func (e *Executor) Registry() *Registry { return e.registry }

// Pauses exposes the waiting/paused tables for callback routing and status.
func (e *Executor) Pauses() *PauseStore { return e.pauses }

// Execute runs a scenario to completion, failure or pause.
func (e *Executor) Execute(ctx context.Context, scenario *models.Scenario, callerCtx map[string]any, agentID string) *models.ExecutionResult {
	execCtx, err := e.composeContext(ctx, scenario, callerCtx, agentID)
	if err != nil {
		return e.failedResult(scenario.ScenarioID, agentID, err.Error())
	}
	instanceID, _ := execCtx[models.KeyScenarioInstanceID].(string)

	machine, err := engine.New(scenario, execCtx)
	if err != nil {
		return e.failedResult(scenario.ScenarioID, agentID, err.Error())
	}

	e.logger.Info("Starting scenario execution",
		zap.String("scenario_id", scenario.ScenarioID),
		zap.String("agent_id", agentID),
		zap.String("instance_id", instanceID))
	e.publish(ctx, events.ExecutionStarted, map[string]any{
		"scenario_id": scenario.ScenarioID,
		"agent_id":    agentID,
		"instance_id": instanceID,
	})

	return e.runLoop(ctx, machine, scenario, agentID, instanceID, false)
}

// composeContext layers the scenario's initial context, the agent's initial
// context and the caller's context (lowest to highest precedence), then
// overlays the system keys.
func (e *Executor) composeContext(ctx context.Context, scenario *models.Scenario, callerCtx map[string]any, agentID string) (map[string]any, error) {
	composed := ctxpath.CloneMap(scenario.InitialContext)

	var agent *models.Agent
	if agentID != "" && e.caps != nil && e.caps.Scenarios != nil {
		loaded, err := e.caps.Scenarios.GetAgentByID(ctx, agentID)
		if err != nil {
			return nil, fmt.Errorf("load agent %q: %w", agentID, err)
		}
		agent = loaded
	}
	if agent != nil {
		ctxpath.Merge(composed, ctxpath.CloneMap(agent.InitialContext))
	}
	ctxpath.Merge(composed, ctxpath.CloneMap(callerCtx))

	composed[models.KeyCurrentScenarioID] = scenario.ScenarioID
	if agentID != "" {
		composed[models.KeyCurrentAgentID] = agentID
	}
	if agent != nil {
		if _, ok := composed[models.KeyTelegramChatID]; !ok {
			if chatID, ok := agent.Settings["default_telegram_chat_id"]; ok {
				composed[models.KeyTelegramChatID] = chatID
			}
		}
		if _, ok := composed[models.KeyUserID]; !ok {
			if userID, ok := agent.Settings["default_user_id"]; ok {
				composed[models.KeyUserID] = userID
			}
		}
	}
	if _, ok := composed[models.KeyScenarioInstanceID]; !ok {
		composed[models.KeyScenarioInstanceID] = models.NewInstanceID(
			scenario.ScenarioID, composed[models.KeyUserID], composed[models.KeyTelegramChatID], time.Now().UTC())
	}
	return composed, nil
}

// runLoop is the execution loop shared by Execute and Resume. When resumed is
// true, a pause on the very first step is a fatal logic error.
func (e *Executor) runLoop(ctx context.Context, machine *engine.Machine, scenario *models.Scenario, agentID, instanceID string, resumed bool) *models.ExecutionResult {
	invoked := 0
	for {
		step := machine.Current()
		if step == nil {
			break
		}
		if invoked >= e.maxSteps {
			return e.terminate(ctx, scenario, agentID, instanceID,
				fmt.Sprintf("step limit of %d exceeded", e.maxSteps))
		}
		invoked++

		handler, ok := e.registry.Get(step.Type)
		if !ok {
			return e.terminate(ctx, scenario, agentID, instanceID,
				fmt.Sprintf("no handler registered for step type %q", step.Type))
		}

		resolved := resolveStep(step, machine.Context())
		stepCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
		outcome := handler(stepCtx, resolved, machine.Context())
		cancel()

		if outcome.Err != nil {
			machine.Context()[models.KeyStepError] = outcome.Err.Error()
		}
		if stepErr, present := machine.Context()[models.KeyStepError]; present {
			e.logger.Error("Step failed",
				zap.String("scenario_id", scenario.ScenarioID),
				zap.String("step_id", step.ID),
				zap.Any("error", stepErr))
			return e.terminate(ctx, scenario, agentID, instanceID, fmt.Sprintf("%v", stepErr))
		}

		if outcome.Pause {
			if resumed && invoked == 1 {
				return e.terminate(ctx, scenario, agentID, instanceID,
					"Logic error: pause immediately after resume")
			}
			e.pauses.PutPaused(PausedRecord{
				InstanceID: instanceID,
				AgentID:    agentID,
				Scenario:   scenario,
				Snapshot:   machine.Snapshot(),
				CreatedAt:  time.Now().UTC(),
			})
			e.logger.Info("Scenario paused",
				zap.String("scenario_id", scenario.ScenarioID),
				zap.String("step_id", step.ID),
				zap.String("instance_id", instanceID))
			e.publish(ctx, events.ExecutionPaused, map[string]any{
				"scenario_id": scenario.ScenarioID,
				"agent_id":    agentID,
				"instance_id": instanceID,
				"step_id":     step.ID,
			})
			return &models.ExecutionResult{
				Status:     models.StatusPaused,
				ScenarioID: scenario.ScenarioID,
				AgentID:    agentID,
				InstanceID: instanceID,
				Message:    "Scenario paused, waiting for external input",
			}
		}

		if outcome.Bound {
			if outputVar := resolved.OutputVar(); outputVar != "" {
				machine.Context()[outputVar] = outcome.Value
			}
		}

		e.publishStep(ctx, instanceID, scenario.ScenarioID, step)

		if _, err := machine.Advance(); err != nil {
			return e.terminate(ctx, scenario, agentID, instanceID, err.Error())
		}
	}

	e.logger.Info("Scenario completed",
		zap.String("scenario_id", scenario.ScenarioID),
		zap.String("instance_id", instanceID),
		zap.Int("steps", invoked))
	e.publish(ctx, events.ExecutionCompleted, map[string]any{
		"scenario_id": scenario.ScenarioID,
		"agent_id":    agentID,
		"instance_id": instanceID,
	})
	return &models.ExecutionResult{
		Status:     models.StatusSuccess,
		ScenarioID: scenario.ScenarioID,
		AgentID:    agentID,
		InstanceID: instanceID,
		Message:    "Scenario completed successfully",
		Context:    sanitizeContext(machine.Context()),
	}
}

func (e *Executor) terminate(ctx context.Context, scenario *models.Scenario, agentID, instanceID, errMsg string) *models.ExecutionResult {
	e.publish(ctx, events.ExecutionFailed, map[string]any{
		"scenario_id": scenario.ScenarioID,
		"agent_id":    agentID,
		"instance_id": instanceID,
		"error":       errMsg,
	})
	result := e.failedResult(scenario.ScenarioID, agentID, errMsg)
	result.InstanceID = instanceID
	return result
}

func (e *Executor) failedResult(scenarioID, agentID, errMsg string) *models.ExecutionResult {
	return &models.ExecutionResult{
		Status:     models.StatusFailed,
		ScenarioID: scenarioID,
		AgentID:    agentID,
		Message:    "Scenario execution failed",
		Error:      errMsg,
	}
}

func (e *Executor) publish(ctx context.Context, eventType string, data map[string]any) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(ctx, eventType, bus.NewEvent(eventType, eventSource, data)); err != nil {
		e.logger.Warn("Failed to publish execution event",
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}

func (e *Executor) publishStep(ctx context.Context, instanceID, scenarioID string, step *models.Step) {
	if e.bus == nil || instanceID == "" {
		return
	}
	subject := events.BuildExecutionStepSubject(instanceID)
	event := bus.NewEvent(events.ExecutionStep, eventSource, map[string]any{
		"scenario_id": scenarioID,
		"instance_id": instanceID,
		"step_id":     step.ID,
		"step_type":   string(step.Type),
	})
	if err := e.bus.Publish(ctx, subject, event); err != nil {
		e.logger.Warn("Failed to publish step event", zap.Error(err))
	}
}

// resolveStep applies template resolution to the step's params against the
// current context. The original step document is left untouched.
func resolveStep(step *models.Step, execCtx map[string]any) *models.Step {
	resolved := &models.Step{
		ID:       step.ID,
		Type:     step.Type,
		NextStep: step.NextStep,
		Branches: step.Branches,
	}
	if step.Params != nil {
		resolved.Params = resolver.Resolve(step.Params, execCtx).(map[string]any)
	}
	return resolved
}

// sanitizeContext prunes reserved keys and replaces values that cannot be
// serialized with a marker, producing the result envelope's context.
func sanitizeContext(execCtx map[string]any) map[string]any {
	pruned := make(map[string]any, len(execCtx))
	for key, value := range execCtx {
		if strings.HasPrefix(key, "__") {
			continue
		}
		if _, err := json.Marshal(value); err != nil {
			pruned[key] = unserializableMarker
			continue
		}
		pruned[key] = value
	}
	return pruned
}
