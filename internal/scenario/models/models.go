// Package models defines the scenario domain: scenario documents, their typed
// steps, agents, and the records the executor keeps for paused executions.
package models

import (
	"fmt"
	"time"
)

// StepType tags a step variant. The handler registry dispatches on it.
type StepType string

const (
	StepTypeStart               StepType = "start"
	StepTypeEnd                 StepType = "end"
	StepTypeAction              StepType = "action"
	StepTypeBranch              StepType = "branch"
	StepTypeInput               StepType = "input"
	StepTypeLogMessage          StepType = "log_message"
	StepTypeExecuteCode         StepType = "execute_code"
	StepTypeTelegramSendMessage StepType = "telegram_send_message"
	StepTypeTelegramEditMessage StepType = "telegram_edit_message"
	StepTypeLLMQuery            StepType = "llm_query"
	StepTypeRAGSearch           StepType = "rag_search"
	StepTypeMongoInsertOne      StepType = "mongo_insert_one"
	StepTypeMongoFindOne        StepType = "mongo_find_one"
	StepTypeMongoUpdateOne      StepType = "mongo_update_one"
	StepTypeMongoDeleteOne      StepType = "mongo_delete_one"
	StepTypeScheduleScenarioRun StepType = "schedule_scenario_run"
	StepTypeExecuteSubScenario  StepType = "execute_sub_scenario"
)

// Reserved context keys. Underscore-prefixed keys are engine-owned and are
// stripped from result envelopes.
const (
	KeyCurrentScenarioID  = "__current_scenario_id__"
	KeyCurrentAgentID     = "__current_agent_id__"
	KeyScenarioInstanceID = "__scenario_instance_id__"
	KeyStepError          = "__step_error__"
	KeyTelegramChatID     = "telegram_chat_id"
	KeyUserID             = "user_id"
	KeyMessageWithButtons = "message_id_with_buttons"
	KeyLastMessageID      = "__last_message_id"
)

// PauseMarker is the sentinel a handler returns to suspend execution until an
// external callback resumes it.
const PauseMarker = "PAUSED_WAITING_FOR_CALLBACK"

// Branch is one arm of a branch step. Condition "default" matches
// unconditionally. NextStep is a step id (string) or a step index (number).
type Branch struct {
	Condition string `json:"condition" bson:"condition"`
	NextStep  any    `json:"next_step" bson:"next_step"`
}

// Step is one node of a scenario graph. Params carries the variant-specific
// payload; NextStep, when set, overrides sequential advancement and holds a
// step id (string) or index (number). Branches is populated for branch steps.
type Step struct {
	ID       string         `json:"id" bson:"id"`
	Type     StepType       `json:"type" bson:"type"`
	Params   map[string]any `json:"params,omitempty" bson:"params,omitempty"`
	NextStep any            `json:"next_step,omitempty" bson:"next_step,omitempty"`
	Branches []Branch       `json:"branches,omitempty" bson:"branches,omitempty"`
}

// OutputVar returns params.output_var if present.
func (s *Step) OutputVar() string {
	if s.Params == nil {
		return ""
	}
	v, _ := s.Params["output_var"].(string)
	return v
}

// ParamString returns a string param, or "" when absent or not a string.
func (s *Step) ParamString(key string) string {
	if s.Params == nil {
		return ""
	}
	v, _ := s.Params[key].(string)
	return v
}

// Scenario is a stored scenario document: a directed graph of steps plus the
// context seeded into every run.
type Scenario struct {
	ScenarioID      string         `json:"scenario_id" bson:"scenario_id"`
	Name            string         `json:"name" bson:"name"`
	Version         string         `json:"version,omitempty" bson:"version,omitempty"`
	Description     string         `json:"description,omitempty" bson:"description,omitempty"`
	InitialContext  map[string]any `json:"initial_context,omitempty" bson:"initial_context,omitempty"`
	Steps           []Step         `json:"steps" bson:"steps"`
	RequiredPlugins []string       `json:"required_plugins,omitempty" bson:"required_plugins,omitempty"`
	CreatedAt       time.Time      `json:"created_at,omitempty" bson:"created_at,omitempty"`
	UpdatedAt       time.Time      `json:"updated_at,omitempty" bson:"updated_at,omitempty"`
}

// StepByID returns the step with the given id, or nil.
func (sc *Scenario) StepByID(id string) *Step {
	for i := range sc.Steps {
		if sc.Steps[i].ID == id {
			return &sc.Steps[i]
		}
	}
	return nil
}

// Agent binds a default scenario to a plugin set and per-deployment settings.
// Its InitialContext merges below caller-supplied context at run time.
type Agent struct {
	ID             string         `json:"id" bson:"id"`
	Name           string         `json:"name,omitempty" bson:"name,omitempty"`
	ScenarioID     string         `json:"scenario_id" bson:"scenario_id"`
	Plugins        []string       `json:"plugins,omitempty" bson:"plugins,omitempty"`
	Settings       map[string]any `json:"settings,omitempty" bson:"settings,omitempty"`
	InitialContext map[string]any `json:"initial_context,omitempty" bson:"initial_context,omitempty"`
	CreatedAt      time.Time      `json:"created_at,omitempty" bson:"created_at,omitempty"`
	UpdatedAt      time.Time      `json:"updated_at,omitempty" bson:"updated_at,omitempty"`
}

// Execution statuses reported in result envelopes.
const (
	StatusSuccess = "success"
	StatusPaused  = "paused"
	StatusFailed  = "failed"
)

// ExecutionResult is the envelope returned by every execution and resume.
// Context carries the pruned final context on success; Error is set on
// failure; InstanceID is set when the run paused.
type ExecutionResult struct {
	Status     string         `json:"status"`
	ScenarioID string         `json:"scenario_id"`
	AgentID    string         `json:"agent_id,omitempty"`
	Message    string         `json:"message,omitempty"`
	Error      string         `json:"error,omitempty"`
	InstanceID string         `json:"instance_id,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
}

// Success reports whether the execution completed without error or pause.
func (r *ExecutionResult) Success() bool { return r.Status == StatusSuccess }

// WaitingRecord tracks one input step blocked on an external callback, keyed
// by instance id.
type WaitingRecord struct {
	InstanceID      string    `json:"instance_id"`
	ScenarioID      string    `json:"scenario_id"`
	StepID          string    `json:"step_id"`
	OutputVar       string    `json:"output_var"`
	ExpectedPattern string    `json:"expected_pattern,omitempty"`
	MessageID       any       `json:"message_id,omitempty"`
	ChatID          any       `json:"chat_id,omitempty"`
	UserID          any       `json:"user_id,omitempty"`
	Status          string    `json:"status"`
	Timestamp       time.Time `json:"timestamp"`
}

// NewInstanceID builds the identifier for one live execution.
func NewInstanceID(scenarioID string, userID, chatID any, at time.Time) string {
	return fmt.Sprintf("%s_%v_%v_%d", scenarioID, userID, chatID, at.Unix())
}
