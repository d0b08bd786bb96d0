// Package engine implements the scenario state machine: a cursor over a
// scenario's step list whose advancement follows branch conditions and
// explicit next_step edges. The executor drives it; the machine itself
// performs no side effects.
package engine

import (
	"fmt"

	"github.com/agentrun/agentrun/internal/scenario/ctxpath"
	"github.com/agentrun/agentrun/internal/scenario/expr"
	"github.com/agentrun/agentrun/internal/scenario/models"
)

// Machine holds the runtime state of one scenario execution.
type Machine struct {
	scenarioID string
	steps      []models.Step
	index      map[string]int
	current    int
	context    map[string]any
	finished   bool
}

// New builds a machine positioned on the first step. The initial context is
// deep-copied so callers keep ownership of their map.
func New(scenario *models.Scenario, initialContext map[string]any) (*Machine, error) {
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", scenario.ScenarioID)
	}
	index := make(map[string]int, len(scenario.Steps))
	for i, step := range scenario.Steps {
		if step.ID == "" {
			return nil, fmt.Errorf("scenario %q: step %d has no id", scenario.ScenarioID, i)
		}
		if _, dup := index[step.ID]; dup {
			return nil, fmt.Errorf("scenario %q: duplicate step id %q", scenario.ScenarioID, step.ID)
		}
		index[step.ID] = i
	}
	return &Machine{
		scenarioID: scenario.ScenarioID,
		steps:      scenario.Steps,
		index:      index,
		context:    ctxpath.CloneMap(initialContext),
	}, nil
}

// Current returns the step the machine is positioned on, or nil when the
// execution has finished.
func (m *Machine) Current() *models.Step {
	if m.finished || m.current < 0 || m.current >= len(m.steps) {
		return nil
	}
	return &m.steps[m.current]
}

// Context returns the live execution context. Handlers mutate it in place.
func (m *Machine) Context() map[string]any { return m.context }

// Finished reports whether the machine has run past its last step or an end
// step.
func (m *Machine) Finished() bool { return m.finished }

// ScenarioID returns the id of the scenario this machine executes.
func (m *Machine) ScenarioID() string { return m.scenarioID }

// Advance moves the cursor to the successor of the current step and returns
// it. Branch steps evaluate their conditions in order against the context;
// "default" matches unconditionally. An explicit next_step edge names a step
// id (string) or index (number). Without either, advancement is sequential.
// Returns nil once the machine finishes.
func (m *Machine) Advance() (*models.Step, error) {
	step := m.Current()
	if step == nil {
		return nil, nil
	}
	if step.Type == models.StepTypeEnd {
		m.finished = true
		return nil, nil
	}

	if step.Type == models.StepTypeBranch {
		next, err := m.selectBranch(step)
		if err != nil {
			return nil, err
		}
		return m.moveTo(next, step.ID)
	}

	if step.NextStep != nil {
		return m.moveTo(step.NextStep, step.ID)
	}

	m.current++
	if m.current >= len(m.steps) {
		m.finished = true
		return nil, nil
	}
	return m.Current(), nil
}

func (m *Machine) selectBranch(step *models.Step) (any, error) {
	for _, branch := range step.Branches {
		if branch.Condition == "default" {
			return branch.NextStep, nil
		}
		match, err := expr.EvaluateBool(branch.Condition, m.context)
		if err != nil {
			return nil, fmt.Errorf("step %q: condition %q: %w", step.ID, branch.Condition, err)
		}
		if match {
			return branch.NextStep, nil
		}
	}
	return nil, fmt.Errorf("step %q: no branch condition matched", step.ID)
}

func (m *Machine) moveTo(target any, fromStepID string) (*models.Step, error) {
	switch next := target.(type) {
	case string:
		idx, ok := m.index[next]
		if !ok {
			return nil, fmt.Errorf("step %q: next_step %q not found", fromStepID, next)
		}
		m.current = idx
	case int:
		return m.moveToIndex(int64(next), fromStepID)
	case int64:
		return m.moveToIndex(next, fromStepID)
	case float64:
		return m.moveToIndex(int64(next), fromStepID)
	case nil:
		m.finished = true
		return nil, nil
	default:
		return nil, fmt.Errorf("step %q: next_step has unsupported type %T", fromStepID, target)
	}
	return m.Current(), nil
}

func (m *Machine) moveToIndex(idx int64, fromStepID string) (*models.Step, error) {
	if idx < 0 || idx >= int64(len(m.steps)) {
		return nil, fmt.Errorf("step %q: next_step index %d out of range", fromStepID, idx)
	}
	m.current = int(idx)
	return m.Current(), nil
}

// Snapshot captures a machine's resumable state. The scenario document is
// stored separately; Restore rebuilds the step list from it.
type Snapshot struct {
	ScenarioID   string         `json:"scenario_id"`
	CurrentIndex int            `json:"current_index"`
	Context      map[string]any `json:"context"`
	Finished     bool           `json:"finished"`
}

// Snapshot serializes the machine state for pause persistence.
func (m *Machine) Snapshot() Snapshot {
	return Snapshot{
		ScenarioID:   m.scenarioID,
		CurrentIndex: m.current,
		Context:      ctxpath.CloneMap(m.context),
		Finished:     m.finished,
	}
}

// Restore rebuilds a machine from a snapshot and its scenario document.
func Restore(scenario *models.Scenario, snap Snapshot) (*Machine, error) {
	m, err := New(scenario, snap.Context)
	if err != nil {
		return nil, err
	}
	if snap.CurrentIndex < 0 || snap.CurrentIndex >= len(m.steps) {
		return nil, fmt.Errorf("scenario %q: snapshot index %d out of range", scenario.ScenarioID, snap.CurrentIndex)
	}
	m.current = snap.CurrentIndex
	m.finished = snap.Finished
	return m, nil
}
