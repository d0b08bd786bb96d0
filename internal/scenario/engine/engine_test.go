package engine

import (
	"testing"

	"github.com/agentrun/agentrun/internal/scenario/models"
)

func linearScenario() *models.Scenario {
	return &models.Scenario{
		ScenarioID: "linear",
		Steps: []models.Step{
			{ID: "start", Type: models.StepTypeStart},
			{ID: "log", Type: models.StepTypeLogMessage},
			{ID: "end", Type: models.StepTypeEnd},
		},
	}
}

func branchScenario() *models.Scenario {
	return &models.Scenario{
		ScenarioID: "branching",
		Steps: []models.Step{
			{ID: "start", Type: models.StepTypeStart},
			{ID: "decide", Type: models.StepTypeBranch, Branches: []models.Branch{
				{Condition: "score > 10", NextStep: "high"},
				{Condition: "default", NextStep: "low"},
			}},
			{ID: "high", Type: models.StepTypeLogMessage, NextStep: "end"},
			{ID: "low", Type: models.StepTypeLogMessage, NextStep: "end"},
			{ID: "end", Type: models.StepTypeEnd},
		},
	}
}

func TestMachine_SequentialAdvance(t *testing.T) {
	m, err := New(linearScenario(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if m.Current().ID != "start" {
		t.Fatalf("expected start, got %s", m.Current().ID)
	}
	step, err := m.Advance()
	if err != nil || step.ID != "log" {
		t.Fatalf("expected log, got %v (err=%v)", step, err)
	}
	step, err = m.Advance()
	if err != nil || step.ID != "end" {
		t.Fatalf("expected end, got %v (err=%v)", step, err)
	}
	step, err = m.Advance()
	if err != nil || step != nil {
		t.Fatalf("expected finish, got %v (err=%v)", step, err)
	}
	if !m.Finished() {
		t.Fatalf("machine should be finished")
	}
}

func TestMachine_BranchSelectsFirstTruthyCondition(t *testing.T) {
	m, err := New(branchScenario(), map[string]any{"score": 42})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := m.Advance(); err != nil {
		t.Fatalf("advance to branch failed: %v", err)
	}
	step, err := m.Advance()
	if err != nil {
		t.Fatalf("branch advance failed: %v", err)
	}
	if step.ID != "high" {
		t.Fatalf("expected high, got %s", step.ID)
	}
}

func TestMachine_BranchDefaultFallback(t *testing.T) {
	m, err := New(branchScenario(), map[string]any{"score": 3})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	m.Advance()
	step, err := m.Advance()
	if err != nil {
		t.Fatalf("branch advance failed: %v", err)
	}
	if step.ID != "low" {
		t.Fatalf("expected low, got %s", step.ID)
	}
}

func TestMachine_NumericNextStepIsAnIndex(t *testing.T) {
	sc := &models.Scenario{
		ScenarioID: "indexed",
		Steps: []models.Step{
			{ID: "start", Type: models.StepTypeStart, NextStep: float64(2)},
			{ID: "skipped", Type: models.StepTypeLogMessage},
			{ID: "end", Type: models.StepTypeEnd},
		},
	}
	m, err := New(sc, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	step, err := m.Advance()
	if err != nil {
		t.Fatalf("advance failed: %v", err)
	}
	if step.ID != "end" {
		t.Fatalf("expected end, got %s", step.ID)
	}
}

func TestMachine_UnknownNextStepErrors(t *testing.T) {
	sc := &models.Scenario{
		ScenarioID: "broken",
		Steps: []models.Step{
			{ID: "start", Type: models.StepTypeStart, NextStep: "nowhere"},
			{ID: "end", Type: models.StepTypeEnd},
		},
	}
	m, _ := New(sc, nil)
	if _, err := m.Advance(); err == nil {
		t.Fatalf("expected error for unknown next_step")
	}
}

func TestMachine_DuplicateStepIDRejected(t *testing.T) {
	sc := &models.Scenario{
		ScenarioID: "dup",
		Steps: []models.Step{
			{ID: "a", Type: models.StepTypeStart},
			{ID: "a", Type: models.StepTypeEnd},
		},
	}
	if _, err := New(sc, nil); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}

func TestMachine_ContextIsCopiedNotShared(t *testing.T) {
	initial := map[string]any{"nested": map[string]any{"k": "v"}}
	m, err := New(linearScenario(), initial)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	m.Context()["nested"].(map[string]any)["k"] = "changed"
	if initial["nested"].(map[string]any)["k"] != "v" {
		t.Fatalf("machine context shares memory with caller map")
	}
}

func TestMachine_SnapshotRestoreRoundTrip(t *testing.T) {
	sc := branchScenario()
	m, err := New(sc, map[string]any{"score": 42})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	m.Advance() // on decide
	m.Context()["extra"] = "kept"

	snap := m.Snapshot()
	restored, err := Restore(sc, snap)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	if restored.Current().ID != "decide" {
		t.Fatalf("expected decide after restore, got %s", restored.Current().ID)
	}
	if restored.Context()["extra"] != "kept" {
		t.Fatalf("context lost across snapshot: %+v", restored.Context())
	}
	step, err := restored.Advance()
	if err != nil || step.ID != "high" {
		t.Fatalf("expected high after restore, got %v (err=%v)", step, err)
	}
}
