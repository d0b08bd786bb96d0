package repository

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/agentrun/agentrun/internal/scenario/models"
)

func writeSeed(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write seed file: %v", err)
	}
	return path
}

func TestParseSeedFile_ListsForm(t *testing.T) {
	path := writeSeed(t, "seed.yaml", `
scenarios:
  - scenario_id: greeter
    name: Greeter
    steps:
      - id: start
        type: start
      - id: say
        type: log_message
        params:
          message: "hello {name}"
      - id: end
        type: end
agents:
  - id: greeter-bot
    scenario_id: greeter
    settings:
      default_telegram_chat_id: 1001
`)

	parsed, err := parseSeedFile(path)
	if err != nil {
		t.Fatalf("parseSeedFile failed: %v", err)
	}
	if len(parsed.Scenarios) != 1 || len(parsed.Agents) != 1 {
		t.Fatalf("unexpected counts: %d scenarios, %d agents", len(parsed.Scenarios), len(parsed.Agents))
	}

	var scenario models.Scenario
	if err := json.Unmarshal(parsed.Scenarios[0], &scenario); err != nil {
		t.Fatalf("decode scenario: %v", err)
	}
	if scenario.ScenarioID != "greeter" || len(scenario.Steps) != 3 {
		t.Fatalf("unexpected scenario: %+v", scenario)
	}
	if scenario.Steps[1].Type != models.StepTypeLogMessage {
		t.Fatalf("unexpected step type: %s", scenario.Steps[1].Type)
	}

	var agent models.Agent
	if err := json.Unmarshal(parsed.Agents[0], &agent); err != nil {
		t.Fatalf("decode agent: %v", err)
	}
	if agent.ID != "greeter-bot" || agent.Settings["default_telegram_chat_id"] != float64(1001) {
		t.Fatalf("unexpected agent: %+v", agent)
	}
}

func TestParseSeedFile_BareScenario(t *testing.T) {
	path := writeSeed(t, "single.yml", `
scenario_id: ping
steps:
  - id: start
    type: start
  - id: end
    type: end
`)

	parsed, err := parseSeedFile(path)
	if err != nil {
		t.Fatalf("parseSeedFile failed: %v", err)
	}
	if len(parsed.Scenarios) != 1 {
		t.Fatalf("expected one scenario, got %d", len(parsed.Scenarios))
	}
}

func TestParseSeedFile_RejectsUnknownShape(t *testing.T) {
	path := writeSeed(t, "junk.yaml", "just: noise\n")
	if _, err := parseSeedFile(path); err == nil {
		t.Fatalf("expected error for unknown document shape")
	}
}
