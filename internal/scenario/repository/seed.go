package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/agentrun/agentrun/internal/common/logger"
	"github.com/agentrun/agentrun/internal/scenario/models"
)

// seedFile is one YAML document of scenario and agent definitions.
type seedFile struct {
	Scenarios []json.RawMessage
	Agents    []json.RawMessage
}

// SeedFromDir upserts every scenario and agent defined in *.yaml/*.yml files
// under dir. Files are decoded through JSON so the documents use the same
// field names as the HTTP API. Individual file errors are logged and skipped
// so one broken file does not block boot.
func (r *Repository) SeedFromDir(ctx context.Context, dir string, log *logger.Logger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read seed dir %q: %w", dir, err)
	}

	var scenarios, agents int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		parsed, err := parseSeedFile(path)
		if err != nil {
			log.Warn("Skipping unreadable seed file", zap.String("path", path), zap.Error(err))
			continue
		}

		for _, raw := range parsed.Scenarios {
			var scenario models.Scenario
			if err := json.Unmarshal(raw, &scenario); err != nil || scenario.ScenarioID == "" {
				log.Warn("Skipping invalid scenario document", zap.String("path", path), zap.Error(err))
				continue
			}
			if err := r.UpsertScenario(ctx, &scenario); err != nil {
				return err
			}
			scenarios++
		}
		for _, raw := range parsed.Agents {
			var agent models.Agent
			if err := json.Unmarshal(raw, &agent); err != nil || agent.ID == "" {
				log.Warn("Skipping invalid agent document", zap.String("path", path), zap.Error(err))
				continue
			}
			if err := r.UpsertAgent(ctx, &agent); err != nil {
				return err
			}
			agents++
		}
	}

	log.Info("Seeded scenario documents",
		zap.String("dir", dir),
		zap.Int("scenarios", scenarios),
		zap.Int("agents", agents))
	return nil
}

// parseSeedFile reads one YAML file. Supported shapes: a document with
// top-level `scenarios:` and/or `agents:` lists, or a single bare scenario
// document (detected by its scenario_id).
func parseSeedFile(path string) (*seedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	parsed := &seedFile{}
	if lists, ok := doc["scenarios"].([]any); ok || doc["agents"] != nil {
		for _, item := range lists {
			raw, err := json.Marshal(item)
			if err != nil {
				return nil, err
			}
			parsed.Scenarios = append(parsed.Scenarios, raw)
		}
		if agents, ok := doc["agents"].([]any); ok {
			for _, item := range agents {
				raw, err := json.Marshal(item)
				if err != nil {
					return nil, err
				}
				parsed.Agents = append(parsed.Agents, raw)
			}
		}
		return parsed, nil
	}

	if _, ok := doc["scenario_id"]; ok {
		raw, err := json.Marshal(doc)
		if err != nil {
			return nil, err
		}
		parsed.Scenarios = append(parsed.Scenarios, raw)
		return parsed, nil
	}
	return nil, fmt.Errorf("no scenarios or agents in %q", path)
}
