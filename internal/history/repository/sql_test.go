package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrun/agentrun/internal/common/config"
	"github.com/agentrun/agentrun/internal/db"
	"github.com/agentrun/agentrun/internal/history/models"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	pool, err := db.Open(config.HistoryConfig{
		Driver: "sqlite3",
		Path:   filepath.Join(t.TempDir(), "history.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	repo, err := New(pool)
	require.NoError(t, err)
	return repo
}

func seedRecord(t *testing.T, repo *Repository, record *models.Record) {
	t.Helper()
	require.NoError(t, repo.Insert(context.Background(), record))
}

func TestInsertAndGet(t *testing.T) {
	repo := newTestRepository(t)

	record := &models.Record{
		InstanceID: "greeter_7_1001_1700000000",
		ScenarioID: "greeter",
		AgentID:    "bot",
		Status:     "success",
		Message:    "Scenario completed successfully",
		Context:    map[string]any{"answer": "hello kitty"},
	}
	seedRecord(t, repo, record)
	assert.NotZero(t, record.ID)
	assert.False(t, record.CreatedAt.IsZero())

	got, err := repo.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, "greeter", got.ScenarioID)
	assert.Equal(t, "bot", got.AgentID)
	assert.Equal(t, "hello kitty", got.Context["answer"])
}

func TestGetByID_NotFound(t *testing.T) {
	repo := newTestRepository(t)
	_, err := repo.GetByID(context.Background(), 42)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestList_FiltersAndOrder(t *testing.T) {
	repo := newTestRepository(t)
	base := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)

	seedRecord(t, repo, &models.Record{
		InstanceID: "i1", ScenarioID: "greeter", Status: "success",
		Message: "Scenario completed successfully", CreatedAt: base,
	})
	seedRecord(t, repo, &models.Record{
		InstanceID: "i2", ScenarioID: "greeter", Status: "failed",
		Message: "Scenario execution failed", Error: "llm capability is not configured",
		CreatedAt: base.Add(time.Minute),
	})
	seedRecord(t, repo, &models.Record{
		InstanceID: "i3", ScenarioID: "survey", AgentID: "bot", Status: "paused",
		Message: "Scenario paused, waiting for external input",
		CreatedAt: base.Add(2 * time.Minute),
	})

	all, err := repo.List(context.Background(), models.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "i3", all[0].InstanceID, "newest first")
	assert.Equal(t, "i1", all[2].InstanceID)

	byScenario, err := repo.List(context.Background(), models.ListFilter{ScenarioID: "greeter"})
	require.NoError(t, err)
	assert.Len(t, byScenario, 2)

	byStatus, err := repo.List(context.Background(), models.ListFilter{Status: "paused"})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, "i3", byStatus[0].InstanceID)

	byQuery, err := repo.List(context.Background(), models.ListFilter{Query: "capability"})
	require.NoError(t, err)
	require.Len(t, byQuery, 1)
	assert.Equal(t, "i2", byQuery[0].InstanceID)

	byInstance, err := repo.List(context.Background(), models.ListFilter{InstanceID: "i1"})
	require.NoError(t, err)
	require.Len(t, byInstance, 1)
	assert.Equal(t, "success", byInstance[0].Status)

	limited, err := repo.List(context.Background(), models.ListFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "i2", limited[0].InstanceID)
}

func TestDeleteOlderThan(t *testing.T) {
	repo := newTestRepository(t)
	base := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)

	seedRecord(t, repo, &models.Record{ScenarioID: "greeter", Status: "success", CreatedAt: base})
	seedRecord(t, repo, &models.Record{ScenarioID: "greeter", Status: "success", CreatedAt: base.Add(time.Hour)})

	deleted, err := repo.DeleteOlderThan(context.Background(), base.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := repo.List(context.Background(), models.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}
