package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/agentrun/agentrun/internal/common/config"
	"github.com/agentrun/agentrun/internal/common/logger"
	"github.com/agentrun/agentrun/internal/plugins"
	"github.com/agentrun/agentrun/internal/scheduler/models"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "debug", Format: "console", OutputPath: "stdout"})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return log
}

type memTaskStore struct {
	mu    sync.Mutex
	tasks map[string]*models.Task
}

func newMemTaskStore() *memTaskStore {
	return &memTaskStore{tasks: make(map[string]*models.Task)}
}

func (m *memTaskStore) CreateTask(_ context.Context, task *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *task
	m.tasks[task.TaskID] = &clone
	return nil
}

func (m *memTaskStore) GetTaskByID(_ context.Context, id string) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if task, ok := m.tasks[id]; ok {
		clone := *task
		return &clone, nil
	}
	return nil, fmt.Errorf("task %q not found", id)
}

func (m *memTaskStore) ListTasks(_ context.Context) ([]*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*models.Task
	for _, task := range m.tasks {
		clone := *task
		all = append(all, &clone)
	}
	return all, nil
}

func (m *memTaskStore) ListEnabledTasks(_ context.Context) ([]*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var enabled []*models.Task
	for _, task := range m.tasks {
		if task.Enabled {
			clone := *task
			enabled = append(enabled, &clone)
		}
	}
	return enabled, nil
}

func (m *memTaskStore) UpdateTask(_ context.Context, task *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[task.TaskID]; !ok {
		return fmt.Errorf("task %q not found", task.TaskID)
	}
	clone := *task
	m.tasks[task.TaskID] = &clone
	return nil
}

func (m *memTaskStore) SetEnabled(_ context.Context, id string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("task %q not found", id)
	}
	task.Enabled = enabled
	return nil
}

func (m *memTaskStore) RecordExecution(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if task, ok := m.tasks[id]; ok {
		task.LastExecutedAt = &at
	}
	return nil
}

func (m *memTaskStore) DeleteTask(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, id)
	return nil
}

func (m *memTaskStore) enabled(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if task, ok := m.tasks[id]; ok {
		return task.Enabled
	}
	return false
}

type capturedDispatch struct {
	mu    sync.Mutex
	paths []string
	body  map[string]any
}

func newDispatchServer(t *testing.T, captured *capturedDispatch) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.mu.Lock()
		defer captured.mu.Unlock()
		captured.paths = append(captured.paths, r.URL.Path)
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &captured.body)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func testConfig(executeEndpoint string) config.SchedulerConfig {
	return config.SchedulerConfig{
		Enabled:         true,
		TickInterval:    60,
		OnceMargin:      300,
		DailyMargin:     5,
		MinInterval:     10,
		ExecuteEndpoint: executeEndpoint,
		DispatchTimeout: 5,
	}
}

func newTestService(t *testing.T, store TaskStore, executeEndpoint string) *Service {
	t.Helper()
	log := newTestLogger(t)
	return NewService(store, NewDispatcher(testConfig(executeEndpoint), log), nil, testConfig(executeEndpoint), log)
}

func TestAddTask(t *testing.T) {
	store := newMemTaskStore()
	svc := newTestService(t, store, "http://localhost:0")

	taskID, err := svc.AddTask(context.Background(), plugins.TaskSpec{
		Name:        "deferred run",
		TriggerType: models.TriggerOnce,
		Datetime:    time.Now().UTC().Add(time.Hour).Format(time.RFC3339),
		ActionType:  models.ActionRunAgent,
		ActionConfig: map[string]any{
			"agent_id": "agent-1",
		},
		UserID:  "user-7",
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}
	if taskID == "" {
		t.Fatalf("expected a task id")
	}

	stored, err := store.GetTaskByID(context.Background(), taskID)
	if err != nil {
		t.Fatalf("task not stored: %v", err)
	}
	if stored.TriggerType != models.TriggerOnce || !stored.Enabled {
		t.Fatalf("unexpected stored task: %+v", stored)
	}
}

func TestAddTask_RejectsBadAction(t *testing.T) {
	svc := newTestService(t, newMemTaskStore(), "http://localhost:0")

	_, err := svc.AddTask(context.Background(), plugins.TaskSpec{
		Name:        "nope",
		TriggerType: models.TriggerOnce,
		Datetime:    time.Now().UTC().Format(time.RFC3339),
		ActionType:  "explode",
		UserID:      "user-7",
	})
	if err == nil {
		t.Fatalf("expected error for unknown action type")
	}
}

func TestCreateTask_RequiredFields(t *testing.T) {
	svc := newTestService(t, newMemTaskStore(), "http://localhost:0")

	valid := func() *models.Task {
		return &models.Task{
			Name:          "reminder",
			UserID:        "user-7",
			TriggerType:   models.TriggerOnce,
			TriggerConfig: map[string]any{"datetime": "2030-01-01T00:00:00Z"},
			ActionType:    models.ActionAPICall,
			ActionConfig:  map[string]any{"url": "http://localhost:0"},
		}
	}

	cases := []struct {
		name   string
		mutate func(*models.Task)
	}{
		{"missing name", func(task *models.Task) { task.Name = "" }},
		{"missing user_id", func(task *models.Task) { task.UserID = "" }},
		{"missing action_config", func(task *models.Task) { task.ActionConfig = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			task := valid()
			tc.mutate(task)
			if err := svc.CreateTask(context.Background(), task); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}

	if err := svc.CreateTask(context.Background(), valid()); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
}

func TestCreateTask_RewritesNowDatetime(t *testing.T) {
	store := newMemTaskStore()
	svc := newTestService(t, store, "http://localhost:0")

	task := &models.Task{
		Name:          "immediate",
		UserID:        "user-7",
		TriggerType:   models.TriggerOnce,
		TriggerConfig: map[string]any{"datetime": "now"},
		ActionType:    models.ActionAPICall,
		ActionConfig:  map[string]any{"url": "http://localhost:0"},
		Enabled:       true,
	}
	if err := svc.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if task.TriggerConfig["datetime"] == "now" {
		t.Fatalf("datetime was not rewritten")
	}
}

func TestTick_DispatchesDueOnceTaskAndDisablesIt(t *testing.T) {
	captured := &capturedDispatch{}
	server := newDispatchServer(t, captured)
	store := newMemTaskStore()

	frozen := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	task := &models.Task{
		TaskID:        "t1",
		Name:          "reminder",
		UserID:        "user-7",
		TriggerType:   models.TriggerOnce,
		TriggerConfig: map[string]any{"datetime": "2024-05-15T11:59:00Z"},
		ActionType:    models.ActionRunAgent,
		ActionConfig: map[string]any{
			"agent_id": "agent-1",
			"chat_id":  float64(1001),
			"initial_payload": map[string]any{
				"context": map[string]any{"reminder": "drink water"},
			},
		},
		Enabled: true,
	}
	if err := store.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("seed task: %v", err)
	}

	svc := newTestService(t, store, server.URL)
	svc.now = func() time.Time { return frozen }

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	svc.Tick(context.Background())
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	captured.mu.Lock()
	defer captured.mu.Unlock()
	if len(captured.paths) != 1 || captured.paths[0] != "/api/v1/agent-actions/agent-1/execute" {
		t.Fatalf("unexpected dispatches: %v", captured.paths)
	}
	callerCtx, _ := captured.body["context"].(map[string]any)
	if callerCtx == nil || callerCtx["reminder"] != "drink water" {
		t.Fatalf("initial payload not forwarded: %v", captured.body)
	}
	if callerCtx["user_id"] != "user-7" {
		t.Fatalf("task owner not merged into context: %v", callerCtx)
	}
	if callerCtx["chat_id"] != float64(1001) {
		t.Fatalf("chat id not merged into context: %v", callerCtx)
	}
	if store.enabled("t1") {
		t.Fatalf("once task must be disabled after dispatch")
	}
}

func TestTick_MinIntervalGuard(t *testing.T) {
	captured := &capturedDispatch{}
	server := newDispatchServer(t, captured)
	store := newMemTaskStore()

	task := &models.Task{
		TaskID:        "t2",
		Name:          "poller",
		TriggerType:   models.TriggerInterval,
		TriggerConfig: map[string]any{"minutes": float64(1)},
		ActionType:    models.ActionAPICall,
		ActionConfig:  map[string]any{"url": server.URL + "/poll"},
		Enabled:       true,
	}
	if err := store.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("seed task: %v", err)
	}

	svc := newTestService(t, store, server.URL)
	current := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return current }

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	svc.Tick(context.Background())
	// two minutes later the interval is due again, but the ten minute
	// re-execution guard holds it back
	current = current.Add(2 * time.Minute)
	svc.Tick(context.Background())
	// past the guard it fires again
	current = current.Add(10 * time.Minute)
	svc.Tick(context.Background())

	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	captured.mu.Lock()
	defer captured.mu.Unlock()
	if len(captured.paths) != 2 {
		t.Fatalf("expected two dispatches, got %v", captured.paths)
	}
}

func TestStart_Twice(t *testing.T) {
	svc := newTestService(t, newMemTaskStore(), "http://localhost:0")
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := svc.Start(context.Background()); err != ErrSchedulerAlreadyRunning {
		t.Fatalf("expected ErrSchedulerAlreadyRunning, got %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := svc.Stop(); err != ErrSchedulerNotRunning {
		t.Fatalf("expected ErrSchedulerNotRunning, got %v", err)
	}
}
