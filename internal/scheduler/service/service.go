// Package service implements the durable task scheduler: a ticker loop that
// evaluates trigger predicates over persisted tasks and dispatches their
// actions over HTTP.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentrun/agentrun/internal/common/config"
	"github.com/agentrun/agentrun/internal/common/logger"
	"github.com/agentrun/agentrun/internal/events"
	"github.com/agentrun/agentrun/internal/events/bus"
	"github.com/agentrun/agentrun/internal/plugins"
	"github.com/agentrun/agentrun/internal/scheduler/models"
	"github.com/agentrun/agentrun/internal/scheduler/triggers"
)

const eventSource = "task-scheduler"

// Common errors
var (
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")
	ErrSchedulerNotRunning     = errors.New("scheduler is not running")
)

// TaskStore is the persistence surface the scheduler needs.
type TaskStore interface {
	CreateTask(ctx context.Context, task *models.Task) error
	GetTaskByID(ctx context.Context, taskID string) (*models.Task, error)
	ListTasks(ctx context.Context) ([]*models.Task, error)
	ListEnabledTasks(ctx context.Context) ([]*models.Task, error)
	UpdateTask(ctx context.Context, task *models.Task) error
	SetEnabled(ctx context.Context, taskID string, enabled bool) error
	RecordExecution(ctx context.Context, taskID string, at time.Time) error
	DeleteTask(ctx context.Context, taskID string) error
}

// Status describes the scheduler for the status endpoint.
type Status struct {
	Running     bool `json:"running"`
	LoadedTasks int  `json:"loaded_tasks"`
}

// Service runs the scheduler loop and owns the in-memory task table.
type Service struct {
	store      TaskStore
	dispatcher *Dispatcher
	eventBus   bus.EventBus
	logger     *logger.Logger
	cfg        config.SchedulerConfig
	margins    triggers.Margins

	mu      sync.Mutex
	tasks   map[string]*models.Task
	lastRun map[string]time.Time
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	// now is swapped in tests to drive trigger evaluation.
	now func() time.Time
}

// NewService creates the scheduler service.
func NewService(store TaskStore, dispatcher *Dispatcher, eventBus bus.EventBus, cfg config.SchedulerConfig, log *logger.Logger) *Service {
	margins := triggers.DefaultMargins()
	if cfg.OnceMargin > 0 {
		margins.Once = time.Duration(cfg.OnceMargin) * time.Second
	}
	if cfg.DailyMargin > 0 {
		margins.Daily = time.Duration(cfg.DailyMargin) * time.Minute
	}
	if cfg.TickInterval > 0 {
		margins.Tick = cfg.Tick() + 30*time.Second
	}
	return &Service{
		store:      store,
		dispatcher: dispatcher,
		eventBus:   eventBus,
		logger:     log.WithFields(zap.String("component", "task-scheduler")),
		cfg:        cfg,
		margins:    margins,
		tasks:      make(map[string]*models.Task),
		lastRun:    make(map[string]time.Time),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Start loads enabled tasks and begins the tick loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	if err := s.loadTasks(ctx); err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	}

	s.logger.Info("scheduler starting",
		zap.Duration("tick", s.cfg.Tick()),
		zap.Int("tasks", s.taskCount()))
	s.publish(ctx, events.SchedulerStarted, map[string]interface{}{"tasks": s.taskCount()})

	s.wg.Add(1)
	go s.tickLoop(ctx)
	return nil
}

// Stop halts the tick loop.
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.publish(context.Background(), events.SchedulerStopped, nil)
	s.logger.Info("scheduler stopped")
	return nil
}

// IsRunning reports whether the tick loop is active.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// GetStatus returns loop state and table size.
func (s *Service) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{Running: s.running, LoadedTasks: len(s.tasks)}
}

// loadTasks fills the in-memory table from storage, rewriting the literal
// datetime "now" to the current timestamp so boot-time tasks fire on the
// first tick.
func (s *Service) loadTasks(ctx context.Context) error {
	tasks, err := s.store.ListEnabledTasks(ctx)
	if err != nil {
		return fmt.Errorf("load enabled tasks: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make(map[string]*models.Task, len(tasks))
	for _, task := range tasks {
		if task.TriggerType == models.TriggerOnce && task.ConfigString("datetime") == "now" {
			task.TriggerConfig["datetime"] = s.now().Format(time.RFC3339)
			if err := s.store.UpdateTask(ctx, task); err != nil {
				s.logger.Warn("failed to persist datetime fix-up",
					zap.String("task_id", task.TaskID), zap.Error(err))
			}
		}
		s.tasks[task.TaskID] = task
	}
	return nil
}

func (s *Service) tickLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Tick())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping due to context cancellation")
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick evaluates every loaded task once. Exported so tests and a manual
// trigger endpoint can drive the loop without waiting.
func (s *Service) Tick(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	snapshot := make([]*models.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		snapshot = append(snapshot, task)
	}
	s.mu.Unlock()

	for _, task := range snapshot {
		due, err := triggers.Due(task, now, s.margins)
		if err != nil {
			s.logger.Warn("trigger evaluation failed",
				zap.String("task_id", task.TaskID), zap.Error(err))
			continue
		}
		if !due || !s.markDispatched(task, now) {
			continue
		}
		s.fire(ctx, task, now)
	}
}

// markDispatched enforces the minimum re-execution interval. Returns false
// when the task ran too recently.
func (s *Service) markDispatched(task *models.Task, now time.Time) bool {
	minInterval := time.Duration(s.cfg.MinInterval) * time.Minute
	if minInterval <= 0 {
		minInterval = time.Minute
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	last, ran := s.lastRun[task.TaskID]
	if !ran && task.LastExecutedAt != nil {
		last, ran = task.LastExecutedAt.UTC(), true
	}
	if ran && now.Sub(last) < minInterval {
		return false
	}
	s.lastRun[task.TaskID] = now
	return true
}

// fire dispatches the task action in the background and updates bookkeeping.
func (s *Service) fire(ctx context.Context, task *models.Task, now time.Time) {
	s.logger.Info("dispatching task",
		zap.String("task_id", task.TaskID),
		zap.String("name", task.Name),
		zap.String("action_type", task.ActionType))

	executedAt := now
	task.LastExecutedAt = &executedAt
	if err := s.store.RecordExecution(ctx, task.TaskID, now); err != nil {
		s.logger.Warn("failed to record execution",
			zap.String("task_id", task.TaskID), zap.Error(err))
	}

	if task.TriggerType == models.TriggerOnce {
		task.Enabled = false
		s.mu.Lock()
		delete(s.tasks, task.TaskID)
		s.mu.Unlock()
		s.wg.Add(1)
		go func(taskID string) {
			defer s.wg.Done()
			if err := s.store.SetEnabled(context.Background(), taskID, false); err != nil {
				s.logger.Warn("failed to disable once task",
					zap.String("task_id", taskID), zap.Error(err))
			}
		}(task.TaskID)
	}

	s.wg.Add(1)
	go func(task *models.Task) {
		defer s.wg.Done()
		if err := s.dispatcher.Dispatch(context.Background(), task); err != nil {
			s.logger.Error("task dispatch failed",
				zap.String("task_id", task.TaskID), zap.Error(err))
			s.publish(ctx, events.TaskFailed, map[string]interface{}{
				"task_id": task.TaskID, "error": err.Error(),
			})
			return
		}
		s.publish(ctx, events.TaskDispatched, map[string]interface{}{
			"task_id": task.TaskID, "action_type": task.ActionType,
		})
	}(task)
}

// AddTask registers a deferred scenario run on behalf of the
// schedule_scenario_run step.
func (s *Service) AddTask(ctx context.Context, spec plugins.TaskSpec) (string, error) {
	task := &models.Task{
		TaskID:       uuid.New().String(),
		Name:         spec.Name,
		TriggerType:  spec.TriggerType,
		ActionType:   spec.ActionType,
		ActionConfig: spec.ActionConfig,
		UserID:       spec.UserID,
		Enabled:      spec.Enabled,
	}
	if spec.Datetime != "" {
		task.TriggerConfig = map[string]any{"datetime": spec.Datetime}
		if spec.MarginSeconds > 0 {
			task.TriggerConfig["margin_seconds"] = spec.MarginSeconds
		}
	}
	if err := s.CreateTask(ctx, task); err != nil {
		return "", err
	}
	return task.TaskID, nil
}

// CreateTask validates and stores a task document, loading it into the live
// table when enabled.
func (s *Service) CreateTask(ctx context.Context, task *models.Task) error {
	if task.TaskID == "" {
		task.TaskID = uuid.New().String()
	}
	if err := s.validateTask(task); err != nil {
		return err
	}
	if err := s.store.CreateTask(ctx, task); err != nil {
		return err
	}
	if task.Enabled {
		s.mu.Lock()
		s.tasks[task.TaskID] = task
		s.mu.Unlock()
	}
	s.publish(ctx, events.TaskCreated, map[string]interface{}{
		"task_id": task.TaskID, "trigger_type": task.TriggerType,
	})
	return nil
}

// GetTask loads one task.
func (s *Service) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	return s.store.GetTaskByID(ctx, taskID)
}

// ListTasks returns all stored tasks.
func (s *Service) ListTasks(ctx context.Context) ([]*models.Task, error) {
	return s.store.ListTasks(ctx)
}

// UpdateTask validates and replaces a task, refreshing the live table.
func (s *Service) UpdateTask(ctx context.Context, task *models.Task) error {
	if err := s.validateTask(task); err != nil {
		return err
	}
	if err := s.store.UpdateTask(ctx, task); err != nil {
		return err
	}
	s.mu.Lock()
	if task.Enabled {
		s.tasks[task.TaskID] = task
	} else {
		delete(s.tasks, task.TaskID)
	}
	s.mu.Unlock()
	s.publish(ctx, events.TaskUpdated, map[string]interface{}{"task_id": task.TaskID})
	return nil
}

// SetTaskEnabled flips a task's enabled flag in storage and the live table.
func (s *Service) SetTaskEnabled(ctx context.Context, taskID string, enabled bool) error {
	if err := s.store.SetEnabled(ctx, taskID, enabled); err != nil {
		return err
	}
	task, err := s.store.GetTaskByID(ctx, taskID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if enabled {
		s.tasks[taskID] = task
	} else {
		delete(s.tasks, taskID)
	}
	s.mu.Unlock()
	s.publish(ctx, events.TaskUpdated, map[string]interface{}{"task_id": taskID, "enabled": enabled})
	return nil
}

// DeleteTask removes a task everywhere.
func (s *Service) DeleteTask(ctx context.Context, taskID string) error {
	if err := s.store.DeleteTask(ctx, taskID); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.tasks, taskID)
	delete(s.lastRun, taskID)
	s.mu.Unlock()
	s.publish(ctx, events.TaskDeleted, map[string]interface{}{"task_id": taskID})
	return nil
}

func (s *Service) validateTask(task *models.Task) error {
	if task.Name == "" {
		return errors.New("task name is required")
	}
	if task.UserID == "" {
		return errors.New("task user_id is required")
	}
	switch task.ActionType {
	case models.ActionRunAgent, models.ActionSendNotification, models.ActionAPICall:
	default:
		return fmt.Errorf("unknown action type %q", task.ActionType)
	}
	if len(task.ActionConfig) == 0 {
		return errors.New("task action_config is required")
	}
	// boot-time fix-up rewrites "now"; accept it here too
	if task.TriggerType == models.TriggerOnce && task.ConfigString("datetime") == "now" {
		task.TriggerConfig["datetime"] = s.now().Format(time.RFC3339)
	}
	if err := triggers.Validate(task); err != nil {
		return fmt.Errorf("invalid trigger: %w", err)
	}
	return nil
}

func (s *Service) taskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *Service) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.Publish(ctx, eventType, bus.NewEvent(eventType, eventSource, data)); err != nil {
		s.logger.Warn("failed to publish event", zap.String("type", eventType), zap.Error(err))
	}
}
