// Package repository provides MongoDB-backed storage for scheduled tasks.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/agentrun/agentrun/internal/scheduler/models"
)

const (
	tasksCollection = "scheduled_tasks"
	opTimeout       = 10 * time.Second
)

// ErrNotFound is returned when a task does not exist.
var ErrNotFound = errors.New("task not found")

// Repository stores scheduled tasks in MongoDB.
type Repository struct {
	tasks *mongo.Collection
}

// New creates a repository over a connected client and database name.
func New(client *mongo.Client, database string) *Repository {
	return &Repository{tasks: client.Database(database).Collection(tasksCollection)}
}

// CreateTask inserts a task document.
func (r *Repository) CreateTask(ctx context.Context, task *models.Task) error {
	if task.TaskID == "" {
		return errors.New("task_id is required")
	}
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	if _, err := r.tasks.InsertOne(opCtx, task); err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetTaskByID loads one task.
func (r *Repository) GetTaskByID(ctx context.Context, taskID string) (*models.Task, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var task models.Task
	err := r.tasks.FindOne(opCtx, bson.M{"task_id": taskID}).Decode(&task)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("task %q: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find task %q: %w", taskID, err)
	}
	return &task, nil
}

// ListTasks returns all tasks.
func (r *Repository) ListTasks(ctx context.Context) ([]*models.Task, error) {
	return r.list(ctx, bson.M{})
}

// ListEnabledTasks returns the tasks the tick loop should evaluate.
func (r *Repository) ListEnabledTasks(ctx context.Context) ([]*models.Task, error) {
	return r.list(ctx, bson.M{"enabled": true})
}

func (r *Repository) list(ctx context.Context, filter bson.M) ([]*models.Task, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cursor, err := r.tasks.Find(opCtx, filter)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer func() { _ = cursor.Close(opCtx) }()

	var tasks []*models.Task
	if err := cursor.All(opCtx, &tasks); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}
	return tasks, nil
}

// UpdateTask replaces a task document.
func (r *Repository) UpdateTask(ctx context.Context, task *models.Task) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	task.UpdatedAt = time.Now().UTC()
	res, err := r.tasks.ReplaceOne(opCtx, bson.M{"task_id": task.TaskID}, task)
	if err != nil {
		return fmt.Errorf("update task %q: %w", task.TaskID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("task %q: %w", task.TaskID, ErrNotFound)
	}
	return nil
}

// SetEnabled flips the enabled flag of a task.
func (r *Repository) SetEnabled(ctx context.Context, taskID string, enabled bool) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.tasks.UpdateOne(opCtx, bson.M{"task_id": taskID},
		bson.M{"$set": bson.M{"enabled": enabled, "updated_at": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("set task %q enabled=%t: %w", taskID, enabled, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("task %q: %w", taskID, ErrNotFound)
	}
	return nil
}

// RecordExecution stores the time a task was last dispatched.
func (r *Repository) RecordExecution(ctx context.Context, taskID string, at time.Time) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.tasks.UpdateOne(opCtx, bson.M{"task_id": taskID},
		bson.M{"$set": bson.M{"last_executed_at": at, "updated_at": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("record execution of task %q: %w", taskID, err)
	}
	return nil
}

// DeleteTask removes a task document.
func (r *Repository) DeleteTask(ctx context.Context, taskID string) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.tasks.DeleteOne(opCtx, bson.M{"task_id": taskID})
	if err != nil {
		return fmt.Errorf("delete task %q: %w", taskID, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("task %q: %w", taskID, ErrNotFound)
	}
	return nil
}
