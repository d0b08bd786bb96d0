// Package repository persists execution-history records in SQLite or
// PostgreSQL through a shared db.Pool.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agentrun/agentrun/internal/db"
	"github.com/agentrun/agentrun/internal/db/dialect"
	"github.com/agentrun/agentrun/internal/history/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("history record not found")

// Repository provides SQL-backed history storage.
type Repository struct {
	pool *db.Pool
}

// New creates the repository and initializes the schema.
func New(pool *db.Pool) (*Repository, error) {
	repo := &Repository{pool: pool}
	if err := repo.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return repo, nil
}

func (r *Repository) initSchema() error {
	writer := r.pool.Writer()
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS execution_history (
		id %s,
		instance_id TEXT NOT NULL DEFAULT '',
		scenario_id TEXT NOT NULL,
		agent_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		context TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL
	);
	`, dialect.SerialPK(writer.DriverName()))
	if _, err := writer.Exec(schema); err != nil {
		return err
	}
	// One statement per Exec: pgx's extended protocol rejects batched DDL.
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_execution_history_instance_id ON execution_history(instance_id)`,
		`CREATE INDEX IF NOT EXISTS idx_execution_history_scenario_id ON execution_history(scenario_id)`,
		`CREATE INDEX IF NOT EXISTS idx_execution_history_created_at ON execution_history(created_at)`,
	}
	for _, stmt := range indexes {
		if _, err := writer.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Insert stores a record and fills in its generated ID. A zero CreatedAt is
// set to the current time.
func (r *Repository) Insert(ctx context.Context, record *models.Record) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	contextJSON, err := json.Marshal(record.Context)
	if err != nil {
		return fmt.Errorf("marshal record context: %w", err)
	}
	if record.Context == nil {
		contextJSON = []byte("{}")
	}

	writer := r.pool.Writer()
	id, err := dialect.InsertReturningID(ctx, writer, `
		INSERT INTO execution_history
			(instance_id, scenario_id, agent_id, status, message, error_message, context, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.InstanceID, record.ScenarioID, record.AgentID, record.Status,
		record.Message, record.Error, string(contextJSON), record.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}
	record.ID = id
	return nil
}

type recordRow struct {
	ID         int64     `db:"id"`
	InstanceID string    `db:"instance_id"`
	ScenarioID string    `db:"scenario_id"`
	AgentID    string    `db:"agent_id"`
	Status     string    `db:"status"`
	Message    string    `db:"message"`
	Error      string    `db:"error_message"`
	Context    string    `db:"context"`
	CreatedAt  time.Time `db:"created_at"`
}

func (row *recordRow) toModel() (*models.Record, error) {
	record := &models.Record{
		ID:         row.ID,
		InstanceID: row.InstanceID,
		ScenarioID: row.ScenarioID,
		AgentID:    row.AgentID,
		Status:     row.Status,
		Message:    row.Message,
		Error:      row.Error,
		CreatedAt:  row.CreatedAt,
	}
	if row.Context != "" && row.Context != "{}" {
		if err := json.Unmarshal([]byte(row.Context), &record.Context); err != nil {
			return nil, fmt.Errorf("unmarshal record %d context: %w", row.ID, err)
		}
	}
	return record, nil
}

// GetByID retrieves a single record.
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.Record, error) {
	reader := r.pool.Reader()
	var row recordRow
	err := reader.GetContext(ctx, &row,
		reader.Rebind(`SELECT * FROM execution_history WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return row.toModel()
}

// List returns records matching the filter, newest first.
func (r *Repository) List(ctx context.Context, filter models.ListFilter) ([]*models.Record, error) {
	reader := r.pool.Reader()

	var where []string
	var args []any
	if filter.InstanceID != "" {
		where = append(where, "instance_id = ?")
		args = append(args, filter.InstanceID)
	}
	if filter.ScenarioID != "" {
		where = append(where, "scenario_id = ?")
		args = append(args, filter.ScenarioID)
	}
	if filter.AgentID != "" {
		where = append(where, "agent_id = ?")
		args = append(args, filter.AgentID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Query != "" {
		like := dialect.Like(reader.DriverName())
		where = append(where, fmt.Sprintf("(message %s ? OR error_message %s ?)", like, like))
		pattern := "%" + filter.Query + "%"
		args = append(args, pattern, pattern)
	}

	query := `SELECT * FROM execution_history`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"

	limit := filter.Limit
	if limit <= 0 {
		limit = models.DefaultListLimit
	}
	args = append(args, limit, filter.Offset)

	var rows []recordRow
	if err := reader.SelectContext(ctx, &rows, reader.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list history records: %w", err)
	}
	records := make([]*models.Record, 0, len(rows))
	for i := range rows {
		record, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// DeleteOlderThan removes records created before the cutoff and returns the
// number deleted.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	writer := r.pool.Writer()
	result, err := writer.ExecContext(ctx,
		writer.Rebind(`DELETE FROM execution_history WHERE created_at < ?`), cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune history records: %w", err)
	}
	return result.RowsAffected()
}
