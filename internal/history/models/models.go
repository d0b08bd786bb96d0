// Package models defines the execution-history record types.
package models

import "time"

// Record is one finished (or paused/failed) execution as seen by the
// history store. Context holds the sanitized result context.
type Record struct {
	ID         int64          `json:"id" db:"id"`
	InstanceID string         `json:"instance_id" db:"instance_id"`
	ScenarioID string         `json:"scenario_id" db:"scenario_id"`
	AgentID    string         `json:"agent_id,omitempty" db:"agent_id"`
	Status     string         `json:"status" db:"status"`
	Message    string         `json:"message,omitempty" db:"message"`
	Error      string         `json:"error,omitempty" db:"error_message"`
	Context    map[string]any `json:"context,omitempty" db:"-"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}

// ListFilter narrows a history listing. Zero values mean "no constraint".
// Query matches against the record message and error text.
type ListFilter struct {
	InstanceID string
	ScenarioID string
	AgentID    string
	Status     string
	Query      string
	Limit      int
	Offset     int
}

// DefaultListLimit caps unbounded history listings.
const DefaultListLimit = 100
