// Package models defines the scheduled-task documents.
package models

import "time"

// Trigger types supported by the scheduler.
const (
	TriggerOnce     = "once"
	TriggerDaily    = "daily"
	TriggerWeekly   = "weekly"
	TriggerMonthly  = "monthly"
	TriggerInterval = "interval"
	TriggerCron     = "cron"
)

// Action types the dispatcher knows how to fire.
const (
	ActionRunAgent         = "run_agent"
	ActionSendNotification = "send_notification"
	ActionAPICall          = "api_call"
)

// Task is one durable scheduled task. TriggerConfig is interpreted per
// TriggerType:
//
//	once:     datetime (RFC3339, or the literal "now" rewritten at boot)
//	daily:    time ("15:04", UTC)
//	weekly:   weekdays ([0..6], 0=Sunday) + time
//	monthly:  day (1..31) + time
//	interval: minutes
//	cron:     expr (standard five-field cron)
type Task struct {
	TaskID         string         `json:"task_id" bson:"task_id"`
	Name           string         `json:"name" bson:"name"`
	TriggerType    string         `json:"trigger_type" bson:"trigger_type"`
	TriggerConfig  map[string]any `json:"trigger_config,omitempty" bson:"trigger_config,omitempty"`
	ActionType     string         `json:"action_type" bson:"action_type"`
	ActionConfig   map[string]any `json:"action_config,omitempty" bson:"action_config,omitempty"`
	UserID         string         `json:"user_id,omitempty" bson:"user_id,omitempty"`
	Enabled        bool           `json:"enabled" bson:"enabled"`
	LastExecutedAt *time.Time     `json:"last_executed_at,omitempty" bson:"last_executed_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at,omitempty" bson:"created_at,omitempty"`
	UpdatedAt      time.Time      `json:"updated_at,omitempty" bson:"updated_at,omitempty"`
}

// ConfigString returns a string value from the trigger config.
func (t *Task) ConfigString(key string) string {
	if t.TriggerConfig == nil {
		return ""
	}
	v, _ := t.TriggerConfig[key].(string)
	return v
}

// ConfigInt returns a numeric value from the trigger config. Numbers arrive
// as float64 from JSON and as int32/int64 from BSON.
func (t *Task) ConfigInt(key string) (int, bool) {
	if t.TriggerConfig == nil {
		return 0, false
	}
	switch v := t.TriggerConfig[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
