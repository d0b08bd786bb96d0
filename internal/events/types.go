// Package events provides event types and utilities for the agentrun event system.
package events

// Event types for scenarios
const (
	ScenarioCreated = "scenario.created"
	ScenarioUpdated = "scenario.updated"
	ScenarioDeleted = "scenario.deleted"
)

// Event types for agents
const (
	AgentCreated = "agent.created"
	AgentUpdated = "agent.updated"
	AgentDeleted = "agent.deleted"
)

// Event types for scenario executions
const (
	ExecutionStarted   = "execution.started"
	ExecutionCompleted = "execution.completed"
	ExecutionFailed    = "execution.failed"
	ExecutionPaused    = "execution.paused"
	ExecutionResumed   = "execution.resumed"
	ExecutionStep      = "execution.step" // Base subject for per-step progress events
)

// Event types for scheduled tasks
const (
	TaskCreated    = "task.created"
	TaskUpdated    = "task.updated"
	TaskDeleted    = "task.deleted"
	TaskDispatched = "task.dispatched"
	TaskFailed     = "task.failed"
)

// Event types for scheduler lifecycle
const (
	SchedulerStarted = "scheduler.started"
	SchedulerStopped = "scheduler.stopped"
)

// BuildExecutionStepSubject creates a step progress subject for a specific instance
func BuildExecutionStepSubject(instanceID string) string {
	return ExecutionStep + "." + instanceID
}

// BuildExecutionStepWildcardSubject creates a wildcard subscription for all step progress events
func BuildExecutionStepWildcardSubject() string {
	return ExecutionStep + ".*"
}
