package websocket

// Action constants for WebSocket messages
const (
	// Health
	ActionHealthCheck = "health.check"

	// Subscription actions (client -> server)
	ActionExecutionSubscribe   = "execution.subscribe"
	ActionExecutionUnsubscribe = "execution.unsubscribe"

	// Execution notifications (server -> client)
	ActionExecutionStarted   = "execution.started"
	ActionExecutionCompleted = "execution.completed"
	ActionExecutionFailed    = "execution.failed"
	ActionExecutionPaused    = "execution.paused"
	ActionExecutionResumed   = "execution.resumed"
	ActionExecutionStep      = "execution.step"

	// Scenario and agent change notifications
	ActionScenarioCreated = "scenario.created"
	ActionScenarioUpdated = "scenario.updated"
	ActionScenarioDeleted = "scenario.deleted"
	ActionAgentCreated    = "agent.created"
	ActionAgentUpdated    = "agent.updated"
	ActionAgentDeleted    = "agent.deleted"

	// Scheduled task notifications
	ActionTaskCreated    = "task.created"
	ActionTaskUpdated    = "task.updated"
	ActionTaskDeleted    = "task.deleted"
	ActionTaskDispatched = "task.dispatched"
	ActionTaskFailed     = "task.failed"
)

// Error codes
const (
	ErrorCodeBadRequest    = "BAD_REQUEST"
	ErrorCodeNotFound      = "NOT_FOUND"
	ErrorCodeInternalError = "INTERNAL_ERROR"
	ErrorCodeValidation    = "VALIDATION_ERROR"
	ErrorCodeUnknownAction = "UNKNOWN_ACTION"
)
