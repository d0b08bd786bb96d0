// Package executor runs scenarios: it composes the initial context, drives
// the state machine step by step through registered handlers, persists paused
// executions and resumes them when external input arrives.
package executor

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/agentrun/agentrun/internal/common/logger"
	"github.com/agentrun/agentrun/internal/scenario/models"
)

// Outcome is what a step handler reports back to the execution loop.
// Zero value means plain success with the context already mutated in place.
type Outcome struct {
	// Pause suspends the execution until an external callback resumes it.
	Pause bool
	// Bound marks Value as a result to store under the step's output_var.
	Bound bool
	Value any
	// Err terminates the execution with a failure.
	Err error
}

// OK reports plain success.
func OK() Outcome { return Outcome{} }

// Paused suspends the execution.
func Paused() Outcome { return Outcome{Pause: true} }

// Bind stores v under the step's output_var.
func Bind(v any) Outcome { return Outcome{Bound: true, Value: v} }

// Fail terminates the execution with err.
func Fail(err error) Outcome { return Outcome{Err: err} }

// HandlerFunc executes one resolved step against the live execution context.
// Mutations of execCtx are visible to subsequent steps.
type HandlerFunc func(ctx context.Context, step *models.Step, execCtx map[string]any) Outcome

// Registry maps step types to handlers. It is populated at startup and
// read-only afterwards.
type Registry struct {
	mu       sync.RWMutex
	handlers map[models.StepType]HandlerFunc
	logger   *logger.Logger
}

// NewRegistry creates an empty handler registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		handlers: make(map[models.StepType]HandlerFunc),
		logger:   log,
	}
}

// Register installs a handler for a step type. Re-registering replaces the
// previous handler and logs a warning.
func (r *Registry) Register(stepType models.StepType, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[stepType]; exists {
		r.logger.Warn("Replacing previously registered step handler",
			zap.String("step_type", string(stepType)))
	}
	r.handlers[stepType] = fn
}

// Get returns the handler for a step type.
func (r *Registry) Get(stepType models.StepType) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.handlers[stepType]
	return fn, ok
}

// Types returns the registered step types, for diagnostics.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, string(t))
	}
	return types
}
