package websocket

import (
	"context"

	"go.uber.org/zap"

	"github.com/agentrun/agentrun/internal/common/logger"
	"github.com/agentrun/agentrun/internal/events"
	"github.com/agentrun/agentrun/internal/events/bus"
	ws "github.com/agentrun/agentrun/pkg/websocket"
)

// ExecutionEventBroadcaster forwards event-bus traffic to WebSocket clients.
// Lifecycle and CRUD events go to every client; per-step progress events go
// only to clients subscribed to the instance.
type ExecutionEventBroadcaster struct {
	hub           *Hub
	subscriptions []bus.Subscription
	logger        *logger.Logger
}

// RegisterExecutionNotifications wires the event bus into the hub. The
// broadcaster unsubscribes when ctx is cancelled.
func RegisterExecutionNotifications(ctx context.Context, eventBus bus.EventBus, hub *Hub, log *logger.Logger) *ExecutionEventBroadcaster {
	b := &ExecutionEventBroadcaster{
		hub:    hub,
		logger: log.WithFields(zap.String("component", "ws-execution-broadcaster")),
	}
	if eventBus == nil {
		return b
	}

	b.subscribe(eventBus, events.ExecutionStarted, ws.ActionExecutionStarted)
	b.subscribe(eventBus, events.ExecutionCompleted, ws.ActionExecutionCompleted)
	b.subscribe(eventBus, events.ExecutionFailed, ws.ActionExecutionFailed)
	b.subscribe(eventBus, events.ExecutionPaused, ws.ActionExecutionPaused)
	b.subscribe(eventBus, events.ExecutionResumed, ws.ActionExecutionResumed)
	b.subscribeSteps(eventBus)

	b.subscribe(eventBus, events.ScenarioCreated, ws.ActionScenarioCreated)
	b.subscribe(eventBus, events.ScenarioUpdated, ws.ActionScenarioUpdated)
	b.subscribe(eventBus, events.ScenarioDeleted, ws.ActionScenarioDeleted)
	b.subscribe(eventBus, events.AgentCreated, ws.ActionAgentCreated)
	b.subscribe(eventBus, events.AgentUpdated, ws.ActionAgentUpdated)
	b.subscribe(eventBus, events.AgentDeleted, ws.ActionAgentDeleted)

	b.subscribe(eventBus, events.TaskCreated, ws.ActionTaskCreated)
	b.subscribe(eventBus, events.TaskUpdated, ws.ActionTaskUpdated)
	b.subscribe(eventBus, events.TaskDeleted, ws.ActionTaskDeleted)
	b.subscribe(eventBus, events.TaskDispatched, ws.ActionTaskDispatched)
	b.subscribe(eventBus, events.TaskFailed, ws.ActionTaskFailed)

	go func() {
		<-ctx.Done()
		b.Close()
	}()

	return b
}

// Close drops all event-bus subscriptions.
func (b *ExecutionEventBroadcaster) Close() {
	for _, sub := range b.subscriptions {
		if sub != nil && sub.IsValid() {
			_ = sub.Unsubscribe()
		}
	}
	b.subscriptions = nil
}

func (b *ExecutionEventBroadcaster) subscribe(eventBus bus.EventBus, subject, action string) {
	sub, err := eventBus.Subscribe(subject, func(ctx context.Context, event *bus.Event) error {
		msg, err := ws.NewNotification(action, event.Data)
		if err != nil {
			return err
		}
		b.hub.Broadcast(msg)
		return nil
	})
	if err != nil {
		b.logger.Error("Failed to subscribe",
			zap.String("subject", subject), zap.Error(err))
		return
	}
	b.subscriptions = append(b.subscriptions, sub)
}

func (b *ExecutionEventBroadcaster) subscribeSteps(eventBus bus.EventBus) {
	subject := events.BuildExecutionStepWildcardSubject()
	sub, err := eventBus.Subscribe(subject, func(ctx context.Context, event *bus.Event) error {
		instanceID := extractInstanceID(event.Data)
		if instanceID == "" {
			return nil
		}
		msg, err := ws.NewNotification(ws.ActionExecutionStep, event.Data)
		if err != nil {
			return err
		}
		b.hub.BroadcastToInstance(instanceID, msg)
		return nil
	})
	if err != nil {
		b.logger.Error("Failed to subscribe",
			zap.String("subject", subject), zap.Error(err))
		return
	}
	b.subscriptions = append(b.subscriptions, sub)
}

func extractInstanceID(data map[string]any) string {
	if data == nil {
		return ""
	}
	instanceID, _ := data["instance_id"].(string)
	return instanceID
}
