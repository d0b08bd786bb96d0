// Package bus provides the event bus the platform publishes execution
// progress on. The in-memory implementation is the default; NATS is available
// when several instances need to share one stream.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is one message on the bus.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// NewEvent builds an event with a fresh UUID and the current UTC time.
func NewEvent(eventType, source string, data map[string]any) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// EventHandler consumes one event. A returned error is logged by the bus,
// never propagated to the publisher.
type EventHandler func(ctx context.Context, event *Event) error

// Subscription is an active subscription that can be torn down.
type Subscription interface {
	Unsubscribe() error
	IsValid() bool
}

// EventBus publishes events to subjects and delivers them to subscribers.
// Subjects are dot-separated; subscription patterns may use the NATS
// wildcards * (one token) and > (rest of the subject).
type EventBus interface {
	Publish(ctx context.Context, subject string, event *Event) error
	Subscribe(subject string, handler EventHandler) (Subscription, error)
	Close()
	IsConnected() bool
}
