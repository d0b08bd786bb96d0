package bus

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/agentrun/agentrun/internal/common/logger"
)

// MemoryEventBus is the in-process EventBus used by the single-binary
// deployment. Dispatch is synchronous: handlers run on the publisher's
// goroutine, so step events reach websocket clients in publish order.
type MemoryEventBus struct {
	mu            sync.RWMutex
	subscriptions map[string][]*memorySubscription
	logger        *logger.Logger
	closed        bool
}

type memorySubscription struct {
	bus     *MemoryEventBus
	pattern string
	handler EventHandler

	mu     sync.Mutex
	active bool
}

// Unsubscribe deactivates the subscription and removes it from the bus.
func (s *memorySubscription) Unsubscribe() error {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()

	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	subs := s.bus.subscriptions[s.pattern]
	for i, sub := range subs {
		if sub == s {
			s.bus.subscriptions[s.pattern] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	return nil
}

func (s *memorySubscription) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func NewMemoryEventBus(log *logger.Logger) *MemoryEventBus {
	return &MemoryEventBus{
		subscriptions: make(map[string][]*memorySubscription),
		logger:        log,
	}
}

// Publish delivers the event to every subscription whose pattern matches the
// subject, in registration order.
func (b *MemoryEventBus) Publish(ctx context.Context, subject string, event *Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("event bus is closed")
	}

	for pattern, subs := range b.subscriptions {
		if !matchSubject(subject, pattern) {
			continue
		}
		for _, sub := range subs {
			if !sub.IsValid() {
				continue
			}
			if err := sub.handler(ctx, event); err != nil {
				b.logger.Error("Event handler error",
					zap.String("subject", subject),
					zap.Error(err))
			}
		}
	}

	b.logger.Debug("Published event",
		zap.String("subject", subject),
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type))
	return nil
}

// Subscribe registers a handler for a subject pattern.
func (b *MemoryEventBus) Subscribe(subject string, handler EventHandler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("event bus is closed")
	}

	sub := &memorySubscription{
		bus:     b,
		pattern: subject,
		handler: handler,
		active:  true,
	}
	b.subscriptions[subject] = append(b.subscriptions[subject], sub)

	b.logger.Debug("Subscribed to subject", zap.String("subject", subject))
	return sub, nil
}

// Close deactivates all subscriptions and rejects further use.
func (b *MemoryEventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for _, subs := range b.subscriptions {
		for _, sub := range subs {
			sub.mu.Lock()
			sub.active = false
			sub.mu.Unlock()
		}
	}
	b.subscriptions = make(map[string][]*memorySubscription)
	b.logger.Info("Memory event bus closed")
}

func (b *MemoryEventBus) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}

// matchSubject matches a subject against a pattern token by token.
// "*" matches exactly one token, ">" matches one or more trailing tokens.
func matchSubject(subject, pattern string) bool {
	if subject == pattern {
		return true
	}
	if !strings.Contains(pattern, "*") && !strings.Contains(pattern, ">") {
		return false
	}

	subjectTokens := strings.Split(subject, ".")
	patternTokens := strings.Split(pattern, ".")

	for i, pt := range patternTokens {
		if pt == ">" {
			return i == len(patternTokens)-1 && len(subjectTokens) > i
		}
		if i >= len(subjectTokens) {
			return false
		}
		if pt != "*" && pt != subjectTokens[i] {
			return false
		}
	}
	return len(subjectTokens) == len(patternTokens)
}
