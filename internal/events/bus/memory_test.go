package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentrun/agentrun/internal/common/logger"
)

func newTestLogger(t *testing.T) *logger.Logger {
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      "debug",
		Format:     "console",
		OutputPath: "stdout",
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return log
}

func TestMemoryEventBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	defer bus.Close()

	ctx := context.Background()
	received := make(chan *Event, 1)

	sub, err := bus.Subscribe("execution.started", func(ctx context.Context, event *Event) error {
		received <- event
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	event := NewEvent("execution.started", "scenario-service", map[string]any{"scenario_id": "greeter"})
	if err := bus.Publish(ctx, "execution.started", event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case e := <-received:
		if e.ID != event.ID {
			t.Errorf("Expected event ID %s, got %s", event.ID, e.ID)
		}
		if e.Data["scenario_id"] != "greeter" {
			t.Errorf("Expected scenario_id greeter, got %v", e.Data["scenario_id"])
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for event")
	}
}

func TestMemoryEventBus_MultipleSubscribers(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	defer bus.Close()

	ctx := context.Background()
	var count int32

	for i := 0; i < 3; i++ {
		sub, err := bus.Subscribe("execution.completed", func(ctx context.Context, event *Event) error {
			atomic.AddInt32(&count, 1)
			return nil
		})
		if err != nil {
			t.Fatalf("Subscribe %d failed: %v", i, err)
		}
		defer func() { _ = sub.Unsubscribe() }()
	}

	if err := bus.Publish(ctx, "execution.completed", NewEvent("execution.completed", "test", nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if atomic.LoadInt32(&count) != 3 {
		t.Errorf("Expected 3 handlers to be called, got %d", count)
	}
}

func TestMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	defer bus.Close()

	ctx := context.Background()
	var count int32

	sub, err := bus.Subscribe("execution.paused", func(ctx context.Context, event *Event) error {
		atomic.AddInt32(&count, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	event := NewEvent("execution.paused", "test", nil)
	if err := bus.Publish(ctx, "execution.paused", event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	if sub.IsValid() {
		t.Error("Expected subscription to be invalid after unsubscribe")
	}

	if err := bus.Publish(ctx, "execution.paused", event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if atomic.LoadInt32(&count) != 1 {
		t.Errorf("Expected 1 handler call, got %d", count)
	}
}

func TestMatchSubject(t *testing.T) {
	cases := []struct {
		subject string
		pattern string
		want    bool
	}{
		{"execution.started", "execution.started", true},
		{"execution.started", "execution.completed", false},
		{"execution.step.abc", "execution.step.*", true},
		{"execution.step.abc.extra", "execution.step.*", false},
		{"execution.step", "execution.step.*", false},
		{"execution.step.abc", "execution.>", true},
		{"execution.step.abc.extra", "execution.>", true},
		{"execution", "execution.>", false},
		{"scenario.created", "*.created", true},
		{"scenario.updated", "*.created", false},
	}
	for _, tc := range cases {
		if got := matchSubject(tc.subject, tc.pattern); got != tc.want {
			t.Errorf("matchSubject(%q, %q) = %v, want %v", tc.subject, tc.pattern, got, tc.want)
		}
	}
}

func TestMemoryEventBus_SingleTokenWildcard(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	defer bus.Close()

	ctx := context.Background()
	var count int32

	sub, err := bus.Subscribe("execution.step.*", func(ctx context.Context, event *Event) error {
		atomic.AddInt32(&count, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	for _, subject := range []string{"execution.step.inst-1", "execution.step.inst-2"} {
		if err := bus.Publish(ctx, subject, NewEvent("execution.step", "test", nil)); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}
	// Missing the instance token, should not match.
	if err := bus.Publish(ctx, "execution.step", NewEvent("execution.step", "test", nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if atomic.LoadInt32(&count) != 2 {
		t.Errorf("Expected 2 events received, got %d", count)
	}
}

func TestMemoryEventBus_MultiTokenWildcard(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	defer bus.Close()

	ctx := context.Background()
	var count int32

	sub, err := bus.Subscribe("task.>", func(ctx context.Context, event *Event) error {
		atomic.AddInt32(&count, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	for _, subject := range []string{"task.dispatched", "task.dispatch.failed"} {
		if err := bus.Publish(ctx, subject, NewEvent(subject, "test", nil)); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	if atomic.LoadInt32(&count) != 2 {
		t.Errorf("Expected 2 events received, got %d", count)
	}
}

func TestMemoryEventBus_ConcurrentPublish(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	defer bus.Close()

	ctx := context.Background()
	var receivedCount int32
	var wg sync.WaitGroup

	sub, err := bus.Subscribe("execution.step.load", func(ctx context.Context, event *Event) error {
		atomic.AddInt32(&receivedCount, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	const numGoroutines = 10
	const eventsPerGoroutine = 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerGoroutine; j++ {
				if err := bus.Publish(ctx, "execution.step.load", NewEvent("execution.step", "test", nil)); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&receivedCount); got != numGoroutines*eventsPerGoroutine {
		t.Errorf("Expected %d events, got %d", numGoroutines*eventsPerGoroutine, got)
	}
}

func TestMemoryEventBus_Close(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))

	if !bus.IsConnected() {
		t.Error("Expected bus to be connected initially")
	}

	bus.Close()

	if bus.IsConnected() {
		t.Error("Expected bus to be disconnected after Close")
	}
	if err := bus.Publish(context.Background(), "execution.started", NewEvent("execution.started", "test", nil)); err == nil {
		t.Error("Expected error when publishing to closed bus")
	}
	if _, err := bus.Subscribe("execution.started", func(ctx context.Context, event *Event) error { return nil }); err == nil {
		t.Error("Expected error when subscribing to closed bus")
	}
}

// Step events stream to websocket clients; reorderings show up as garbled
// progress, so the memory bus dispatches synchronously and this must hold
// even when handlers vary in duration.
func TestMemoryEventBus_OrderingWithSlowHandler(t *testing.T) {
	bus := NewMemoryEventBus(newTestLogger(t))
	defer bus.Close()

	ctx := context.Background()
	const numEvents = 50

	var mu sync.Mutex
	receivedOrder := make([]int, 0, numEvents)

	sub, err := bus.Subscribe("execution.step.ordering", func(ctx context.Context, event *Event) error {
		seq := event.Data["seq"].(int)
		// Earlier events take longer; async dispatch would let later
		// events overtake them.
		time.Sleep(time.Duration(numEvents-seq) * 100 * time.Microsecond)
		mu.Lock()
		receivedOrder = append(receivedOrder, seq)
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	for i := 0; i < numEvents; i++ {
		event := NewEvent("execution.step", "executor", map[string]any{"seq": i})
		if err := bus.Publish(ctx, "execution.step.ordering", event); err != nil {
			t.Fatalf("Publish failed at seq %d: %v", i, err)
		}
	}

	mu.Lock()
	defer mu.Unlock()

	if len(receivedOrder) != numEvents {
		t.Fatalf("Expected %d events, got %d", numEvents, len(receivedOrder))
	}
	for i, seq := range receivedOrder {
		if seq != i {
			t.Errorf("Ordering violation at position %d: expected seq %d, got %d", i, i, seq)
		}
	}
}

func TestNewEvent(t *testing.T) {
	before := time.Now().UTC()
	event := NewEvent("execution.started", "scenario-service", map[string]any{"agent_id": "bot"})
	after := time.Now().UTC()

	if event.ID == "" {
		t.Error("Expected event ID to be set")
	}
	if event.Type != "execution.started" {
		t.Errorf("Unexpected type %s", event.Type)
	}
	if event.Source != "scenario-service" {
		t.Errorf("Unexpected source %s", event.Source)
	}
	if event.Data["agent_id"] != "bot" {
		t.Error("Expected data to carry agent_id")
	}
	if event.Timestamp.Before(before) || event.Timestamp.After(after) {
		t.Error("Expected timestamp between before and after")
	}
}
