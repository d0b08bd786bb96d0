package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"

	"github.com/agentrun/agentrun/internal/common/logger"
	"github.com/agentrun/agentrun/internal/events"
	"github.com/agentrun/agentrun/internal/events/bus"
	ws "github.com/agentrun/agentrun/pkg/websocket"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "debug", Format: "console", OutputPath: "stdout"})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return log
}

func newGatewayServer(t *testing.T) (*Gateway, bus.EventBus, *gorillaws.Conn) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := newTestLogger(t)

	eventBus := bus.NewMemoryEventBus(log)
	t.Cleanup(eventBus.Close)

	gateway := NewGateway(log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go gateway.Hub.Run(ctx)
	RegisterExecutionNotifications(ctx, eventBus, gateway.Hub, log)

	router := gin.New()
	gateway.SetupRoutes(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	// Wait until the hub has picked up the registration.
	deadline := time.Now().Add(2 * time.Second)
	for gateway.Hub.GetClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return gateway, eventBus, conn
}

func readMessage(t *testing.T, conn *gorillaws.Conn) *ws.Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	var msg ws.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	return &msg
}

func TestBroadcastsExecutionLifecycle(t *testing.T) {
	_, eventBus, conn := newGatewayServer(t)

	event := bus.NewEvent(events.ExecutionCompleted, "scenario-executor", map[string]any{
		"scenario_id": "greeter",
		"instance_id": "greeter_7_1001_1",
	})
	if err := eventBus.Publish(context.Background(), events.ExecutionCompleted, event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msg := readMessage(t, conn)
	if msg.Action != ws.ActionExecutionCompleted || msg.Type != ws.MessageTypeNotification {
		t.Fatalf("unexpected message: %+v", msg)
	}
	var payload map[string]any
	if err := msg.ParsePayload(&payload); err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	if payload["scenario_id"] != "greeter" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestStepEventsGoToInstanceSubscribers(t *testing.T) {
	_, eventBus, conn := newGatewayServer(t)

	instanceID := "survey_7_1001_1"
	sub, _ := json.Marshal(map[string]any{"instance_id": instanceID})
	request := ws.Message{
		ID:      "req-1",
		Type:    ws.MessageTypeRequest,
		Action:  ws.ActionExecutionSubscribe,
		Payload: sub,
	}
	if err := conn.WriteJSON(&request); err != nil {
		t.Fatalf("send subscribe: %v", err)
	}

	resp := readMessage(t, conn)
	if resp.Type != ws.MessageTypeResponse || resp.ID != "req-1" {
		t.Fatalf("unexpected subscribe response: %+v", resp)
	}

	subject := events.BuildExecutionStepSubject(instanceID)
	event := bus.NewEvent(events.ExecutionStep, "scenario-executor", map[string]any{
		"instance_id": instanceID,
		"step_id":     "ask",
		"step_type":   "telegram_send_message",
	})
	if err := eventBus.Publish(context.Background(), subject, event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msg := readMessage(t, conn)
	if msg.Action != ws.ActionExecutionStep {
		t.Fatalf("unexpected message: %+v", msg)
	}
	var payload map[string]any
	if err := msg.ParsePayload(&payload); err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	if payload["step_id"] != "ask" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestUnknownActionGetsError(t *testing.T) {
	_, _, conn := newGatewayServer(t)

	request := ws.Message{ID: "req-2", Type: ws.MessageTypeRequest, Action: "no.such.action"}
	if err := conn.WriteJSON(&request); err != nil {
		t.Fatalf("send request: %v", err)
	}

	msg := readMessage(t, conn)
	if msg.Type != ws.MessageTypeError {
		t.Fatalf("expected error message, got %+v", msg)
	}
	var payload ws.ErrorPayload
	if err := msg.ParsePayload(&payload); err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	if payload.Code != ws.ErrorCodeUnknownAction {
		t.Fatalf("unexpected error code %q", payload.Code)
	}
}

func TestExtractInstanceID(t *testing.T) {
	if got := extractInstanceID(nil); got != "" {
		t.Errorf("nil data: got %q", got)
	}
	if got := extractInstanceID(map[string]any{"step_id": "ask"}); got != "" {
		t.Errorf("missing id: got %q", got)
	}
	if got := extractInstanceID(map[string]any{"instance_id": "i1"}); got != "i1" {
		t.Errorf("got %q", got)
	}
}
