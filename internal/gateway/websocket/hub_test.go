package websocket

import (
	"testing"

	ws "github.com/agentrun/agentrun/pkg/websocket"
)

// Instance broadcasts must read the subscriber table under the lock while
// other goroutines mutate subscriptions.
func TestBroadcastToInstanceDuringSubscriptionChurn(t *testing.T) {
	log := newTestLogger(t)
	hub := NewHub(ws.NewDispatcher(), log)

	client := NewClient("c1", nil, hub, log)
	hub.mu.Lock()
	hub.clients[client] = true
	hub.mu.Unlock()

	msg, err := ws.NewNotification("execution_event", map[string]any{"step": "send"})
	if err != nil {
		t.Fatalf("build notification: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			hub.SubscribeToInstance(client, "inst-1")
			hub.UnsubscribeFromInstance(client, "inst-1")
		}
	}()

	for i := 0; i < 500; i++ {
		hub.BroadcastToInstance("inst-1", msg)
	}
	<-done

	hub.SubscribeToInstance(client, "inst-1")
	hub.BroadcastToInstance("inst-1", msg)
	select {
	case <-client.send:
	default:
		t.Fatalf("subscribed client received nothing")
	}
}
