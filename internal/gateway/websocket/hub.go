// Package websocket provides the WebSocket gateway that streams execution
// progress to connected clients.
package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/agentrun/agentrun/internal/common/logger"
	ws "github.com/agentrun/agentrun/pkg/websocket"
)

// Hub manages all WebSocket client connections
type Hub struct {
	// All registered clients
	clients map[*Client]bool

	// Clients subscribed to specific execution instances
	instanceSubscribers map[string]map[*Client]bool

	// Channels for client management
	register   chan *Client
	unregister chan *Client

	// Channel for broadcasting notifications
	broadcast chan *ws.Message

	// Message dispatcher
	dispatcher *ws.Dispatcher

	mu     sync.RWMutex
	logger *logger.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(dispatcher *ws.Dispatcher, log *logger.Logger) *Hub {
	return &Hub{
		clients:             make(map[*Client]bool),
		instanceSubscribers: make(map[string]map[*Client]bool),
		register:            make(chan *Client),
		unregister:          make(chan *Client),
		broadcast:           make(chan *ws.Message, 256),
		dispatcher:          dispatcher,
		logger:              log.WithFields(zap.String("component", "ws_hub")),
	}
}

// Run starts the hub's main processing loop
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket hub started")
	defer h.logger.Info("WebSocket hub stopped")

	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("Client registered", zap.String("client_id", client.ID))

		case client := <-h.unregister:
			h.removeClient(client)

		case msg := <-h.broadcast:
			h.broadcastMessage(msg)
		}
	}
}

// closeAllClients closes all client connections
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.instanceSubscribers = make(map[string]map[*Client]bool)
}

// removeClient removes a client from the hub
func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)

		for instanceID := range client.subscriptions {
			if clients, ok := h.instanceSubscribers[instanceID]; ok {
				delete(clients, client)
				if len(clients) == 0 {
					delete(h.instanceSubscribers, instanceID)
				}
			}
		}
	}
	h.logger.Debug("Client unregistered", zap.String("client_id", client.ID))
}

// broadcastMessage sends a message to all connected clients
func (h *Hub) broadcastMessage(msg *ws.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			// Client buffer full, will be cleaned up by write pump
		}
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Broadcast sends a notification to all connected clients
func (h *Hub) Broadcast(msg *ws.Message) {
	h.broadcast <- msg
}

// BroadcastToInstance sends a notification to clients subscribed to one
// execution instance.
func (h *Hub) BroadcastToInstance(instanceID string, msg *ws.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.instanceSubscribers[instanceID] {
		select {
		case client.send <- data:
		default:
			// Buffer full
		}
	}
}

// SubscribeToInstance subscribes a client to an execution instance's step
// notifications.
func (h *Hub) SubscribeToInstance(client *Client, instanceID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.instanceSubscribers[instanceID]; !ok {
		h.instanceSubscribers[instanceID] = make(map[*Client]bool)
	}
	h.instanceSubscribers[instanceID][client] = true
	client.subscriptions[instanceID] = true

	h.logger.Debug("Client subscribed to instance",
		zap.String("client_id", client.ID),
		zap.String("instance_id", instanceID))
}

// UnsubscribeFromInstance unsubscribes a client from an execution instance.
func (h *Hub) UnsubscribeFromInstance(client *Client, instanceID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(client.subscriptions, instanceID)
	if clients, ok := h.instanceSubscribers[instanceID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.instanceSubscribers, instanceID)
		}
	}
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetDispatcher returns the message dispatcher
func (h *Hub) GetDispatcher() *ws.Dispatcher {
	return h.dispatcher
}
