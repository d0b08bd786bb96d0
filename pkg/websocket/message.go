// Package websocket defines the wire protocol shared by the gateway and its
// clients: a JSON envelope carrying an action name plus a raw payload, and an
// action-keyed dispatcher.
package websocket

import (
	"encoding/json"
	"time"
)

// MessageType distinguishes requests from server-initiated traffic.
type MessageType string

const (
	MessageTypeRequest      MessageType = "request"
	MessageTypeResponse     MessageType = "response"
	MessageTypeNotification MessageType = "notification"
	MessageTypeError        MessageType = "error"
)

// Message is the envelope for every frame on the wire. ID correlates a
// response with the request that caused it; notifications leave it empty.
type Message struct {
	ID        string          `json:"id,omitempty"`
	Type      MessageType     `json:"type"`
	Action    string          `json:"action"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// ErrorPayload is the payload of a MessageTypeError frame.
type ErrorPayload struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func newMessage(id string, mt MessageType, action string, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:        id,
		Type:      mt,
		Action:    action,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewResponse builds a response frame correlated to a request by id.
func NewResponse(id, action string, payload any) (*Message, error) {
	return newMessage(id, MessageTypeResponse, action, payload)
}

// NewNotification builds a server-initiated frame with no correlation id.
func NewNotification(action string, payload any) (*Message, error) {
	return newMessage("", MessageTypeNotification, action, payload)
}

// NewError builds an error frame. The id may be empty when the failure is not
// tied to a specific request.
func NewError(id, action, code, message string, details map[string]any) (*Message, error) {
	return newMessage(id, MessageTypeError, action, ErrorPayload{
		Code:    code,
		Message: message,
		Details: details,
	})
}

// ParsePayload unmarshals the raw payload into v. A nil payload is a no-op.
func (m *Message) ParsePayload(v any) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
