// Package websocket provides WebSocket message handling utilities.
package websocket

import (
	"encoding/json"
)

// Conn is the part of a WebSocket connection the event loop needs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
	Close() error
}

// PingHandler handles ping/pong messages for WebSocket connections.
type PingHandler struct {
	conn Conn
}

// NewPingHandler creates a new PingHandler.
func NewPingHandler(conn Conn) *PingHandler {
	return &PingHandler{
		conn: conn,
	}
}

// Handle processes a message and returns true if it was a ping message.
func (h *PingHandler) Handle(message []byte) bool {
	if !IsPingMessage(message) {
		return false
	}

	// Send pong response
	_ = h.conn.WriteJSON(Message{Type: MessagePong})

	return true
}

// IsPingMessage checks if a message is a ping message without processing it.
func IsPingMessage(message []byte) bool {
	var msg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &msg); err != nil {
		return false
	}
	return msg.Type == EventPing
}
