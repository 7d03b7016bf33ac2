package websocket

import (
	"time"

	"chat-sync/internal/changefeed"
)

// MessageType is the type tag of a frame sent to or received from a client.
type MessageType string

const (
	MessageTypeConnect MessageType = "connection.connect"
	// MessageTypeChange frames are changefeed.Event values.
	MessageTypeChange MessageType = changefeed.EventType
	MessageTypePing   MessageType = "ping"
	MessageTypePong   MessageType = "pong"
	MessageTypeError  MessageType = "error"
)

func (mt MessageType) String() string {
	return string(mt)
}

// Message is the envelope for control frames. Change events are sent bare so
// clients decode them with changefeed.Decode.
type Message struct {
	Type      MessageType            `json:"type"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

func NewMessage(msgType MessageType, data map[string]interface{}) *Message {
	return &Message{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
}

// NewConnectMessage greets a client after registration.
func NewConnectMessage(clientID string) *Message {
	return NewMessage(MessageTypeConnect, map[string]interface{}{
		"client_id": clientID,
		"status":    "connected",
	})
}

func NewErrorMessage(code, message string) *Message {
	return NewMessage(MessageTypeError, map[string]interface{}{
		"code":    code,
		"message": message,
	})
}
