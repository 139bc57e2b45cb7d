// Package protocol defines the WebSocket and data channel messages exchanged
// between the session server and remote viewers.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of message
type MessageType string

const (
	// Server → viewer messages
	TypeFrame MessageType = "frame" // Rendered frame (or header for chunked binary frames)
	TypeState MessageType = "state" // Session state snapshot
	TypeError MessageType = "error" // Error reported by the session

	// Viewer → server messages
	TypeResize     MessageType = "resize"     // Surface geometry changed
	TypeLifecycle  MessageType = "lifecycle"  // Resume / pause request
	TypePermission MessageType = "permission" // Camera permission answer

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Server → Viewer Message Types
// =============================================================================

// FrameData describes a rendered frame.
// Over WebSocket Data carries the base64 JPEG. Over a data channel Data is
// empty and Size bytes follow in Chunks binary messages.
type FrameData struct {
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Format  string `json:"format"` // "jpeg"
	Data    string `json:"data,omitempty"`
	FrameID uint64 `json:"frame_id,omitempty"`
	Size    int    `json:"size,omitempty"`
	Chunks  int    `json:"chunks,omitempty"`
}

// StateData is the session snapshot pushed to viewers
type StateData struct {
	State              string `json:"state"`
	CameraOpen         bool   `json:"camera_open"`
	Selector           string `json:"selector"`
	Bound              string `json:"bound,omitempty"` // surface handle, empty when unbound
	AwaitingPermission bool   `json:"awaiting_permission"`
	Paused             bool   `json:"paused"`
	LoadError          string `json:"load_error,omitempty"`
}

// ErrorData carries a reported error
type ErrorData struct {
	Kind    string `json:"kind"` // "load", "permission_denied", "pipeline", ...
	Message string `json:"message"`
}

// =============================================================================
// Viewer → Server Message Types
// =============================================================================

// ResizeData reports the viewer surface geometry
type ResizeData struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format,omitempty"` // "rgba8888" when empty
}

// LifecycleData asks the host to resume or pause
type LifecycleData struct {
	Action   string `json:"action"`             // "resume", "pause"
	Selector *int   `json:"selector,omitempty"` // 0 back, 1 front
}

// PermissionData answers a pending camera permission request
type PermissionData struct {
	Granted bool `json:"granted"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
