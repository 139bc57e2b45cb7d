package protocol

import (
	"encoding/base64"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewFrameMessage creates a frame message from raw JPEG data
func NewFrameMessage(width, height int, jpegData []byte, frameID uint64) (*Message, error) {
	return NewMessage(TypeFrame, FrameData{
		Width:   width,
		Height:  height,
		Format:  "jpeg",
		Data:    base64.StdEncoding.EncodeToString(jpegData),
		FrameID: frameID,
	})
}

// NewFrameHeader creates the header that precedes a chunked binary frame
func NewFrameHeader(width, height, size, chunks int, frameID uint64) (*Message, error) {
	return NewMessage(TypeFrame, FrameData{
		Width:   width,
		Height:  height,
		Format:  "jpeg",
		FrameID: frameID,
		Size:    size,
		Chunks:  chunks,
	})
}

// NewStateMessage creates a state message
func NewStateMessage(state StateData) (*Message, error) {
	return NewMessage(TypeState, state)
}

// NewErrorMessage creates an error message
func NewErrorMessage(kind, message string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{
		Kind:    kind,
		Message: message,
	})
}

// NewResizeMessage creates a resize message
func NewResizeMessage(width, height int, format string) (*Message, error) {
	return NewMessage(TypeResize, ResizeData{
		Width:  width,
		Height: height,
		Format: format,
	})
}

// NewLifecycleMessage creates a resume or pause request.
// A negative selector is omitted.
func NewLifecycleMessage(action string, selector int) (*Message, error) {
	data := LifecycleData{Action: action}
	if selector >= 0 {
		data.Selector = &selector
	}
	return NewMessage(TypeLifecycle, data)
}

// NewPermissionMessage creates a permission answer
func NewPermissionMessage(granted bool) (*Message, error) {
	return NewMessage(TypePermission, PermissionData{Granted: granted})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID: id,
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetFrameData extracts frame data from a message
func (m *Message) GetFrameData() (*FrameData, error) {
	var data FrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DecodeFrameData decodes the base64 image data
func (f *FrameData) DecodeFrameData() ([]byte, error) {
	return base64.StdEncoding.DecodeString(f.Data)
}

// GetStateData extracts state data from a message
func (m *Message) GetStateData() (*StateData, error) {
	var data StateData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetErrorData extracts error data from a message
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetResizeData extracts resize data from a message
func (m *Message) GetResizeData() (*ResizeData, error) {
	var data ResizeData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetLifecycleData extracts a lifecycle request from a message
func (m *Message) GetLifecycleData() (*LifecycleData, error) {
	var data LifecycleData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPermissionData extracts a permission answer from a message
func (m *Message) GetPermissionData() (*PermissionData, error) {
	var data PermissionData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
