package protocol

import (
	"encoding/base64"
	"testing"
	"time"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    interface{}
		wantErr bool
	}{
		{
			name:    "frame message",
			msgType: TypeFrame,
			data:    FrameData{Width: 640, Height: 480, Format: "jpeg"},
			wantErr: false,
		},
		{
			name:    "resize message",
			msgType: TypeResize,
			data:    ResizeData{Width: 640, Height: 480},
			wantErr: false,
		},
		{
			name:    "nil data",
			msgType: TypePing,
			data:    nil,
			wantErr: false,
		},
		{
			name:    "unmarshalable data",
			msgType: TypeState,
			data:    make(chan int),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if msg == nil {
				t.Fatal("NewMessage() returned nil message")
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("NewMessage() timestamp should be set")
			}
		})
	}
}

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    MessageType
		wantErr bool
	}{
		{"resize", `{"type":"resize","data":{"width":320,"height":240}}`, TypeResize, false},
		{"ping without data", `{"type":"ping"}`, TypePing, false},
		{"missing type", `{"data":{}}`, "", true},
		{"not json", `hello`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseMessage([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && msg.Type != tt.want {
				t.Errorf("Type = %v, want %v", msg.Type, tt.want)
			}
		})
	}
}

func TestMessageRoundTrip(t *testing.T) {
	originalFrame := FrameData{
		Width:   1920,
		Height:  1080,
		Format:  "jpeg",
		Data:    base64.StdEncoding.EncodeToString([]byte("test image data")),
		FrameID: 42,
	}

	msg, err := NewMessage(TypeFrame, originalFrame)
	if err != nil {
		t.Fatalf("NewMessage() error = %v", err)
	}

	bytes, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	parsed, err := ParseMessage(bytes)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if parsed.Type != TypeFrame {
		t.Errorf("Type = %v, want %v", parsed.Type, TypeFrame)
	}

	frameData, err := parsed.GetFrameData()
	if err != nil {
		t.Fatalf("GetFrameData() error = %v", err)
	}
	if *frameData != originalFrame {
		t.Errorf("GetFrameData() = %+v, want %+v", *frameData, originalFrame)
	}
}

func TestFrameMessage(t *testing.T) {
	jpegData := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}

	msg, err := NewFrameMessage(640, 480, jpegData, 1)
	if err != nil {
		t.Fatalf("NewFrameMessage() error = %v", err)
	}

	frameData, err := msg.GetFrameData()
	if err != nil {
		t.Fatalf("GetFrameData() error = %v", err)
	}
	if frameData.Width != 640 {
		t.Errorf("Width = %v, want 640", frameData.Width)
	}
	if frameData.Format != "jpeg" {
		t.Errorf("Format = %v, want jpeg", frameData.Format)
	}

	decoded, err := frameData.DecodeFrameData()
	if err != nil {
		t.Fatalf("DecodeFrameData() error = %v", err)
	}
	if string(decoded) != string(jpegData) {
		t.Errorf("decoded = %x, want %x", decoded, jpegData)
	}
}

func TestFrameHeader(t *testing.T) {
	msg, err := NewFrameHeader(320, 240, 40000, 3, 9)
	if err != nil {
		t.Fatalf("NewFrameHeader() error = %v", err)
	}

	frameData, err := msg.GetFrameData()
	if err != nil {
		t.Fatalf("GetFrameData() error = %v", err)
	}
	if frameData.Data != "" {
		t.Errorf("Data = %q, want empty", frameData.Data)
	}
	if frameData.Size != 40000 || frameData.Chunks != 3 {
		t.Errorf("Size, Chunks = %d, %d, want 40000, 3", frameData.Size, frameData.Chunks)
	}
}

func TestStateAndErrorMessages(t *testing.T) {
	msg, err := NewStateMessage(StateData{State: "camera_open", CameraOpen: true, Selector: "front"})
	if err != nil {
		t.Fatalf("NewStateMessage() error = %v", err)
	}
	state, err := msg.GetStateData()
	if err != nil {
		t.Fatalf("GetStateData() error = %v", err)
	}
	if state.State != "camera_open" || !state.CameraOpen || state.Selector != "front" {
		t.Errorf("GetStateData() = %+v", state)
	}

	msg, err = NewErrorMessage("permission_denied", "camera permission denied")
	if err != nil {
		t.Fatalf("NewErrorMessage() error = %v", err)
	}
	if msg.Type != TypeError {
		t.Errorf("Type = %v, want %v", msg.Type, TypeError)
	}
	e, err := msg.GetErrorData()
	if err != nil {
		t.Fatalf("GetErrorData() error = %v", err)
	}
	if e.Kind != "permission_denied" {
		t.Errorf("Kind = %v, want permission_denied", e.Kind)
	}
}

func TestViewerMessages(t *testing.T) {
	msg, err := NewResizeMessage(480, 640, "rgbx8888")
	if err != nil {
		t.Fatalf("NewResizeMessage() error = %v", err)
	}
	rd, err := msg.GetResizeData()
	if err != nil {
		t.Fatalf("GetResizeData() error = %v", err)
	}
	if rd.Width != 480 || rd.Height != 640 || rd.Format != "rgbx8888" {
		t.Errorf("GetResizeData() = %+v", rd)
	}

	msg, err = NewLifecycleMessage("resume", 0)
	if err != nil {
		t.Fatalf("NewLifecycleMessage() error = %v", err)
	}
	ld, err := msg.GetLifecycleData()
	if err != nil {
		t.Fatalf("GetLifecycleData() error = %v", err)
	}
	if ld.Action != "resume" || ld.Selector == nil || *ld.Selector != 0 {
		t.Errorf("GetLifecycleData() = %+v", ld)
	}

	msg, _ = NewLifecycleMessage("pause", -1)
	ld, _ = msg.GetLifecycleData()
	if ld.Selector != nil {
		t.Errorf("Selector = %v, want nil", *ld.Selector)
	}

	msg, _ = NewPermissionMessage(true)
	pd, err := msg.GetPermissionData()
	if err != nil {
		t.Fatalf("GetPermissionData() error = %v", err)
	}
	if !pd.Granted {
		t.Error("Granted should be true")
	}
}

func TestPingPongMessage(t *testing.T) {
	pingMsg, err := NewPingMessage("test-123")
	if err != nil {
		t.Fatalf("NewPingMessage() error = %v", err)
	}

	pingData, err := pingMsg.GetPingData()
	if err != nil {
		t.Fatalf("GetPingData() error = %v", err)
	}
	if pingData.ID != "test-123" {
		t.Errorf("ID = %v, want test-123", pingData.ID)
	}

	now := time.Now().UnixMilli()
	pongMsg, err := NewPongMessage("test-123", pingMsg.Timestamp, now)
	if err != nil {
		t.Fatalf("NewPongMessage() error = %v", err)
	}

	pongData, err := pongMsg.GetPongData()
	if err != nil {
		t.Fatalf("GetPongData() error = %v", err)
	}
	if pongData.ID != "test-123" {
		t.Errorf("ID = %v, want test-123", pongData.ID)
	}
	if pongData.LatencyMs < 0 {
		t.Errorf("LatencyMs = %v, should be >= 0", pongData.LatencyMs)
	}
}
