package coordinator

import (
	"github.com/teslashibe/go-camsession/pkg/pipeline"
	"github.com/teslashibe/go-camsession/pkg/surface"
)

// State is the session state machine position.
type State string

const (
	StateUnloaded     State = "unloaded"
	StateCameraClosed State = "camera_closed"
	StateCameraOpen   State = "camera_open"
	StateFailed       State = "failed"
	StateClosed       State = "closed"
)

// Session is the coordinator's view of the native session.
// Invariant: CameraOpen implies Loaded.
type Session struct {
	Loaded     bool
	CameraOpen bool
	Bound      *surface.Handle
	Selector   pipeline.Selector

	// AwaitingPermission is set while a camera permission request is outstanding.
	AwaitingPermission bool
	// Paused is set by Pause and cleared by Resume.
	Paused bool
}

// Snapshot is a read-only copy of the coordinator state.
type Snapshot struct {
	State              State                `json:"state"`
	Loaded             bool                 `json:"loaded"`
	CameraOpen         bool                 `json:"camera_open"`
	Selector           string               `json:"selector"`
	Bound              *surface.Handle      `json:"bound,omitempty"`
	AwaitingPermission bool                 `json:"awaiting_permission"`
	Paused             bool                 `json:"paused"`
	LoadError          string               `json:"load_error,omitempty"`
	Frames             *surface.WindowStats `json:"frames,omitempty"`
}
