package host

import (
	"errors"
	"fmt"

	"github.com/teslashibe/go-camsession/pkg/pipeline"
)

// Sentinel errors for common conditions.
var (
	// ErrStopped is returned when an event is posted after the loop exited.
	ErrStopped = errors.New("host: loop stopped")

	// ErrUnknownEvent is returned for events the loop cannot dispatch.
	ErrUnknownEvent = errors.New("host: unknown event")
)

// Event is something the host delivers to the session.
type Event interface {
	Name() string
}

// Initialize asks the session to load the model.
type Initialize struct{}

// Resume is the host-foreground event.
type Resume struct {
	Selector pipeline.Selector
}

// Pause is the host-background event.
type Pause struct{}

// PermissionResult carries the answer to a camera permission request.
type PermissionResult struct {
	Granted  bool
	Selector pipeline.Selector
}

// Shutdown closes the session and stops the loop.
type Shutdown struct{}

// Call runs Fn on the event thread. Surface callbacks use it so that
// created, changed and destroyed are ordered with lifecycle events.
type Call struct {
	Label string
	Fn    func() error
}

func (Initialize) Name() string       { return "initialize" }
func (Resume) Name() string           { return "resume" }
func (Pause) Name() string            { return "pause" }
func (PermissionResult) Name() string { return "permission_result" }
func (Shutdown) Name() string         { return "shutdown" }

func (c Call) Name() string {
	if c.Label == "" {
		return "call"
	}
	return "call:" + c.Label
}

// PanicError wraps a panic recovered on the event thread.
type PanicError struct {
	Event string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("host: panic handling %s: %v", e.Event, e.Value)
}
