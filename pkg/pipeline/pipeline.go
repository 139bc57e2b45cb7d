// Package pipeline defines the contract of the native camera+inference
// pipeline driven by the session coordinator.
//
// Implementations run their own capture worker. The coordinator only asks
// them to load, open, close and retarget; it never waits on inference.
package pipeline

import "github.com/teslashibe/go-camsession/pkg/surface"

// Selector chooses which camera device to open.
type Selector int

const (
	// SelectorBack is the rear-facing camera.
	SelectorBack Selector = 0
	// SelectorFront is the front-facing camera.
	SelectorFront Selector = 1
)

// Valid reports whether s names a known camera.
func (s Selector) Valid() bool {
	return s == SelectorBack || s == SelectorFront
}

func (s Selector) String() string {
	switch s {
	case SelectorBack:
		return "back"
	case SelectorFront:
		return "front"
	default:
		return "invalid"
	}
}

// Pipeline is the native processing session.
type Pipeline interface {
	// Load parses the model artifacts. Failures are *LoadError.
	Load() error

	// OpenCamera starts capture on the selected device. Frames are written
	// to the window installed with SetOutputWindow; with no window they are dropped.
	OpenCamera(sel Selector) error

	// CloseCamera stops capture. When it returns the capture worker has
	// stopped issuing frame writes. In-flight inference may still drain
	// inside the implementation but its output is never written.
	CloseCamera() error

	// SetOutputWindow replaces the render target. nil unbinds.
	SetOutputWindow(w *surface.Window) error

	// Close releases all native resources. The pipeline cannot be reused.
	Close() error
}
