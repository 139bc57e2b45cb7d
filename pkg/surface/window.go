package surface

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Frame is an RGBA image handed to a window.
// Pix is only valid for the duration of the write; sinks that keep it must copy.
type Frame struct {
	Width  int
	Height int
	Stride int // bytes per row
	Pix    []byte
	Seq    uint64
}

// Validate checks that Pix covers Height rows of Stride bytes.
func (f Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 || f.Stride < f.Width*4 {
		return fmt.Errorf("%w: %dx%d stride %d", ErrBadFrame, f.Width, f.Height, f.Stride)
	}
	if len(f.Pix) < f.Stride*(f.Height-1)+f.Width*4 {
		return fmt.Errorf("%w: %d bytes for %dx%d", ErrBadFrame, len(f.Pix), f.Width, f.Height)
	}
	return nil
}

// Clone returns a copy of f that owns its pixels.
func (f Frame) Clone() Frame {
	pix := make([]byte, len(f.Pix))
	copy(pix, f.Pix)
	f.Pix = pix
	return f
}

// Sink is the display side of a surface (a viewer connection, a test recorder).
// WriteFrame must not block for long: it runs on the pipeline's capture worker.
type Sink interface {
	WriteFrame(f Frame) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(f Frame) error

// WriteFrame calls fn(f).
func (fn SinkFunc) WriteFrame(f Frame) error {
	return fn(f)
}

// WindowStats contains delivery counters for one window.
type WindowStats struct {
	Delivered uint64 `json:"delivered"`
	Rejected  uint64 `json:"rejected"`
	Failed    uint64 `json:"failed"`
	Released  bool   `json:"released"`
}

// Window is the render target behind a Handle.
// The pipeline holds a non-owning reference; once Release returns every
// further Write is rejected with ErrReleased and never reaches the sink.
type Window struct {
	handle Handle
	sink   Sink

	mu       sync.RWMutex
	released bool

	delivered atomic.Uint64
	rejected  atomic.Uint64
	failed    atomic.Uint64
}

// NewWindow creates a window for handle h backed by sink.
func NewWindow(h Handle, sink Sink) *Window {
	return &Window{handle: h, sink: sink}
}

// Handle returns the handle this window was created for.
func (w *Window) Handle() Handle {
	return w.handle
}

// Write delivers a frame to the sink unless the window was released.
func (w *Window) Write(f Frame) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.released {
		w.rejected.Add(1)
		return ErrReleased
	}
	if err := f.Validate(); err != nil {
		w.failed.Add(1)
		return err
	}
	if err := w.sink.WriteFrame(f); err != nil {
		w.failed.Add(1)
		return fmt.Errorf("surface %s: write frame: %w", w.handle, err)
	}

	w.delivered.Add(1)
	return nil
}

// Release revokes the window. It waits for in-flight writes to return.
// It is safe to call Release multiple times.
func (w *Window) Release() {
	w.mu.Lock()
	w.released = true
	w.mu.Unlock()
}

// Released reports whether Release was called.
func (w *Window) Released() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.released
}

// Stats returns the delivery counters.
func (w *Window) Stats() WindowStats {
	return WindowStats{
		Delivered: w.delivered.Load(),
		Rejected:  w.rejected.Load(),
		Failed:    w.failed.Load(),
		Released:  w.Released(),
	}
}
