package surface

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Listener receives surface transitions. Calls arrive on the host event thread.
type Listener interface {
	// SurfaceCreated is a notification only; geometry is not known yet.
	SurfaceCreated(id uuid.UUID)

	// SurfaceChanged hands over a ready window. Any previous window of the
	// same surface is released after this returns.
	SurfaceChanged(h Handle, w *Window)

	// SurfaceDestroyed must unbind synchronously: the surface's window is
	// released right after it returns.
	SurfaceDestroyed(id uuid.UUID)
}

type phase int

const (
	phaseIdle phase = iota
	phaseCreated
	phaseDestroyed
)

// generations is shared by all observers so handles never repeat.
var generations atomic.Uint64

// Observer converts host-delivered surface callbacks into Listener calls
// and owns the Window of the current configuration.
type Observer struct {
	id       uuid.UUID
	sink     Sink
	listener Listener
	logger   *slog.Logger

	mu     sync.Mutex
	phase  phase
	window *Window
}

// NewObserver creates an observer for one surface instance.
func NewObserver(sink Sink, listener Listener, logger *slog.Logger) *Observer {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New()
	return &Observer{
		id:       id,
		sink:     sink,
		listener: listener,
		logger:   logger.With("surface", id.String()[:8]),
	}
}

// ID returns the stable surface identifier.
func (o *Observer) ID() uuid.UUID {
	return o.id
}

// OnCreated reports that the surface backing storage exists.
func (o *Observer) OnCreated() {
	o.mu.Lock()
	if o.phase != phaseIdle {
		o.mu.Unlock()
		o.logger.Debug("ignoring duplicate created event")
		return
	}
	o.phase = phaseCreated
	o.mu.Unlock()

	o.logger.Debug("surface created")
	o.listener.SurfaceCreated(o.id)
}

// OnChanged reports the surface is ready with the given geometry.
// A new window replaces the previous one, which is released once the
// listener has rebound.
func (o *Observer) OnChanged(width, height int, format Format) {
	if width <= 0 || height <= 0 {
		o.logger.Warn("ignoring changed event with empty geometry", "width", width, "height", height)
		return
	}
	if !format.Valid() {
		format = FormatRGBA8888
	}

	o.mu.Lock()
	if o.phase != phaseCreated {
		state := o.phase
		o.mu.Unlock()
		o.logger.Warn("ignoring changed event outside created state", "phase", state)
		return
	}

	h := Handle{
		ID:         o.id,
		Generation: generations.Add(1),
		Width:      width,
		Height:     height,
		Format:     format,
	}
	w := NewWindow(h, o.sink)
	prev := o.window
	o.window = w
	o.mu.Unlock()

	o.logger.Debug("surface changed", "handle", h.String())
	o.listener.SurfaceChanged(h, w)

	if prev != nil {
		prev.Release()
	}
}

// OnDestroyed reports the surface is about to go away. The listener is
// told first, then the current window is released. No further events are
// forwarded for this surface.
func (o *Observer) OnDestroyed() {
	o.mu.Lock()
	if o.phase == phaseDestroyed {
		o.mu.Unlock()
		return
	}
	o.phase = phaseDestroyed
	w := o.window
	o.window = nil
	o.mu.Unlock()

	o.logger.Debug("surface destroyed")
	o.listener.SurfaceDestroyed(o.id)

	if w != nil {
		w.Release()
	}
}

// Current returns the live handle, if the surface has been configured.
func (o *Observer) Current() (Handle, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.window == nil {
		return Handle{}, false
	}
	return o.window.Handle(), true
}

// Destroyed reports whether OnDestroyed was delivered.
func (o *Observer) Destroyed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase == phaseDestroyed
}
