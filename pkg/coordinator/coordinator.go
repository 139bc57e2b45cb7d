// Package coordinator owns the native processing session and drives it from
// surface and host lifecycle events.
//
// The coordinator guarantees that the camera pipeline is only opened after
// the model loaded, that it is never left bound to a destroyed surface, and
// that every failure is reported to the host rather than swallowed. It never
// retries on its own; retry is a user action (another Resume).
//
// Entry points are meant to be called from the single host event thread
// (see package host). The internal mutex only makes Snapshot safe to call
// from other goroutines.
package coordinator

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/teslashibe/go-camsession/pkg/permission"
	"github.com/teslashibe/go-camsession/pkg/pipeline"
	"github.com/teslashibe/go-camsession/pkg/surface"
)

// Coordinator is the single owner of a pipeline.Pipeline.
type Coordinator struct {
	pipeline pipeline.Pipeline
	perms    permission.Requester
	logger   *slog.Logger
	metrics  *Metrics

	mu        sync.Mutex
	session   Session
	window    *surface.Window
	loadTried bool
	loadErr   error
	closed    bool

	repMu     sync.RWMutex
	reporters []Reporter
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithMetrics sets the prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithReporter adds an error reporter.
func WithReporter(r Reporter) Option {
	return func(c *Coordinator) {
		c.reporters = append(c.reporters, r)
	}
}

// New creates a coordinator for p. Camera access is checked with perms.
func New(p pipeline.Pipeline, perms permission.Requester, opts ...Option) *Coordinator {
	c := &Coordinator{
		pipeline: p,
		perms:    perms,
		session:  Session{Selector: pipeline.SelectorFront},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}
	return c
}

// AddReporter registers r to receive reported errors.
func (c *Coordinator) AddReporter(r Reporter) {
	c.repMu.Lock()
	defer c.repMu.Unlock()
	c.reporters = append(c.reporters, r)
}

// Initialize loads the model once per process lifetime. Later calls return
// the cached result without touching the pipeline; a failure is terminal.
func (c *Coordinator) Initialize() error {
	c.mu.Lock()
	first := !c.loadTried
	err := c.initializeLocked()
	c.mu.Unlock()

	if first {
		c.report(err)
	}
	return err
}

func (c *Coordinator) initializeLocked() error {
	if c.closed {
		return ErrClosed
	}
	if c.loadTried {
		return c.loadErr
	}

	from := c.stateLocked()
	c.loadTried = true
	c.metrics.LoadCalls.Inc()

	if err := c.pipeline.Load(); err != nil {
		var le *pipeline.LoadError
		if !errors.As(err, &le) {
			err = &pipeline.LoadError{Err: err}
		}
		c.loadErr = err
		c.logger.Error("model load failed", "error", err)
		c.transitionLocked(from)
		return err
	}

	c.session.Loaded = true
	c.logger.Info("model loaded")
	c.transitionLocked(from)
	return nil
}

// BindOutput installs w as the render target, replacing any previous one.
// A nil window unbinds. On failure the previous binding is kept.
func (c *Coordinator) BindOutput(w *surface.Window) error {
	c.mu.Lock()
	err := c.bindLocked(w)
	c.mu.Unlock()

	c.report(err)
	return err
}

func (c *Coordinator) bindLocked(w *surface.Window) error {
	if c.closed {
		return ErrClosed
	}
	if err := c.pipeline.SetOutputWindow(w); err != nil {
		err = pipeline.WrapError(pipeline.OpSetOutputWindow, err)
		c.logger.Error("bind output failed", "error", err)
		return err
	}
	c.setBoundLocked(w)
	return nil
}

func (c *Coordinator) setBoundLocked(w *surface.Window) {
	c.window = w
	if w == nil {
		c.session.Bound = nil
		c.logger.Debug("output unbound")
	} else {
		h := w.Handle()
		c.session.Bound = &h
		c.logger.Debug("output bound", "handle", h.String())
	}
	c.metrics.Bound.Set(boolGauge(w != nil))
	c.metrics.Rebinds.Inc()
}

// Resume is the host-foreground event. It loads the model if needed, asks
// for camera permission when it is missing (the answer arrives later via
// OnPermissionResult) and otherwise opens the camera. It is a no-op while
// the camera is open.
func (c *Coordinator) Resume(sel pipeline.Selector) error {
	c.mu.Lock()
	err := c.resumeLocked(sel)
	c.mu.Unlock()

	c.report(err)
	return err
}

func (c *Coordinator) resumeLocked(sel pipeline.Selector) error {
	if c.closed {
		return ErrClosed
	}
	c.session.Paused = false

	if c.session.CameraOpen {
		return nil
	}
	if err := c.initializeLocked(); err != nil {
		return err
	}
	if !sel.Valid() {
		return pipeline.WrapError(pipeline.OpOpenCamera, pipeline.ErrInvalidSelector)
	}
	c.session.Selector = sel

	if !c.perms.Granted(permission.Camera) {
		c.session.AwaitingPermission = true
		c.perms.Request(permission.Camera)
		c.logger.Info("waiting for camera permission", "selector", sel)
		return nil
	}

	return c.openLocked(sel)
}

// OnPermissionResult consumes the asynchronous answer to a camera request.
// A denial is reported as ErrPermissionDenied and leaves the camera closed.
// A grant opens the camera as Resume would, but only when a Resume is
// waiting on it and the host has not paused since. Otherwise the grant only
// takes effect on the next Resume.
func (c *Coordinator) OnPermissionResult(granted bool, sel pipeline.Selector) error {
	c.mu.Lock()
	err := c.permissionResultLocked(granted, sel)
	c.mu.Unlock()

	c.report(err)
	return err
}

func (c *Coordinator) permissionResultLocked(granted bool, sel pipeline.Selector) error {
	if c.closed {
		return ErrClosed
	}
	awaiting := c.session.AwaitingPermission
	c.session.AwaitingPermission = false

	if !granted {
		c.logger.Warn("camera permission denied")
		return ErrPermissionDenied
	}
	if !awaiting {
		c.logger.Info("camera permission granted with no pending resume, opening on next resume")
		return nil
	}
	if c.session.Paused {
		c.logger.Info("camera permission granted while paused, opening on next resume")
		return nil
	}
	if c.session.CameraOpen {
		return nil
	}
	if err := c.initializeLocked(); err != nil {
		return err
	}
	if !sel.Valid() {
		return pipeline.WrapError(pipeline.OpOpenCamera, pipeline.ErrInvalidSelector)
	}
	c.session.Selector = sel

	return c.openLocked(sel)
}

func (c *Coordinator) openLocked(sel pipeline.Selector) error {
	from := c.stateLocked()

	if err := c.pipeline.OpenCamera(sel); err != nil {
		err = pipeline.WrapError(pipeline.OpOpenCamera, err)
		c.logger.Error("open camera failed", "selector", sel, "error", err)
		return err
	}

	c.session.CameraOpen = true
	c.session.AwaitingPermission = false
	c.metrics.CameraOpen.Set(1)
	c.logger.Info("camera opened", "selector", sel, "bound", c.session.Bound != nil)
	c.transitionLocked(from)
	return nil
}

// Pause is the host-background event. It closes the camera if open and is a
// no-op otherwise. When it returns the pipeline has stopped writing frames.
func (c *Coordinator) Pause() error {
	c.mu.Lock()
	err := c.pauseLocked()
	c.mu.Unlock()

	c.report(err)
	return err
}

func (c *Coordinator) pauseLocked() error {
	if c.closed {
		return nil
	}
	c.session.Paused = true

	if !c.session.CameraOpen {
		return nil
	}

	from := c.stateLocked()
	if err := c.pipeline.CloseCamera(); err != nil {
		err = pipeline.WrapError(pipeline.OpCloseCamera, err)
		c.logger.Error("close camera failed", "error", err)
		return err
	}

	c.session.CameraOpen = false
	c.metrics.CameraOpen.Set(0)
	c.logger.Info("camera closed")
	c.transitionLocked(from)
	return nil
}

// SurfaceCreated implements surface.Listener.
func (c *Coordinator) SurfaceCreated(id uuid.UUID) {
	c.logger.Debug("surface created", "surface", id.String())
}

// SurfaceChanged implements surface.Listener by rebinding to the new window.
// The observer releases the surface's previous window after this returns, so
// if the rebind fails while that window is bound the pipeline is unbound
// instead of being left on it.
func (c *Coordinator) SurfaceChanged(h surface.Handle, w *surface.Window) {
	c.mu.Lock()
	err := c.bindLocked(w)
	if err != nil && !c.closed && c.session.Bound != nil && c.session.Bound.ID == h.ID {
		if perr := c.pipeline.SetOutputWindow(nil); perr != nil {
			c.logger.Error("unbind after failed rebind failed", "error", perr)
			err = errors.Join(err, pipeline.WrapError(pipeline.OpSetOutputWindow, perr))
		}
		c.setBoundLocked(nil)
	}
	c.mu.Unlock()

	c.report(err)
}

// SurfaceDestroyed implements surface.Listener. If the destroyed surface is
// the bound one the pipeline is unbound before this returns, whether or not
// the camera is open. The binding is cleared even if the pipeline reports
// an error, since the window is revoked right after this call.
func (c *Coordinator) SurfaceDestroyed(id uuid.UUID) {
	c.mu.Lock()
	if c.session.Bound == nil || c.session.Bound.ID != id {
		c.mu.Unlock()
		c.logger.Debug("unbound surface destroyed", "surface", id.String())
		return
	}

	var err error
	if !c.closed {
		if perr := c.pipeline.SetOutputWindow(nil); perr != nil {
			err = pipeline.WrapError(pipeline.OpSetOutputWindow, perr)
			c.logger.Error("unbind on destroy failed", "error", err)
		}
	}
	c.setBoundLocked(nil)
	c.mu.Unlock()

	c.report(err)
}

// Close tears the session down at process exit: camera closed, output
// unbound and native resources released, regardless of current state.
// Later calls to other entry points return ErrClosed.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}

	from := c.stateLocked()
	var errs []error

	if c.session.CameraOpen {
		if err := c.pipeline.CloseCamera(); err != nil {
			errs = append(errs, pipeline.WrapError(pipeline.OpCloseCamera, err))
		}
		c.session.CameraOpen = false
		c.metrics.CameraOpen.Set(0)
	}
	if c.window != nil {
		if err := c.pipeline.SetOutputWindow(nil); err != nil {
			errs = append(errs, pipeline.WrapError(pipeline.OpSetOutputWindow, err))
		}
		c.setBoundLocked(nil)
	}
	if err := c.pipeline.Close(); err != nil {
		errs = append(errs, pipeline.WrapError(pipeline.OpClose, err))
	}

	c.closed = true
	c.session.Loaded = false
	c.session.AwaitingPermission = false
	c.transitionLocked(from)
	c.logger.Info("session closed")
	c.mu.Unlock()

	err := errors.Join(errs...)
	c.report(err)
	return err
}

// State returns the current state machine position.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Session returns a copy of the session record.
func (c *Coordinator) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.session
	if s.Bound != nil {
		h := *s.Bound
		s.Bound = &h
	}
	return s
}

// Snapshot returns a JSON-friendly view of the session.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		State:              c.stateLocked(),
		Loaded:             c.session.Loaded,
		CameraOpen:         c.session.CameraOpen,
		Selector:           c.session.Selector.String(),
		AwaitingPermission: c.session.AwaitingPermission,
		Paused:             c.session.Paused,
	}
	if c.session.Bound != nil {
		h := *c.session.Bound
		s.Bound = &h
	}
	if c.loadErr != nil {
		s.LoadError = c.loadErr.Error()
	}
	if c.window != nil {
		st := c.window.Stats()
		s.Frames = &st
	}
	return s
}

func (c *Coordinator) stateLocked() State {
	switch {
	case c.closed:
		return StateClosed
	case c.loadErr != nil:
		return StateFailed
	case !c.session.Loaded:
		return StateUnloaded
	case c.session.CameraOpen:
		return StateCameraOpen
	default:
		return StateCameraClosed
	}
}

func (c *Coordinator) transitionLocked(from State) {
	to := c.stateLocked()
	if to == from {
		return
	}
	c.metrics.Transitions.WithLabelValues(string(from), string(to)).Inc()
	c.logger.Info("session state changed", "from", from, "to", to)
}

// report forwards err to every reporter. Never called with mu held.
func (c *Coordinator) report(err error) {
	if err == nil {
		return
	}
	c.metrics.Errors.WithLabelValues(Kind(err)).Inc()

	c.repMu.RLock()
	reporters := make([]Reporter, len(c.reporters))
	copy(reporters, c.reporters)
	c.repMu.RUnlock()

	for _, r := range reporters {
		r.Report(err)
	}
}

// Verify Coordinator implements surface.Listener at compile time.
var _ surface.Listener = (*Coordinator)(nil)
