package pipeline

import (
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-camsession/pkg/render"
	"github.com/teslashibe/go-camsession/pkg/surface"
)

// Mock implements Pipeline for testing and for running without a camera.
// It renders a synthetic test pattern into the bound window.
type Mock struct {
	// LoadFunc is called when Load is invoked.
	LoadFunc func() error

	// OpenCameraFunc is called when OpenCamera is invoked.
	OpenCameraFunc func(sel Selector) error

	// CloseCameraFunc is called when CloseCamera is invoked.
	CloseCameraFunc func() error

	// SetOutputWindowFunc is called when SetOutputWindow is invoked.
	SetOutputWindowFunc func(w *surface.Window) error

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	logger *slog.Logger
	fps    int
	width  int
	height int

	mu       sync.Mutex
	calls    []MockCall
	loaded   bool
	open     bool
	closed   bool
	selector Selector
	window   *surface.Window
	seq      uint64
	stopCh   chan struct{}
	doneCh   chan struct{}

	emitted int
	dropped int
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Time   time.Time
}

// MockOption configures a Mock.
type MockOption func(*Mock)

// WithPattern makes the mock generate frames at fps while the camera is open.
func WithPattern(fps int) MockOption {
	return func(m *Mock) {
		m.fps = fps
	}
}

// WithCaptureSize sets the synthetic capture resolution.
func WithCaptureSize(width, height int) MockOption {
	return func(m *Mock) {
		m.width = width
		m.height = height
	}
}

// WithLogger sets the mock's logger.
func WithLogger(logger *slog.Logger) MockOption {
	return func(m *Mock) {
		m.logger = logger
	}
}

// NewMock creates a mock pipeline. Without WithPattern frames are only
// produced by explicit Emit calls.
func NewMock(opts ...MockOption) *Mock {
	m := &Mock{
		logger: slog.Default(),
		width:  64,
		height: 48,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load calls LoadFunc and records the call.
func (m *Mock) Load() error {
	m.record("Load")

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	if m.LoadFunc != nil {
		if err := m.LoadFunc(); err != nil {
			return err
		}
	}
	m.loaded = true
	return nil
}

// OpenCamera calls OpenCameraFunc and records the call.
func (m *Mock) OpenCamera(sel Selector) error {
	m.record("OpenCamera")

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return WrapError(OpOpenCamera, ErrClosed)
	}
	if !m.loaded {
		return WrapError(OpOpenCamera, ErrNotLoaded)
	}
	if !sel.Valid() {
		return WrapError(OpOpenCamera, ErrInvalidSelector)
	}
	if m.OpenCameraFunc != nil {
		if err := m.OpenCameraFunc(sel); err != nil {
			return err
		}
	}
	if m.open {
		return nil
	}

	m.open = true
	m.selector = sel
	if m.fps > 0 {
		m.stopCh = make(chan struct{})
		m.doneCh = make(chan struct{})
		go m.generateLoop(m.stopCh, m.doneCh)
	}

	m.logger.Info("mock camera opened", "selector", sel, "fps", m.fps)
	return nil
}

// CloseCamera calls CloseCameraFunc and records the call. It waits for the
// pattern generator to exit before returning.
func (m *Mock) CloseCamera() error {
	m.record("CloseCamera")

	m.mu.Lock()
	if m.CloseCameraFunc != nil {
		if err := m.CloseCameraFunc(); err != nil {
			m.mu.Unlock()
			return err
		}
	}
	if !m.open {
		m.mu.Unlock()
		return nil
	}
	m.open = false
	stopCh, doneCh := m.stopCh, m.doneCh
	m.stopCh, m.doneCh = nil, nil
	m.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-doneCh
	}

	m.logger.Info("mock camera closed")
	return nil
}

// SetOutputWindow calls SetOutputWindowFunc and records the call.
func (m *Mock) SetOutputWindow(w *surface.Window) error {
	m.record("SetOutputWindow")

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SetOutputWindowFunc != nil {
		if err := m.SetOutputWindowFunc(w); err != nil {
			return err
		}
	}
	m.window = w
	return nil
}

// Close calls CloseFunc and records the call.
func (m *Mock) Close() error {
	m.record("Close")

	if err := m.CloseCamera(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CloseFunc != nil {
		if err := m.CloseFunc(); err != nil {
			return err
		}
	}
	m.closed = true
	m.window = nil
	return nil
}

// Emit renders one frame into the bound window, the way the capture worker
// would. It returns surface.ErrReleased when the window is gone and
// delivered=false when the camera is closed or nothing is bound.
func (m *Mock) Emit() (delivered bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.emitLocked()
}

func (m *Mock) emitLocked() (bool, error) {
	if !m.open || m.window == nil {
		m.dropped++
		return false, nil
	}

	m.seq++
	f := m.pattern(m.window.Handle())
	if err := m.window.Write(f); err != nil {
		m.dropped++
		return false, err
	}
	m.emitted++
	return true, nil
}

func (m *Mock) generateLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(time.Second / time.Duration(m.fps))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			if _, err := m.emitLocked(); err != nil {
				m.logger.Debug("mock frame rejected", "error", err)
			}
			m.mu.Unlock()
		}
	}
}

// pattern draws moving color bars at capture resolution, crops them to the
// window aspect ratio and converts them to RGBA.
func (m *Mock) pattern(h surface.Handle) surface.Frame {
	roi := render.CropRect(m.width, m.height, h.Width, h.Height)
	w, hh := roi.Dx(), roi.Dy()

	rgb := make([]byte, w*hh*3)
	shift := int(m.seq)
	for y := 0; y < hh; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 3
			bar := ((x + roi.Min.X + shift) * 8 / m.width) % 8
			rgb[i] = byte(255 * (bar & 1))
			rgb[i+1] = byte(255 * ((bar >> 1) & 1))
			rgb[i+2] = byte(255 * ((bar >> 2) & 1))
		}
	}

	rgba := make([]byte, w*hh*4)
	_ = render.RGBToRGBA(rgba, w*4, rgb, w*3, w, hh)

	return surface.Frame{Width: w, Height: hh, Stride: w * 4, Pix: rgba, Seq: m.seq}
}

// IsOpen reports whether the camera is open.
func (m *Mock) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// Window returns the bound window.
func (m *Mock) Window() *surface.Window {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.window
}

// FrameCounts returns emitted and dropped frame counts.
func (m *Mock) FrameCounts() (emitted, dropped int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.emitted, m.dropped
}

// record adds a call to the tracking list.
func (m *Mock) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{
		Method: method,
		Time:   time.Now(),
	})
}

// Calls returns all recorded method calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of times a method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// Reset clears all recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Verify Mock implements Pipeline at compile time.
var _ Pipeline = (*Mock)(nil)
