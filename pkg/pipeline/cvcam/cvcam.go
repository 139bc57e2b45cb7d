// Package cvcam implements pipeline.Pipeline on top of OpenCV via gocv.
//
// Load parses the detection network so configuration problems surface
// before the camera is touched. A single capture worker reads frames,
// crops them to the bound window's aspect ratio, stamps the FPS label and
// writes RGBA pixels into the window.
package cvcam

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/teslashibe/go-camsession/pkg/pipeline"
	"github.com/teslashibe/go-camsession/pkg/surface"
	"gocv.io/x/gocv"
)

// readRetry is how long the worker waits after a failed read.
const readRetry = 10 * time.Millisecond

// Config holds the backend configuration.
type Config struct {
	// ModelPath is the network weights file (onnx, caffemodel, bin, ...).
	ModelPath string
	// ModelConfig is the optional network description file.
	ModelConfig string

	DeviceBack  int
	DeviceFront int

	// Requested capture resolution. The driver may pick another one.
	Width  int
	Height int
}

// DefaultConfig returns defaults for a laptop webcam.
func DefaultConfig() Config {
	return Config{
		ModelPath:   "models/nanodet.onnx",
		DeviceBack:  0,
		DeviceFront: 1,
		Width:       640,
		Height:      480,
	}
}

// Pipeline is the gocv backend.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
	clock  clockwork.Clock

	mu      sync.Mutex
	net     gocv.Net
	loaded  bool
	closed  bool
	capture *gocv.VideoCapture
	stop    chan struct{}
	done    chan struct{}

	winMu  sync.Mutex
	window *surface.Window
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithClock sets the clock used by the FPS meter.
func WithClock(clock clockwork.Clock) Option {
	return func(p *Pipeline) {
		p.clock = clock
	}
}

// New creates an unloaded pipeline.
func New(cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:   cfg,
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Load checks the model artifacts exist and parses the network.
func (p *Pipeline) Load() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return pipeline.ErrClosed
	}
	if p.loaded {
		return nil
	}

	for _, path := range []string{p.cfg.ModelPath, p.cfg.ModelConfig} {
		if path == "" {
			continue
		}
		if err := checkArtifact(path); err != nil {
			return err
		}
	}

	net := gocv.ReadNet(p.cfg.ModelPath, p.cfg.ModelConfig)
	if net.Empty() {
		net.Close()
		return &pipeline.LoadError{Artifact: p.cfg.ModelPath, Err: pipeline.ErrMalformedArtifact}
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	p.net = net
	p.loaded = true
	p.logger.Info("model loaded", "model", p.cfg.ModelPath)
	return nil
}

func checkArtifact(path string) error {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return &pipeline.LoadError{Artifact: path, Err: pipeline.ErrMissingArtifact}
	case err != nil:
		return &pipeline.LoadError{Artifact: path, Err: err}
	case info.IsDir() || info.Size() == 0:
		return &pipeline.LoadError{Artifact: path, Err: pipeline.ErrMalformedArtifact}
	}
	return nil
}

// device maps a selector to a capture device index.
func (p *Pipeline) device(sel pipeline.Selector) int {
	if sel == pipeline.SelectorBack {
		return p.cfg.DeviceBack
	}
	return p.cfg.DeviceFront
}

// OpenCamera opens the selected device and starts the capture worker.
// It is a no-op while the camera is open.
func (p *Pipeline) OpenCamera(sel pipeline.Selector) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.closed:
		return pipeline.WrapError(pipeline.OpOpenCamera, pipeline.ErrClosed)
	case !p.loaded:
		return pipeline.WrapError(pipeline.OpOpenCamera, pipeline.ErrNotLoaded)
	case !sel.Valid():
		return pipeline.WrapError(pipeline.OpOpenCamera, pipeline.ErrInvalidSelector)
	case p.capture != nil:
		return nil
	}

	id := p.device(sel)
	capture, err := gocv.OpenVideoCapture(id)
	if err != nil {
		return pipeline.WrapError(pipeline.OpOpenCamera, fmt.Errorf("%w: device %d: %v", pipeline.ErrDevice, id, err))
	}
	if !capture.IsOpened() {
		capture.Close()
		return pipeline.WrapError(pipeline.OpOpenCamera, fmt.Errorf("%w: device %d", pipeline.ErrDevice, id))
	}
	if p.cfg.Width > 0 && p.cfg.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(p.cfg.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(p.cfg.Height))
	}

	p.capture = capture
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.captureLoop(capture, p.stop, p.done)

	p.logger.Info("camera opened", "selector", sel, "device", id)
	return nil
}

// CloseCamera stops the worker and closes the device. When it returns no
// further frame writes are issued.
func (p *Pipeline) CloseCamera() error {
	p.mu.Lock()
	capture, stop, done := p.capture, p.stop, p.done
	p.capture, p.stop, p.done = nil, nil, nil
	p.mu.Unlock()

	if capture == nil {
		return nil
	}

	close(stop)
	<-done

	if err := capture.Close(); err != nil {
		return pipeline.WrapError(pipeline.OpCloseCamera, err)
	}
	p.logger.Info("camera closed")
	return nil
}

// SetOutputWindow swaps the render target. nil unbinds.
func (p *Pipeline) SetOutputWindow(w *surface.Window) error {
	p.winMu.Lock()
	p.window = w
	p.winMu.Unlock()
	return nil
}

func (p *Pipeline) currentWindow() *surface.Window {
	p.winMu.Lock()
	defer p.winMu.Unlock()
	return p.window
}

// Close stops capture and frees the network.
func (p *Pipeline) Close() error {
	err := p.CloseCamera()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return err
	}
	if p.loaded {
		p.net.Close()
		p.loaded = false
	}
	p.closed = true

	p.winMu.Lock()
	p.window = nil
	p.winMu.Unlock()

	return err
}

// Verify Pipeline implements pipeline.Pipeline at compile time.
var _ pipeline.Pipeline = (*Pipeline)(nil)
