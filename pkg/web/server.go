// Package web serves the session's control API, status stream, viewer
// surfaces and metrics over fiber.
package web

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/teslashibe/go-camsession/pkg/coordinator"
	"github.com/teslashibe/go-camsession/pkg/host"
	"github.com/teslashibe/go-camsession/pkg/hub"
	"github.com/teslashibe/go-camsession/pkg/permission"
	"github.com/teslashibe/go-camsession/pkg/protocol"
)

// Answerer completes a WebRTC offer/answer exchange for a remote viewer.
type Answerer interface {
	Answer(ctx context.Context, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error)
}

type serverMetrics struct {
	viewers       prometheus.Gauge
	framesSent    prometheus.Counter
	framesDropped prometheus.Counter
}

// Server is the HTTP front of one camera session
type Server struct {
	app    *fiber.App
	addr   string
	logger *slog.Logger

	loop   *host.Loop
	coord  *coordinator.Coordinator
	broker *permission.Broker
	rtc    Answerer

	registry    *prometheus.Registry
	metrics     serverMetrics
	jpegQuality int
	accessLog   bool

	// Hub for websocket broadcast of state and errors
	statusHub *hub.Hub

	viewers atomic.Int64
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRegistry serves reg on /metrics and registers the server's own
// collectors with it.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = reg
	}
}

// WithAnswerer enables POST /api/rtc/offer.
func WithAnswerer(a Answerer) Option {
	return func(s *Server) {
		s.rtc = a
	}
}

// WithJPEGQuality sets the quality of frames sent to websocket viewers.
func WithJPEGQuality(q int) Option {
	return func(s *Server) {
		s.jpegQuality = q
	}
}

// WithAccessLog enables fiber's request logger.
func WithAccessLog(enabled bool) Option {
	return func(s *Server) {
		s.accessLog = enabled
	}
}

// NewServer creates the server. Lifecycle requests are executed on loop.
func NewServer(addr string, loop *host.Loop, coord *coordinator.Coordinator, broker *permission.Broker, opts ...Option) *Server {
	s := &Server{
		addr:        addr,
		loop:        loop,
		coord:       coord,
		broker:      broker,
		jpegQuality: 75,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}

	f := promauto.With(s.registry)
	s.metrics = serverMetrics{
		viewers: f.NewGauge(prometheus.GaugeOpts{
			Name: "camsession_viewers",
			Help: "Connected websocket viewer surfaces",
		}),
		framesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "camsession_viewer_frames_sent_total",
			Help: "Frames encoded and sent to websocket viewers",
		}),
		framesDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "camsession_viewer_frames_dropped_total",
			Help: "Frames dropped because a viewer was behind",
		}),
	}

	s.statusHub = hub.New("status", hub.WithLogger(s.logger), hub.WithGreeting(s.stateMessage))

	app := fiber.New(fiber.Config{
		AppName:               "camsession",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	if s.accessLog {
		app.Use(logger.New())
	}

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/lifecycle/resume", s.handleResume)
	api.Post("/lifecycle/pause", s.handlePause)
	api.Post("/permission/camera", s.handleCameraPermission)
	api.Post("/rtc/offer", s.handleRTCOffer)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/surface", websocket.New(s.handleSurfaceWS))

	s.app = app
	return s
}

// App returns the fiber app, for tests and embedding.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start runs the status hub and serves HTTP until Shutdown.
// The hub stops when ctx is done.
func (s *Server) Start(ctx context.Context) error {
	go s.statusHub.Run(ctx)

	s.logger.Info("web server listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// Report implements coordinator.Reporter by pushing the error to status
// clients.
func (s *Server) Report(err error) {
	kind := coordinator.Kind(err)
	s.logger.Warn("session error", "kind", kind, "error", err)

	msg, merr := protocol.NewErrorMessage(kind, err.Error())
	if merr != nil {
		return
	}
	s.broadcast(msg)
}

// AfterEvent publishes the session state after every host event.
// Install it with host.WithAfter.
func (s *Server) AfterEvent(ev host.Event, err error) {
	s.PublishState()
}

// PublishState broadcasts the current snapshot to status clients.
func (s *Server) PublishState() {
	if msg, ok := s.stateMessage(); ok {
		s.statusHub.Broadcast(msg)
	}
}

// StatusHub returns the status hub for external use
func (s *Server) StatusHub() *hub.Hub {
	return s.statusHub
}

// Viewers returns the number of connected websocket viewers.
func (s *Server) Viewers() int {
	return int(s.viewers.Load())
}

func (s *Server) stateMessage() (hub.Message, bool) {
	msg, err := protocol.NewStateMessage(stateData(s.coord.Snapshot()))
	if err != nil {
		return hub.Message{}, false
	}
	data, err := msg.Bytes()
	if err != nil {
		return hub.Message{}, false
	}
	return hub.Message{Topic: string(msg.Type), Data: data}, true
}

func (s *Server) broadcast(msg *protocol.Message) {
	data, err := msg.Bytes()
	if err != nil {
		s.logger.Warn("encode message failed", "type", msg.Type, "error", err)
		return
	}
	s.statusHub.Broadcast(hub.Message{Topic: string(msg.Type), Data: data})
}

func stateData(snap coordinator.Snapshot) protocol.StateData {
	d := protocol.StateData{
		State:              string(snap.State),
		CameraOpen:         snap.CameraOpen,
		Selector:           snap.Selector,
		AwaitingPermission: snap.AwaitingPermission,
		Paused:             snap.Paused,
		LoadError:          snap.LoadError,
	}
	if snap.Bound != nil {
		d.Bound = snap.Bound.String()
	}
	return d
}

// Verify Server implements coordinator.Reporter at compile time.
var _ coordinator.Reporter = (*Server)(nil)
