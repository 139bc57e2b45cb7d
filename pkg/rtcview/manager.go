// Package rtcview exposes display surfaces to remote viewers over a WebRTC
// data channel.
//
// The viewer sends an offer containing a data channel labeled "frames".
// Opening the channel creates a surface, a resize text message configures
// it and closing the channel or losing the peer destroys it. Frames are
// sent as a JSON header followed by binary JPEG chunks.
package rtcview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/teslashibe/go-camsession/pkg/host"
	"github.com/teslashibe/go-camsession/pkg/surface"
)

// FramesLabel is the data channel label a viewer must open.
const FramesLabel = "frames"

// ErrClosed is returned by Answer after Close.
var ErrClosed = errors.New("rtcview: manager closed")

// Manager negotiates viewer peer connections.
type Manager struct {
	api      *webrtc.API
	config   webrtc.Configuration
	loop     *host.Loop
	listener surface.Listener
	logger   *slog.Logger
	quality  int

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
	closed   bool

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithSTUN adds a STUN server. Empty urls are ignored.
func WithSTUN(url string) Option {
	return func(m *Manager) {
		if url == "" {
			return
		}
		m.config.ICEServers = append(m.config.ICEServers, webrtc.ICEServer{
			URLs: []string{url},
		})
	}
}

// WithAPI replaces the pion API, e.g. to tune its SettingEngine.
func WithAPI(api *webrtc.API) Option {
	return func(m *Manager) {
		m.api = api
	}
}

// WithJPEGQuality sets the encoding quality of sent frames.
func WithJPEGQuality(q int) Option {
	return func(m *Manager) {
		m.quality = q
	}
}

// NewManager creates a manager whose surfaces report to listener through
// loop.
func NewManager(loop *host.Loop, listener surface.Listener, opts ...Option) *Manager {
	m := &Manager{
		loop:     loop,
		listener: listener,
		quality:  75,
		sessions: make(map[uuid.UUID]*session),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.api == nil {
		m.api = webrtc.NewAPI()
	}
	return m
}

// Answer accepts a viewer offer and returns the answer with all ICE
// candidates gathered.
func (m *Manager) Answer(ctx context.Context, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	pc, err := m.api.NewPeerConnection(m.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	s := newSession(m, pc)

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.logger.Debug("peer connection state changed", "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed,
			webrtc.PeerConnectionStateDisconnected:
			go s.teardown()
		}
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != FramesLabel {
			s.logger.Debug("ignoring data channel", "label", dc.Label())
			return
		}
		s.attach(dc)
	})

	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		return nil, fmt.Errorf("failed to set remote description: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("failed to create answer: %w", err)
	}

	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return nil, fmt.Errorf("failed to set local description: %w", err)
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		pc.Close()
		return nil, ctx.Err()
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		pc.Close()
		return nil, ErrClosed
	}
	m.sessions[s.id] = s
	m.mu.Unlock()

	s.logger.Info("viewer negotiated")
	return pc.LocalDescription(), nil
}

// Sessions returns the number of live peer connections.
func (m *Manager) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// FrameCounts returns sent and dropped frames across all sessions.
func (m *Manager) FrameCounts() (sent, dropped uint64) {
	return m.sent.Load(), m.dropped.Load()
}

// Close tears down every session.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.teardown()
	}
	return nil
}

func (m *Manager) remove(id uuid.UUID) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}
