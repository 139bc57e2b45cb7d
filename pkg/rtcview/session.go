package rtcview

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/teslashibe/go-camsession/pkg/host"
	"github.com/teslashibe/go-camsession/pkg/protocol"
	"github.com/teslashibe/go-camsession/pkg/render"
	"github.com/teslashibe/go-camsession/pkg/surface"
)

const (
	// sessionQueue is how many frames may wait for encoding per peer
	sessionQueue = 2

	// maxBuffered skips frames while the SCTP send buffer is this full
	maxBuffered = 1 << 20

	// destroyTimeout bounds the wait for the host loop to unbind a surface
	destroyTimeout = 5 * time.Second
)

var errSessionClosed = errors.New("rtcview: session closed")

// session is one remote viewer and its surface.
type session struct {
	id     uuid.UUID
	m      *Manager
	pc     *webrtc.PeerConnection
	obs    *surface.Observer
	logger *slog.Logger

	frames chan surface.Frame
	done   chan struct{}
	once   sync.Once

	mu sync.Mutex
	dc *webrtc.DataChannel
}

func newSession(m *Manager, pc *webrtc.PeerConnection) *session {
	s := &session{
		m:      m,
		pc:     pc,
		frames: make(chan surface.Frame, sessionQueue),
		done:   make(chan struct{}),
	}
	s.obs = surface.NewObserver(s, m.listener, m.logger)
	s.id = s.obs.ID()
	s.logger = m.logger.With("peer", s.id.String()[:8])
	return s
}

// WriteFrame implements surface.Sink without blocking the capture worker.
func (s *session) WriteFrame(f surface.Frame) error {
	select {
	case <-s.done:
		return errSessionClosed
	default:
	}

	select {
	case s.frames <- f.Clone():
	default:
		s.m.dropped.Add(1)
	}
	return nil
}

func (s *session) attach(dc *webrtc.DataChannel) {
	s.mu.Lock()
	s.dc = dc
	s.mu.Unlock()

	dc.OnOpen(func() {
		s.post("surface_created", s.obs.OnCreated)
		go s.sendPump()
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if !msg.IsString {
			return
		}
		pm, err := protocol.ParseMessage(msg.Data)
		if err != nil {
			s.logger.Debug("ignoring malformed message", "error", err)
			return
		}
		if pm.Type != protocol.TypeResize {
			return
		}
		rd, err := pm.GetResizeData()
		if err != nil {
			return
		}
		s.post("surface_changed", func() {
			s.obs.OnChanged(rd.Width, rd.Height, surface.Format(rd.Format))
		})
	})

	dc.OnClose(func() {
		go s.teardown()
	})
}

func (s *session) post(label string, fn func()) {
	err := s.m.loop.Post(host.Call{Label: label, Fn: func() error {
		fn()
		return nil
	}})
	if err != nil {
		s.logger.Warn("surface event not delivered", "event", label, "error", err)
	}
}

func (s *session) channel() *webrtc.DataChannel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dc
}

func (s *session) sendPump() {
	for {
		select {
		case <-s.done:
			return
		case f := <-s.frames:
			if err := s.sendFrame(f); err != nil {
				s.logger.Debug("send frame failed", "error", err)
			}
		}
	}
}

func (s *session) sendFrame(f surface.Frame) error {
	dc := s.channel()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return nil
	}
	if dc.BufferedAmount() > maxBuffered {
		s.m.dropped.Add(1)
		return nil
	}

	jpg, err := render.EncodeJPEG(f, s.m.quality)
	if err != nil {
		return err
	}
	chunks := Split(jpg, ChunkSize)

	hdr, err := protocol.NewFrameHeader(f.Width, f.Height, len(jpg), len(chunks), f.Seq)
	if err != nil {
		return err
	}
	data, err := hdr.Bytes()
	if err != nil {
		return err
	}
	if err := dc.SendText(string(data)); err != nil {
		return err
	}
	for _, c := range chunks {
		if err := dc.Send(c); err != nil {
			return err
		}
	}

	s.m.sent.Add(1)
	return nil
}

// teardown destroys the surface and closes the peer. The destroy event is
// handled on the host loop before the peer is closed, so the session is
// unbound first. Safe to call more than once and from pion callbacks via a
// goroutine, but not from the host loop itself.
func (s *session) teardown() {
	s.once.Do(func() {
		close(s.done)

		ctx, cancel := context.WithTimeout(context.Background(), destroyTimeout)
		defer cancel()

		err := s.m.loop.Do(ctx, host.Call{Label: "surface_destroyed", Fn: func() error {
			s.obs.OnDestroyed()
			return nil
		}})
		switch {
		case errors.Is(err, host.ErrStopped):
			// No loop means no session to unbind from; still revoke the window.
			s.obs.OnDestroyed()
		case err != nil:
			s.logger.Warn("surface destroy not confirmed", "error", err)
		}

		if err := s.pc.Close(); err != nil {
			s.logger.Debug("close peer connection", "error", err)
		}
		s.m.remove(s.id)
		s.logger.Info("viewer disconnected")
	})
}
