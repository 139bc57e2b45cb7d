package web

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-camsession/pkg/host"
	"github.com/teslashibe/go-camsession/pkg/protocol"
	"github.com/teslashibe/go-camsession/pkg/render"
	"github.com/teslashibe/go-camsession/pkg/surface"
)

const (
	// viewerQueue is how many frames may wait for encoding per viewer
	viewerQueue = 2

	// viewerWriteWait bounds a single websocket write
	viewerWriteWait = 5 * time.Second
)

var errViewerClosed = errors.New("web: viewer closed")

// viewerConn is the write side of a viewer's websocket.
type viewerConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// viewer is a remote display surface on a websocket.
// The pipeline hands it frames through surface.Window; it only copies them
// into a small queue so the capture worker never waits on the network.
type viewer struct {
	conn    viewerConn
	logger  *slog.Logger
	quality int
	metrics serverMetrics

	frames   chan surface.Frame
	control  chan *protocol.Message
	done     chan struct{}
	pumpDone chan struct{}
	once     sync.Once
}

func newViewer(conn viewerConn, quality int, m serverMetrics, logger *slog.Logger) *viewer {
	return &viewer{
		conn:     conn,
		logger:   logger,
		quality:  quality,
		metrics:  m,
		frames:   make(chan surface.Frame, viewerQueue),
		control:  make(chan *protocol.Message, 8),
		done:     make(chan struct{}),
		pumpDone: make(chan struct{}),
	}
}

// WriteFrame implements surface.Sink.
func (v *viewer) WriteFrame(f surface.Frame) error {
	select {
	case <-v.done:
		return errViewerClosed
	default:
	}

	select {
	case v.frames <- f.Clone():
	default:
		v.metrics.framesDropped.Inc()
	}
	return nil
}

func (v *viewer) send(msg *protocol.Message) {
	select {
	case v.control <- msg:
	case <-v.done:
	default:
	}
}

func (v *viewer) close() {
	v.once.Do(func() { close(v.done) })
}

func (v *viewer) start() {
	go func() {
		defer close(v.pumpDone)
		v.writePump()
	}()
}

// stop closes the viewer and waits until the write pump has left the
// connection.
func (v *viewer) stop() {
	v.close()
	<-v.pumpDone
}

// writePump is the only goroutine writing to the connection.
func (v *viewer) writePump() {
	defer v.conn.Close()

	for {
		select {
		case <-v.done:
			return

		case msg := <-v.control:
			if err := v.writeMessage(msg); err != nil {
				v.close()
				return
			}

		case f := <-v.frames:
			jpg, err := render.EncodeJPEG(f, v.quality)
			if err != nil {
				v.logger.Warn("encode frame failed", "error", err)
				continue
			}
			msg, err := protocol.NewFrameMessage(f.Width, f.Height, jpg, f.Seq)
			if err != nil {
				continue
			}
			if err := v.writeMessage(msg); err != nil {
				v.close()
				return
			}
			v.metrics.framesSent.Inc()
		}
	}
}

func (v *viewer) writeMessage(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	v.conn.SetWriteDeadline(time.Now().Add(viewerWriteWait))
	return v.conn.WriteMessage(websocket.TextMessage, data)
}

// handleSurfaceWS turns a websocket into a display surface. Connecting is
// "created", each resize message is "changed" and disconnecting is
// "destroyed"; all three run on the host loop.
func (s *Server) handleSurfaceWS(c *websocket.Conn) {
	ctx := context.Background()
	v := newViewer(c, s.jpegQuality, s.metrics, s.logger)
	obs := surface.NewObserver(v, s.coord, s.logger)
	logger := s.logger.With("surface", obs.ID().String()[:8])

	s.viewers.Add(1)
	s.metrics.viewers.Inc()
	defer func() {
		s.viewers.Add(-1)
		s.metrics.viewers.Dec()
	}()

	if err := s.loop.Do(ctx, host.Call{Label: "surface_created", Fn: func() error {
		obs.OnCreated()
		return nil
	}}); err != nil {
		logger.Warn("surface not attached", "error", err)
		c.Close()
		return
	}
	logger.Info("viewer connected")

	v.start()

	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			break
		}
		if mt != websocket.TextMessage {
			continue
		}
		msg, err := protocol.ParseMessage(data)
		if err != nil {
			logger.Debug("ignoring malformed message", "error", err)
			continue
		}

		switch msg.Type {
		case protocol.TypeResize:
			rd, err := msg.GetResizeData()
			if err != nil {
				continue
			}
			_ = s.loop.Do(ctx, host.Call{Label: "surface_changed", Fn: func() error {
				obs.OnChanged(rd.Width, rd.Height, surface.Format(rd.Format))
				return nil
			}})

		case protocol.TypePing:
			pd, _ := msg.GetPingData()
			id := ""
			if pd != nil {
				id = pd.ID
			}
			if pong, err := protocol.NewPongMessage(id, msg.Timestamp, time.Now().UnixMilli()); err == nil {
				v.send(pong)
			}

		default:
			s.handleCommand(msg)
		}
	}

	destroyed := host.Call{Label: "surface_destroyed", Fn: func() error {
		obs.OnDestroyed()
		return nil
	}}
	if err := s.loop.Do(ctx, destroyed); err != nil {
		// Loop is gone, the session is closed; still revoke the window.
		obs.OnDestroyed()
	}
	// The conn is recycled once this handler returns.
	v.stop()
	logger.Info("viewer disconnected")
}
