package web

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/teslashibe/go-camsession/pkg/protocol"
	"github.com/teslashibe/go-camsession/pkg/surface"
)

// blockingConn holds every write until release is closed.
type blockingConn struct {
	writing chan struct{}
	release chan struct{}
	writes  atomic.Int32
	closed  atomic.Bool
}

func (c *blockingConn) WriteMessage(int, []byte) error {
	if c.writes.Add(1) == 1 {
		close(c.writing)
	}
	<-c.release
	return nil
}

func (c *blockingConn) SetWriteDeadline(time.Time) error { return nil }

func (c *blockingConn) Close() error {
	c.closed.Store(true)
	return nil
}

func testServerMetrics() serverMetrics {
	f := promauto.With(nil)
	return serverMetrics{
		viewers:       f.NewGauge(prometheus.GaugeOpts{Name: "viewers"}),
		framesSent:    f.NewCounter(prometheus.CounterOpts{Name: "sent"}),
		framesDropped: f.NewCounter(prometheus.CounterOpts{Name: "dropped"}),
	}
}

func TestViewer_StopWaitsForWritePump(t *testing.T) {
	conn := &blockingConn{writing: make(chan struct{}), release: make(chan struct{})}
	v := newViewer(conn, 75, testServerMetrics(), slog.Default())
	v.start()

	ping, err := protocol.NewPingMessage("1")
	if err != nil {
		t.Fatalf("NewPingMessage() error = %v", err)
	}
	v.send(ping)

	select {
	case <-conn.writing:
	case <-time.After(2 * time.Second):
		t.Fatal("write pump never wrote")
	}

	stopped := make(chan struct{})
	go func() {
		v.stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("stop returned while a write was in flight")
	case <-time.After(50 * time.Millisecond):
	}
	if conn.closed.Load() {
		t.Error("conn closed while a write was in flight")
	}

	close(conn.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return")
	}
	if !conn.closed.Load() {
		t.Error("conn not closed after stop")
	}
}

func TestViewer_WriteFrameAfterStop(t *testing.T) {
	conn := &blockingConn{writing: make(chan struct{}), release: make(chan struct{})}
	close(conn.release)
	v := newViewer(conn, 75, testServerMetrics(), slog.Default())
	v.start()
	v.stop()

	f := surface.Frame{Width: 2, Height: 2, Stride: 8, Pix: make([]byte, 16)}
	if err := v.WriteFrame(f); !errors.Is(err, errViewerClosed) {
		t.Errorf("WriteFrame() error = %v, want errViewerClosed", err)
	}
}
