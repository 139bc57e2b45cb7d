package rtcview

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/teslashibe/go-camsession/pkg/coordinator"
	"github.com/teslashibe/go-camsession/pkg/host"
	"github.com/teslashibe/go-camsession/pkg/permission"
	"github.com/teslashibe/go-camsession/pkg/pipeline"
	"github.com/teslashibe/go-camsession/pkg/protocol"
	"github.com/teslashibe/go-camsession/pkg/surface"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		n    int
		size int
		want []int
	}{
		{"empty", 0, 4, []int{}},
		{"exact", 8, 4, []int{4, 4}},
		{"remainder", 9, 4, []int{4, 4, 1}},
		{"smaller than chunk", 3, 4, []int{3}},
		{"default size", ChunkSize + 1, 0, []int{ChunkSize, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(make([]byte, tt.n), tt.size)
			if len(got) != len(tt.want) {
				t.Fatalf("len(Split()) = %d, want %d", len(got), len(tt.want))
			}
			for i, c := range got {
				if len(c) != tt.want[i] {
					t.Errorf("chunk %d = %d bytes, want %d", i, len(c), tt.want[i])
				}
			}
		})
	}
}

func TestAssembler(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), 5)
	chunks := Split(data, 16)

	var a Assembler
	if _, _, err := a.Chunk(chunks[0]); !errors.Is(err, ErrUnexpectedChunk) {
		t.Fatalf("Chunk() without header error = %v, want ErrUnexpectedChunk", err)
	}

	a.Header(&protocol.FrameData{Width: 5, Height: 10, Size: len(data), Chunks: len(chunks), FrameID: 3})
	var (
		frame []byte
		fd    *protocol.FrameData
	)
	for i, c := range chunks {
		var err error
		frame, fd, err = a.Chunk(c)
		if err != nil {
			t.Fatalf("Chunk(%d) error = %v", i, err)
		}
		if i < len(chunks)-1 && frame != nil {
			t.Fatalf("frame completed early at chunk %d", i)
		}
	}
	if !bytes.Equal(frame, data) {
		t.Error("reassembled frame differs")
	}
	if fd == nil || fd.FrameID != 3 {
		t.Errorf("header = %+v, want frame 3", fd)
	}

	a.Header(&protocol.FrameData{Size: 4, Chunks: 2})
	if _, _, err := a.Chunk(make([]byte, 5)); !errors.Is(err, ErrFrameOverflow) {
		t.Errorf("Chunk() error = %v, want ErrFrameOverflow", err)
	}
}

func TestAnswer_RejectsGarbageOffer(t *testing.T) {
	m := NewManager(host.New(nil), nil)

	_, err := m.Answer(context.Background(), webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  "not sdp",
	})
	if err == nil {
		t.Fatal("Answer() should fail for malformed SDP")
	}
	if m.Sessions() != 0 {
		t.Errorf("Sessions() = %d, want 0", m.Sessions())
	}
}

func TestAnswer_AfterClose(t *testing.T) {
	m := NewManager(host.New(nil), nil)
	_ = m.Close()

	if _, err := m.Answer(context.Background(), webrtc.SessionDescription{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Answer() error = %v, want ErrClosed", err)
	}
}

func loopbackAPI() *webrtc.API {
	se := webrtc.SettingEngine{}
	se.SetIncludeLoopbackCandidate(true)
	return webrtc.NewAPI(webrtc.WithSettingEngine(se))
}

func eventually(t *testing.T, what string, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestViewerEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping peer connection test in short mode")
	}

	mock := pipeline.NewMock()
	broker := permission.NewBroker(nil, permission.WithAutoGrant(permission.Camera))
	coord := coordinator.New(mock, broker)
	loop := host.New(coord)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	api := loopbackAPI()
	m := NewManager(loop, coord, WithAPI(api))
	defer m.Close()

	client, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("NewPeerConnection() error = %v", err)
	}
	defer client.Close()

	dc, err := client.CreateDataChannel(FramesLabel, nil)
	if err != nil {
		t.Fatalf("CreateDataChannel() error = %v", err)
	}

	received := make(chan []byte, 4)
	var asm Assembler
	dc.OnOpen(func() {
		msg, _ := protocol.NewResizeMessage(48, 48, "rgba8888")
		data, _ := msg.Bytes()
		_ = dc.SendText(string(data))
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if msg.IsString {
			pm, err := protocol.ParseMessage(msg.Data)
			if err != nil || pm.Type != protocol.TypeFrame {
				return
			}
			fd, _ := pm.GetFrameData()
			asm.Header(fd)
			return
		}
		if frame, _, err := asm.Chunk(msg.Data); err == nil && frame != nil {
			received <- frame
		}
	})

	offer, err := client.CreateOffer(nil)
	if err != nil {
		t.Fatalf("CreateOffer() error = %v", err)
	}
	gathered := webrtc.GatheringCompletePromise(client)
	if err := client.SetLocalDescription(offer); err != nil {
		t.Fatalf("SetLocalDescription() error = %v", err)
	}
	<-gathered

	answerCtx, answerCancel := context.WithTimeout(ctx, 5*time.Second)
	defer answerCancel()
	answer, err := m.Answer(answerCtx, *client.LocalDescription())
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if err := client.SetRemoteDescription(*answer); err != nil {
		t.Fatalf("SetRemoteDescription() error = %v", err)
	}

	eventually(t, "surface bound", 10*time.Second, func() bool {
		b := coord.Session().Bound
		return b != nil && b.Width == 48 && b.Height == 48
	})

	if err := loop.Do(ctx, host.Resume{Selector: pipeline.SelectorFront}); err != nil {
		t.Fatalf("Resume error = %v", err)
	}
	if ok, err := mock.Emit(); !ok || err != nil {
		t.Fatalf("Emit() = %v, %v", ok, err)
	}

	select {
	case frame := <-received:
		img, err := jpeg.Decode(bytes.NewReader(frame))
		if err != nil {
			t.Fatalf("jpeg.Decode() error = %v", err)
		}
		if b := img.Bounds(); b.Dx() != 48 || b.Dy() != 48 {
			t.Errorf("frame = %dx%d, want 48x48", b.Dx(), b.Dy())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no frame received")
	}

	window := mock.Window()
	_ = m.Close()

	eventually(t, "surface unbound", 5*time.Second, func() bool {
		return coord.Session().Bound == nil
	})
	if !window.Released() {
		t.Error("window not released after teardown")
	}
	if m.Sessions() != 0 {
		t.Errorf("Sessions() = %d, want 0", m.Sessions())
	}
	if sent, _ := m.FrameCounts(); sent != 1 {
		t.Errorf("sent = %d, want 1", sent)
	}
}

// peerStateListener records whether the peer was still open when the
// surface was destroyed.
type peerStateListener struct {
	pc        *webrtc.PeerConnection
	destroyed chan bool
}

func (l *peerStateListener) SurfaceCreated(uuid.UUID)                       {}
func (l *peerStateListener) SurfaceChanged(surface.Handle, *surface.Window) {}
func (l *peerStateListener) SurfaceDestroyed(uuid.UUID) {
	l.destroyed <- l.pc.ConnectionState() != webrtc.PeerConnectionStateClosed
}

func TestTeardown_UnbindsBeforeClosingPeer(t *testing.T) {
	coord := coordinator.New(pipeline.NewMock(), permission.NewBroker(nil))
	loop := host.New(coord)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("NewPeerConnection() error = %v", err)
	}
	listener := &peerStateListener{pc: pc, destroyed: make(chan bool, 1)}
	m := NewManager(loop, listener)
	s := newSession(m, pc)

	// Hold the loop busy so a queued destroy would lag behind teardown.
	gate := make(chan struct{})
	if err := loop.Post(host.Call{Label: "busy", Fn: func() error {
		<-gate
		return nil
	}}); err != nil {
		t.Fatalf("Post() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		s.teardown()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("teardown returned before the destroy event was handled")
	case <-time.After(50 * time.Millisecond):
	}
	close(gate)

	select {
	case open := <-listener.destroyed:
		if !open {
			t.Error("peer connection closed before the surface was destroyed")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("surface never destroyed")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("teardown did not return")
	}
	if got := pc.ConnectionState(); got != webrtc.PeerConnectionStateClosed {
		t.Errorf("ConnectionState() = %s, want closed", got)
	}
}

func TestTeardown_LoopStopped(t *testing.T) {
	coord := coordinator.New(pipeline.NewMock(), permission.NewBroker(nil))
	loop := host.New(coord)

	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(context.Background()) }()
	if err := loop.Do(context.Background(), host.Shutdown{}); err != nil {
		t.Fatalf("Shutdown error = %v", err)
	}
	<-errCh

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("NewPeerConnection() error = %v", err)
	}
	listener := &peerStateListener{pc: pc, destroyed: make(chan bool, 1)}
	s := newSession(NewManager(loop, listener), pc)
	s.teardown()

	select {
	case <-listener.destroyed:
	default:
		t.Error("surface not destroyed when the loop is stopped")
	}
	if !s.obs.Destroyed() {
		t.Error("observer not destroyed")
	}
}
