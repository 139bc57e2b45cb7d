// camview: command-line viewer for camsession
// Attaches a surface over WebSocket, drives the session lifecycle through
// the control API and optionally saves received frames as JPEG files.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-camsession/internal/config"
	"github.com/teslashibe/go-camsession/internal/httpc"
	"github.com/teslashibe/go-camsession/pkg/protocol"
)

var (
	addr    = flag.String("addr", config.DefaultAddress, "camsession host:port")
	width   = flag.Int("width", 640, "Surface width")
	height  = flag.Int("height", 480, "Surface height")
	camera  = flag.Int("camera", -1, "Camera selector to resume with (0 = back, 1 = front, -1 = server default)")
	grant   = flag.Bool("grant", true, "Grant camera permission when asked")
	frames  = flag.Int("frames", 0, "Stop after this many frames (0 = run until Ctrl+C)")
	outDir  = flag.String("out", "", "Directory to save frames to")
	noPause = flag.Bool("no-pause", false, "Leave the session running on exit")
)

func main() {
	flag.Parse()

	fmt.Println("📹 camview")
	fmt.Printf("   Server: %s  Surface: %dx%d\n\n", *addr, *width, *height)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	fmt.Println("👋 Goodbye!")
}

func run(ctx context.Context) error {
	if *outDir != "" {
		if err := os.MkdirAll(*outDir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	api := httpc.NewAPI("http://"+*addr, httpc.NewClient(10*time.Second))

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws/surface"}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.String(), err)
	}
	defer conn.Close()

	resize, err := protocol.NewResizeMessage(*width, *height, "")
	if err != nil {
		return err
	}
	if err := conn.WriteJSON(resize); err != nil {
		return fmt.Errorf("send resize: %w", err)
	}
	fmt.Println("✅ Surface attached")

	if err := api.Resume(ctx, *camera, nil); err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	fmt.Println("▶️  Resume requested")

	if !*noPause {
		defer func() {
			pctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := api.Pause(pctx, nil); err != nil {
				fmt.Printf("⚠️  Pause failed: %v\n", err)
				return
			}
			fmt.Println("⏸️  Paused")
		}()
	}

	status, err := dialStatus(ctx)
	if err != nil {
		fmt.Printf("⚠️  Status stream unavailable: %v\n", err)
	} else {
		defer status.Close()
		go watchStatus(ctx, status, api)
	}

	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}()

	received := 0
	start := time.Now()
	for {
		var msg protocol.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read frame: %w", err)
		}
		if msg.Type != protocol.TypeFrame {
			continue
		}

		fd, err := msg.GetFrameData()
		if err != nil {
			return err
		}
		data, err := fd.DecodeFrameData()
		if err != nil {
			return err
		}
		received++

		if *outDir != "" {
			name := filepath.Join(*outDir, fmt.Sprintf("frame-%06d.jpg", fd.FrameID))
			if err := os.WriteFile(name, data, 0o644); err != nil {
				return fmt.Errorf("save frame: %w", err)
			}
		}

		if received%30 == 0 || received == 1 {
			fps := float64(received) / time.Since(start).Seconds()
			fmt.Printf("🖼️  frame %d: %dx%d, %d bytes (%.1f fps)\n", fd.FrameID, fd.Width, fd.Height, len(data), fps)
		}
		if *frames > 0 && received >= *frames {
			fmt.Printf("✅ Received %d frames\n", received)
			return nil
		}
	}
}

func dialStatus(ctx context.Context) (*websocket.Conn, error) {
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws/status"}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	return conn, err
}

// watchStatus prints session transitions and answers permission prompts.
func watchStatus(ctx context.Context, conn *websocket.Conn, api *httpc.API) {
	lastState := ""
	asked := false
	for {
		var msg protocol.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case protocol.TypeState:
			st, err := msg.GetStateData()
			if err != nil {
				continue
			}
			if st.State != lastState {
				fmt.Printf("ℹ️  state: %s (camera_open=%v bound=%q)\n", st.State, st.CameraOpen, st.Bound)
				lastState = st.State
			}
			if !st.AwaitingPermission {
				asked = false
				continue
			}
			if asked {
				continue
			}
			asked = true
			fmt.Printf("🔐 Camera permission requested, answering granted=%v\n", *grant)
			if err := api.CameraPermission(ctx, *grant); err != nil {
				fmt.Printf("⚠️  Permission answer failed: %v\n", err)
			}

		case protocol.TypeError:
			e, err := msg.GetErrorData()
			if err != nil {
				continue
			}
			fmt.Printf("⚠️  session error [%s]: %s\n", e.Kind, e.Message)
		}
	}
}
