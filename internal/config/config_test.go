package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Port:            "8090",
		Pipeline:        PipelineMock,
		Camera:          1,
		CaptureWidth:    640,
		CaptureHeight:   480,
		MockFPS:         15,
		JPEGQuality:     75,
		ShutdownTimeout: 5 * time.Second,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid mock", mutate: func(c *Config) {}},
		{
			name:   "valid gocv",
			mutate: func(c *Config) { c.Pipeline = PipelineGoCV; c.ModelPath = "m.onnx" },
		},
		{
			name:    "gocv without model",
			mutate:  func(c *Config) { c.Pipeline = PipelineGoCV },
			wantErr: "model_path",
		},
		{
			name:    "unknown pipeline",
			mutate:  func(c *Config) { c.Pipeline = "tnn" },
			wantErr: "pipeline must be",
		},
		{
			name:    "camera out of range",
			mutate:  func(c *Config) { c.Camera = 2 },
			wantErr: "camera must be",
		},
		{
			name:    "bad quality",
			mutate:  func(c *Config) { c.JPEGQuality = 0 },
			wantErr: "jpeg_quality",
		},
		{
			name:    "missing port",
			mutate:  func(c *Config) { c.Port = "" },
			wantErr: "port is required",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			problems := cfg.Validate()

			if tc.wantErr == "" {
				if len(problems) != 0 {
					t.Fatalf("Validate: unexpected problems %v", problems)
				}
				return
			}

			joined := strings.Join(problems, "; ")
			if !strings.Contains(joined, tc.wantErr) {
				t.Errorf("Validate: got %q, want it to mention %q", joined, tc.wantErr)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CAMSESSION_PIPELINE", "mock")
	t.Setenv("CAMSESSION_PORT", "9123")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "9123" {
		t.Errorf("Port: got %s, want 9123", cfg.Port)
	}
	if cfg.Camera != 1 {
		t.Errorf("Camera: got %d, want 1", cfg.Camera)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout: got %v, want 5s", cfg.ShutdownTimeout)
	}
	if cfg.Address() != ":9123" {
		t.Errorf("Address: got %s, want :9123", cfg.Address())
	}
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("CAMSESSION_PIPELINE", "mock")
	t.Setenv("CAMSESSION_CAMERA", "5")

	if _, err := Load(); err == nil {
		t.Fatal("Load: expected error for camera=5")
	}
}

func TestGetPreset(t *testing.T) {
	tests := []struct {
		name    string
		want    Size
		wantErr bool
	}{
		{name: "vga", want: Size{640, 480}},
		{name: "720P", want: Size{1280, 720}},
		{name: "8k", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := GetPreset(tc.name)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("GetPreset(%q): expected error", tc.name)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetPreset(%q): %v", tc.name, err)
			}
			if got != tc.want {
				t.Errorf("GetPreset(%q) = %v, want %v", tc.name, got, tc.want)
			}
		})
	}
}

func TestLoad_Preset(t *testing.T) {
	t.Setenv("CAMSESSION_PIPELINE", "mock")
	t.Setenv("CAMSESSION_CAPTURE_PRESET", "720p")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.CaptureWidth != 1280 || cfg.CaptureHeight != 720 {
		t.Errorf("capture size: got %dx%d, want 1280x720", cfg.CaptureWidth, cfg.CaptureHeight)
	}

	t.Setenv("CAMSESSION_CAPTURE_PRESET", "bogus")
	if _, err := Load(); err == nil {
		t.Fatal("Load: expected error for unknown preset")
	}
}
