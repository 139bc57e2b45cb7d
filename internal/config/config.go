// Package config loads go-camsession settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// Pipeline backends.
const (
	PipelineGoCV = "gocv"
	PipelineMock = "mock"
)

// Defaults shared by commands.
const (
	DefaultPort    = "8090"
	DefaultAddress = "localhost:" + DefaultPort
)

// Config holds the service configuration.
type Config struct {
	Port      string `env:"CAMSESSION_PORT" default:"8090"`
	LogLevel  string `env:"CAMSESSION_LOG_LEVEL" default:"info"`
	LogFormat string `env:"CAMSESSION_LOG_FORMAT" default:"text"`

	// Pipeline selects the native backend: "gocv" or "mock".
	Pipeline    string `env:"CAMSESSION_PIPELINE" default:"gocv"`
	ModelPath   string `env:"CAMSESSION_MODEL_PATH" default:"models/nanodet.onnx"`
	ModelConfig string `env:"CAMSESSION_MODEL_CONFIG"`

	// Camera is the selector opened on resume (0 = back, 1 = front).
	Camera      int `env:"CAMSESSION_CAMERA" default:"1"`
	DeviceBack  int `env:"CAMSESSION_DEVICE_BACK" default:"0"`
	DeviceFront int `env:"CAMSESSION_DEVICE_FRONT" default:"1"`

	CaptureWidth  int `env:"CAMSESSION_CAPTURE_WIDTH" default:"640"`
	CaptureHeight int `env:"CAMSESSION_CAPTURE_HEIGHT" default:"480"`
	MockFPS       int `env:"CAMSESSION_MOCK_FPS" default:"15"`

	// CapturePreset overrides CaptureWidth/CaptureHeight (qvga, vga, 720p, 1080p).
	CapturePreset string `env:"CAMSESSION_CAPTURE_PRESET"`

	// AutoGrant pre-grants camera permission (headless deployments).
	AutoGrant     bool `env:"CAMSESSION_AUTO_GRANT" default:"false"`
	ResumeOnStart bool `env:"CAMSESSION_RESUME_ON_START" default:"false"`
	JPEGQuality   int  `env:"CAMSESSION_JPEG_QUALITY" default:"75"`

	// STUNServer is used for WebRTC viewers; empty disables ICE servers.
	STUNServer string `env:"CAMSESSION_STUN_SERVER" default:"stun:stun.l.google.com:19302"`

	ShutdownTimeout time.Duration `env:"CAMSESSION_SHUTDOWN_TIMEOUT" default:"5s"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := cfg.applyPreset(); err != nil {
		return nil, err
	}

	if problems := cfg.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("invalid config: %v", problems)
	}

	return &cfg, nil
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Port == "" {
		errors = append(errors, "port is required")
	}

	switch c.Pipeline {
	case PipelineGoCV:
		if c.ModelPath == "" {
			errors = append(errors, "model_path is required for the gocv pipeline")
		}
	case PipelineMock:
	default:
		errors = append(errors, "pipeline must be gocv or mock")
	}

	if c.Camera < 0 || c.Camera > 1 {
		errors = append(errors, "camera must be 0 (back) or 1 (front)")
	}
	if c.CaptureWidth < 160 || c.CaptureHeight < 120 {
		errors = append(errors, "capture size must be at least 160x120")
	}
	if c.MockFPS < 1 || c.MockFPS > 120 {
		errors = append(errors, "mock_fps must be between 1 and 120")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		errors = append(errors, "jpeg_quality must be between 1 and 100")
	}
	if c.ShutdownTimeout <= 0 {
		errors = append(errors, "shutdown_timeout must be positive")
	}

	return errors
}

// Address returns the listen address for the HTTP server.
func (c *Config) Address() string {
	return ":" + c.Port
}
