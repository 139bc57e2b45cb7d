package pipeline

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrLoad matches every *LoadError.
	ErrLoad = errors.New("pipeline: model load failed")

	// ErrMissingArtifact is returned when a model file does not exist.
	ErrMissingArtifact = errors.New("pipeline: model artifact missing")

	// ErrMalformedArtifact is returned when a model file cannot be parsed.
	ErrMalformedArtifact = errors.New("pipeline: model artifact malformed")

	// ErrInvalidSelector is returned when a camera selector is out of range.
	ErrInvalidSelector = errors.New("pipeline: invalid camera selector")

	// ErrNotLoaded is returned when opening the camera before Load succeeded.
	ErrNotLoaded = errors.New("pipeline: model not loaded")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("pipeline: closed")

	// ErrDevice is returned when the capture device cannot be opened.
	ErrDevice = errors.New("pipeline: capture device unavailable")
)

// Operation names used in PipelineError.
const (
	OpOpenCamera      = "open_camera"
	OpCloseCamera     = "close_camera"
	OpSetOutputWindow = "set_output_window"
	OpClose           = "close"
)

// LoadError reports that model artifacts are missing or malformed.
type LoadError struct {
	// Artifact is the path of the offending file, if known.
	Artifact string
	Err      error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	if e.Artifact != "" {
		return fmt.Sprintf("pipeline: load %s: %v", e.Artifact, e.Err)
	}
	return fmt.Sprintf("pipeline: load: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrLoad) true for every LoadError.
func (e *LoadError) Is(target error) bool {
	return target == ErrLoad
}

// PipelineError reports a failed open/close/bind call.
type PipelineError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline [%s]: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// WrapError wraps err with operation context. LoadErrors and existing
// PipelineErrors are returned unchanged.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var le *LoadError
	if errors.As(err, &le) {
		return err
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return err
	}
	return &PipelineError{Op: op, Err: err}
}
