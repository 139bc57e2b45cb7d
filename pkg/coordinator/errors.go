package coordinator

import (
	"errors"

	"github.com/teslashibe/go-camsession/pkg/pipeline"
)

// Sentinel errors for common conditions.
var (
	// ErrPermissionDenied is reported when the user denies camera access.
	// It is recoverable: a later Resume asks again.
	ErrPermissionDenied = errors.New("coordinator: camera permission denied")

	// ErrClosed is returned after Close tore the session down.
	ErrClosed = errors.New("coordinator: session closed")
)

// Error kinds used in metrics and reports.
const (
	KindLoad             = "load"
	KindPermissionDenied = "permission_denied"
	KindPipeline         = "pipeline"
	KindClosed           = "closed"
	KindOther            = "other"
)

// Kind classifies err into one of the Kind constants.
func Kind(err error) string {
	var pe *pipeline.PipelineError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, pipeline.ErrLoad):
		return KindLoad
	case errors.Is(err, ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, ErrClosed):
		return KindClosed
	case errors.As(err, &pe):
		return KindPipeline
	default:
		return KindOther
	}
}

// Reporter receives every error the coordinator surfaces to the host UI.
type Reporter interface {
	Report(err error)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(err error)

// Report calls fn(err).
func (fn ReporterFunc) Report(err error) {
	fn(err)
}
