package surface

import "errors"

var (
	// ErrReleased is returned when writing to a window whose surface is gone.
	ErrReleased = errors.New("surface: window released")

	// ErrBadFrame is returned for frames with inconsistent geometry.
	ErrBadFrame = errors.New("surface: malformed frame")
)
