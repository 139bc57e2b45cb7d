// Package surface tracks the lifecycle of renderable display targets.
//
// A surface goes through three transitions, always in this order:
// created, changed (zero or more times), destroyed. Every changed event
// produces a new Handle and a new Window; the previous Window is released
// once the listener has rebound. Destroyed is terminal for that surface.
package surface

import (
	"fmt"

	"github.com/google/uuid"
)

// Format is the pixel format a surface was configured with.
type Format string

const (
	FormatRGBA8888 Format = "rgba8888"
	FormatRGBX8888 Format = "rgbx8888"
	FormatRGB565   Format = "rgb565"
)

// Valid reports whether f is a known pixel format.
func (f Format) Valid() bool {
	switch f {
	case FormatRGBA8888, FormatRGBX8888, FormatRGB565:
		return true
	}
	return false
}

// Handle identifies one configuration of a surface.
// ID is stable for the lifetime of the surface; Generation changes on every resize.
type Handle struct {
	ID         uuid.UUID `json:"id"`
	Generation uint64    `json:"generation"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Format     Format    `json:"format"`
}

// Same reports whether h and o refer to the same surface configuration.
func (h Handle) Same(o Handle) bool {
	return h.ID == o.ID && h.Generation == o.Generation
}

func (h Handle) String() string {
	return fmt.Sprintf("%s#%d(%dx%d %s)", h.ID.String()[:8], h.Generation, h.Width, h.Height, h.Format)
}
