package config

import (
	"fmt"
	"sort"
	"strings"
)

// Capture presets for common webcam modes.
const (
	PresetQVGA  = "qvga"
	PresetVGA   = "vga"
	Preset720p  = "720p"
	Preset1080p = "1080p"
)

// Size is a capture resolution.
type Size struct {
	Width  int
	Height int
}

// Presets returns all available capture presets.
func Presets() map[string]Size {
	return map[string]Size{
		PresetQVGA:  {Width: 320, Height: 240},
		PresetVGA:   {Width: 640, Height: 480},
		Preset720p:  {Width: 1280, Height: 720},
		Preset1080p: {Width: 1920, Height: 1080},
	}
}

// PresetNames returns the preset names, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(Presets()))
	for name := range Presets() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPreset returns the size for a preset name.
func GetPreset(name string) (Size, error) {
	size, ok := Presets()[strings.ToLower(name)]
	if !ok {
		return Size{}, fmt.Errorf("unknown capture preset %q (valid: %s)", name, strings.Join(PresetNames(), ", "))
	}
	return size, nil
}

// applyPreset overrides the capture size when a preset is set.
func (c *Config) applyPreset() error {
	if c.CapturePreset == "" {
		return nil
	}
	size, err := GetPreset(c.CapturePreset)
	if err != nil {
		return err
	}
	c.CaptureWidth = size.Width
	c.CaptureHeight = size.Height
	return nil
}
