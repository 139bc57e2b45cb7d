package render

import (
	"bytes"
	"image"
	"image/jpeg"

	"github.com/teslashibe/go-camsession/pkg/surface"
)

// EncodeJPEG encodes an RGBA frame for delivery to a remote viewer.
func EncodeJPEG(f surface.Frame, quality int) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	img := &image.RGBA{
		Pix:    f.Pix,
		Stride: f.Stride,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}

	var buf bytes.Buffer
	buf.Grow(f.Width * f.Height / 4)
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
