package render

import "fmt"

// RGBToRGBA copies a packed RGB image into an RGBA buffer, setting alpha to 255.
// Both buffers are addressed row by row using their own stride in bytes.
func RGBToRGBA(dst []byte, dstStride int, src []byte, srcStride, width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("render: empty geometry %dx%d", width, height)
	}
	if srcStride < width*3 || dstStride < width*4 {
		return fmt.Errorf("render: stride too small (src %d, dst %d) for width %d", srcStride, dstStride, width)
	}
	if len(src) < srcStride*(height-1)+width*3 {
		return fmt.Errorf("render: source buffer too small: %d bytes", len(src))
	}
	if len(dst) < dstStride*(height-1)+width*4 {
		return fmt.Errorf("render: destination buffer too small: %d bytes", len(dst))
	}

	for y := 0; y < height; y++ {
		in := src[y*srcStride:]
		out := dst[y*dstStride:]
		for x := 0; x < width; x++ {
			out[x*4] = in[x*3]
			out[x*4+1] = in[x*3+1]
			out[x*4+2] = in[x*3+2]
			out[x*4+3] = 255
		}
	}
	return nil
}
