package render

import "image"

// CropRect returns the centered region of a srcW x srcH frame that has the
// aspect ratio of a dstW x dstH target. The full frame is returned when the
// target geometry is unknown.
func CropRect(srcW, srcH, dstW, dstH int) image.Rectangle {
	if srcW <= 0 || srcH <= 0 {
		return image.Rectangle{}
	}
	if dstW <= 0 || dstH <= 0 {
		return image.Rect(0, 0, srcW, srcH)
	}

	// Target is wider than the source: keep full width, trim rows.
	if dstW*srcH > dstH*srcW {
		h := srcW * dstH / dstW
		y := (srcH - h) / 2
		return image.Rect(0, y, srcW, y+h)
	}

	w := srcH * dstW / dstH
	x := (srcW - w) / 2
	return image.Rect(x, 0, x+w, srcH)
}
