package cvcam

import (
	"errors"
	"image"
	"image/color"

	"github.com/teslashibe/go-camsession/pkg/render"
	"github.com/teslashibe/go-camsession/pkg/surface"
	"gocv.io/x/gocv"
)

const (
	labelScale     = 0.5
	labelThickness = 1
)

var (
	labelBackground = color.RGBA{R: 255, G: 255, B: 255, A: 0}
	labelForeground = color.RGBA{R: 0, G: 0, B: 0, A: 0}
)

func (p *Pipeline) captureLoop(capture *gocv.VideoCapture, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	frame := gocv.NewMat()
	defer frame.Close()
	rgba := gocv.NewMat()
	defer rgba.Close()

	meter := render.NewFPSMeter(p.clock)
	var seq uint64

	for {
		select {
		case <-stop:
			return
		default:
		}

		if ok := capture.Read(&frame); !ok || frame.Empty() {
			select {
			case <-stop:
				return
			case <-p.clock.After(readRetry):
			}
			continue
		}

		avg, ready := meter.Tick()

		w := p.currentWindow()
		if w == nil {
			continue
		}

		seq++
		label := ""
		if ready {
			label = render.FPSLabel(avg)
		}
		if err := compose(frame, &rgba, w, label, seq); err != nil && !errors.Is(err, surface.ErrReleased) {
			p.logger.Debug("frame write failed", "error", err)
		}
	}
}

// compose crops src to the window's aspect ratio, draws label top-right
// and writes the result as RGBA.
func compose(src gocv.Mat, dst *gocv.Mat, w *surface.Window, label string, seq uint64) error {
	h := w.Handle()
	roi := render.CropRect(src.Cols(), src.Rows(), h.Width, h.Height)
	if roi.Empty() {
		return surface.ErrBadFrame
	}

	region := src.Region(roi)
	defer region.Close()

	if label != "" {
		drawLabel(&region, label)
	}

	gocv.CvtColor(region, dst, gocv.ColorBGRToRGBA)

	return w.Write(surface.Frame{
		Width:  dst.Cols(),
		Height: dst.Rows(),
		Stride: dst.Cols() * 4,
		Pix:    dst.ToBytes(),
		Seq:    seq,
	})
}

// drawLabel draws text in a white box anchored to the top-right corner.
func drawLabel(img *gocv.Mat, text string) {
	size, baseline := gocv.GetTextSizeWithBaseline(text, gocv.FontHersheySimplex, labelScale, labelThickness)

	x := img.Cols() - size.X
	if x < 0 {
		x = 0
	}
	box := image.Rect(x, 0, img.Cols(), size.Y+baseline)

	gocv.Rectangle(img, box, labelBackground, -1)
	gocv.PutText(img, text, image.Pt(x, size.Y), gocv.FontHersheySimplex, labelScale, labelForeground, labelThickness)
}
