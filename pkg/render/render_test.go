package render

import (
	"bytes"
	"image"
	"image/jpeg"
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/teslashibe/go-camsession/pkg/surface"
)

func TestCropRect(t *testing.T) {
	tests := []struct {
		name                   string
		srcW, srcH, dstW, dstH int
		want                   image.Rectangle
	}{
		{
			name: "same aspect keeps full frame",
			srcW: 640, srcH: 480, dstW: 320, dstH: 240,
			want: image.Rect(0, 0, 640, 480),
		},
		{
			name: "portrait target trims columns",
			srcW: 640, srcH: 480, dstW: 1080, dstH: 1920,
			want: image.Rect(185, 0, 455, 480),
		},
		{
			name: "wide target trims rows",
			srcW: 640, srcH: 480, dstW: 1920, dstH: 1080,
			want: image.Rect(0, 60, 640, 420),
		},
		{
			name: "unknown target keeps frame",
			srcW: 640, srcH: 480, dstW: 0, dstH: 0,
			want: image.Rect(0, 0, 640, 480),
		},
		{
			name: "empty source",
			srcW: 0, srcH: 0, dstW: 640, dstH: 480,
			want: image.Rectangle{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := CropRect(tc.srcW, tc.srcH, tc.dstW, tc.dstH)
			if got != tc.want {
				t.Errorf("CropRect: got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFPSMeter_WarmupThenAverage(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewFPSMeter(clock)

	// First tick only seeds the timestamp.
	if _, ok := m.Tick(); ok {
		t.Fatal("first tick should not report a rate")
	}

	for i := 0; i < FPSWindow-1; i++ {
		clock.Advance(40 * time.Millisecond)
		if _, ok := m.Tick(); ok {
			t.Fatalf("tick %d reported a rate before the history filled", i)
		}
	}

	clock.Advance(40 * time.Millisecond)
	avg, ok := m.Tick()
	if !ok {
		t.Fatal("expected a rate once the history is full")
	}
	if math.Abs(avg-25) > 0.001 {
		t.Errorf("avg: got %.3f, want 25", avg)
	}

	if got := FPSLabel(avg); got != "FPS=25.00" {
		t.Errorf("FPSLabel: got %q", got)
	}

	m.Reset()
	if _, ok := m.Tick(); ok {
		t.Error("Reset should restart warm-up")
	}
}

func TestRGBToRGBA(t *testing.T) {
	src := []byte{
		1, 2, 3, 4, 5, 6, 0xEE, // row 0 with one byte of padding
		7, 8, 9, 10, 11, 12, 0xEE,
	}
	dst := make([]byte, 2*8)

	if err := RGBToRGBA(dst, 8, src, 7, 2, 2); err != nil {
		t.Fatalf("RGBToRGBA: %v", err)
	}

	want := []byte{
		1, 2, 3, 255, 4, 5, 6, 255,
		7, 8, 9, 255, 10, 11, 12, 255,
	}
	if !bytes.Equal(dst, want) {
		t.Errorf("RGBToRGBA: got %v, want %v", dst, want)
	}

	if err := RGBToRGBA(dst, 8, src[:4], 7, 2, 2); err == nil {
		t.Error("expected error for short source")
	}
	if err := RGBToRGBA(dst, 4, src, 7, 2, 2); err == nil {
		t.Error("expected error for small destination stride")
	}
}

func TestEncodeJPEG(t *testing.T) {
	f := surface.Frame{Width: 16, Height: 8, Stride: 64, Pix: make([]byte, 16*8*4)}
	for i := 3; i < len(f.Pix); i += 4 {
		f.Pix[i] = 255
	}

	data, err := EncodeJPEG(f, 80)
	if err != nil {
		t.Fatalf("EncodeJPEG: %v", err)
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 16 || b.Dy() != 8 {
		t.Errorf("bounds: got %v, want 16x8", b)
	}

	if _, err := EncodeJPEG(surface.Frame{}, 80); err == nil {
		t.Error("expected error for empty frame")
	}
}
