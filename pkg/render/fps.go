package render

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// FPSWindow is the number of samples averaged by FPSMeter.
const FPSWindow = 10

// FPSMeter computes a moving average frame rate over the last FPSWindow frames.
type FPSMeter struct {
	clock clockwork.Clock

	mu      sync.Mutex
	last    time.Time
	history [FPSWindow]float64
	count   int
}

// NewFPSMeter creates a meter. A nil clock uses the real clock.
func NewFPSMeter(clock clockwork.Clock) *FPSMeter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &FPSMeter{clock: clock}
}

// Tick records a frame and returns the average rate. ok is false until the
// history is full, so callers draw no label during warm-up.
func (m *FPSMeter) Tick() (avg float64, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if m.last.IsZero() {
		m.last = now
		return 0, false
	}

	dt := now.Sub(m.last)
	m.last = now
	if dt <= 0 {
		return 0, false
	}

	copy(m.history[1:], m.history[:FPSWindow-1])
	m.history[0] = float64(time.Second) / float64(dt)
	if m.count < FPSWindow {
		m.count++
	}
	if m.count < FPSWindow {
		return 0, false
	}

	var sum float64
	for _, v := range m.history {
		sum += v
	}
	return sum / FPSWindow, true
}

// Reset clears the history, e.g. when the camera is reopened.
func (m *FPSMeter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = time.Time{}
	m.history = [FPSWindow]float64{}
	m.count = 0
}

// FPSLabel formats the overlay text.
func FPSLabel(avg float64) string {
	return fmt.Sprintf("FPS=%.2f", avg)
}
