package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the coordinator's prometheus collectors.
type Metrics struct {
	Transitions *prometheus.CounterVec
	Errors      *prometheus.CounterVec
	LoadCalls   prometheus.Counter
	CameraOpen  prometheus.Gauge
	Bound       prometheus.Gauge
	Rebinds     prometheus.Counter
}

// NewMetrics registers the collectors with reg. A nil reg leaves them
// unregistered, which is what tests use.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "camsession_state_transitions_total",
				Help: "Session state transitions by source and destination state",
			},
			[]string{"from", "to"},
		),
		Errors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "camsession_errors_total",
				Help: "Errors reported to the host by kind",
			},
			[]string{"kind"},
		),
		LoadCalls: f.NewCounter(prometheus.CounterOpts{
			Name: "camsession_model_load_calls_total",
			Help: "Calls made to the pipeline's model loader",
		}),
		CameraOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "camsession_camera_open",
			Help: "1 while the camera pipeline is open",
		}),
		Bound: f.NewGauge(prometheus.GaugeOpts{
			Name: "camsession_surface_bound",
			Help: "1 while an output surface is bound",
		}),
		Rebinds: f.NewCounter(prometheus.CounterOpts{
			Name: "camsession_surface_rebinds_total",
			Help: "Output surface bind and unbind operations",
		}),
	}
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
