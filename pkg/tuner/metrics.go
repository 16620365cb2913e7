package tuner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	cycles        prometheus.Counter
	droppedFrames prometheus.Counter
	cycleDuration prometheus.Histogram
	streams       prometheus.Gauge
	scans         *prometheus.CounterVec
	noiseFloor    prometheus.Gauge
	peak          prometheus.Gauge
}

// NewMetrics creates and registers the receiver metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		cycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "tuner_stream_cycles_total",
			Help: "Sample blocks processed by the streaming loop",
		}),
		droppedFrames: factory.NewCounter(prometheus.CounterOpts{
			Name: "tuner_stream_dropped_frames_total",
			Help: "Frames dropped because the stream consumer lagged",
		}),
		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tuner_stream_cycle_seconds",
			Help:    "Time spent reading and processing one sample block",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		streams: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tuner_streams_active",
			Help: "Streaming loops currently running",
		}),
		scans: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tuner_scans_total",
			Help: "Scans by result",
		}, []string{"result"}),
		noiseFloor: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tuner_noise_floor_db",
			Help: "Noise floor of the most recent spectrum frame",
		}),
		peak: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tuner_peak_db",
			Help: "Peak power of the most recent spectrum frame",
		}),
	}
}
