package metric

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric groups the tracker and detector collectors. A nil *Metric is valid
// and records nothing, so tests and tools can run without a registry.
type Metric struct {
	mu sync.Mutex

	procTimeHistogram *prometheus.HistogramVec
	procTime          *prometheus.GaugeVec
	rttTimeHistogram  *prometheus.HistogramVec
	rttTimes          *prometheus.GaugeVec
	frames            *prometheus.CounterVec
	transitions       *prometheus.CounterVec
	detections        prometheus.Histogram
	missCount         prometheus.Gauge
	sentDataBytes     *prometheus.HistogramVec
}

// RegisterMetrics creates the collectors and registers them with reg.
// Nil bucket slices fall back to prometheus.DefBuckets.
func RegisterMetrics(reg prometheus.Registerer, sentDataBuckets, procTimeBuckets, rttTimeBuckets []float64) *Metric {
	if sentDataBuckets == nil {
		sentDataBuckets = prometheus.DefBuckets
	}
	if procTimeBuckets == nil {
		procTimeBuckets = prometheus.DefBuckets
	}
	if rttTimeBuckets == nil {
		rttTimeBuckets = prometheus.DefBuckets
	}

	m := &Metric{
		procTimeHistogram: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "processing_time_ms_histogram",
				Help:    "Histogram of processing times.",
				Buckets: procTimeBuckets,
			},
			[]string{"stage"},
		),
		procTime: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "processing_time_ms",
				Help: "Gauge of processing times.",
			},
			[]string{"stage"},
		),
		rttTimeHistogram: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rtt_times_ms_histogram",
				Help:    "Histogram of round-trip times.",
				Buckets: rttTimeBuckets,
			},
			[]string{"service"},
		),
		rttTimes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rtt_times_ms",
				Help: "Gauge of round-trip times for different services.",
			},
			[]string{"service"},
		),
		frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_frames_total",
				Help: "Frames processed, by tracker mode after the update.",
			},
			[]string{"mode"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_transitions_total",
				Help: "Tracker state transitions by kind.",
			},
			[]string{"kind"},
		),
		detections: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "detections_per_frame",
				Help:    "Histogram of detection set sizes.",
				Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
			},
		),
		missCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tracker_miss_count",
				Help: "Consecutive frames the locked target has not been re-matched.",
			},
		),
		sentDataBytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sent_data_bytes_histogram",
				Help:    "Histogram of sent data bytes.",
				Buckets: sentDataBuckets,
			},
			[]string{"service"},
		),
	}

	reg.MustRegister(
		m.procTimeHistogram,
		m.procTime,
		m.rttTimeHistogram,
		m.rttTimes,
		m.frames,
		m.transitions,
		m.detections,
		m.missCount,
		m.sentDataBytes,
	)
	return m
}

func (m *Metric) AddProcessingTime(stage string, time float64) {
	if m == nil {
		return
	}
	m.lock()
	defer m.unlock()
	m.procTimeHistogram.WithLabelValues(stage).Observe(time)
	m.procTime.WithLabelValues(stage).Set(time)
}

func (m *Metric) AddRttTime(s string, time float64) {
	if m == nil {
		return
	}
	m.lock()
	defer m.unlock()
	m.rttTimeHistogram.WithLabelValues(s).Observe(time)
	m.rttTimes.WithLabelValues(s).Set(time)
}

func (m *Metric) AddSentDataBytes(s string, bytes float64) {
	if m == nil {
		return
	}
	m.lock()
	defer m.unlock()
	m.sentDataBytes.WithLabelValues(s).Observe(bytes)
}

// AddFrame records one processed frame with the mode the tracker ended in,
// the size of its detection set and the current miss count.
func (m *Metric) AddFrame(mode string, detections int, misses int) {
	if m == nil {
		return
	}
	m.lock()
	defer m.unlock()
	m.frames.WithLabelValues(mode).Inc()
	m.detections.Observe(float64(detections))
	m.missCount.Set(float64(misses))
}

func (m *Metric) AddTransition(kind string) {
	if m == nil {
		return
	}
	m.lock()
	defer m.unlock()
	m.transitions.WithLabelValues(kind).Inc()
}

func (m *Metric) lock() {
	m.mu.Lock()
}

func (m *Metric) unlock() {
	m.mu.Unlock()
}
