package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Session outcomes.
const (
	OutcomeComplete  = "complete"
	OutcomeFailed    = "failed"
	OutcomeAbandoned = "abandoned"
)

// Metrics contains all Prometheus metrics for the relay. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Connection metrics
	SessionsActive prometheus.Gauge
	FramesReceived prometheus.Counter

	// Pipeline metrics
	SessionsTotal *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	StageFailures *prometheus.CounterVec
	AudioBytes    prometheus.Histogram
}

// New creates the relay metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_sessions_active",
			Help: "Number of open audio websocket sessions",
		}),
		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_frames_received_total",
			Help: "Total number of inbound websocket frames",
		}),
		SessionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_sessions_total",
			Help: "Sessions that ran the pipeline, by outcome",
		}, []string{"outcome"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		StageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_stage_failures_total",
			Help: "Pipeline failures by error kind",
		}, []string{"kind"}),
		AudioBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_audio_bytes",
			Help:    "Size of captured audio handed to the transcoder",
			Buckets: prometheus.ExponentialBuckets(4096, 4, 8),
		}),
	}
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

func (m *Metrics) FrameReceived() {
	if m == nil {
		return
	}
	m.FramesReceived.Inc()
}

// RecordOutcome counts one finished pipeline run.
func (m *Metrics) RecordOutcome(outcome string) {
	if m == nil {
		return
	}
	m.SessionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveStage records how long a stage took, failed or not.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) RecordFailure(kind string) {
	if m == nil {
		return
	}
	m.StageFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveAudio(size int) {
	if m == nil {
		return
	}
	m.AudioBytes.Observe(float64(size))
}
