package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	events         *prometheus.CounterVec
	authRejections *prometheus.CounterVec
	reports        *prometheus.CounterVec
	connectedBots  prometheus.Gauge
	latency        *prometheus.HistogramVec
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder registered on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		events: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mt5hub_events_total",
				Help: "Telemetry events received from bots",
			},
			[]string{"kind", "result"},
		),
		authRejections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mt5hub_auth_rejections_total",
				Help: "Rejected bot requests by reason",
			},
			[]string{"reason"},
		),
		reports: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mt5hub_reports_total",
				Help: "Reports handed to the notifier",
			},
			[]string{"kind", "result"},
		),
		connectedBots: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "mt5hub_connected_bots",
				Help: "Bots currently marked connected",
			},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mt5hub_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordEvent counts an inbound event with its outcome (ok, rejected, invalid).
func (r *Recorder) RecordEvent(kind, result string) {
	r.events.WithLabelValues(kind, result).Inc()
}

func (r *Recorder) RecordAuthRejection(reason string) {
	r.authRejections.WithLabelValues(reason).Inc()
}

// RecordReport counts a notify attempt.
func (r *Recorder) RecordReport(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.reports.WithLabelValues(kind, result).Inc()
}

func (r *Recorder) RecordConnectedBots(n int) {
	r.connectedBots.Set(float64(n))
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
