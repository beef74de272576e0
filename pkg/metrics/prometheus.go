package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	fetches    *prometheus.CounterVec
	retries    *prometheus.CounterVec
	legs       *prometheus.CounterVec
	days       *prometheus.CounterVec
	indexRuns  *prometheus.CounterVec
	indexValue *prometheus.GaugeVec
	latency    *prometheus.HistogramVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder on reg. Tests pass a fresh registry.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		fetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volpull_provider_fetches_total",
				Help: "Option chain fetches by result",
			},
			[]string{"result"},
		),
		retries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volpull_provider_retries_total",
				Help: "Provider retries by reason",
			},
			[]string{"reason"},
		),
		legs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volpull_ingest_legs_total",
				Help: "Ingestion legs by outcome",
			},
			[]string{"outcome"},
		),
		days: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volpull_ingest_days_total",
				Help: "Ingested trading days by outcome",
			},
			[]string{"outcome"},
		),
		indexRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volpull_index_computations_total",
				Help: "Index computations by type and outcome",
			},
			[]string{"index_type", "outcome"},
		),
		indexValue: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "volpull_index_value",
				Help: "Last computed index value",
			},
			[]string{"symbol", "index_type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "volpull_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordFetch records a provider fetch ("ok", "empty", "error").
func (r *Recorder) RecordFetch(result string) {
	r.fetches.WithLabelValues(result).Inc()
}

// RecordRetry records a retried provider request.
func (r *Recorder) RecordRetry(reason string) {
	r.retries.WithLabelValues(reason).Inc()
}

func (r *Recorder) RecordLeg(outcome string) {
	r.legs.WithLabelValues(outcome).Inc()
}

func (r *Recorder) RecordDay(outcome string) {
	r.days.WithLabelValues(outcome).Inc()
}

// RecordIndex records one index computation outcome.
func (r *Recorder) RecordIndex(indexType, outcome string) {
	r.indexRuns.WithLabelValues(indexType, outcome).Inc()
}

// RecordIndexValue records the latest computed value.
func (r *Recorder) RecordIndexValue(symbol, indexType string, value float64) {
	r.indexValue.WithLabelValues(symbol, indexType).Set(value)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
