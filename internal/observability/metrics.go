// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	SamplesReceived   *prometheus.CounterVec
	SamplesRejected   *prometheus.CounterVec
	SamplesDropped    *prometheus.CounterVec
	ReorderBufferSize prometheus.Gauge

	// Assessment metrics
	AssessmentsTotal  *prometheus.CounterVec
	AssessmentLatency prometheus.Histogram
	ModelLatency      *prometheus.HistogramVec
	DegradedInputs    *prometheus.CounterVec
	SafetyScore       prometheus.Histogram
	BonusGrantsTotal  prometheus.Counter
	TrackedEntities   prometheus.Gauge

	// Alert metrics
	AlertIntentsTotal *prometheus.CounterVec
	SinkErrors        *prometheus.CounterVec

	// Zone metrics
	ZonesLoaded      prometheus.Gauge
	ZoneIndexVersion prometheus.Gauge
	ZoneReloadErrors prometheus.Counter

	// Model metrics
	ModelReady       *prometheus.GaugeVec
	TrainingRuns     *prometheus.CounterVec
	TrainingDuration prometheus.Histogram

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulIngestion prometheus.Gauge
	LastSuccessfulTraining  prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg uses the default Prometheus registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "tourist_safety"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		// Ingestion metrics
		SamplesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "samples_received_total",
			Help:      "Total number of location samples received by source",
		}, []string{"source"}),
		SamplesRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "samples_rejected_total",
			Help:      "Total number of location samples rejected by reason",
		}, []string{"reason"}),
		SamplesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "samples_dropped_total",
			Help:      "Total number of samples dropped before assessment by reason",
		}, []string{"reason"}),
		ReorderBufferSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "reorder_buffer_size",
			Help:      "Current number of samples held in the reorder buffer",
		}),

		// Assessment metrics
		AssessmentsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "assessments_total",
			Help:      "Total number of safety assessments by severity",
		}, []string{"severity"}),
		AssessmentLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "assessment_latency_seconds",
			Help:      "End-to-end assessment latency in seconds",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5},
		}),
		ModelLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "model_latency_seconds",
			Help:      "Model inference latency in seconds",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}, []string{"model"}),
		DegradedInputs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "degraded_inputs_total",
			Help:      "Total number of assessments with a degraded input by flag",
		}, []string{"flag"}),
		SafetyScore: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "safety_score",
			Help:      "Distribution of fused safety scores",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),
		BonusGrantsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "bonus_grants_total",
			Help:      "Total number of safe-duration bonuses granted",
		}),
		TrackedEntities: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "tracked_entities",
			Help:      "Number of entities with a live feature window",
		}),

		// Alert metrics
		AlertIntentsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "intents_total",
			Help:      "Total number of alert intents emitted by type and severity",
		}, []string{"type", "severity"}),
		SinkErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "sink_errors_total",
			Help:      "Total number of intent sink failures by sink",
		}, []string{"sink"}),

		// Zone metrics
		ZonesLoaded: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "zones",
			Name:      "loaded",
			Help:      "Number of zones in the current index snapshot",
		}),
		ZoneIndexVersion: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "zones",
			Name:      "index_version",
			Help:      "Version of the current zone index snapshot",
		}),
		ZoneReloadErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "zones",
			Name:      "reload_errors_total",
			Help:      "Total number of failed zone reloads",
		}),

		// Model metrics
		ModelReady: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "models",
			Name:      "ready",
			Help:      "1 if the model is fitted, 0 otherwise",
		}, []string{"model"}),
		TrainingRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "models",
			Name:      "training_runs_total",
			Help:      "Total number of training runs by status",
		}, []string{"status"}),
		TrainingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "models",
			Name:      "training_duration_seconds",
			Help:      "Training run duration in seconds",
			Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 120},
		}),

		// Database metrics
		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulIngestion: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_ingestion_timestamp",
			Help:      "Unix timestamp of last successfully assessed sample",
		}),
		LastSuccessfulTraining: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_training_timestamp",
			Help:      "Unix timestamp of last successful training run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordSampleReceived increments the samples received counter.
func RecordSampleReceived(source string) {
	DefaultMetrics.SamplesReceived.WithLabelValues(source).Inc()
}

// RecordSampleRejected records a sample that failed validation or ordering.
func RecordSampleRejected(reason string) {
	DefaultMetrics.SamplesRejected.WithLabelValues(reason).Inc()
}

// RecordSampleDropped records a sample dropped by the ingestion runner.
func RecordSampleDropped(reason string) {
	DefaultMetrics.SamplesDropped.WithLabelValues(reason).Inc()
}

// UpdateReorderBuffer updates the reorder buffer gauge.
func UpdateReorderBuffer(n int) {
	DefaultMetrics.ReorderBufferSize.Set(float64(n))
}

// RecordAssessment records a completed assessment.
func RecordAssessment(severity string, score int, seconds float64, degraded []string, bonus bool) {
	DefaultMetrics.AssessmentsTotal.WithLabelValues(severity).Inc()
	DefaultMetrics.AssessmentLatency.Observe(seconds)
	DefaultMetrics.SafetyScore.Observe(float64(score))
	for _, d := range degraded {
		DefaultMetrics.DegradedInputs.WithLabelValues(d).Inc()
	}
	if bonus {
		DefaultMetrics.BonusGrantsTotal.Inc()
	}
}

// RecordModelLatency records model inference latency.
func RecordModelLatency(model string, seconds float64) {
	DefaultMetrics.ModelLatency.WithLabelValues(model).Observe(seconds)
}

// UpdateTrackedEntities updates the tracked entities gauge.
func UpdateTrackedEntities(n int) {
	DefaultMetrics.TrackedEntities.Set(float64(n))
}

// RecordIntent increments the alert intents counter.
func RecordIntent(alertType, severity string) {
	DefaultMetrics.AlertIntentsTotal.WithLabelValues(alertType, severity).Inc()
}

// RecordSinkError records an intent sink failure.
func RecordSinkError(sink string) {
	DefaultMetrics.SinkErrors.WithLabelValues(sink).Inc()
}

// RecordZoneReload records a zone reload outcome.
func RecordZoneReload(zones int, version uint64, err error) {
	if err != nil {
		DefaultMetrics.ZoneReloadErrors.Inc()
		return
	}
	DefaultMetrics.ZonesLoaded.Set(float64(zones))
	DefaultMetrics.ZoneIndexVersion.Set(float64(version))
}

// UpdateModelReady sets the readiness gauge for a model.
func UpdateModelReady(model string, ready bool) {
	v := 0.0
	if ready {
		v = 1
	}
	DefaultMetrics.ModelReady.WithLabelValues(model).Set(v)
}

// RecordTrainingRun records a training run.
func RecordTrainingRun(status string, durationSeconds float64) {
	DefaultMetrics.TrainingRuns.WithLabelValues(status).Inc()
	DefaultMetrics.TrainingDuration.Observe(durationSeconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
