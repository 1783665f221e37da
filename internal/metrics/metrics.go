// Package metrics exposes Prometheus collectors for the prediction service.
package metrics

import (
	"net/http"

	"github.com/fidde/agripredict/internal/artifacts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prediction and submission outcomes used as label values.
const (
	OutcomeOK         = "ok"
	OutcomeInvalid    = "invalid"
	OutcomeNotReady   = "not_ready"
	OutcomeMismatch   = "mismatch"
	OutcomeUnmapped   = "unmapped"
	OutcomeError      = "error"
	OutcomePersistErr = "persistence_error"
)

// Metrics holds the service collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	predictions        *prometheus.CounterVec
	predictionDuration prometheus.Histogram
	unorderedQuotes    prometheus.Counter
	unmapped           *prometheus.CounterVec
	observations       *prometheus.CounterVec
	mirrorErrors       prometheus.Counter
	artifactLoaded     *prometheus.GaugeVec
	pipelineReady      prometheus.Gauge
}

// New creates and registers the collectors.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		predictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "predictions_total",
				Help:      "Prediction requests by outcome",
			},
			[]string{"outcome"},
		),
		predictionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "prediction_duration_seconds",
				Help:      "Time spent building, transforming and evaluating one prediction",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1},
			},
		),
		unorderedQuotes: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unordered_quotes_total",
				Help:      "Predictions where min <= modal <= max did not hold",
			},
		),
		unmapped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unmapped_categories_total",
				Help:      "Validated categorical values with no feature column",
			},
			[]string{"field", "value"},
		),
		observations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "observations_total",
				Help:      "Actual-price submissions by outcome",
			},
			[]string{"outcome"},
		),
		mirrorErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mirror_errors_total",
				Help:      "Failed writes to the secondary observation store",
			},
		),
		artifactLoaded: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "artifact_loaded",
				Help:      "1 if the artifact loaded successfully",
			},
			[]string{"artifact"},
		),
		pipelineReady: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pipeline_ready",
				Help:      "1 if all prediction artifacts are loaded",
			},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObservePrediction records one prediction outcome and its duration.
func (m *Metrics) ObservePrediction(outcome string, seconds float64) {
	m.predictions.WithLabelValues(outcome).Inc()
	if outcome == OutcomeOK {
		m.predictionDuration.Observe(seconds)
	}
}

// ObserveUnordered counts a quote violating min <= modal <= max.
func (m *Metrics) ObserveUnordered() {
	m.unorderedQuotes.Inc()
}

// ObserveUnmapped counts an unmapped categorical value.
func (m *Metrics) ObserveUnmapped(field, value string) {
	m.unmapped.WithLabelValues(field, value).Inc()
}

// ObserveSubmission records one submission outcome.
func (m *Metrics) ObserveSubmission(outcome string) {
	m.observations.WithLabelValues(outcome).Inc()
}

// ObserveMirrorError counts a failed secondary write. The error is ignored;
// the signature matches the storage mirror hook.
func (m *Metrics) ObserveMirrorError(error) {
	m.mirrorErrors.Inc()
}

// ObserveBundle publishes artifact load state.
func (m *Metrics) ObserveBundle(b *artifacts.Bundle) {
	for _, st := range b.Statuses() {
		v := 0.0
		if st.Loaded {
			v = 1
		}
		m.artifactLoaded.WithLabelValues(st.Name).Set(v)
	}
	if b.Ready() {
		m.pipelineReady.Set(1)
	} else {
		m.pipelineReady.Set(0)
	}
}
