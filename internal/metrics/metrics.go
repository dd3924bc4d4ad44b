// Package metrics holds the Prometheus collectors of the import service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "recipeimport"

// Metrics is the set of collectors registered on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	importsTotal        *prometheus.CounterVec
	jobsFinished        *prometheus.CounterVec
	streamsActive       prometheus.Gauge
	transcriptionsTotal *prometheus.CounterVec
	llmExtractions      *prometheus.CounterVec
	pipelineSeconds     *prometheus.HistogramVec
}

// New creates Metrics with Go runtime and process collectors attached.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		importsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_total",
			Help:      "Imports accepted, by platform",
		}, []string{"platform"}),
		jobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Extraction jobs that reached a terminal state, by status",
		}, []string{"status"}),
		streamsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Progress streams currently open",
		}),
		transcriptionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcriptions_total",
			Help:      "Audio transcription attempts, by result",
		}, []string{"result"}),
		llmExtractions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_extractions_total",
			Help:      "Structured extractions, by mode (llm or fallback)",
		}, []string{"mode"}),
		pipelineSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_seconds",
			Help:      "Wall-clock duration of the background extraction, by platform",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"platform"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ImportAccepted(platform string) {
	if m == nil {
		return
	}
	m.importsTotal.WithLabelValues(platform).Inc()
}

func (m *Metrics) JobFinished(status string) {
	if m == nil {
		return
	}
	m.jobsFinished.WithLabelValues(status).Inc()
}

func (m *Metrics) StreamOpened() {
	if m == nil {
		return
	}
	m.streamsActive.Inc()
}

func (m *Metrics) StreamClosed() {
	if m == nil {
		return
	}
	m.streamsActive.Dec()
}

// Transcription records a transcription attempt; result is "ok", "error"
// or "skipped".
func (m *Metrics) Transcription(result string) {
	if m == nil {
		return
	}
	m.transcriptionsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) StructuredExtraction(mode string) {
	if m == nil {
		return
	}
	m.llmExtractions.WithLabelValues(mode).Inc()
}

func (m *Metrics) PipelineDuration(platform string, d time.Duration) {
	if m == nil {
		return
	}
	m.pipelineSeconds.WithLabelValues(platform).Observe(d.Seconds())
}
