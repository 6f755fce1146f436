// Package metrics defines the Prometheus collectors of the service and the
// in-process summary of document processing times.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
// Each instance owns its registry so engines built in tests do not collide.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestsInFlight  prometheus.Gauge
	DocumentsProcessed    prometheus.Counter
	DocumentsRejected     *prometheus.CounterVec
	ProcessingDuration    prometheus.Histogram
	RecalculationsTotal   *prometheus.CounterVec
	RecalculationDuration prometheus.Histogram
	HuffmanEncodesTotal   prometheus.Counter
	AggregateReadsTotal   *prometheus.CounterVec
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, route, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		DocumentsProcessed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docstats_documents_processed_total",
				Help: "Total documents tokenized, scored and stored.",
			},
		),
		DocumentsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docstats_documents_rejected_total",
				Help: "Total uploads rejected by reason.",
			},
			[]string{"reason"},
		),
		ProcessingDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docstats_document_processing_seconds",
				Help:    "Time to process one uploaded document including recalculation.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
		),
		RecalculationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docstats_recalculations_total",
				Help: "Total collection IDF recalculations by status.",
			},
			[]string{"status"},
		),
		RecalculationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docstats_recalculation_seconds",
				Help:    "Collection IDF recalculation latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
		HuffmanEncodesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docstats_huffman_encodes_total",
				Help: "Total Huffman encodings produced.",
			},
		),
		AggregateReadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docstats_aggregate_reads_total",
				Help: "Collection aggregate reads by whether the computation was shared.",
			},
			[]string{"shared"},
		),
	}

	m.registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.DocumentsProcessed,
		m.DocumentsRejected,
		m.ProcessingDuration,
		m.RecalculationsTotal,
		m.RecalculationDuration,
		m.HuffmanEncodesTotal,
		m.AggregateReadsTotal,
	)

	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus scrape HTTP handler for this instance.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
