// Package metrics defines the Prometheus collectors for indexing and search
// and the HTTP handler that exposes them.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors. A nil *Metrics records nothing.
type Metrics struct {
	DocsIndexedTotal     prometheus.Counter
	SegmentsFlushedTotal prometheus.Counter
	IndexCommitsTotal    *prometheus.CounterVec
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        prometheus.Histogram
	IndexDocuments       prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them on reg. With a nil reg a
// private registry is used.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		DocsIndexedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docs_indexed_total",
			Help: "Total documents added to the index.",
		}),
		SegmentsFlushedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "segments_flushed_total",
			Help: "Total segments written by index builds.",
		}),
		IndexCommitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "index_commits_total",
			Help: "Index commits by status (ok, error).",
		}, []string{"status"}),
		SearchQueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "search_queries_total",
			Help: "Search queries by result (hit, zero_result, syntax_error, error).",
		}, []string{"result"}),
		SearchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "search_latency_seconds",
			Help:    "Search latency in seconds.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		IndexDocuments: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "index_documents",
			Help: "Documents in the committed index being served.",
		}),
		gatherer: reg,
	}
	reg.MustRegister(
		m.DocsIndexedTotal,
		m.SegmentsFlushedTotal,
		m.IndexCommitsTotal,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.IndexDocuments,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveSearch records one query outcome and its latency.
func (m *Metrics) ObserveSearch(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.SearchQueriesTotal.WithLabelValues(result).Inc()
	m.SearchLatency.Observe(d.Seconds())
}

// ObserveBuild records a finished index build.
func (m *Metrics) ObserveBuild(docs, segments int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.IndexCommitsTotal.WithLabelValues("error").Inc()
		return
	}
	m.DocsIndexedTotal.Add(float64(docs))
	m.SegmentsFlushedTotal.Add(float64(segments))
	m.IndexCommitsTotal.WithLabelValues("ok").Inc()
}

// SetDocuments records the size of the served index.
func (m *Metrics) SetDocuments(n int) {
	if m == nil {
		return
	}
	m.IndexDocuments.Set(float64(n))
}
