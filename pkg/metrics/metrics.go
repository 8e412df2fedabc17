// Package metrics defines the Prometheus collectors for the indexer backend
// and the reindex orchestrator, and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors. Helper methods are safe on a nil *Metrics so
// components can run without instrumentation.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	ActionDuration       *prometheus.HistogramVec
	ItemsIndexedTotal    *prometheus.CounterVec
	TermsWrittenTotal    *prometheus.CounterVec
	IndexErrorsTotal     *prometheus.CounterVec
	ReindexRunsTotal     *prometheus.CounterVec
	ReindexProgress      *prometheus.GaugeVec
	ReindexStage         *prometheus.GaugeVec
	ContentEventsTotal   *prometheus.CounterVec
	CacheKeysInvalidated prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg uses
// the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "searcher_http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "searcher_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 120},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "searcher_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		ActionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "searcher_action_duration_seconds",
				Help:    "Reindex action round-trip latency by action and outcome.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 120},
			},
			[]string{"action", "outcome"},
		),
		ItemsIndexedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "searcher_items_indexed_total",
				Help: "Content items indexed by content type.",
			},
			[]string{"type"},
		),
		TermsWrittenTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "searcher_terms_written_total",
				Help: "Index entries written by content type.",
			},
			[]string{"type"},
		),
		IndexErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "searcher_index_errors_total",
				Help: "Indexing failures by content type and error code.",
			},
			[]string{"type", "code"},
		),
		ReindexRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "searcher_reindex_runs_total",
				Help: "Finished reindex runs by outcome (complete, aborted, cancelled).",
			},
			[]string{"outcome"},
		),
		ReindexProgress: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "searcher_reindex_progress_percent",
				Help: "Current reindex progress (scope=coarse|fine).",
			},
			[]string{"scope"},
		),
		ReindexStage: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "searcher_reindex_stage",
				Help: "1 for the stage the running reindex is in, 0 otherwise.",
			},
			[]string{"stage"},
		),
		ContentEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "searcher_content_events_total",
				Help: "Content change events consumed by operation and result.",
			},
			[]string{"op", "result"},
		),
		CacheKeysInvalidated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "searcher_cache_keys_invalidated_total",
				Help: "Search cache keys deleted after index changes.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.ActionDuration,
		m.ItemsIndexedTotal,
		m.TermsWrittenTotal,
		m.IndexErrorsTotal,
		m.ReindexRunsTotal,
		m.ReindexProgress,
		m.ReindexStage,
		m.ContentEventsTotal,
		m.CacheKeysInvalidated,
	)
	return m
}

func (m *Metrics) ObserveAction(action, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ActionDuration.WithLabelValues(action, outcome).Observe(d.Seconds())
}

func (m *Metrics) ItemIndexed(contentType string, terms int) {
	if m == nil {
		return
	}
	m.ItemsIndexedTotal.WithLabelValues(contentType).Inc()
	m.TermsWrittenTotal.WithLabelValues(contentType).Add(float64(terms))
}

func (m *Metrics) IndexError(contentType string, code int) {
	if m == nil {
		return
	}
	m.IndexErrorsTotal.WithLabelValues(contentType, strconv.Itoa(code)).Inc()
}

func (m *Metrics) RunFinished(outcome string) {
	if m == nil {
		return
	}
	m.ReindexRunsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetProgress(coarse, fine int) {
	if m == nil {
		return
	}
	m.ReindexProgress.WithLabelValues("coarse").Set(float64(coarse))
	m.ReindexProgress.WithLabelValues("fine").Set(float64(fine))
}

// SetStage marks stage as current and clears the previous one.
func (m *Metrics) SetStage(prev, stage string) {
	if m == nil {
		return
	}
	if prev != "" {
		m.ReindexStage.WithLabelValues(prev).Set(0)
	}
	m.ReindexStage.WithLabelValues(stage).Set(1)
}

func (m *Metrics) ContentEvent(op, result string) {
	if m == nil {
		return
	}
	m.ContentEventsTotal.WithLabelValues(op, result).Inc()
}

func (m *Metrics) CacheInvalidated(n int64) {
	if m == nil {
		return
	}
	m.CacheKeysInvalidated.Add(float64(n))
}

// Handler returns the scrape handler for g, or the default gatherer when g
// is nil.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
