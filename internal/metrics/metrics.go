// Package metrics holds the Prometheus instruments of the query engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Query modes
const (
	ModeMaterialized = "materialized"
	ModeIncremental  = "incremental"
)

// Query outcomes
const (
	OutcomeOK        = "ok"
	OutcomeNoFiles   = "no_files"
	OutcomeInvalid   = "invalid"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Skip reasons
const (
	SkipRecordDecode     = "record_decode"
	SkipInvalidUTF8      = "invalid_utf8"
	SkipInvalidTimestamp = "invalid_timestamp"
)

type Metrics struct {
	QueriesTotal   *prometheus.CounterVec
	QueryDuration  *prometheus.HistogramVec
	FilesDecoded   prometheus.Counter
	RecordsEmitted *prometheus.CounterVec
	RecordsSkipped *prometheus.CounterVec
	DirectoryCache *prometheus.CounterVec // result=hit|miss|stale

	gatherer prometheus.Gatherer
}

// NewMetrics registers the instruments on reg. Passing a fresh
// prometheus.NewRegistry() keeps tests isolated from the global registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mdds_queries_total",
			Help: "Market data queries by mode and outcome",
		}, []string{"mode", "outcome"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mdds_query_duration_seconds",
			Help:    "Query latency from validation to last record",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"mode"}),
		FilesDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mdds_files_decoded_total",
			Help: "Archive files opened for decoding",
		}),
		RecordsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mdds_records_emitted_total",
			Help: "Records returned to clients",
		}, []string{"mode"}),
		RecordsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mdds_records_skipped_total",
			Help: "Records dropped during decoding",
		}, []string{"reason"}),
		DirectoryCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mdds_directory_cache_total",
			Help: "Directory listing cache lookups",
		}, []string{"result"}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.QueriesTotal,
		m.QueryDuration,
		m.FilesDecoded,
		m.RecordsEmitted,
		m.RecordsSkipped,
		m.DirectoryCache,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveQuery(mode, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(mode, outcome).Inc()
	m.QueryDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

func (m *Metrics) FileOpened() {
	if m == nil {
		return
	}
	m.FilesDecoded.Inc()
}

func (m *Metrics) RecordEmitted(mode string) {
	if m == nil {
		return
	}
	m.RecordsEmitted.WithLabelValues(mode).Inc()
}

func (m *Metrics) RecordSkipped(reason string) {
	if m == nil {
		return
	}
	m.RecordsSkipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.DirectoryCache.WithLabelValues(result).Inc()
}
