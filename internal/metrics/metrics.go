// Package metrics exposes the Prometheus collectors of the API and the engine.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	CacheLayerMemory = "memory"
	CacheLayerValkey = "valkey"

	StepSnapshots = "snapshots"
	StepCurves    = "curves"
	StepCustomers = "customers"

	IngestOK      = "ok"
	IngestInvalid = "invalid"
	IngestFailed  = "failed"
)

// EngineMetrics tracks request latency, analysis cost and pipeline output
type EngineMetrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	analysis        *prometheus.HistogramVec
	decisions       *prometheus.CounterVec
	rebuildRows     *prometheus.GaugeVec
	rebuildDuration *prometheus.HistogramVec
	cacheLookups    *prometheus.CounterVec
	ingest          *prometheus.CounterVec
}

var (
	engineOnce    sync.Once
	engineMetrics *EngineMetrics
)

// Engine returns the process-wide collectors registered on the default registry
func Engine() *EngineMetrics {
	engineOnce.Do(func() {
		engineMetrics = newEngineMetrics(prometheus.DefaultRegisterer)
	})
	return engineMetrics
}

func newEngineMetrics(registerer prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pacer_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pacer_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		analysis: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pacer_analysis_duration_seconds",
			Help:    "Time spent computing event and portfolio analyses.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pacer_decisions_total",
			Help: "Recommended actions emitted by freshly computed analyses.",
		}, []string{"decision"}),
		rebuildRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pacer_rebuild_rows",
			Help: "Rows written by the last run of each rebuild step.",
		}, []string{"step"}),
		rebuildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pacer_rebuild_duration_seconds",
			Help:    "Duration of each rebuild step.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"step"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pacer_cache_lookups_total",
			Help: "Analysis cache lookups by layer and result.",
		}, []string{"layer", "result"}),
		ingest: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pacer_ingest_messages_total",
			Help: "Ingest feed messages by subject and outcome.",
		}, []string{"subject", "outcome"}),
	}

	registerer.MustRegister(
		m.requests, m.requestDuration, m.analysis, m.decisions,
		m.rebuildRows, m.rebuildDuration, m.cacheLookups, m.ingest,
	)
	return m
}

func (m *EngineMetrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *EngineMetrics) ObserveAnalysis(kind string, d time.Duration) {
	m.analysis.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *EngineMetrics) CountDecision(decision string) {
	m.decisions.WithLabelValues(decision).Inc()
}

func (m *EngineMetrics) ObserveRebuild(step string, rows int, d time.Duration) {
	m.rebuildRows.WithLabelValues(step).Set(float64(rows))
	m.rebuildDuration.WithLabelValues(step).Observe(d.Seconds())
}

func (m *EngineMetrics) CacheLookup(layer string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(layer, result).Inc()
}

func (m *EngineMetrics) CountIngest(subject, outcome string) {
	m.ingest.WithLabelValues(subject, outcome).Inc()
}

// ObserveRequest records one HTTP request on the default collectors
func ObserveRequest(method, route string, status int, d time.Duration) {
	Engine().ObserveRequest(method, route, status, d)
}
