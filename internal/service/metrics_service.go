package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsSnapshot is a lightweight summary served alongside health checks.
type MetricsSnapshot struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CompilesTotal            uint64    `json:"compiles_total"`
	BudgetOverruns           uint64    `json:"budget_overruns"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	cacheLatency       prometheus.Observer
	cacheWrite         prometheus.Observer
	cacheHitRatio      prometheus.Gauge
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	dbQueryDuration    *prometheus.HistogramVec
	compileDuration    *prometheus.HistogramVec
	candidatesProduced prometheus.Histogram
	budgetOverruns     *prometheus.CounterVec
	sessionEvictions   prometheus.Counter
	archiveJobs        *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	compileCount         uint64
	overrunCount         uint64
	dbQueryCount         uint64
	dbQueryDurationTotal uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bid_session_lookup_seconds",
		Help:    "Latency for bid session lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bid_session_write_seconds",
		Help:    "Latency for bid session writes",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bid_session_hit_ratio",
		Help: "Ratio of session hits to total session lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bid_session_hits_total",
		Help: "Total bid session hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bid_session_misses_total",
		Help: "Total bid session misses",
	})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	compileDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bid_compile_duration_seconds",
		Help:    "Duration of bid compile operations",
		Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 5},
	}, []string{"operation", "heuristic"})

	candidatesProduced := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bid_candidates_produced",
		Help:    "Number of schedule candidates produced per optimize",
		Buckets: []float64{0, 1, 2, 4, 8, 16, 24, 32, 64},
	})

	budgetOverruns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bid_budget_overruns_total",
		Help: "Compile stages that hit the search budget",
	}, []string{"stage"})

	sessionEvictions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bid_session_evictions_total",
		Help: "Bid sessions evicted for idleness or capacity",
	})

	archiveJobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bid_export_archive_jobs_total",
		Help: "Export archive jobs by outcome",
	}, []string{"outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		dbQueryDuration, compileDuration, candidatesProduced, budgetOverruns, sessionEvictions, archiveJobs, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:           registry,
		handler:            handler,
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheLatency:       cacheLatency,
		cacheWrite:         cacheWrite,
		cacheHitRatio:      cacheHitRatio,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		dbQueryDuration:    dbQueryDuration,
		compileDuration:    compileDuration,
		candidatesProduced: candidatesProduced,
		budgetOverruns:     budgetOverruns,
		sessionEvictions:   sessionEvictions,
		archiveJobs:        archiveJobs,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records session hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for session write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordSessionEvictions counts sessions dropped by the memory store.
func (m *MetricsService) RecordSessionEvictions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionEvictions.Add(float64(n))
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
	atomic.AddUint64(&m.dbQueryCount, 1)
	atomic.AddUint64(&m.dbQueryDurationTotal, uint64(duration.Nanoseconds()))
}

// ObserveCompile records one compile operation.
func (m *MetricsService) ObserveCompile(operation string, heuristic bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.compileDuration.WithLabelValues(operation, fmt.Sprintf("%t", heuristic)).Observe(duration.Seconds())
	atomic.AddUint64(&m.compileCount, 1)
}

// ObserveCandidates records how many candidates an optimize produced.
func (m *MetricsService) ObserveCandidates(n int) {
	if m == nil {
		return
	}
	m.candidatesProduced.Observe(float64(n))
}

// RecordBudgetOverrun counts a compile stage that ran out of time.
func (m *MetricsService) RecordBudgetOverrun(stage string) {
	if m == nil {
		return
	}
	m.budgetOverruns.WithLabelValues(stage).Inc()
	atomic.AddUint64(&m.overrunCount, 1)
}

// RecordArchiveJob counts an export archive job outcome: queued, dropped,
// archived, retried or failed.
func (m *MetricsService) RecordArchiveJob(outcome string) {
	if m == nil {
		return
	}
	m.archiveJobs.WithLabelValues(outcome).Inc()
}

// Snapshot returns aggregated metrics for the health endpoint.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	dbCount := atomic.LoadUint64(&m.dbQueryCount)
	dbDuration := atomic.LoadUint64(&m.dbQueryDurationTotal)

	var cacheRatio float64
	totalLookups := hits + misses
	if totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	var avgDBMs float64
	if dbCount > 0 {
		avgDBMs = float64(dbDuration) / float64(dbCount) / float64(time.Millisecond)
	}

	return MetricsSnapshot{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CompilesTotal:            atomic.LoadUint64(&m.compileCount),
		BudgetOverruns:           atomic.LoadUint64(&m.overrunCount),
		DBQueryCount:             dbCount,
		AverageDBQueryDurationMs: avgDBMs,
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
