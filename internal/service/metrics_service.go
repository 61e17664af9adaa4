package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels used by the domain counters.
const (
	OutcomeSuccess      = "success"
	OutcomeFailure      = "failure"
	OutcomeComputed     = "computed"
	OutcomeInsufficient = "insufficient"
)

// MetricsService encapsulates Prometheus instrumentation. All methods are safe on a nil receiver.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheLookups    *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	gradesComputed  prometheus.Counter
	aggregates      *prometheus.CounterVec
	promotions      *prometheus.CounterVec
}

// NewMetricsService registers HTTP, cache, job and grading collectors on a private registry.
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
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Cache lookups by result",
	}, []string{"result"})

	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "job_duration_seconds",
		Help:    "Duration of background jobs",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60},
	}, []string{"type", "outcome"})

	gradesComputed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "grades_computed_total",
		Help: "Composite scores computed and banded",
	})

	aggregates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aggregates_computed_total",
		Help: "BECE aggregates computed by outcome",
	}, []string{"outcome"})

	promotions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "promotions_total",
		Help: "Students processed by promotion or graduation",
	}, []string{"kind", "outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheLookups, jobDuration,
		gradesComputed, aggregates, promotions, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheLookups:    cacheLookups,
		jobDuration:     jobDuration,
		gradesComputed:  gradesComputed,
		aggregates:      aggregates,
		promotions:      promotions,
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

// Registry returns the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveJob records how long a background job took.
func (m *MetricsService) ObserveJob(jobType string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.jobDuration.WithLabelValues(jobType, outcome).Observe(duration.Seconds())
}

// AddGradesComputed counts banded composite scores.
func (m *MetricsService) AddGradesComputed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.gradesComputed.Add(float64(n))
}

// RecordAggregate counts a BECE aggregate; nil aggregates count as insufficient.
func (m *MetricsService) RecordAggregate(aggregate *int) {
	if m == nil {
		return
	}
	if aggregate == nil {
		m.aggregates.WithLabelValues(OutcomeInsufficient).Inc()
		return
	}
	m.aggregates.WithLabelValues(OutcomeComputed).Inc()
}

// RecordProgression counts students processed by a promotion or graduation.
func (m *MetricsService) RecordProgression(kind string, succeeded, failed int) {
	if m == nil {
		return
	}
	if succeeded > 0 {
		m.promotions.WithLabelValues(kind, OutcomeSuccess).Add(float64(succeeded))
	}
	if failed > 0 {
		m.promotions.WithLabelValues(kind, OutcomeFailure).Add(float64(failed))
	}
}
