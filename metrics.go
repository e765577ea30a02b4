package jirapo

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector exports Prometheus metrics for the request lifecycle,
// retries, batch fetches, pagination and the optional cache/breaker. All
// record methods are nil-receiver safe so instrumentation points need no
// guards.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	retriesTotal *prometheus.CounterVec

	batchItemsTotal *prometheus.CounterVec
	pagesTotal      prometheus.Counter

	cacheHits    *prometheus.CounterVec
	cacheMisses  *prometheus.CounterVec
	breakerState prometheus.Gauge
}

// NewMetricsCollector creates a collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegisterer(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegisterer creates a collector on the supplied
// registerer; tests pass a fresh registry to avoid duplicate registration.
func NewMetricsCollectorWithRegisterer(reg prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "jirapo_requests_total",
				Help: "Total number of HTTP requests made",
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jirapo_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestsInFlight: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "jirapo_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
			[]string{"method", "endpoint"},
		),
		retriesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "jirapo_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"method", "endpoint", "attempt"},
		),
		batchItemsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "jirapo_batch_items_total",
				Help: "Batch items fetched, by outcome (success or failed)",
			},
			[]string{"outcome"},
		),
		pagesTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "jirapo_pages_total",
				Help: "Total number of pages fetched by FetchAll",
			},
		),
		cacheHits: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "jirapo_cache_hits_total",
				Help: "Total number of response cache hits",
			},
			[]string{"method", "endpoint"},
		),
		cacheMisses: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "jirapo_cache_misses_total",
				Help: "Total number of response cache misses",
			},
			[]string{"method", "endpoint"},
		),
		breakerState: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "jirapo_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
		),
	}
}

// RecordRequest records final request count and duration.
func (mc *MetricsCollector) RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}
	code := strconv.Itoa(statusCode)
	mc.requestsTotal.WithLabelValues(method, code, endpoint).Inc()
	mc.requestDuration.WithLabelValues(method, code, endpoint).Observe(duration.Seconds())
}

// RecordRequestStart increments the in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(method, endpoint string) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(method, endpoint).Inc()
}

// RecordRequestEnd decrements the in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(method, endpoint string) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(method, endpoint).Dec()
}

// RecordRetry counts one retry attempt.
func (mc *MetricsCollector) RecordRetry(method, endpoint string, attempt int) {
	if mc == nil {
		return
	}
	mc.retriesTotal.WithLabelValues(method, endpoint, strconv.Itoa(attempt)).Inc()
}

// RecordBatchItem counts one finished batch item by outcome.
func (mc *MetricsCollector) RecordBatchItem(outcome string) {
	if mc == nil {
		return
	}
	mc.batchItemsTotal.WithLabelValues(outcome).Inc()
}

// RecordPage counts one fetched page.
func (mc *MetricsCollector) RecordPage() {
	if mc == nil {
		return
	}
	mc.pagesTotal.Inc()
}

// RecordCacheHit counts a response cache hit.
func (mc *MetricsCollector) RecordCacheHit(method, endpoint string) {
	if mc == nil {
		return
	}
	mc.cacheHits.WithLabelValues(method, endpoint).Inc()
}

// RecordCacheMiss counts a response cache miss.
func (mc *MetricsCollector) RecordCacheMiss(method, endpoint string) {
	if mc == nil {
		return
	}
	mc.cacheMisses.WithLabelValues(method, endpoint).Inc()
}

// RecordBreakerState sets the breaker state gauge.
func (mc *MetricsCollector) RecordBreakerState(state BreakerState) {
	if mc == nil {
		return
	}
	mc.breakerState.Set(float64(state))
}
