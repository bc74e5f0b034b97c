// Package metrics provides Prometheus metrics for the similarity pipeline and query service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Pipeline metrics
	pipelineStageDuration *prometheus.HistogramVec
	pipelineRuns          *prometheus.CounterVec
	recordsCleaned        *prometheus.CounterVec
	recordsFiltered       *prometheus.CounterVec
	indexBuildDuration    prometheus.Histogram
	indexSize             *prometheus.GaugeVec
	artifactBytes         *prometheus.HistogramVec

	// Build job metrics
	jobQueueSize     prometheus.Gauge
	jobQueueCapacity prometheus.Gauge
	jobsEnqueued     prometheus.Counter
	jobsRejected     *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	workersActive    prometheus.Gauge

	// Scope cache metrics
	scopeCacheHits    prometheus.Counter
	scopeCacheMisses  prometheus.Counter
	scopeLoadLatency  prometheus.Histogram
	scopeCacheEntries prometheus.Gauge

	// Query metrics
	queries      *prometheus.CounterVec
	queryErrors  *prometheus.CounterVec
	queryLatency *prometheus.HistogramVec

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec
	errorRateByType     *prometheus.CounterVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "nbasim",
		subsystem:        "similarity",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

// Enabled reports whether recording is active.
func (m *Manager) Enabled() bool { return m.enabled }

// RefreshInterval is how often gauge updaters should run.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric
	secondsBuckets := []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120}
	bytesBuckets := prometheus.ExponentialBuckets(1024, 4, 10)

	m.pipelineStageDuration = m.histogramVec("pipeline_stage_duration_seconds",
		"Duration of each batch pipeline stage", secondsBuckets, "stage", "scope")
	m.pipelineRuns = m.counterVec("pipeline_runs_total",
		"Pipeline scope builds by outcome", "outcome")
	m.recordsCleaned = m.counterVec("records_cleaned_total",
		"Player-season records produced by the cleaner", "season")
	m.recordsFiltered = m.counterVec("records_filtered_total",
		"Raw rows removed by the cleaner", "season", "reason")
	m.indexBuildDuration = m.histogram("index_build_duration_seconds",
		"Time to compute a full pairwise distance index", secondsBuckets)
	m.indexSize = promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "index_players",
		Help:        "Population size of a distance index by scope",
		ConstLabels: m.customLabels,
	}, []string{"scope"})
	m.artifactBytes = m.histogramVec("artifact_size_bytes",
		"Encoded size of persisted artifacts", bytesBuckets, "kind")

	m.jobQueueSize = m.gauge("job_queue_size", "Season build jobs waiting in the queue")
	m.jobQueueCapacity = m.gauge("job_queue_capacity", "Maximum season build jobs the queue holds")
	m.jobsEnqueued = m.counter("jobs_enqueued_total", "Season build jobs accepted by the queue")
	m.jobsRejected = m.counterVec("jobs_rejected_total", "Season build jobs refused by the queue", "reason")
	m.jobDuration = m.histogramVec("job_duration_seconds",
		"Time a worker spent on one season build job", secondsBuckets, "outcome")
	m.workersActive = m.gauge("workers_active", "Build workers currently running")

	m.scopeCacheHits = m.counter("scope_cache_hits_total", "Scope loads served from memory")
	m.scopeCacheMisses = m.counter("scope_cache_misses_total", "Scope loads that read the artifact store")
	m.scopeLoadLatency = m.histogram("scope_load_duration_seconds",
		"Time to load and decode a scope from the artifact store", secondsBuckets)
	m.scopeCacheEntries = m.gauge("scope_cache_entries", "Scopes currently held in memory")

	m.queries = m.counterVec("queries_total", "Similarity queries by kind", "kind")
	m.queryErrors = m.counterVec("query_errors_total", "Failed similarity queries by kind and error", "kind", "error")
	m.queryLatency = m.histogramVec("query_duration_milliseconds",
		"Similarity query latency in milliseconds", m.histogramBuckets, "kind")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", m.histogramBuckets, "endpoint", "method", "status_code")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total",
		"Errors by endpoint, method and error type", "endpoint", "method", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total",
		"Errors by type and severity", "error_type", "severity")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// ObservePipelineStage records how long a pipeline stage took for a scope.
func ObservePipelineStage(stage, scope string, d time.Duration) {
	if !globalManager.enabled {
		return
	}
	globalManager.pipelineStageDuration.WithLabelValues(stage, scope).Observe(d.Seconds())
}

// RecordPipelineRun counts a finished scope build; outcome is "ok" or "failed".
func RecordPipelineRun(outcome string) {
	if !globalManager.enabled {
		return
	}
	globalManager.pipelineRuns.WithLabelValues(outcome).Inc()
}

// RecordRecordsCleaned adds n cleaned records for a season.
func RecordRecordsCleaned(season string, n int) {
	if !globalManager.enabled {
		return
	}
	globalManager.recordsCleaned.WithLabelValues(season).Add(float64(n))
}

// RecordRecordsFiltered adds n removed rows for a season and reason.
func RecordRecordsFiltered(season, reason string, n int) {
	if !globalManager.enabled || n <= 0 {
		return
	}
	globalManager.recordsFiltered.WithLabelValues(season, reason).Add(float64(n))
}

// ObserveIndexBuild records a distance index build duration.
func ObserveIndexBuild(d time.Duration) {
	if !globalManager.enabled {
		return
	}
	globalManager.indexBuildDuration.Observe(d.Seconds())
}

// UpdateIndexSize sets the population size for a scope.
func UpdateIndexSize(scope string, n int) {
	if !globalManager.enabled {
		return
	}
	globalManager.indexSize.WithLabelValues(scope).Set(float64(n))
}

// ObserveArtifactBytes records an encoded artifact size; kind is "stats" or "distances".
func ObserveArtifactBytes(kind string, n int) {
	if !globalManager.enabled {
		return
	}
	globalManager.artifactBytes.WithLabelValues(kind).Observe(float64(n))
}

// UpdateJobQueue records the queue's current length and capacity.
func UpdateJobQueue(size, capacity int) {
	if !globalManager.enabled {
		return
	}
	globalManager.jobQueueSize.Set(float64(size))
	globalManager.jobQueueCapacity.Set(float64(capacity))
}

// RecordJobEnqueued counts an accepted build job.
func RecordJobEnqueued() {
	if !globalManager.enabled {
		return
	}
	globalManager.jobsEnqueued.Inc()
}

// RecordJobRejected counts a refused build job by reason.
func RecordJobRejected(reason string) {
	if !globalManager.enabled {
		return
	}
	globalManager.jobsRejected.WithLabelValues(reason).Inc()
}

// ObserveJob records how long a build job took and whether it succeeded.
func ObserveJob(outcome string, d time.Duration) {
	if !globalManager.enabled {
		return
	}
	globalManager.jobDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// UpdateWorkersActive records the number of running build workers.
func UpdateWorkersActive(n int) {
	if !globalManager.enabled {
		return
	}
	globalManager.workersActive.Set(float64(n))
}

// RecordScopeCacheHit increments the scope cache hit counter.
func RecordScopeCacheHit() {
	if !globalManager.enabled {
		return
	}
	globalManager.scopeCacheHits.Inc()
}

// RecordScopeCacheMiss increments the scope cache miss counter.
func RecordScopeCacheMiss() {
	if !globalManager.enabled {
		return
	}
	globalManager.scopeCacheMisses.Inc()
}

// ObserveScopeLoad records the latency of loading one scope.
func ObserveScopeLoad(d time.Duration) {
	if !globalManager.enabled {
		return
	}
	globalManager.scopeLoadLatency.Observe(d.Seconds())
}

// UpdateScopeCacheEntries sets the number of cached scopes.
func UpdateScopeCacheEntries(n int) {
	if !globalManager.enabled {
		return
	}
	globalManager.scopeCacheEntries.Set(float64(n))
}

// RecordQuery counts a query and its latency.
func RecordQuery(kind string, d time.Duration) {
	if !globalManager.enabled {
		return
	}
	globalManager.queries.WithLabelValues(kind).Inc()
	globalManager.queryLatency.WithLabelValues(kind).Observe(float64(d.Microseconds()) / 1000)
}

// RecordQueryError counts a failed query.
func RecordQueryError(kind, errorType string) {
	if !globalManager.enabled {
		return
	}
	globalManager.queryErrors.WithLabelValues(kind, errorType).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	if !globalManager.enabled {
		return
	}
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	if !globalManager.enabled {
		return
	}
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
