// Package metrics provides Prometheus metrics for the volunteer reputation service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector the service exports.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Reputation workflow
	completions    *prometheus.CounterVec
	creditsApplied prometheus.Counter
	creditFailures prometheus.Counter
	creditsSkipped *prometheus.CounterVec
	fanoutLatency  prometheus.Histogram
	badgesAwarded  *prometheus.CounterVec
	scoreResets    prometheus.Counter

	// Record store
	storeOpLatency *prometheus.HistogramVec
	storeOpErrors  *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Badge refresh queue
	queueSize     prometheus.Gauge
	queueCapacity prometheus.Gauge
	queueEnqueued prometheus.Counter
	queueDequeued prometheus.Counter
	queueRejected *prometheus.CounterVec

	// Badge refresh workers
	workerCount   prometheus.Gauge
	workerJobs    prometheus.Counter
	workerErrors  prometheus.Counter
	workerLatency prometheus.Histogram

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// Process
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "volunteer",
		subsystem:        "reputation",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.completions = m.counterVec("event_completions_total",
		"Event completion attempts by outcome (completed, already_completed, not_found, failed)", "outcome")
	m.creditsApplied = m.counter("credits_applied_total", "Volunteer score credits applied")
	m.creditFailures = m.counter("credit_failures_total", "Accepted applications that could not be credited")
	m.creditsSkipped = m.counterVec("credits_skipped_total", "Applications skipped during fan-out by reason", "reason")
	m.fanoutLatency = m.histogram("fanout_latency_milliseconds", "Duration of a volunteer credit fan-out", m.histogramBuckets)
	m.badgesAwarded = m.counterVec("badges_awarded_total", "Badges awarded by name", "badge")
	m.scoreResets = m.counter("score_resets_total", "User records written by the score reset job")

	m.storeOpLatency = m.histogramVec("store_op_latency_milliseconds", "Record store operation latency", "op")
	m.storeOpErrors = m.counterVec("store_op_errors_total", "Record store operation failures", "op")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.queueSize = m.gauge("badge_queue_size", "Pending badge refresh jobs")
	m.queueCapacity = m.gauge("badge_queue_capacity", "Maximum pending badge refresh jobs")
	m.queueEnqueued = m.counter("badge_queue_enqueue_total", "Badge refresh jobs enqueued")
	m.queueDequeued = m.counter("badge_queue_dequeue_total", "Badge refresh jobs dequeued")
	m.queueRejected = m.counterVec("badge_queue_rejected_total", "Badge refresh jobs rejected by reason", "reason")

	m.workerCount = m.gauge("badge_worker_count", "Badge refresh workers running")
	m.workerJobs = m.counter("badge_worker_jobs_total", "Badge refresh jobs processed")
	m.workerErrors = m.counter("badge_worker_errors_total", "Badge refresh jobs that failed")
	m.workerLatency = m.histogram("badge_worker_latency_milliseconds", "Badge refresh job duration", m.histogramBuckets)

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Total number of errors by type", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Total number of errors by endpoint", "endpoint", "method", "error_type")
	m.errorLatency = m.histogramVec("error_latency_milliseconds", "Latency of operations that resulted in errors", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Reputation workflow.

// RecordCompletion counts a completion attempt by outcome.
func RecordCompletion(outcome string) {
	globalManager.completions.WithLabelValues(outcome).Inc()
}

// RecordCreditApplied counts one volunteer credit.
func RecordCreditApplied() {
	globalManager.creditsApplied.Inc()
}

// RecordCreditFailure counts one accepted application that was not credited.
func RecordCreditFailure() {
	globalManager.creditFailures.Inc()
}

// RecordCreditSkipped counts an application skipped during fan-out.
func RecordCreditSkipped(reason string) {
	globalManager.creditsSkipped.WithLabelValues(reason).Inc()
}

// RecordFanoutLatency records a fan-out duration in milliseconds.
func RecordFanoutLatency(latencyMs float64) {
	globalManager.fanoutLatency.Observe(latencyMs)
}

// RecordBadgeAwarded counts an awarded badge.
func RecordBadgeAwarded(badge string) {
	globalManager.badgesAwarded.WithLabelValues(badge).Inc()
}

// RecordScoreResets adds n reset writes.
func RecordScoreResets(n int) {
	globalManager.scoreResets.Add(float64(n))
}

// Record store.

// RecordStoreOp records the latency of a store operation and whether it failed.
func RecordStoreOp(op string, latencyMs float64, failed bool) {
	globalManager.storeOpLatency.WithLabelValues(op).Observe(latencyMs)
	if failed {
		globalManager.storeOpErrors.WithLabelValues(op).Inc()
	}
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Badge refresh queue.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueRejected counts a rejected enqueue (closed, full, duplicate, canceled).
func RecordQueueRejected(reason string) {
	globalManager.queueRejected.WithLabelValues(reason).Inc()
}

// Badge refresh workers.

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerJob records a processed job and its duration.
func RecordWorkerJob(latencyMs float64) {
	globalManager.workerJobs.Inc()
	globalManager.workerLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// Process.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
