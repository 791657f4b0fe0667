// Package metrics provides Prometheus metrics for the demonlist service.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the demonlist service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Ledger Metrics - position sequence mutations
	ledgerMutations       *prometheus.CounterVec
	ledgerShiftedRows     *prometheus.HistogramVec
	ledgerMutationLatency *prometheus.HistogramVec
	ledgerMaxPosition     prometheus.Gauge

	// Time Machine Metrics
	reconstructions         *prometheus.CounterVec
	reconstructionLatency   prometheus.Histogram
	reconstructionAnomalies prometheus.Counter

	// Submission Metrics - record submission pipeline
	submissionsEnqueued  prometheus.Counter
	submissionsDuplicate prometheus.Counter
	submissionsPersisted prometheus.Counter
	submissionsRejected  *prometheus.CounterVec

	// Queue Metrics
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Worker Metrics
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	rateLimited         *prometheus.CounterVec

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// Config Metrics
	configReloads *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// global holds the active manager together with the registry it registers
// on, so both swap in one step.
type global struct {
	manager  *Manager
	registry *prometheus.Registry
}

var active atomic.Pointer[global] //nolint:gochecknoglobals // intentional global for singleton metrics manager

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	Configure()
}

// Configure rebuilds every collector with opts on a fresh custom registry
// and makes it the one GetRegistry serves. The server calls it once at
// startup with the configured namespace and labels; series recorded
// before the call are dropped.
func Configure(opts ...Option) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	m := NewManager(append(opts, WithPrometheusRegistry(registry))...)
	active.Store(&global{manager: m, registry: registry})
	return registry
}

func current() *Manager { return active.Load().manager }

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "pointercrate",
		subsystem:        "demonlist",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	if buckets == nil {
		buckets = m.histogramBuckets
	}
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.ledgerMutations = auto.NewCounterVec(
		m.counterOpts("ledger_mutations_total", "Position ledger mutations by operation and outcome"),
		[]string{"op", "outcome"},
	)
	m.ledgerShiftedRows = auto.NewHistogramVec(
		m.histogramOpts("ledger_shifted_rows", "Number of demons shifted by a single ledger mutation",
			[]float64{0, 1, 2, 5, 10, 25, 50, 75, 150, 300}),
		[]string{"op"},
	)
	m.ledgerMutationLatency = auto.NewHistogramVec(
		m.histogramOpts("ledger_mutation_latency_milliseconds", "Latency of ledger mutations including commit", nil),
		[]string{"op"},
	)
	m.ledgerMaxPosition = auto.NewGauge(m.gaugeOpts("ledger_max_position", "Highest position currently assigned"))

	m.reconstructions = auto.NewCounterVec(
		m.counterOpts("timemachine_requests_total", "List reads by mode (live or historical)"),
		[]string{"mode"},
	)
	m.reconstructionLatency = auto.NewHistogram(
		m.histogramOpts("timemachine_latency_milliseconds", "Latency of historical list reconstruction", nil),
	)
	m.reconstructionAnomalies = auto.NewCounter(
		m.counterOpts("timemachine_log_anomalies_total", "Demons whose position log has no addition event"),
	)

	m.submissionsEnqueued = auto.NewCounter(m.counterOpts("submissions_enqueued_total", "Record submissions accepted for processing"))
	m.submissionsDuplicate = auto.NewCounter(m.counterOpts("submissions_duplicate_total", "Record submissions rejected as duplicates"))
	m.submissionsPersisted = auto.NewCounter(m.counterOpts("submissions_persisted_total", "Record submissions written to storage"))
	m.submissionsRejected = auto.NewCounterVec(
		m.counterOpts("submissions_rejected_total", "Record submissions rejected by validation"),
		[]string{"reason"},
	)

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Current size of the submission queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum capacity of the submission queue"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio", "Submission queue utilization (0-1)"))
	m.queueEnqueueRate = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Total enqueue operations"))
	m.queueDequeueRate = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Total dequeue operations"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Failed enqueue operations"))
	m.queueProcessingLatency = auto.NewHistogram(
		m.histogramOpts("queue_processing_latency_milliseconds", "Latency of enqueue operations", nil),
	)

	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count", "Number of submission workers"))
	m.workerProcessingLatency = auto.NewHistogram(
		m.histogramOpts("worker_processing_latency_milliseconds", "Time spent persisting one submission", nil),
	)
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Submission worker failures"))

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", nil),
		[]string{"endpoint", "method", "status_code"},
	)
	m.rateLimited = auto.NewCounterVec(
		m.counterOpts("ratelimited_total", "Requests refused by a rate limit"),
		[]string{"limit"},
	)

	m.errorRateByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Errors by component and type"),
		[]string{"component", "error_type"},
	)
	m.errorRateByType = auto.NewCounterVec(
		m.counterOpts("errors_by_type_total", "Errors by type and severity"),
		[]string{"error_type", "severity"},
	)
	m.errorRateByEndpoint = auto.NewCounterVec(
		m.counterOpts("errors_by_endpoint_total", "Errors by endpoint"),
		[]string{"endpoint", "method", "error_type"},
	)
	m.errorLatency = auto.NewHistogramVec(
		m.histogramOpts("error_latency_milliseconds", "Latency of operations that resulted in errors", nil),
		[]string{"component", "error_type"},
	)

	m.configReloads = auto.NewCounterVec(
		m.counterOpts("config_reloads_total", "Configuration file reloads by outcome"),
		[]string{"outcome"},
	)

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "System memory usage in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(
		m.histogramOpts("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
			[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}),
	)
}

// Ledger Metrics Functions.

// RecordLedgerMutation counts a ledger mutation with its outcome ("ok" or an error kind).
func RecordLedgerMutation(op, outcome string) {
	current().ledgerMutations.WithLabelValues(op, outcome).Inc()
}

// RecordLedgerShift records how many rows a mutation shifted.
func RecordLedgerShift(op string, rows int64) {
	current().ledgerShiftedRows.WithLabelValues(op).Observe(float64(rows))
}

// RecordLedgerLatency records the latency of a ledger mutation.
func RecordLedgerLatency(op string, latencyMs float64) {
	current().ledgerMutationLatency.WithLabelValues(op).Observe(latencyMs)
}

// UpdateLedgerMaxPosition sets the highest assigned position.
func UpdateLedgerMaxPosition(position int) {
	current().ledgerMaxPosition.Set(float64(position))
}

// Time Machine Metrics Functions.

// RecordListRead counts a list read by mode ("live" or "historical").
func RecordListRead(mode string) {
	current().reconstructions.WithLabelValues(mode).Inc()
}

// RecordReconstructionLatency records the latency of a historical reconstruction.
func RecordReconstructionLatency(latencyMs float64) {
	current().reconstructionLatency.Observe(latencyMs)
}

// RecordReconstructionAnomaly counts a demon with an inconsistent position log.
func RecordReconstructionAnomaly() {
	current().reconstructionAnomalies.Inc()
}

// Submission Metrics Functions.

// RecordSubmissionEnqueued counts an accepted submission.
func RecordSubmissionEnqueued() {
	current().submissionsEnqueued.Inc()
}

// RecordSubmissionDuplicate counts a duplicate submission.
func RecordSubmissionDuplicate() {
	current().submissionsDuplicate.Inc()
}

// RecordSubmissionPersisted counts a stored submission.
func RecordSubmissionPersisted() {
	current().submissionsPersisted.Inc()
}

// RecordSubmissionRejected counts a submission refused by validation.
func RecordSubmissionRejected(reason string) {
	current().submissionsRejected.WithLabelValues(reason).Inc()
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	current().queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	current().queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	current().queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	current().queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	current().queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	current().queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records queue processing latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	current().queueProcessingLatency.Observe(latencyMs)
}

// Worker Metrics Functions.

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	current().workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	current().workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	current().workerErrors.Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	current().httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	current().httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordRateLimited counts a request refused by the named limit.
func RecordRateLimited(limit string) {
	current().rateLimited.WithLabelValues(limit).Inc()
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	current().errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	current().errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	current().errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	current().errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// RecordConfigReload counts a configuration reload ("ok" or "error").
func RecordConfigReload(outcome string) {
	current().configReloads.WithLabelValues(outcome).Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	current().systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	current().systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	current().systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return active.Load().registry
}
