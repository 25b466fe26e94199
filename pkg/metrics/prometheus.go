// Package metrics provides Prometheus metrics for the diamond rating engine.
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

// Layer widths span a handful of plays (late-season stragglers) up to the
// number of concurrent games times the lineup size.
var defaultLayerWidthBuckets = []float64{1, 2, 5, 10, 20, 50, 100, 200, 500} //nolint:gochecknoglobals // static bucket layout

// Manager manages all Prometheus metrics for the diamond engine.
type Manager struct {
	namespace         string
	subsystem         string
	histogramBuckets  []float64
	layerWidthBuckets []float64
	enabled           bool
	refreshInterval   time.Duration
	customLabels      map[string]string
	metricPrefix      string
	registry          prometheus.Registerer

	// Input and graph metrics
	playsLoaded   prometheus.Counter
	playsSkipped  prometheus.Counter
	graphEdges    *prometheus.CounterVec
	buildDuration prometheus.Histogram

	// Layering metrics
	layersTotal      prometheus.Gauge
	layerWidth       prometheus.Histogram
	layeringDuration prometheus.Histogram

	// Evaluation metrics
	runPhase           prometheus.Gauge
	layersEvaluated    prometheus.Counter
	layerDuration      prometheus.Histogram
	ratingReads        prometheus.Counter
	ratingUpdates      *prometheus.CounterVec
	numericUnderflows  prometheus.Counter
	ratingKeys         prometheus.Gauge
	ratingShardKeys    *prometheus.GaugeVec
	recordsEmitted     prometheus.Counter
	recordQueueSize    prometheus.Gauge
	recordQueueLatency prometheus.Histogram
	recordWriteErrors  prometheus.Counter

	// Checkpoint metrics
	checkpointDuration prometheus.Histogram
	checkpointCount    prometheus.Counter
	checkpointErrors   prometheus.Counter
	checkpointLayer    prometheus.Gauge

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error metrics
	errorRateByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:         "diamond",
		subsystem:         "engine",
		histogramBuckets:  prometheus.DefBuckets,
		layerWidthBuckets: defaultLayerWidthBuckets,
		enabled:           true,
		refreshInterval:   defaultRefreshInterval,
		customLabels:      make(map[string]string),
		metricPrefix:      "",
		registry:          prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	labels := prometheus.Labels(m.customLabels)

	counter := func(name, help string) prometheus.Counter {
		return auto.NewCounter(prometheus.CounterOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: labels,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return auto.NewGauge(prometheus.GaugeOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: labels,
		})
	}
	histogram := func(name, help string, buckets []float64) prometheus.Histogram {
		return auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: labels, Buckets: buckets,
		})
	}

	m.playsLoaded = counter("plays_loaded_total", "Plays read from the play store")
	m.playsSkipped = counter("plays_skipped_total", "Plays dropped because their outcome could not be classified")
	m.graphEdges = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("graph_edges_total"),
		Help: "Dependency edges created, by role", ConstLabels: labels,
	}, []string{"role"})
	m.buildDuration = histogram("graph_build_duration_milliseconds", "Dependency graph construction time", m.histogramBuckets)

	m.layersTotal = gauge("layers", "Number of layers in the current schedule")
	m.layerWidth = histogram("layer_width_plays", "Plays per layer", m.layerWidthBuckets)
	m.layeringDuration = histogram("layering_duration_milliseconds", "Antichain layering time", m.histogramBuckets)

	m.runPhase = gauge("run_phase", "Current run phase (0 pending, 1 layering, 2 evaluating, 3 done, 4 failed)")
	m.layersEvaluated = counter("layers_evaluated_total", "Layers fully read and updated")
	m.layerDuration = histogram("layer_duration_milliseconds", "Wall time per evaluated layer", m.histogramBuckets)
	m.ratingReads = counter("rating_reads_total", "Rating snapshots read")
	m.ratingUpdates = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("rating_updates_total"),
		Help: "Rating updates applied, by role", ConstLabels: labels,
	}, []string{"role"})
	m.numericUnderflows = counter("numeric_underflow_total", "Probabilities clamped at the epsilon floor")
	m.ratingKeys = gauge("rating_keys", "Rating keys held by the store")
	m.ratingShardKeys = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("rating_shard_keys"),
		Help: "Rating keys per store shard", ConstLabels: labels,
	}, []string{"shard"})
	m.recordsEmitted = counter("records_emitted_total", "Dataset records written")
	m.recordQueueSize = gauge("record_queue_size", "Records waiting to be written")
	m.recordQueueLatency = histogram("record_queue_latency_milliseconds", "Time spent blocked enqueueing a record", m.histogramBuckets)
	m.recordWriteErrors = counter("record_write_errors_total", "Dataset write failures")

	m.checkpointDuration = histogram("checkpoint_duration_milliseconds", "Per-layer checkpoint commit time", m.histogramBuckets)
	m.checkpointCount = counter("checkpoints_total", "Committed layer checkpoints")
	m.checkpointErrors = counter("checkpoint_errors_total", "Failed layer checkpoints")
	m.checkpointLayer = gauge("checkpoint_layer", "Last committed layer index")

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("http_requests_total"),
		Help: "HTTP requests by endpoint and method", ConstLabels: labels,
	}, []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("http_request_duration_milliseconds"),
		Help: "HTTP request duration in milliseconds", ConstLabels: labels, Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("errors_by_component_total"),
		Help: "Errors by component and type", ConstLabels: labels,
	}, []string{"component", "error_type"})
}

// RefreshInterval is how often this manager's polled gauges should be
// republished.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

// RefreshInterval returns the global manager's refresh interval. Components
// that publish gauges from a ticker, like the rating store, default to it.
func RefreshInterval() time.Duration { return globalManager.refreshInterval }

// Phase values reported by UpdateRunPhase.
const (
	PhasePending    = 0
	PhaseLayering   = 1
	PhaseEvaluating = 2
	PhaseDone       = 3
	PhaseFailed     = 4
)

// Input and graph helpers.

func RecordPlaysLoaded(n int) {
	if globalManager.enabled {
		globalManager.playsLoaded.Add(float64(n))
	}
}

func RecordPlaysSkipped(n int) {
	if globalManager.enabled {
		globalManager.playsSkipped.Add(float64(n))
	}
}

func RecordGraphEdges(role string, n int) {
	if globalManager.enabled {
		globalManager.graphEdges.WithLabelValues(role).Add(float64(n))
	}
}

func RecordGraphBuildDuration(ms float64) {
	if globalManager.enabled {
		globalManager.buildDuration.Observe(ms)
	}
}

// Layering helpers.

func UpdateLayerCount(n int) {
	if globalManager.enabled {
		globalManager.layersTotal.Set(float64(n))
	}
}

func RecordLayerWidth(n int) {
	if globalManager.enabled {
		globalManager.layerWidth.Observe(float64(n))
	}
}

func RecordLayeringDuration(ms float64) {
	if globalManager.enabled {
		globalManager.layeringDuration.Observe(ms)
	}
}

// Evaluation helpers.

func UpdateRunPhase(phase int) {
	if globalManager.enabled {
		globalManager.runPhase.Set(float64(phase))
	}
}

func RecordLayerEvaluated(ms float64) {
	if globalManager.enabled {
		globalManager.layersEvaluated.Inc()
		globalManager.layerDuration.Observe(ms)
	}
}

func RecordRatingReads(n int) {
	if globalManager.enabled {
		globalManager.ratingReads.Add(float64(n))
	}
}

func RecordRatingUpdate(role string) {
	if globalManager.enabled {
		globalManager.ratingUpdates.WithLabelValues(role).Inc()
	}
}

func RecordNumericUnderflow(n int) {
	if globalManager.enabled {
		globalManager.numericUnderflows.Add(float64(n))
	}
}

func UpdateRatingKeys(n int) {
	if globalManager.enabled {
		globalManager.ratingKeys.Set(float64(n))
	}
}

func UpdateRatingShardKeys(shardID string, n int) {
	if globalManager.enabled {
		globalManager.ratingShardKeys.WithLabelValues(shardID).Set(float64(n))
	}
}

func RecordRecordEmitted() {
	if globalManager.enabled {
		globalManager.recordsEmitted.Inc()
	}
}

func UpdateRecordQueueSize(n int) {
	if globalManager.enabled {
		globalManager.recordQueueSize.Set(float64(n))
	}
}

func RecordRecordQueueLatency(ms float64) {
	if globalManager.enabled {
		globalManager.recordQueueLatency.Observe(ms)
	}
}

func RecordRecordWriteError() {
	if globalManager.enabled {
		globalManager.recordWriteErrors.Inc()
	}
}

// Checkpoint helpers.

func RecordCheckpoint(layer int, ms float64) {
	if globalManager.enabled {
		globalManager.checkpointCount.Inc()
		globalManager.checkpointDuration.Observe(ms)
		globalManager.checkpointLayer.Set(float64(layer))
	}
}

func RecordCheckpointError() {
	if globalManager.enabled {
		globalManager.checkpointErrors.Inc()
	}
}

// HTTP helpers.

func RecordHTTPRequest(endpoint, method, statusCode string) {
	if globalManager.enabled {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if globalManager.enabled {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// RecordErrorByComponent counts an error against a component.
func RecordErrorByComponent(component, errorType string) {
	if globalManager.enabled {
		globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// GetRegistry returns the registry backing the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
