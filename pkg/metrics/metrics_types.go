package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for the application
type Registry struct {
	// HTTP Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Plan Metrics
	PlanLoadsTotal         *prometheus.CounterVec
	PlanLoadDuration       prometheus.Histogram
	PlanElements           *prometheus.GaugeVec
	PlanSynthesizedActions prometheus.Gauge
	PlanGeneration         prometheus.Gauge

	// Telemetry Metrics
	SessionsActive       prometheus.Gauge
	SessionsTotal        *prometheus.CounterVec
	ScriptLinesTotal     *prometheus.CounterVec
	DirectiveErrorsTotal prometheus.Counter
	LinesDecodedTotal    *prometheus.CounterVec
	DecodeErrorsTotal    *prometheus.CounterVec
	ElementsMarkedDirty  *prometheus.CounterVec
	NotificationsTotal   *prometheus.CounterVec

	// System Metrics
	UptimeSeconds    prometheus.Gauge
	GoRoutines       prometheus.Gauge
	MemoryAllocBytes prometheus.Gauge
	MemorySysBytes   prometheus.Gauge

	registry *prometheus.Registry
	mu       sync.RWMutex
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
	}

	// Initialize all metrics
	r.initHTTPMetrics()
	r.initPlanMetrics()
	r.initTelemetryMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
