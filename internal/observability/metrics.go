// Package observability wires the server's Prometheus metrics and
// OpenTelemetry tracing, mirroring the manager-per-concern layout of
// production MCP deployments.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/limbodancer-labs/limbodancer-mcp/internal/resilience"
)

// Tool duration histogram boundaries, in seconds. These correspond to
// the millisecond boundaries {10,50,100,250,500,1000,2500,5000,10000}.
var toolDurationBuckets = []float64{0.010, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0, 10.0}

// MetricsManager owns the Prometheus registry and every metric the
// server emits. It satisfies rpc.MetricsRecorder.
type MetricsManager struct {
	logger   *zap.SugaredLogger
	registry *prometheus.Registry

	toolExecutions *prometheus.CounterVec
	toolErrors     *prometheus.CounterVec
	toolDuration   *prometheus.HistogramVec
	toolRetries    *prometheus.CounterVec
	circuitState   *prometheus.GaugeVec

	rpcRequests *prometheus.CounterVec

	sessionsActive prometheus.Gauge
	eventsDropped  *prometheus.CounterVec
	eventsEmitted  *prometheus.CounterVec
}

// NewMetricsManager creates the registry and registers all metrics.
func NewMetricsManager(logger *zap.SugaredLogger) *MetricsManager {
	registry := prometheus.NewRegistry()

	mm := &MetricsManager{
		logger:   logger,
		registry: registry,
	}

	mm.initMetrics()
	mm.registerMetrics()

	return mm
}

func (mm *MetricsManager) initMetrics() {
	mm.toolExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcp_tool_executions_total",
			Help: "Total number of tool executions",
		},
		[]string{"tool", "tenant", "status"},
	)

	mm.toolErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcp_tool_errors_total",
			Help: "Total number of failed tool executions",
		},
		[]string{"tool"},
	)

	mm.toolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcp_tool_duration_seconds",
			Help:    "Tool execution duration, covering the full dispatch pipeline",
			Buckets: toolDurationBuckets,
		},
		[]string{"tool", "tenant"},
	)

	mm.toolRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcp_tool_retries_total",
			Help: "Total number of retry attempts beyond the first",
		},
		[]string{"tool"},
	)

	mm.circuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mcp_tool_circuit_state",
			Help: "Circuit breaker state per tool (0 closed, 1 open, 2 half-open)",
		},
		[]string{"tool"},
	)

	mm.rpcRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcp_rpc_requests_total",
			Help: "Total number of JSON-RPC requests by method and transport",
		},
		[]string{"method", "transport"},
	)

	mm.sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mcp_orchestrator_sessions_active",
		Help: "Number of live chat sessions",
	})

	mm.eventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcp_orchestrator_events_dropped_total",
			Help: "Chat events dropped by the bounded per-session channel",
		},
		[]string{"type"},
	)

	mm.eventsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcp_orchestrator_events_emitted_total",
			Help: "Chat events emitted to subscribers",
		},
		[]string{"type"},
	)
}

func (mm *MetricsManager) registerMetrics() {
	mm.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		mm.toolExecutions,
		mm.toolErrors,
		mm.toolDuration,
		mm.toolRetries,
		mm.circuitState,
		mm.rpcRequests,
		mm.sessionsActive,
		mm.eventsDropped,
		mm.eventsEmitted,
	)
}

// RecordToolCall records one completed tool pipeline execution,
// implementing rpc.MetricsRecorder.
func (mm *MetricsManager) RecordToolCall(toolName, tenantID string, outcome resilience.Outcome) {
	status := "success"
	if outcome.Err != nil {
		status = "failure"
		mm.toolErrors.WithLabelValues(toolName).Inc()
	}
	mm.toolExecutions.WithLabelValues(toolName, tenantID, status).Inc()
	mm.toolDuration.WithLabelValues(toolName, tenantID).Observe(outcome.Duration.Seconds())
	if outcome.Attempts > 1 {
		mm.toolRetries.WithLabelValues(toolName).Add(float64(outcome.Attempts - 1))
	}
	mm.circuitState.WithLabelValues(toolName).Set(float64(outcome.CircuitState))
}

// RecordRPCRequest counts one JSON-RPC request.
func (mm *MetricsManager) RecordRPCRequest(method, transport string) {
	mm.rpcRequests.WithLabelValues(method, transport).Inc()
}

// SessionOpened / SessionClosed track the live session gauge.
func (mm *MetricsManager) SessionOpened() { mm.sessionsActive.Inc() }

// SessionClosed decrements the live session gauge.
func (mm *MetricsManager) SessionClosed() { mm.sessionsActive.Dec() }

// EventDropped counts an event evicted from a bounded session channel.
func (mm *MetricsManager) EventDropped(eventType string) {
	mm.eventsDropped.WithLabelValues(eventType).Inc()
}

// EventEmitted counts an event delivered to a subscriber queue.
func (mm *MetricsManager) EventEmitted(eventType string) {
	mm.eventsEmitted.WithLabelValues(eventType).Inc()
}

// Handler returns the /metrics HTTP handler for the private registry.
func (mm *MetricsManager) Handler() http.Handler {
	return promhttp.HandlerFor(mm.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (mm *MetricsManager) Registry() *prometheus.Registry {
	return mm.registry
}
