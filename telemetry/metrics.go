// Package telemetry exposes Prometheus metrics for workflow runs, steps,
// HTTP traffic and the browser grid.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector registered on a private registry so
// tests can create isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	ccmaWorkflows   *prometheus.CounterVec
	ddjjWorkflows   *prometheus.CounterVec
	requestOutcomes *prometheus.CounterVec
	workflowSteps   *prometheus.CounterVec
	workflowRetries *prometheus.CounterVec
	payments        *prometheus.CounterVec
	logins          *prometheus.CounterVec
	browserOps      *prometheus.CounterVec
	fileOps         *prometheus.CounterVec
	transactionOps  *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	active          prometheus.Gauge

	httpRequests  *prometheus.CounterVec
	httpResponses *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec

	gridNodes    prometheus.Gauge
	gridSessions prometheus.Gauge
}

// New creates a metrics set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ccmaWorkflows: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ccma_workflows_total",
			Help: "Account reconciliation workflow runs by terminal status.",
		}, []string{"status"}),
		ddjjWorkflows: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ddjj_workflows_total",
			Help: "Declaration upload workflow runs by terminal status.",
		}, []string{"status"}),
		requestOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_requests_total",
			Help: "Intake requests by workflow type and terminal outcome.",
		}, []string{"workflow_type", "outcome"}),
		workflowSteps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_steps_total",
			Help: "Workflow step outcomes.",
		}, []string{"workflow_type", "step_name", "status"}),
		workflowRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_retries_total",
			Help: "Failed runs re-dispatched by the retry sweeper.",
		}, []string{"workflow_type"}),
		payments: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_by_type_total",
			Help: "Payment slip outcomes by payment method.",
		}, []string{"payment_method", "status"}),
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "afip_login_attempts_total",
			Help: "Portal authentication step outcomes.",
		}, []string{"status"}),
		browserOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "browser_operations_total",
			Help: "Browser-driven step outcomes by operation.",
		}, []string{"operation", "status"}),
		fileOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "file_operations_total",
			Help: "Artifact file step outcomes by operation.",
		}, []string{"operation", "status"}),
		transactionOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "transaction_operations_total",
			Help: "Dedupe store operations by outcome.",
		}, []string{"operation", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "workflow_duration_seconds",
			Help:    "End to end workflow run duration.",
			Buckets: []float64{10, 30, 60, 120, 300, 600},
		}, []string{"workflow_type"}),
		active: factory.NewGauge(prometheus.GaugeOpts{
			Name: "active_workflows",
			Help: "Workflow runs currently executing.",
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, endpoint and status code.",
		}, []string{"method", "endpoint", "status_code"}),
		httpResponses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_responses_total",
			Help: "HTTP responses by status class.",
		}, []string{"status_class"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		gridNodes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "grid_nodes",
			Help: "Browser grid nodes currently registered.",
		}),
		gridSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "grid_active_sessions",
			Help: "Browser sessions currently active on the grid.",
		}),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordWorkflowStep counts one step outcome, classified into the
// operation-family counters by step name.
func (m *Metrics) RecordWorkflowStep(workflowType, stepName, status string) {
	m.workflowSteps.WithLabelValues(workflowType, stepName, status).Inc()
	switch stepName {
	case "arca_login", "arca_authentication":
		m.logins.WithLabelValues(status).Inc()
	case "generate_vep_file":
		m.fileOps.WithLabelValues(stepName, status).Inc()
	default:
		m.browserOps.WithLabelValues(stepName, status).Inc()
	}
}

// RecordPayment counts one payment slip reaching a terminal outcome.
func (m *Metrics) RecordPayment(method, status string) {
	m.payments.WithLabelValues(method, status).Inc()
}

// RecordTransactionOp counts one dedupe store operation.
func (m *Metrics) RecordTransactionOp(operation, status string) {
	m.transactionOps.WithLabelValues(operation, status).Inc()
}

// RecordWorkflowRun counts one terminal run and observes its duration.
func (m *Metrics) RecordWorkflowRun(workflowType, status string, duration time.Duration) {
	switch workflowType {
	case "ccma":
		m.ccmaWorkflows.WithLabelValues(status).Inc()
	case "ddjj":
		m.ddjjWorkflows.WithLabelValues(status).Inc()
	}
	m.duration.WithLabelValues(workflowType).Observe(duration.Seconds())
}

// RecordRequestOutcome counts one intake request reaching a terminal
// outcome, as observed by the run monitor.
func (m *Metrics) RecordRequestOutcome(workflowType, outcome string) {
	m.requestOutcomes.WithLabelValues(workflowType, outcome).Inc()
}

// RecordRetry counts one sweeper re-dispatch.
func (m *Metrics) RecordRetry(workflowType string) {
	m.workflowRetries.WithLabelValues(workflowType).Inc()
}

// WorkflowStarted and WorkflowEnded track the in-flight gauge.
func (m *Metrics) WorkflowStarted() { m.active.Inc() }
func (m *Metrics) WorkflowEnded()   { m.active.Dec() }

// RecordHTTPRequest counts one handled request and its latency.
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpResponses.WithLabelValues(strconv.Itoa(statusCode/100) + "xx").Inc()
	m.httpDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// SetGridCapacity records the grid's node and session occupancy.
func (m *Metrics) SetGridCapacity(nodes, sessions int) {
	m.gridNodes.Set(float64(nodes))
	m.gridSessions.Set(float64(sessions))
}
