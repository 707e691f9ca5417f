package metrics

import (
	"strconv"
	"time"

	"github.com/SaiNageswarS/support-agent/workflow"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "support_agent"

// Collector holds the service's metrics. It implements workflow.Recorder.
type Collector struct {
	WorkflowSteps       *prometheus.CounterVec
	WorkflowStepSeconds *prometheus.HistogramVec
	Escalations         *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	SessionsSwept       prometheus.Counter
	TicketsIndexed      *prometheus.CounterVec
}

// NewCollector registers the metrics with reg. The server's /metrics endpoint serves
// prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		WorkflowSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_steps_total",
			Help:      "Total number of workflow steps executed",
		}, []string{"step", "outcome"}),
		WorkflowStepSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_step_duration_seconds",
			Help:      "Duration of workflow steps in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step"}),
		Escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Total number of ticket escalations",
		}, []string{"outcome"}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status_code"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		SessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_swept_total",
			Help:      "Total number of idle sessions removed",
		}),
		TicketsIndexed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tickets_indexed_total",
			Help:      "Total number of historical tickets processed by the indexer",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		c.WorkflowSteps,
		c.WorkflowStepSeconds,
		c.Escalations,
		c.HTTPRequestsTotal,
		c.HTTPRequestDuration,
		c.SessionsSwept,
		c.TicketsIndexed,
	)
	return c
}

func (c *Collector) ObserveStep(step workflow.Step, outcome string, elapsed time.Duration) {
	c.WorkflowSteps.WithLabelValues(step.String(), outcome).Inc()
	c.WorkflowStepSeconds.WithLabelValues(step.String()).Observe(elapsed.Seconds())
}

func (c *Collector) ObserveEscalation(outcome string) {
	c.Escalations.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordHTTPRequest(method, path string, statusCode int, elapsed time.Duration) {
	c.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	c.HTTPRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}
