package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SaiNageswarS/support-agent/workflow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ workflow.Recorder = (*Collector)(nil)

func TestCollector_ObserveStep(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.ObserveStep(workflow.StepResolve, "ok", 120*time.Millisecond)
	c.ObserveStep(workflow.StepResolve, "ok", 80*time.Millisecond)
	c.ObserveStep(workflow.StepIdentify, "InvalidArgument", time.Millisecond)
	c.ObserveEscalation("Aborted")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.WorkflowSteps.WithLabelValues("resolve", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.WorkflowSteps.WithLabelValues("identify", "InvalidArgument")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Escalations.WithLabelValues("Aborted")))
}

func TestCollector_Exposition(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordHTTPRequest(http.MethodPost, "/support_workflow", http.StatusOK, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `support_agent_http_requests_total{method="POST",path="/support_workflow",status_code="200"} 1`)
}

func TestCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)
	assert.Panics(t, func() { NewCollector(reg) })
}
