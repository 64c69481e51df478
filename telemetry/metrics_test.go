package telemetry

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exposition(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return string(body)
}

func TestWorkflowMetricsExposition(t *testing.T) {
	m := New()
	m.RecordWorkflowRun("ccma", "completed", 42*time.Second)
	m.RecordWorkflowRun("ddjj", "failed", 10*time.Second)
	m.RecordWorkflowStep("ccma", "arca_login", "completed")
	m.RecordRequestOutcome("ccma", "completed")
	m.RecordRetry("ccma")
	m.WorkflowStarted()

	body := exposition(t, m)
	assert.Contains(t, body, `ccma_workflows_total{status="completed"} 1`)
	assert.Contains(t, body, `ddjj_workflows_total{status="failed"} 1`)
	assert.Contains(t, body, `workflow_steps_total{status="completed",step_name="arca_login",workflow_type="ccma"} 1`)
	assert.Contains(t, body, `afip_login_attempts_total{status="completed"} 1`)
	assert.Contains(t, body, `workflow_requests_total{outcome="completed",workflow_type="ccma"} 1`)
	assert.Contains(t, body, `workflow_retries_total{workflow_type="ccma"} 1`)
	assert.Contains(t, body, "active_workflows 1")
	assert.Contains(t, body, `workflow_duration_seconds_bucket{workflow_type="ccma",le="60"} 1`)
}

func TestOperationFamilyCounters(t *testing.T) {
	m := New()
	m.RecordWorkflowStep("ccma", "initialize_browser", "completed")
	m.RecordWorkflowStep("ddjj", "generate_vep_file", "failed")
	m.RecordPayment("qr", "completed")
	m.RecordTransactionOp("duplicate_check", "hit")

	body := exposition(t, m)
	assert.Contains(t, body, `browser_operations_total{operation="initialize_browser",status="completed"} 1`)
	assert.Contains(t, body, `file_operations_total{operation="generate_vep_file",status="failed"} 1`)
	assert.Contains(t, body, `payments_by_type_total{payment_method="qr",status="completed"} 1`)
	assert.Contains(t, body, `transaction_operations_total{operation="duplicate_check",status="hit"} 1`)
}

func TestActiveGaugeBalances(t *testing.T) {
	m := New()
	m.WorkflowStarted()
	m.WorkflowStarted()
	m.WorkflowEnded()

	assert.Contains(t, exposition(t, m), "active_workflows 1")
}

func TestHTTPAndGridMetrics(t *testing.T) {
	m := New()
	m.RecordHTTPRequest("POST", "/workflows/ccma/execute", 200, 15*time.Millisecond)
	m.SetGridCapacity(3, 5)

	body := exposition(t, m)
	assert.Contains(t, body, `http_requests_total{endpoint="/workflows/ccma/execute",method="POST",status_code="200"} 1`)
	assert.Contains(t, body, `http_responses_total{status_class="2xx"} 1`)
	assert.Contains(t, body, "grid_nodes 3")
	assert.Contains(t, body, "grid_active_sessions 5")
}
