package orchestration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vepflow/vepflow/core"
	"github.com/vepflow/vepflow/transaction"
	"github.com/vepflow/vepflow/workflow"
)

func ccmaRequestData() map[string]interface{} {
	return map[string]interface{}{
		"kind": workflow.KindCCMA,
		"credentials": map[string]interface{}{
			"cuit":     "20429994323",
			"password": "p",
		},
		"data": map[string]interface{}{
			"period_from":      "01/2023",
			"period_to":        "12/2025",
			"calculation_date": "15/09/2025",
			"form_payment":     "qr",
			"expiration_date":  "31/12/2025",
		},
	}
}

func createFailedRecord(t *testing.T, store transaction.Store, key string,
	retryCount int, errorKind string) {
	t.Helper()
	results := map[string]interface{}{
		"workflow_result": map[string]interface{}{
			"status":      "failed",
			"error_kinds": map[string]interface{}{"arca_login": errorKind},
		},
	}
	if retryCount > 0 {
		results["retry_count"] = float64(retryCount)
	}
	require.NoError(t, store.Create(context.Background(), &transaction.Record{
		Key:         key,
		ExchangeID:  "run-" + key,
		Status:      workflow.StatusFailed,
		RequestData: ccmaRequestData(),
		Results:     results,
		TTLSeconds:  3600,
	}))
}

func newSweeper(h *testHarness, maxAttempts int) *RetrySweeper {
	return NewRetrySweeper(h.store, h.orchestrator, nil, nil, maxAttempts)
}

func TestSweepRedispatchesRetryableFailure(t *testing.T) {
	h := newHarness(t)
	createFailedRecord(t, h.store, "entry-1", 0, core.KindBrowserSession)

	stats, err := newSweeper(h, 3).Sweep(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, RetryStats{TotalFound: 1, RetryInitiated: 1, RetryFailed: 0}, stats)

	h.orchestrator.Wait()

	rec, err := h.store.Get(context.Background(), "entry-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, rec.Status, "re-dispatched run must execute to completion")
	assert.EqualValues(t, 1, rec.Results["retry_count"])

	published := h.publisher.published()
	require.Len(t, published, 1)
	assert.Equal(t, "run-entry-1", published[0].ExchangeID, "retry keeps the original run id")
	assert.True(t, published[0].Success)
}

func TestSweepSkipsNonRetryableFailure(t *testing.T) {
	h := newHarness(t)
	createFailedRecord(t, h.store, "entry-1", 0, core.KindValidation)

	stats, err := newSweeper(h, 3).Sweep(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, RetryStats{TotalFound: 1, RetryInitiated: 0, RetryFailed: 0}, stats)

	rec, err := h.store.Get(context.Background(), "entry-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusFailed, rec.Status)
}

func TestSweepSkipsExhaustedRetryBudget(t *testing.T) {
	h := newHarness(t)
	createFailedRecord(t, h.store, "entry-1", 3, core.KindConnection)

	stats, err := newSweeper(h, 3).Sweep(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, RetryStats{TotalFound: 1, RetryInitiated: 0, RetryFailed: 0}, stats)
}

func TestSweepMaxRetriesOverrideExtendsBudget(t *testing.T) {
	h := newHarness(t)
	createFailedRecord(t, h.store, "entry-1", 3, core.KindConnection)

	stats, err := newSweeper(h, 3).Sweep(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RetryInitiated)
	h.orchestrator.Wait()

	rec, err := h.store.Get(context.Background(), "entry-1")
	require.NoError(t, err)
	assert.EqualValues(t, 4, rec.Results["retry_count"])
}

func TestSweepIgnoresRecordsWithoutDispatchKind(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Create(context.Background(), &transaction.Record{
		Key:        "run-1",
		ExchangeID: "run-1",
		Status:     workflow.StatusFailed,
		RequestData: map[string]interface{}{
			"credentials": map[string]interface{}{"cuit": "20429994323", "password": "p"},
			"data":        map[string]interface{}{"entries": []interface{}{}},
		},
		Results: map[string]interface{}{
			"workflow_result": map[string]interface{}{
				"error_kinds": map[string]interface{}{"arca_login": core.KindConnection},
			},
		},
		TTLSeconds: 3600,
	}))

	stats, err := newSweeper(h, 3).Sweep(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, RetryStats{}, stats, "aggregate records are not dispatch units")
}

func TestSweepBareFailureShapeIsEligible(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Create(context.Background(), &transaction.Record{
		Key:         "entry-1",
		ExchangeID:  "run-1",
		Status:      workflow.StatusFailed,
		RequestData: ccmaRequestData(),
		Results: map[string]interface{}{
			"error_kinds": map[string]interface{}{"workflow_error": core.KindInfrastructure},
		},
		TTLSeconds: 3600,
	}))

	stats, err := newSweeper(h, 3).Sweep(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RetryInitiated)
	h.orchestrator.Wait()
}

func TestSweepDispatchFailureCounted(t *testing.T) {
	h := newHarness(t)
	data := ccmaRequestData()
	delete(data, "credentials")
	require.NoError(t, h.store.Create(context.Background(), &transaction.Record{
		Key:         "entry-1",
		ExchangeID:  "run-1",
		Status:      workflow.StatusFailed,
		RequestData: data,
		Results: map[string]interface{}{
			"workflow_result": map[string]interface{}{
				"error_kinds": map[string]interface{}{"arca_login": core.KindTimeout},
			},
		},
		TTLSeconds: 3600,
	}))

	stats, err := newSweeper(h, 3).Sweep(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, RetryStats{TotalFound: 1, RetryInitiated: 0, RetryFailed: 1}, stats)
}
