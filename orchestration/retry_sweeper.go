package orchestration

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vepflow/vepflow/core"
	"github.com/vepflow/vepflow/transaction"
	"github.com/vepflow/vepflow/workflow"
)

// RetryMetrics counts re-dispatched runs.
type RetryMetrics interface {
	RecordRetry(workflowType string)
}

// RetryStats summarizes one sweep.
type RetryStats struct {
	TotalFound     int `json:"total_found"`
	RetryInitiated int `json:"retry_initiated"`
	RetryFailed    int `json:"retry_failed"`
}

// RetrySweeper re-dispatches failed runs whose recorded failure kinds
// are transient. Eligibility is decided on the persisted error kinds,
// never on message text, and each record is retried at most MaxAttempts
// times.
type RetrySweeper struct {
	store        transaction.Store
	orchestrator *Orchestrator
	metrics      RetryMetrics
	logger       core.Logger
	maxAttempts  int
}

// NewRetrySweeper creates a sweeper. metrics may be nil.
func NewRetrySweeper(store transaction.Store, orchestrator *Orchestrator, metrics RetryMetrics,
	logger core.Logger, maxAttempts int) *RetrySweeper {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &RetrySweeper{
		store:        store,
		orchestrator: orchestrator,
		metrics:      metrics,
		logger:       logger,
		maxAttempts:  maxAttempts,
	}
}

// Sweep scans every failed record and re-dispatches the eligible ones.
// maxRetries overrides the configured attempt budget when positive.
// Records without stored request data cannot be reconstructed and are
// counted but skipped.
func (s *RetrySweeper) Sweep(ctx context.Context, maxRetries int) (RetryStats, error) {
	var stats RetryStats
	if maxRetries <= 0 {
		maxRetries = s.maxAttempts
	}

	failed, err := s.store.GetByStatus(ctx, workflow.StatusFailed)
	if err != nil {
		return stats, fmt.Errorf("scanning failed runs: %w", err)
	}

	for _, rec := range failed {
		kind, _ := rec.RequestData["kind"].(string)
		if kind == "" {
			continue
		}
		stats.TotalFound++

		if !s.eligible(rec, maxRetries) {
			continue
		}

		if err := s.dispatch(ctx, rec, kind); err != nil {
			stats.RetryFailed++
			s.logger.ErrorWithContext(ctx, "retry dispatch failed", map[string]interface{}{
				"key":      rec.Key,
				"workflow": kind,
				"error":    err,
			})
			continue
		}
		stats.RetryInitiated++
		if s.metrics != nil {
			s.metrics.RecordRetry(workflow.TypeLabel(kind))
		}
	}

	s.logger.InfoWithContext(ctx, "retry sweep finished", map[string]interface{}{
		"total_found":     stats.TotalFound,
		"retry_initiated": stats.RetryInitiated,
		"retry_failed":    stats.RetryFailed,
	})
	return stats, nil
}

// eligible reports whether the record failed for a transient reason and
// still has retry budget.
func (s *RetrySweeper) eligible(rec *transaction.Record, maxRetries int) bool {
	if retryCount(rec) >= maxRetries {
		return false
	}
	for _, kind := range failureKinds(rec) {
		if core.KindIsRetryable(kind) {
			return true
		}
	}
	return false
}

func (s *RetrySweeper) dispatch(ctx context.Context, rec *transaction.Record, kind string) error {
	params, err := paramsFromRecord(rec, kind)
	if err != nil {
		return err
	}

	attempts := retryCount(rec) + 1
	if err := s.store.UpdateStatus(ctx, rec.Key, workflow.StatusPending,
		map[string]interface{}{"retry_count": attempts}); err != nil {
		return err
	}

	s.logger.InfoWithContext(ctx, "re-dispatching failed run", map[string]interface{}{
		"key":      rec.Key,
		"workflow": kind,
		"attempt":  attempts,
	})
	return s.orchestrator.ExecuteAsync(ctx, kind, params, RunOptions{
		ExchangeID: rec.ExchangeID,
		RecordKey:  rec.Key,
	})
}

// retryCount reads the persisted retry counter; JSON numbers come back
// as float64 from both store backends.
func retryCount(rec *transaction.Record) int {
	switch v := rec.Results["retry_count"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// failureKinds collects the persisted error kinds from the terminal
// result, covering both the engine's result shape and the bare failure
// shape written when a run dies before producing one.
func failureKinds(rec *transaction.Record) []string {
	var out []string
	collect := func(m map[string]interface{}) {
		for _, v := range m {
			if kind, ok := v.(string); ok {
				out = append(out, kind)
			}
		}
	}
	if kinds, ok := rec.Results["error_kinds"].(map[string]interface{}); ok {
		collect(kinds)
	}
	if result, ok := rec.Results["workflow_result"].(map[string]interface{}); ok {
		if kinds, ok := result["error_kinds"].(map[string]interface{}); ok {
			collect(kinds)
		}
	}
	return out
}

// paramsFromRecord rebuilds the typed workflow parameters from the
// stored request data.
func paramsFromRecord(rec *transaction.Record, kind string) (interface{}, error) {
	var stored struct {
		Credentials struct {
			CUIT     string `json:"cuit"`
			Password string `json:"password"`
		} `json:"credentials"`
		Data json.RawMessage `json:"data"`
	}
	if err := decodeInto(rec.RequestData, &stored); err != nil {
		return nil, fmt.Errorf("decoding request data for %s: %w", rec.Key, err)
	}
	if stored.Credentials.CUIT == "" {
		return nil, fmt.Errorf("record %s has no stored credentials: %w", rec.Key, core.ErrMissingConfiguration)
	}

	switch kind {
	case workflow.KindCCMA:
		var entry struct {
			PeriodFrom       string `json:"period_from"`
			PeriodTo         string `json:"period_to"`
			CalculationDate  string `json:"calculation_date"`
			FormPayment      string `json:"form_payment"`
			ExpirationDate   string `json:"expiration_date"`
			TaxpayerType     string `json:"taxpayer_type"`
			TaxType          string `json:"tax_type"`
			IncludeInterests bool   `json:"include_interests"`
		}
		if err := json.Unmarshal(stored.Data, &entry); err != nil {
			return nil, fmt.Errorf("decoding entry data for %s: %w", rec.Key, err)
		}
		return workflow.CCMAParams{
			CUIT:             stored.Credentials.CUIT,
			Password:         stored.Credentials.Password,
			PeriodFrom:       entry.PeriodFrom,
			PeriodTo:         entry.PeriodTo,
			CalculationDate:  entry.CalculationDate,
			FormPayment:      entry.FormPayment,
			ExpirationDate:   entry.ExpirationDate,
			TaxpayerType:     entry.TaxpayerType,
			TaxType:          entry.TaxType,
			IncludeInterests: entry.IncludeInterests,
			Headless:         true,
		}, nil
	case workflow.KindDDJJ:
		var data struct {
			Entries json.RawMessage `json:"entries"`
		}
		if err := json.Unmarshal(stored.Data, &data); err != nil {
			return nil, fmt.Errorf("decoding entry data for %s: %w", rec.Key, err)
		}
		params := workflow.DDJJParams{
			CUIT:     stored.Credentials.CUIT,
			Password: stored.Credentials.Password,
			Headless: true,
		}
		if err := json.Unmarshal(data.Entries, &params.Entries); err != nil {
			return nil, fmt.Errorf("decoding entries for %s: %w", rec.Key, err)
		}
		return params, nil
	}
	return nil, fmt.Errorf("workflow %q: %w", kind, core.ErrUnknownWorkflow)
}

func decodeInto(m map[string]interface{}, out interface{}) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
