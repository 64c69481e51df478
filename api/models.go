// Package api exposes the intake HTTP surface: workflow execution,
// run status, retry sweeps and system endpoints, plus the application
// service behind them.
package api

import "github.com/vepflow/vepflow/vep"

// EntryStatus reports the intake outcome of one entry.
type EntryStatus struct {
	TransactionKey string `json:"transaction_key"`
	ExchangeID     string `json:"exchange_id"`
	Status         string `json:"status"`
}

// Counts summarizes an intake request.
type Counts struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Duplicate int `json:"duplicate"`
}

// ExecutionResponse is the intake success payload. ExchangeID is empty
// when every entry was a duplicate and no run started.
type ExecutionResponse struct {
	ExchangeID string        `json:"exchange_id,omitempty"`
	Processed  []EntryStatus `json:"processed"`
	Duplicates []EntryStatus `json:"duplicates"`
	Counts     Counts        `json:"counts"`
}

// DuplicateResponse is the 409 payload for a workflow-level duplicate.
type DuplicateResponse struct {
	TransactionHash    string `json:"transaction_hash"`
	ExistingExchangeID string `json:"existing_exchange_id"`
	Error              string `json:"error"`
}

// StatusResponse reports a run's stored state. StartedAt and
// CompletedAt are present once the step engine has produced a result.
type StatusResponse struct {
	ExchangeID  string                 `json:"exchange_id"`
	Status      string                 `json:"status"`
	StartedAt   string                 `json:"started_at,omitempty"`
	CompletedAt string                 `json:"completed_at,omitempty"`
	CreatedAt   string                 `json:"created_at,omitempty"`
	UpdatedAt   string                 `json:"updated_at,omitempty"`
	Results     map[string]interface{} `json:"results,omitempty"`
	Errors      map[string]interface{} `json:"errors,omitempty"`
}

// ResultsEnvelope is the structured success payload derived by the
// monitor from a finished run.
type ResultsEnvelope struct {
	PDF        *vep.FileData `json:"pdf,omitempty"`
	PNG        *vep.FileData `json:"png,omitempty"`
	PaymentURL string        `json:"payment_url,omitempty"`
}

// ErrorResponse is the generic error payload.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status      string `json:"status"`
	Environment string `json:"environment"`
}
