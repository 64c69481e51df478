// Package events publishes workflow lifecycle events to downstream
// consumers. The production publisher writes to Kafka; a log publisher
// stands in when no broker is configured.
package events

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"time"
)

// WorkflowFinishedEvent is emitted exactly once per run when it reaches
// a terminal state.
type WorkflowFinishedEvent struct {
	ExchangeID   string                 `json:"exchange_id"`
	WorkflowType string                 `json:"workflow_type"`
	Timestamp    string                 `json:"timestamp"`
	Success      bool                   `json:"success"`
	Response     map[string]interface{} `json:"response,omitempty"`
	ErrorDetails map[string]interface{} `json:"error_details,omitempty"`
	PDFContent   string                 `json:"pdf_content,omitempty"`
}

// NewWorkflowFinishedEvent stamps the event with the current time.
func NewWorkflowFinishedEvent(exchangeID, workflowType string, success bool) *WorkflowFinishedEvent {
	return &WorkflowFinishedEvent{
		ExchangeID:   exchangeID,
		WorkflowType: workflowType,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		Success:      success,
	}
}

// AddPDFFromFile attaches the payment slip PDF as base64 content.
func (e *WorkflowFinishedEvent) AddPDFFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading pdf %s: %w", path, err)
	}
	e.PDFContent = base64.StdEncoding.EncodeToString(data)
	return nil
}

// PDFSizeKB returns the approximate decoded size of the attached PDF.
func (e *WorkflowFinishedEvent) PDFSizeKB() int {
	if e.PDFContent == "" {
		return 0
	}
	return base64.StdEncoding.DecodedLen(len(e.PDFContent)) / 1024
}

// Publisher delivers terminal workflow events. Publish failures must
// never fail the workflow that produced the event.
type Publisher interface {
	PublishWorkflowFinished(ctx context.Context, event *WorkflowFinishedEvent) error
	Close() error
}
