package events

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkflowFinishedEventStampsTimestamp(t *testing.T) {
	e := NewWorkflowFinishedEvent("run-1", "ccma", true)
	assert.Equal(t, "run-1", e.ExchangeID)
	assert.Equal(t, "ccma", e.WorkflowType)
	assert.True(t, e.Success)
	assert.NotEmpty(t, e.Timestamp)
}

func TestEventJSONFieldNames(t *testing.T) {
	e := NewWorkflowFinishedEvent("run-1", "ddjj", false)
	e.ErrorDetails = map[string]interface{}{"errors": map[string]interface{}{"arca_login": "timed out"}}

	data, err := json.Marshal(e)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-1", decoded["exchange_id"])
	assert.Equal(t, "ddjj", decoded["workflow_type"])
	assert.Equal(t, false, decoded["success"])
	assert.Contains(t, decoded, "error_details")
	assert.NotContains(t, decoded, "response", "empty optional fields stay off the wire")
	assert.NotContains(t, decoded, "pdf_content")
}

func TestAddPDFFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vep.pdf")
	content := []byte("%PDF-1.4 payment slip")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	e := NewWorkflowFinishedEvent("run-1", "ccma", true)
	require.NoError(t, e.AddPDFFromFile(path))

	decoded, err := base64.StdEncoding.DecodeString(e.PDFContent)
	require.NoError(t, err)
	assert.Equal(t, content, decoded)
}

func TestAddPDFFromMissingFile(t *testing.T) {
	e := NewWorkflowFinishedEvent("run-1", "ccma", true)
	err := e.AddPDFFromFile(filepath.Join(t.TempDir(), "missing.pdf"))
	require.Error(t, err)
	assert.Empty(t, e.PDFContent)
}

func TestPDFSizeKB(t *testing.T) {
	e := NewWorkflowFinishedEvent("run-1", "ccma", true)
	assert.Equal(t, 0, e.PDFSizeKB())

	e.PDFContent = base64.StdEncoding.EncodeToString(make([]byte, 4096))
	assert.Equal(t, 4, e.PDFSizeKB())
}

func TestLogPublisherNeverFails(t *testing.T) {
	p := NewLogPublisher(nil)
	assert.NoError(t, p.PublishWorkflowFinished(context.Background(), NewWorkflowFinishedEvent("run-1", "ccma", true)))
	assert.NoError(t, p.Close())
}
