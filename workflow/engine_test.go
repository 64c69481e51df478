package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vepflow/vepflow/core"
)

type recordingMetrics struct {
	mu    sync.Mutex
	steps []string
	runs  []string
}

func (m *recordingMetrics) RecordWorkflowStep(workflowType, stepName, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, stepName+":"+status)
}

func (m *recordingMetrics) RecordWorkflowRun(workflowType, status string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, workflowType+":"+status)
}

func newTestEngine() *Engine {
	e := NewEngine(nil, nil)
	e.RetrySleep = 0
	return e
}

func noopStep(name string, deps ...string) *Step {
	return &Step{
		Name:      name,
		Required:  true,
		DependsOn: deps,
		Handler:   func(ctx context.Context) error { return nil },
	}
}

func TestExecutionOrderRespectsDependencies(t *testing.T) {
	w := New("test_workflow", "Test", "")
	w.AddStep(noopStep("c", "b"))
	w.AddStep(noopStep("a"))
	w.AddStep(noopStep("b", "a"))

	order, err := w.ExecutionOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestExecutionOrderInsertionOrderTieBreak(t *testing.T) {
	w := New("test_workflow", "Test", "")
	w.AddStep(noopStep("second"))
	w.AddStep(noopStep("first"))

	order, err := w.ExecutionOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"second", "first"}, order)
}

func TestCyclicDependencyFailsFast(t *testing.T) {
	var ran bool
	w := New("test_workflow", "Test", "")
	w.AddStep(&Step{
		Name: "a", Required: true, DependsOn: []string{"b"},
		Handler: func(ctx context.Context) error { ran = true; return nil },
	})
	w.AddStep(&Step{
		Name: "b", Required: true, DependsOn: []string{"a"},
		Handler: func(ctx context.Context) error { ran = true; return nil },
	})

	result := newTestEngine().Execute(context.Background(), w)

	assert.Equal(t, StatusFailed, result.Status)
	assert.False(t, ran, "no step may run when the graph is cyclic")
	require.Contains(t, result.Errors, "orchestrator")
	assert.Contains(t, result.Errors["orchestrator"], "circular dependency")
	assert.Equal(t, core.KindSystem, result.ErrorKinds["orchestrator"])
}

func TestUnknownDependencyFailsFast(t *testing.T) {
	w := New("test_workflow", "Test", "")
	w.AddStep(noopStep("a", "ghost"))

	result := newTestEngine().Execute(context.Background(), w)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Contains(t, result.Errors["orchestrator"], "ghost")
}

func TestStepRetriesThenSucceeds(t *testing.T) {
	attempts := 0
	w := New("test_workflow", "Test", "")
	w.AddStep(&Step{
		Name:       "flaky",
		Required:   true,
		RetryCount: 3,
		Handler: func(ctx context.Context) error {
			attempts++
			if attempts < 3 {
				return core.ErrConnectionFailed
			}
			return nil
		},
	})

	result := newTestEngine().Execute(context.Background(), w)

	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 1, result.StepsCompleted)
	assert.Empty(t, result.Errors)
}

func TestStepFailsAfterExhaustingRetries(t *testing.T) {
	attempts := 0
	w := New("test_workflow", "Test", "")
	w.AddStep(&Step{
		Name:       "broken",
		Required:   true,
		RetryCount: 3,
		Handler: func(ctx context.Context) error {
			attempts++
			return core.ErrTimeout
		},
	})

	result := newTestEngine().Execute(context.Background(), w)

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, core.KindTimeout, result.ErrorKinds["broken"])
}

func TestRequiredFailureSkipsDependents(t *testing.T) {
	var downstreamRan bool
	w := New("test_workflow", "Test", "")
	w.AddStep(&Step{
		Name: "login", Required: true, RetryCount: 1,
		Handler: func(ctx context.Context) error { return core.ErrBrowserSessionNotCreated },
	})
	w.AddStep(&Step{
		Name: "navigate", Required: true, DependsOn: []string{"login"},
		Handler: func(ctx context.Context) error { downstreamRan = true; return nil },
	})
	w.AddStep(&Step{
		Name: "generate", Required: true, DependsOn: []string{"navigate"},
		Handler: func(ctx context.Context) error { downstreamRan = true; return nil },
	})

	result := newTestEngine().Execute(context.Background(), w)

	assert.Equal(t, StatusFailed, result.Status)
	assert.False(t, downstreamRan)
	assert.Equal(t, StepFailed, w.Step("login").Status)
	assert.Equal(t, StepSkipped, w.Step("navigate").Status)
	assert.Equal(t, StepSkipped, w.Step("generate").Status)
	assert.Equal(t, 2, result.StepsSkipped)
}

func TestNonRequiredFailureDoesNotFailRun(t *testing.T) {
	var mainRan bool
	w := New("test_workflow", "Test", "")
	w.AddStep(&Step{
		Name: "optional", Required: false, RetryCount: 1,
		Handler: func(ctx context.Context) error { return errors.New("best effort only") },
	})
	w.AddStep(&Step{
		Name: "main", Required: true,
		Handler: func(ctx context.Context) error { mainRan = true; return nil },
	})

	result := newTestEngine().Execute(context.Background(), w)

	assert.Equal(t, StatusCompleted, result.Status, "only required failures are fatal")
	assert.True(t, mainRan)
	assert.Equal(t, 1, result.StepsFailed)
	assert.Contains(t, result.Errors, "optional")
}

func TestRequiredFailureAbortsIndependentSteps(t *testing.T) {
	var independentRan bool
	w := New("test_workflow", "Test", "")
	w.AddStep(&Step{
		Name: "fatal", Required: true, RetryCount: 1,
		Handler: func(ctx context.Context) error { return core.ErrServiceUnavailable },
	})
	w.AddStep(&Step{
		Name: "independent", Required: true,
		Handler: func(ctx context.Context) error { independentRan = true; return nil },
	})

	result := newTestEngine().Execute(context.Background(), w)

	assert.Equal(t, StatusFailed, result.Status)
	assert.False(t, independentRan, "a fatal failure abandons steps that do not depend on it")
	assert.Equal(t, StepSkipped, w.Step("independent").Status)
	assert.Equal(t, 1, result.StepsSkipped)
}

func TestNonRequiredDependencyFailureDoesNotSkip(t *testing.T) {
	var mainRan bool
	w := New("test_workflow", "Test", "")
	w.AddStep(&Step{
		Name: "optional", Required: false, RetryCount: 1,
		Handler: func(ctx context.Context) error { return errors.New("ignored") },
	})
	w.AddStep(&Step{
		Name: "main", Required: true, DependsOn: []string{"optional"},
		Handler: func(ctx context.Context) error { mainRan = true; return nil },
	})

	newTestEngine().Execute(context.Background(), w)
	assert.True(t, mainRan, "non-required dependency failure must not skip dependents")
	assert.Equal(t, StepCompleted, w.Step("main").Status)
}

func TestStepWatchdogTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	w := New("test_workflow", "Test", "")
	w.AddStep(&Step{
		Name: "stuck", Required: true, RetryCount: 1, Timeout: 20 * time.Millisecond,
		Handler: func(ctx context.Context) error {
			<-release
			return nil
		},
	})

	result := newTestEngine().Execute(context.Background(), w)

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, core.KindTimeout, result.ErrorKinds["stuck"])
}

func TestResultsCopyAllowList(t *testing.T) {
	w := New("test_workflow", "Test", "")
	w.AddStep(&Step{
		Name: "produce", Required: true,
		Handler: func(ctx context.Context) error { return nil },
	})
	// Simulate a handler populating the resource bag.
	step := w.Step("produce")
	original := step.Handler
	step.Handler = func(ctx context.Context) error {
		w.Resources.Artifacts.PDFFilename = "vep.pdf"
		w.Resources.Artifacts.PaymentURL = "https://pagos.example/qr"
		return original(ctx)
	}

	result := newTestEngine().Execute(context.Background(), w)

	require.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, "vep.pdf", result.Results["vep_pdf_filename"])
	assert.Equal(t, "https://pagos.example/qr", result.Results["payment_url"])
	assert.NotContains(t, result.Results, "vep_qr_filename")
}

func TestEngineRecordsMetrics(t *testing.T) {
	metrics := &recordingMetrics{}
	engine := NewEngine(nil, metrics)
	engine.RetrySleep = 0

	w := New("ccma_workflow", "Test", "")
	w.AddStep(noopStep("one"))
	engine.Execute(context.Background(), w)

	assert.Contains(t, metrics.steps, "one:completed")
	assert.Contains(t, metrics.runs, "ccma:completed")
}

func TestRetryAttemptsRecorded(t *testing.T) {
	metrics := &recordingMetrics{}
	engine := NewEngine(nil, metrics)
	engine.RetrySleep = 0

	attempts := 0
	w := New("ccma_workflow", "Test", "")
	w.AddStep(&Step{
		Name: "flaky", Required: true, RetryCount: 3,
		Handler: func(ctx context.Context) error {
			attempts++
			if attempts < 3 {
				return core.ErrConnectionFailed
			}
			return nil
		},
	})
	engine.Execute(context.Background(), w)

	assert.Equal(t, []string{"flaky:retry", "flaky:retry", "flaky:completed"}, metrics.steps)
}

func TestResultTimestamps(t *testing.T) {
	w := New("test_workflow", "Test", "")
	w.AddStep(noopStep("one"))

	result := newTestEngine().Execute(context.Background(), w)
	assert.False(t, result.StartedAt.IsZero())
	assert.False(t, result.CompletedAt.Before(result.StartedAt))
	assert.GreaterOrEqual(t, result.DurationSec, 0.0)
}
