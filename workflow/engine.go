package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/vepflow/vepflow/core"
)

// StepMetrics receives per-step and per-run outcomes. The telemetry
// package provides the production implementation; tests pass nil.
type StepMetrics interface {
	RecordWorkflowStep(workflowType, stepName, status string)
	RecordWorkflowRun(workflowType, status string, duration time.Duration)
}

// Result is the terminal summary of one workflow run. It is serialized
// into the run record's results map under "workflow_result".
type Result struct {
	WorkflowName   string                 `json:"workflow_name"`
	Status         Status                 `json:"status"`
	StepsCompleted int                    `json:"steps_completed"`
	StepsFailed    int                    `json:"steps_failed"`
	StepsSkipped   int                    `json:"steps_skipped"`
	TotalSteps     int                    `json:"total_steps"`
	Results        map[string]interface{} `json:"results"`
	Errors         map[string]string      `json:"errors"`
	ErrorKinds     map[string]string      `json:"error_kinds"`
	StartedAt      time.Time              `json:"started_at"`
	CompletedAt    time.Time              `json:"completed_at"`
	DurationSec    float64                `json:"duration_seconds"`
}

// Engine executes workflows step by step in dependency order.
type Engine struct {
	Logger     core.Logger
	Metrics    StepMetrics
	RetrySleep time.Duration
}

// NewEngine creates an engine with the standard 500ms inter-attempt
// pause.
func NewEngine(logger core.Logger, metrics StepMetrics) *Engine {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Engine{
		Logger:     logger,
		Metrics:    metrics,
		RetrySleep: 500 * time.Millisecond,
	}
}

// Execute runs the workflow to completion and returns its result. The
// run's resources are cleaned up on every exit path. A cycle or unknown
// dependency fails the run before any step executes.
func (e *Engine) Execute(ctx context.Context, w *Workflow) *Result {
	w.Reset()
	w.Status = StatusRunning
	w.Resources.ExchangeID = core.ExchangeID(ctx)

	result := &Result{
		WorkflowName: w.Kind,
		TotalSteps:   w.Len(),
		Results:      make(map[string]interface{}),
		Errors:       make(map[string]string),
		ErrorKinds:   make(map[string]string),
		StartedAt:    time.Now().UTC(),
	}
	defer func() {
		result.CompletedAt = time.Now().UTC()
		result.DurationSec = result.CompletedAt.Sub(result.StartedAt).Seconds()
		if err := w.Resources.Cleanup(); err != nil {
			e.Logger.WarnWithContext(ctx, "resource cleanup failed", map[string]interface{}{
				"workflow": w.Kind,
				"error":    err,
			})
		}
		if e.Metrics != nil {
			e.Metrics.RecordWorkflowRun(w.TypeLabel(), string(result.Status),
				result.CompletedAt.Sub(result.StartedAt))
		}
	}()

	order, err := w.ExecutionOrder()
	if err != nil {
		w.Status = StatusFailed
		result.Status = StatusFailed
		result.Errors["orchestrator"] = err.Error()
		result.ErrorKinds["orchestrator"] = core.ErrorKind(err)
		e.Logger.ErrorWithContext(ctx, "workflow has an invalid step graph", map[string]interface{}{
			"workflow": w.Kind,
			"error":    err,
		})
		return result
	}

	e.Logger.InfoWithContext(ctx, "workflow started", map[string]interface{}{
		"workflow":    w.Kind,
		"total_steps": result.TotalSteps,
		"order":       order,
	})

	var requiredFailed bool
	for i, name := range order {
		step := w.Step(name)

		if e.shouldSkip(w, step) {
			step.Status = StepSkipped
			result.StepsSkipped++
			e.Logger.WarnWithContext(ctx, "step skipped: required dependency failed", map[string]interface{}{
				"workflow": w.Kind,
				"step":     step.Name,
			})
			e.recordStep(w, step.Name, "skipped")
			continue
		}

		if err := e.executeStep(ctx, w, step); err != nil {
			step.Status = StepFailed
			step.Err = err
			result.StepsFailed++
			result.Errors[step.Name] = err.Error()
			result.ErrorKinds[step.Name] = core.ErrorKind(err)
			e.recordStep(w, step.Name, "failed")
			e.Logger.ErrorWithContext(ctx, "step failed", map[string]interface{}{
				"workflow": w.Kind,
				"step":     step.Name,
				"attempts": step.RetryCount,
				"kind":     core.ErrorKind(err),
				"error":    err,
			})
			// A required failure is fatal: the rest of the plan is
			// abandoned, dependent or not.
			if step.Required {
				requiredFailed = true
				e.abortRemaining(ctx, w, result, order[i+1:])
				break
			}
			continue
		}

		step.Status = StepCompleted
		result.StepsCompleted++
		e.recordStep(w, step.Name, "completed")
	}

	if requiredFailed {
		w.Status = StatusFailed
		result.Status = StatusFailed
	} else {
		w.Status = StatusCompleted
		result.Status = StatusCompleted
	}
	for k, v := range w.Resources.ResultValues() {
		result.Results[k] = v
	}

	e.Logger.InfoWithContext(ctx, "workflow finished", map[string]interface{}{
		"workflow":        w.Kind,
		"status":          result.Status,
		"steps_completed": result.StepsCompleted,
		"steps_failed":    result.StepsFailed,
		"steps_skipped":   result.StepsSkipped,
	})
	return result
}

// abortRemaining marks every step not yet reached as skipped after a
// fatal failure.
func (e *Engine) abortRemaining(ctx context.Context, w *Workflow, result *Result, rest []string) {
	if len(rest) == 0 {
		return
	}
	for _, name := range rest {
		step := w.Step(name)
		step.Status = StepSkipped
		result.StepsSkipped++
		e.recordStep(w, step.Name, "skipped")
	}
	e.Logger.WarnWithContext(ctx, "required step failed, aborting remaining steps", map[string]interface{}{
		"workflow": w.Kind,
		"skipped":  len(rest),
	})
}

// shouldSkip reports whether any required dependency of the step ended
// in a failed state.
func (e *Engine) shouldSkip(w *Workflow, step *Step) bool {
	for _, dep := range step.DependsOn {
		depStep := w.Step(dep)
		if depStep == nil {
			continue
		}
		if depStep.Required && (depStep.Status == StepFailed || depStep.Status == StepSkipped) {
			return true
		}
	}
	return false
}

// executeStep runs one step with up to RetryCount attempts, pausing
// RetrySleep between attempts. Every attempt is bounded by the step's
// watchdog timeout; an attempt that outlives it counts as failed with a
// timeout error while the abandoned handler finishes in the background.
func (e *Engine) executeStep(ctx context.Context, w *Workflow, step *Step) error {
	step.Status = StepRunning
	step.StartedAt = time.Now().UTC()
	defer func() { step.CompletedAt = time.Now().UTC() }()

	var lastErr error
	for attempt := 1; attempt <= step.RetryCount; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("step %s cancelled: %w", step.Name, core.ErrTimeout)
		}

		lastErr = e.runAttempt(ctx, step)
		if lastErr == nil {
			if attempt > 1 {
				e.Logger.InfoWithContext(ctx, "step succeeded after retry", map[string]interface{}{
					"workflow": w.Kind,
					"step":     step.Name,
					"attempt":  attempt,
				})
			}
			return nil
		}

		e.Logger.WarnWithContext(ctx, "step attempt failed", map[string]interface{}{
			"workflow": w.Kind,
			"step":     step.Name,
			"attempt":  attempt,
			"attempts": step.RetryCount,
			"error":    lastErr,
		})
		if attempt < step.RetryCount {
			e.recordStep(w, step.Name, "retry")
			time.Sleep(e.RetrySleep)
		}
	}
	return lastErr
}

func (e *Engine) runAttempt(ctx context.Context, step *Step) error {
	done := make(chan error, 1)
	go func() {
		done <- step.Handler(ctx)
	}()

	timer := time.NewTimer(step.Timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("step %s exceeded %s: %w", step.Name, step.Timeout, core.ErrTimeout)
	case <-ctx.Done():
		return fmt.Errorf("step %s cancelled: %w", step.Name, core.ErrTimeout)
	}
}

func (e *Engine) recordStep(w *Workflow, stepName, status string) {
	if e.Metrics != nil {
		e.Metrics.RecordWorkflowStep(w.TypeLabel(), stepName, status)
	}
}
