// Package workflow implements the step engine and the concrete workflow
// definitions that drive the tax portal. A workflow is a named DAG of
// steps; the engine executes them in dependency order with per-step
// retries, skip-on-failed-dependency semantics and unconditional
// resource cleanup.
package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vepflow/vepflow/core"
	"github.com/vepflow/vepflow/portal"
)

// Status is the lifecycle state of a workflow run.
type Status string

const (
	StatusCreated   Status = "created"
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether the status is a terminal state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// StepStatus is the transient state of a single step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// HandlerFunc is the unit of work bound to a step. A nil return means the
// step succeeded; any error counts as a failed attempt and is retained
// for retry classification.
type HandlerFunc func(ctx context.Context) error

// Step is a single named operation in a workflow graph.
type Step struct {
	Name        string
	Description string
	Handler     HandlerFunc
	DependsOn   []string
	RetryCount  int
	Timeout     time.Duration
	Required    bool

	Status      StepStatus
	Err         error
	StartedAt   time.Time
	CompletedAt time.Time
}

// Resources is the per-run scratch bag through which steps exchange
// service handles and derived artifacts. It is owned exclusively by the
// run's task; Cleanup runs on every exit path of the engine.
type Resources struct {
	ExchangeID string

	Session      portal.Session
	Account      portal.AccountService
	Declarations portal.DeclarationService

	CUIT           string
	ExpirationDate string
	VEPFilePath    string
	Artifacts      portal.PaymentArtifacts
}

// ResultValues returns the allow-listed values copied into the run's
// results map. Service handles never leak through here.
func (r *Resources) ResultValues() map[string]interface{} {
	out := make(map[string]interface{})
	if r.Artifacts.PDFFilename != "" {
		out["vep_pdf_filename"] = r.Artifacts.PDFFilename
	}
	if r.Artifacts.PDFPath != "" {
		out["vep_pdf_path"] = r.Artifacts.PDFPath
	}
	if r.Artifacts.QRFilename != "" {
		out["vep_qr_filename"] = r.Artifacts.QRFilename
	}
	if r.Artifacts.QRPath != "" {
		out["vep_qr_path"] = r.Artifacts.QRPath
	}
	if r.Artifacts.PaymentURL != "" {
		out["payment_url"] = r.Artifacts.PaymentURL
	}
	return out
}

// Cleanup releases browser resources held by the run.
func (r *Resources) Cleanup() error {
	if r.Session != nil {
		return r.Session.Close()
	}
	return nil
}

// Workflow is a named set of steps with unique names and a dependency
// relation that must form a DAG.
type Workflow struct {
	Kind        string
	Name        string
	Description string
	Status      Status
	Resources   *Resources

	steps map[string]*Step
	order []string
}

// New creates an empty workflow of the given kind.
func New(kind, name, description string) *Workflow {
	return &Workflow{
		Kind:        kind,
		Name:        name,
		Description: description,
		Status:      StatusPending,
		Resources:   &Resources{},
		steps:       make(map[string]*Step),
	}
}

// AddStep registers a step, applying defaults: required, 3 attempts,
// 300s advisory timeout. Re-adding a name replaces the step in place.
func (w *Workflow) AddStep(step *Step) {
	if step.RetryCount <= 0 {
		step.RetryCount = 3
	}
	if step.Timeout <= 0 {
		step.Timeout = 300 * time.Second
	}
	step.Status = StepPending
	if _, exists := w.steps[step.Name]; !exists {
		w.order = append(w.order, step.Name)
	}
	w.steps[step.Name] = step
}

// Step returns the named step, or nil.
func (w *Workflow) Step(name string) *Step {
	return w.steps[name]
}

// Steps returns the steps in insertion order.
func (w *Workflow) Steps() []*Step {
	out := make([]*Step, 0, len(w.order))
	for _, name := range w.order {
		out = append(out, w.steps[name])
	}
	return out
}

// Len returns the number of steps.
func (w *Workflow) Len() int {
	return len(w.steps)
}

// ExecutionOrder returns a topological ordering of the steps. Ties are
// broken by insertion order. A cycle or missing dependency fails the
// ordering before any step runs.
func (w *Workflow) ExecutionOrder() ([]string, error) {
	for _, step := range w.steps {
		for _, dep := range step.DependsOn {
			if _, ok := w.steps[dep]; !ok {
				return nil, fmt.Errorf("step %s depends on unknown step %s: %w",
					step.Name, dep, core.ErrCyclicDependency)
			}
		}
	}

	executed := make(map[string]bool, len(w.steps))
	execution := make([]string, 0, len(w.steps))

	for len(executed) < len(w.steps) {
		progress := false
		for _, name := range w.order {
			if executed[name] {
				continue
			}
			satisfied := true
			for _, dep := range w.steps[name].DependsOn {
				if !executed[dep] {
					satisfied = false
					break
				}
			}
			if satisfied {
				execution = append(execution, name)
				executed[name] = true
				progress = true
			}
		}
		if !progress {
			return nil, core.ErrCyclicDependency
		}
	}

	return execution, nil
}

// Reset restores the workflow to its initial state for re-execution.
// The resource bag is cleared in place: step handlers hold a reference
// to it.
func (w *Workflow) Reset() {
	w.Status = StatusPending
	*w.Resources = Resources{}
	for _, step := range w.steps {
		step.Status = StepPending
		step.Err = nil
		step.StartedAt = time.Time{}
		step.CompletedAt = time.Time{}
	}
}

// TypeLabel is the short workflow type used in metrics and events.
func (w *Workflow) TypeLabel() string {
	return TypeLabel(w.Kind)
}

// TypeLabel maps a workflow kind name to its short metrics label.
func TypeLabel(kind string) string {
	switch {
	case strings.Contains(strings.ToLower(kind), "ccma"):
		return "ccma"
	case strings.Contains(strings.ToLower(kind), "ddjj"):
		return "ddjj"
	default:
		return "unknown"
	}
}
