// Package orchestration runs workflows asynchronously: it dispatches
// runs onto goroutines, records their terminal state in the transaction
// store and publishes the finish event. The retry sweeper lives here
// too.
package orchestration

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vepflow/vepflow/core"
	"github.com/vepflow/vepflow/events"
	"github.com/vepflow/vepflow/transaction"
	"github.com/vepflow/vepflow/workflow"
)

// RunMetrics tracks the in-flight run gauge.
type RunMetrics interface {
	WorkflowStarted()
	WorkflowEnded()
}

// CapacityEnsurer guarantees browser grid capacity before a run starts.
type CapacityEnsurer interface {
	EnsureCapacity(ctx context.Context, sessions int) error
}

// Orchestrator owns the lifecycle of asynchronous workflow runs. Every
// run is keyed by its exchange id; the terminal write and the finish
// event happen exactly once per run, on every exit path including
// panics.
type Orchestrator struct {
	registry  *workflow.Registry
	engine    *workflow.Engine
	store     transaction.Store
	publisher events.Publisher
	metrics   RunMetrics
	capacity  CapacityEnsurer
	logger    core.Logger
	tracer    trace.Tracer

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an orchestrator. metrics may be nil.
func New(registry *workflow.Registry, engine *workflow.Engine, store transaction.Store,
	publisher events.Publisher, metrics RunMetrics, logger core.Logger) *Orchestrator {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if publisher == nil {
		publisher = events.NewLogPublisher(logger)
	}
	return &Orchestrator{
		registry:  registry,
		engine:    engine,
		store:     store,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		tracer:    otel.Tracer("vepflow/orchestration"),
		running:   make(map[string]context.CancelFunc),
	}
}

// UseScaler wires grid capacity assurance into run dispatch. A capacity
// failure never blocks a run; it proceeds on whatever capacity exists.
func (o *Orchestrator) UseScaler(c CapacityEnsurer) {
	o.capacity = c
}

// ListWorkflows returns the registered workflow kinds.
func (o *Orchestrator) ListWorkflows() []workflow.Info {
	return o.registry.List()
}

// RunningCount reports the number of in-flight runs.
func (o *Orchestrator) RunningCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.running)
}

// RunOptions identify a dispatched run. ExchangeID correlates logs and
// events; RecordKey is the transaction store key that receives the
// terminal write. RecordKey defaults to ExchangeID, but per-entry runs
// point it at their entry record instead.
type RunOptions struct {
	ExchangeID string
	RecordKey  string
}

func (r RunOptions) recordKey() string {
	if r.RecordKey != "" {
		return r.RecordKey
	}
	return r.ExchangeID
}

// ExecuteAsync validates and instantiates the workflow synchronously,
// then runs it on its own goroutine. Parameter errors surface to the
// caller; execution errors land in the run record. The run's context is
// detached from the caller's so an intake request finishing never
// cancels the run.
func (o *Orchestrator) ExecuteAsync(ctx context.Context, kind string, params interface{}, opts RunOptions) error {
	wf, err := o.registry.Create(kind, params)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(core.WithExchangeID(context.Background(), opts.ExchangeID))

	o.mu.Lock()
	o.running[opts.recordKey()] = cancel
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.WorkflowStarted()
	}
	o.wg.Add(1)
	go o.run(runCtx, wf, opts)
	return nil
}

func (o *Orchestrator) run(ctx context.Context, wf *workflow.Workflow, opts RunOptions) {
	defer o.wg.Done()
	defer func() {
		o.mu.Lock()
		if cancel, ok := o.running[opts.recordKey()]; ok {
			cancel()
			delete(o.running, opts.recordKey())
		}
		o.mu.Unlock()
		if o.metrics != nil {
			o.metrics.WorkflowEnded()
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("workflow panicked: %v", r)
			o.logger.ErrorWithContext(ctx, "workflow run panicked", map[string]interface{}{
				"workflow": wf.Kind,
				"panic":    fmt.Sprint(r),
			})
			o.markFailed(ctx, wf, opts, err)
		}
	}()

	ctx, span := o.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("workflow.kind", wf.Kind),
		attribute.String("exchange.id", opts.ExchangeID),
	))
	defer span.End()

	if o.capacity != nil {
		if err := o.capacity.EnsureCapacity(ctx, 1); err != nil {
			o.logger.WarnWithContext(ctx, "grid capacity not assured, running anyway", map[string]interface{}{
				"workflow": wf.Kind,
				"error":    err,
			})
		}
	}

	if err := o.store.UpdateStatus(ctx, opts.recordKey(), workflow.StatusRunning, nil); err != nil {
		o.logger.WarnWithContext(ctx, "failed to mark run as running", map[string]interface{}{
			"workflow": wf.Kind,
			"error":    err,
		})
	}

	result := o.engine.Execute(ctx, wf)

	resultMap, err := toMap(result)
	if err != nil {
		o.logger.ErrorWithContext(ctx, "failed to encode workflow result", map[string]interface{}{
			"workflow": wf.Kind,
			"error":    err,
		})
		resultMap = map[string]interface{}{"status": string(result.Status)}
	}
	if err := o.store.UpdateStatus(ctx, opts.recordKey(), result.Status,
		map[string]interface{}{"workflow_result": resultMap}); err != nil {
		o.logger.ErrorWithContext(ctx, "failed to persist workflow result", map[string]interface{}{
			"workflow": wf.Kind,
			"error":    err,
		})
	}

	o.publishFinished(ctx, wf, opts, result)
}

// markFailed records a run that died before producing a result.
func (o *Orchestrator) markFailed(ctx context.Context, wf *workflow.Workflow, opts RunOptions, runErr error) {
	results := map[string]interface{}{
		"errors":      map[string]interface{}{"workflow_error": runErr.Error()},
		"error_kinds": map[string]interface{}{"workflow_error": core.ErrorKind(runErr)},
	}
	if err := o.store.UpdateStatus(ctx, opts.recordKey(), workflow.StatusFailed, results); err != nil {
		o.logger.ErrorWithContext(ctx, "failed to persist workflow failure", map[string]interface{}{
			"workflow": wf.Kind,
			"error":    err,
		})
	}

	event := events.NewWorkflowFinishedEvent(opts.ExchangeID, wf.TypeLabel(), false)
	event.ErrorDetails = map[string]interface{}{"workflow_error": runErr.Error()}
	if err := o.publisher.PublishWorkflowFinished(ctx, event); err != nil {
		o.logger.WarnWithContext(ctx, "finish event not delivered", map[string]interface{}{
			"workflow": wf.Kind,
			"error":    err,
		})
	}
}

func (o *Orchestrator) publishFinished(ctx context.Context, wf *workflow.Workflow, opts RunOptions, result *workflow.Result) {
	success := result.Status == workflow.StatusCompleted
	event := events.NewWorkflowFinishedEvent(opts.ExchangeID, wf.TypeLabel(), success)
	if success {
		event.Response = result.Results
		if path, ok := result.Results["vep_pdf_path"].(string); ok && path != "" {
			if err := event.AddPDFFromFile(path); err != nil {
				o.logger.WarnWithContext(ctx, "payment slip pdf not attached to event", map[string]interface{}{
					"path":  path,
					"error": err,
				})
			}
		}
	} else {
		event.ErrorDetails = map[string]interface{}{
			"errors":      result.Errors,
			"error_kinds": result.ErrorKinds,
		}
	}

	if err := o.publisher.PublishWorkflowFinished(ctx, event); err != nil {
		o.logger.WarnWithContext(ctx, "finish event not delivered", map[string]interface{}{
			"workflow": wf.Kind,
			"error":    err,
		})
	}
}

// Cancel stops a running workflow by its record key. Returns false when
// no such run is in flight.
func (o *Orchestrator) Cancel(key string) bool {
	o.mu.Lock()
	cancel, ok := o.running[key]
	o.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Wait blocks until every in-flight run has finished. Used on shutdown.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// toMap round-trips a value through JSON so both store backends hold
// the same plain map shape.
func toMap(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
