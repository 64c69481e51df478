package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vepflow/vepflow/core"
	"github.com/vepflow/vepflow/fingerprint"
	"github.com/vepflow/vepflow/orchestration"
	"github.com/vepflow/vepflow/transaction"
	"github.com/vepflow/vepflow/vep"
	"github.com/vepflow/vepflow/workflow"
)

// intakeClaimTTLSeconds bounds the workflow-level fingerprint claim. It
// only guards the intake critical section against a concurrent
// identical request; entry fingerprints carry the long-lived dedupe.
const intakeClaimTTLSeconds = 60

// OutcomeMetrics receives request-level terminal outcomes from the run
// monitor, plus payment and dedupe-store operation counts.
type OutcomeMetrics interface {
	RecordRequestOutcome(workflowType, outcome string)
	RecordPayment(method, status string)
	RecordTransactionOp(operation, status string)
}

// Service implements the intake contract: validate, dedupe, persist,
// dispatch and monitor.
type Service struct {
	store        transaction.Store
	orchestrator *orchestration.Orchestrator
	sweeper      *orchestration.RetrySweeper
	resolver     core.CredentialResolver
	capacity     orchestration.CapacityEnsurer
	metrics      OutcomeMetrics
	logger       core.Logger

	pollInterval   time.Duration
	monitorTimeout time.Duration
	wg             sync.WaitGroup
}

// ServiceOptions wire the service's collaborators. Resolver, Capacity
// and Metrics may be nil.
type ServiceOptions struct {
	Store        transaction.Store
	Orchestrator *orchestration.Orchestrator
	Sweeper      *orchestration.RetrySweeper
	Resolver     core.CredentialResolver
	Capacity     orchestration.CapacityEnsurer
	Metrics      OutcomeMetrics
	Logger       core.Logger
	PollInterval time.Duration
}

// NewService creates the application service.
func NewService(opts ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	return &Service{
		store:          opts.Store,
		orchestrator:   opts.Orchestrator,
		sweeper:        opts.Sweeper,
		resolver:       opts.Resolver,
		capacity:       opts.Capacity,
		metrics:        opts.Metrics,
		logger:         logger,
		pollInterval:   poll,
		monitorTimeout: 30 * time.Minute,
	}
}

// Wait blocks until every monitor goroutine has finished. Used on
// shutdown and by tests.
func (s *Service) Wait() {
	s.wg.Wait()
}

// ExecuteCCMA runs the account-reconciliation intake. Each new entry is
// dispatched as its own run sharing the request's exchange id.
func (s *Service) ExecuteCCMA(ctx context.Context, req *vep.CCMAWorkflowRequest) (*ExecutionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrValidation, err)
	}

	runID := uuid.New().String()
	ctx = core.WithExchangeID(ctx, runID)

	wfHash := fingerprint.CCMAWorkflowHash(req)
	release, err := s.claimRequest(ctx, wfHash, runID)
	if err != nil {
		return nil, err
	}
	defer release()

	password, err := s.resolvePassword(ctx, req.Credentials)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var duplicates []EntryStatus
	var newEntries []vep.CCMAEntry
	var newHashes []string
	for i := range req.Entries {
		entry := req.Entries[i]
		hash := fingerprint.CCMAEntryHash(&entry)
		if parent, ok := s.entryOwner(ctx, hash, runID); ok {
			duplicates = append(duplicates, EntryStatus{TransactionKey: hash, ExchangeID: parent, Status: "duplicate"})
			continue
		}
		newEntries = append(newEntries, entry)
		newHashes = append(newHashes, hash)
	}

	total := len(req.Entries)
	if len(newEntries) == 0 {
		s.logger.InfoWithContext(ctx, "every entry deduplicated, no run started", map[string]interface{}{
			"workflow":   workflow.KindCCMA,
			"duplicates": len(duplicates),
		})
		return &ExecutionResponse{
			Processed:  []EntryStatus{},
			Duplicates: duplicates,
			Counts:     Counts{Total: total, Duplicate: len(duplicates)},
		}, nil
	}

	credentials := map[string]interface{}{"cuit": req.Credentials.CUIT, "password": password}
	maxTTL := 0
	for i := range newEntries {
		if ttl := fingerprint.TTLFromExpiration(newEntries[i].ExpirationDate, now); ttl > maxTTL {
			maxTTL = ttl
		}
	}

	// The run record aggregates the whole request; per-entry retry data
	// lives on the entry records, so no workflow kind is stored here.
	if err := s.createRecord(ctx, &transaction.Record{
		Key:        runID,
		ExchangeID: runID,
		Status:     workflow.StatusCreated,
		RequestData: map[string]interface{}{
			"credentials": credentials,
			"data":        map[string]interface{}{"entries": toMaps(newEntries)},
		},
		TTLSeconds: maxTTL,
	}); err != nil {
		return nil, err
	}

	for i := range newEntries {
		entry := &newEntries[i]
		entryMap, err := toMap(entry)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrTransactionCreation, err)
		}
		if err := s.createRecord(ctx, &transaction.Record{
			Key:         newHashes[i],
			ExchangeID:  runID,
			Fingerprint: newHashes[i],
			Status:      workflow.StatusCreated,
			RequestData: map[string]interface{}{
				"kind":        workflow.KindCCMA,
				"credentials": credentials,
				"data":        entryMap,
			},
			TTLSeconds: fingerprint.TTLFromExpiration(entry.ExpirationDate, now),
		}); err != nil {
			return nil, err
		}
	}

	s.ensureCapacity(ctx, len(newEntries))

	var processed []EntryStatus
	launched := make([]string, 0, len(newEntries))
	for i := range newEntries {
		entry := &newEntries[i]
		params := workflow.CCMAParams{
			CUIT:             req.Credentials.CUIT,
			Password:         password,
			PeriodFrom:       entry.PeriodFrom,
			PeriodTo:         entry.PeriodTo,
			CalculationDate:  entry.CalculationDate,
			FormPayment:      entry.FormPayment,
			ExpirationDate:   entry.ExpirationDate,
			TaxpayerType:     entry.TaxpayerType,
			TaxType:          entry.TaxType,
			IncludeInterests: entry.IncludeInterests,
			Headless:         true,
		}
		err := s.orchestrator.ExecuteAsync(ctx, workflow.KindCCMA, params, orchestration.RunOptions{
			ExchangeID: runID,
			RecordKey:  newHashes[i],
		})
		if err != nil {
			s.logger.ErrorWithContext(ctx, "entry dispatch failed", map[string]interface{}{
				"workflow": workflow.KindCCMA,
				"entry":    newHashes[i],
				"error":    err,
			})
			continue
		}
		launched = append(launched, newHashes[i])
		processed = append(processed, EntryStatus{TransactionKey: newHashes[i], ExchangeID: runID, Status: "processing"})
	}

	if len(launched) == 0 {
		return nil, s.failStartup(ctx, runID)
	}

	if err := s.store.UpdateStatus(ctx, runID, workflow.StatusRunning, nil); err != nil {
		s.logger.WarnWithContext(ctx, "failed to mark request as running", map[string]interface{}{"error": err})
	}
	s.spawnEntryMonitor(runID, "ccma", launched)

	return &ExecutionResponse{
		ExchangeID: runID,
		Processed:  processed,
		Duplicates: duplicates,
		Counts:     Counts{Total: total, Processed: len(processed), Duplicate: len(duplicates)},
	}, nil
}

// ExecuteDDJJ runs the declaration-upload intake. The whole new-entry
// batch is dispatched as a single run.
func (s *Service) ExecuteDDJJ(ctx context.Context, req *vep.DDJJWorkflowRequest) (*ExecutionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrValidation, err)
	}

	runID := uuid.New().String()
	ctx = core.WithExchangeID(ctx, runID)

	wfHash := fingerprint.DDJJWorkflowHash(req)
	release, err := s.claimRequest(ctx, wfHash, runID)
	if err != nil {
		return nil, err
	}
	defer release()

	password, err := s.resolvePassword(ctx, req.Credentials)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var duplicates []EntryStatus
	var newEntries []vep.DDJJEntry
	var newHashes []string
	for i := range req.Entries {
		entry := req.Entries[i]
		hash := fingerprint.DDJJEntryHash(&entry)
		if parent, ok := s.entryOwner(ctx, hash, runID); ok {
			duplicates = append(duplicates, EntryStatus{TransactionKey: hash, ExchangeID: parent, Status: "duplicate"})
			continue
		}
		newEntries = append(newEntries, entry)
		newHashes = append(newHashes, hash)
	}

	total := len(req.Entries)
	if len(newEntries) == 0 {
		return &ExecutionResponse{
			Processed:  []EntryStatus{},
			Duplicates: duplicates,
			Counts:     Counts{Total: total, Duplicate: len(duplicates)},
		}, nil
	}

	credentials := map[string]interface{}{"cuit": req.Credentials.CUIT, "password": password}
	maxTTL := 0
	for i := range newEntries {
		if ttl := fingerprint.TTLFromExpiration(newEntries[i].ExpirationDate, now); ttl > maxTTL {
			maxTTL = ttl
		}
	}

	if err := s.createRecord(ctx, &transaction.Record{
		Key:        runID,
		ExchangeID: runID,
		Status:     workflow.StatusCreated,
		RequestData: map[string]interface{}{
			"kind":        workflow.KindDDJJ,
			"credentials": credentials,
			"data":        map[string]interface{}{"entries": toMaps(newEntries)},
		},
		TTLSeconds: maxTTL,
	}); err != nil {
		return nil, err
	}

	for i := range newEntries {
		entry := &newEntries[i]
		entryMap, err := toMap(entry)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrTransactionCreation, err)
		}
		if err := s.createRecord(ctx, &transaction.Record{
			Key:         newHashes[i],
			ExchangeID:  runID,
			Fingerprint: newHashes[i],
			Status:      workflow.StatusCreated,
			RequestData: map[string]interface{}{"entry": entryMap},
			TTLSeconds:  fingerprint.TTLFromExpiration(entry.ExpirationDate, now),
		}); err != nil {
			return nil, err
		}
	}

	s.ensureCapacity(ctx, 1)

	params := workflow.DDJJParams{
		CUIT:     req.Credentials.CUIT,
		Password: password,
		Entries:  newEntries,
		Headless: true,
	}
	if err := s.orchestrator.ExecuteAsync(ctx, workflow.KindDDJJ, params, orchestration.RunOptions{
		ExchangeID: runID,
		RecordKey:  runID,
	}); err != nil {
		s.logger.ErrorWithContext(ctx, "batch dispatch failed", map[string]interface{}{
			"workflow": workflow.KindDDJJ,
			"error":    err,
		})
		return nil, s.failStartup(ctx, runID)
	}

	s.spawnRunMonitor(runID, "ddjj", newHashes)

	processed := make([]EntryStatus, 0, len(newEntries))
	for _, hash := range newHashes {
		processed = append(processed, EntryStatus{TransactionKey: hash, ExchangeID: runID, Status: "processing"})
	}
	return &ExecutionResponse{
		ExchangeID: runID,
		Processed:  processed,
		Duplicates: duplicates,
		Counts:     Counts{Total: total, Processed: len(processed), Duplicate: len(duplicates)},
	}, nil
}

// RunStatus reports a run's stored state.
func (s *Service) RunStatus(ctx context.Context, exchangeID string) (*StatusResponse, error) {
	rec, err := s.store.Get(ctx, exchangeID)
	if err != nil {
		return nil, err
	}

	resp := &StatusResponse{
		ExchangeID: exchangeID,
		Status:     string(rec.Status),
		Results:    rec.Results,
	}
	if !rec.CreatedAt.IsZero() {
		resp.CreatedAt = rec.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !rec.UpdatedAt.IsZero() {
		resp.UpdatedAt = rec.UpdatedAt.UTC().Format(time.RFC3339)
	}
	resp.StartedAt, resp.CompletedAt = runTimestamps(rec.Results)
	resp.Errors = collectErrors(rec.Results)
	return resp, nil
}

// Retry triggers one sweep of failed runs.
func (s *Service) Retry(ctx context.Context, maxRetries int) (orchestration.RetryStats, error) {
	return s.sweeper.Sweep(ctx, maxRetries)
}

// Workflows lists the registered workflow kinds.
func (s *Service) Workflows() []workflow.Info {
	return s.orchestrator.ListWorkflows()
}

// claimRequest takes the workflow-level fingerprint for the duration of
// the intake. A concurrent identical request loses the claim and gets
// the winner's exchange id; a finished intake releases the claim so
// later resubmissions fall through to entry-level dedupe.
func (s *Service) claimRequest(ctx context.Context, wfHash, runID string) (func(), error) {
	existing, err := s.store.ClaimFingerprint(ctx, wfHash, runID, intakeClaimTTLSeconds)
	if err != nil {
		return nil, err
	}
	if existing != "" {
		s.recordTransactionOp("duplicate_check", "hit")
		return nil, &core.DuplicateTransactionError{ExistingExchangeID: existing}
	}
	s.recordTransactionOp("duplicate_check", "clear")
	return func() {
		if err := s.store.ReleaseFingerprint(ctx, wfHash); err != nil {
			s.logger.WarnWithContext(ctx, "failed to release request claim", map[string]interface{}{"error": err})
		}
	}, nil
}

// entryOwner reports whether the entry hash is already stored, and the
// run id owning it. A stored record without an owner falls back to the
// current run id.
func (s *Service) entryOwner(ctx context.Context, hash, runID string) (string, bool) {
	rec, err := s.store.Get(ctx, hash)
	if err != nil {
		if !errors.Is(err, transaction.ErrNotFound) {
			s.logger.WarnWithContext(ctx, "entry lookup failed, treating as new", map[string]interface{}{
				"entry": hash,
				"error": err,
			})
		}
		return "", false
	}
	s.recordTransactionOp("duplicate_check", "hit")
	if rec.ExchangeID != "" {
		return rec.ExchangeID, true
	}
	return runID, true
}

// createRecord persists a record, counting the store operation and
// normalizing the failure onto the intake error contract.
func (s *Service) createRecord(ctx context.Context, rec *transaction.Record) error {
	if err := s.store.Create(ctx, rec); err != nil {
		s.recordTransactionOp("create", "error")
		return fmt.Errorf("%w: %v", core.ErrTransactionCreation, err)
	}
	s.recordTransactionOp("create", "success")
	return nil
}

func (s *Service) recordTransactionOp(operation, status string) {
	if s.metrics != nil {
		s.metrics.RecordTransactionOp(operation, status)
	}
}

func (s *Service) resolvePassword(ctx context.Context, creds vep.Credentials) (string, error) {
	if creds.Password != "" {
		return creds.Password, nil
	}
	if s.resolver == nil {
		return "", fmt.Errorf("no credential resolver configured: %w", core.ErrPasswordServiceUnavailable)
	}
	return s.resolver.Password(ctx, creds.CUIT)
}

func (s *Service) ensureCapacity(ctx context.Context, sessions int) {
	if s.capacity == nil {
		return
	}
	if err := s.capacity.EnsureCapacity(ctx, sessions); err != nil {
		s.logger.WarnWithContext(ctx, "grid capacity not assured", map[string]interface{}{
			"sessions": sessions,
			"error":    err,
		})
	}
}

func (s *Service) failStartup(ctx context.Context, runID string) error {
	if err := s.store.UpdateStatus(ctx, runID, workflow.StatusFailed, map[string]interface{}{
		"errors":      map[string]interface{}{"workflow_error": core.ErrWorkflowStartup.Error()},
		"error_kinds": map[string]interface{}{"workflow_error": core.KindSystem},
	}); err != nil {
		s.logger.ErrorWithContext(ctx, "failed to record startup failure", map[string]interface{}{"error": err})
	}
	return core.ErrWorkflowStartup
}

// spawnEntryMonitor watches per-entry runs until all are terminal, then
// aggregates the request outcome onto the run record.
func (s *Service) spawnEntryMonitor(runID, workflowType string, entryKeys []string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx := core.WithExchangeID(context.Background(), runID)
		deadline := time.Now().Add(s.monitorTimeout)

		for time.Now().Before(deadline) {
			records := make([]*transaction.Record, 0, len(entryKeys))
			terminal := 0
			for _, key := range entryKeys {
				rec, err := s.store.Get(ctx, key)
				if err != nil {
					continue
				}
				records = append(records, rec)
				if rec.Status.IsTerminal() {
					terminal++
				}
			}
			if terminal == len(entryKeys) {
				s.finishRequest(ctx, runID, workflowType, records)
				return
			}
			time.Sleep(s.pollInterval)
		}
		s.abandonRequest(ctx, runID, workflowType)
	}()
}

// spawnRunMonitor watches a single-run request until terminal, then
// derives the results envelope and propagates the outcome to the entry
// records.
func (s *Service) spawnRunMonitor(runID, workflowType string, entryKeys []string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx := core.WithExchangeID(context.Background(), runID)
		deadline := time.Now().Add(s.monitorTimeout)

		for time.Now().Before(deadline) {
			rec, err := s.store.Get(ctx, runID)
			if err == nil && rec.Status.IsTerminal() {
				records := []*transaction.Record{rec}
				for _, key := range entryKeys {
					if err := s.store.UpdateStatus(ctx, key, rec.Status, nil); err != nil {
						s.logger.WarnWithContext(ctx, "entry status not propagated", map[string]interface{}{
							"entry": key,
							"error": err,
						})
						continue
					}
					if entry, err := s.store.Get(ctx, key); err == nil {
						records = append(records, entry)
					}
				}
				s.finishRequest(ctx, runID, workflowType, records)
				return
			}
			time.Sleep(s.pollInterval)
		}
		s.abandonRequest(ctx, runID, workflowType)
	}()
}

// finishRequest writes the aggregated outcome and results envelope onto
// the run record and emits the request outcome metric.
func (s *Service) finishRequest(ctx context.Context, runID, workflowType string, records []*transaction.Record) {
	overall := workflow.StatusCompleted
	var source *transaction.Record
	for _, rec := range records {
		if rec.Status == workflow.StatusCompleted && source == nil {
			source = rec
		}
		if rec.Status != workflow.StatusCompleted {
			overall = workflow.StatusFailed
		}
		if method := paymentMethod(rec); method != "" && s.metrics != nil {
			s.metrics.RecordPayment(method, string(rec.Status))
		}
	}

	update := make(map[string]interface{})
	if started, completed := spanTimestamps(records); started != "" {
		update["started_at"] = started
		update["completed_at"] = completed
	}
	if source != nil {
		if envelope := s.buildEnvelope(ctx, source); envelope != nil {
			update["results"] = envelope
		}
	}
	if err := s.store.UpdateStatus(ctx, runID, overall, update); err != nil {
		s.logger.ErrorWithContext(ctx, "failed to record request outcome", map[string]interface{}{"error": err})
	}
	if s.metrics != nil {
		s.metrics.RecordRequestOutcome(workflowType, string(overall))
	}
	s.logger.InfoWithContext(ctx, "request finished", map[string]interface{}{
		"workflow_type": workflowType,
		"status":        overall,
	})
}

func (s *Service) abandonRequest(ctx context.Context, runID, workflowType string) {
	s.logger.ErrorWithContext(ctx, "run monitor gave up waiting", map[string]interface{}{
		"workflow_type": workflowType,
		"timeout":       s.monitorTimeout.String(),
	})
	if err := s.store.UpdateStatus(ctx, runID, workflow.StatusFailed, map[string]interface{}{
		"errors": map[string]interface{}{"workflow_error": "run did not finish within the monitor window"},
	}); err != nil {
		s.logger.ErrorWithContext(ctx, "failed to record monitor timeout", map[string]interface{}{"error": err})
	}
	if s.metrics != nil {
		s.metrics.RecordRequestOutcome(workflowType, string(workflow.StatusFailed))
	}
}

// buildEnvelope derives the structured success payload from a finished
// run's stored step-engine result. Artifact files that cannot be read
// are skipped, not fatal.
func (s *Service) buildEnvelope(ctx context.Context, rec *transaction.Record) map[string]interface{} {
	result, ok := rec.Results["workflow_result"].(map[string]interface{})
	if !ok {
		return nil
	}
	values, ok := result["results"].(map[string]interface{})
	if !ok {
		return nil
	}

	envelope := ResultsEnvelope{}
	if url, ok := values["payment_url"].(string); ok {
		envelope.PaymentURL = url
	}
	envelope.PDF = s.fileData(ctx, values, "vep_pdf_filename", "vep_pdf_path", "application/pdf")
	envelope.PNG = s.fileData(ctx, values, "vep_qr_filename", "vep_qr_path", "image/png")

	out, err := toMap(envelope)
	if err != nil {
		return nil
	}
	return out
}

func (s *Service) fileData(ctx context.Context, values map[string]interface{}, nameKey, pathKey, contentType string) *vep.FileData {
	path, ok := values[pathKey].(string)
	if !ok || path == "" {
		return nil
	}
	name, _ := values[nameKey].(string)

	data, err := os.ReadFile(path)
	if err != nil {
		s.logger.WarnWithContext(ctx, "result artifact not readable", map[string]interface{}{
			"path":  path,
			"error": err,
		})
		return nil
	}
	return &vep.FileData{
		Filename:    name,
		ContentType: contentType,
		Data:        base64.StdEncoding.EncodeToString(data),
	}
}

// paymentMethod reads the payment method off an entry record's stored
// request data. Aggregate run records carry no single method and yield
// the empty string.
func paymentMethod(rec *transaction.Record) string {
	if data, ok := rec.RequestData["data"].(map[string]interface{}); ok {
		if method, ok := data["form_payment"].(string); ok {
			return method
		}
	}
	if entry, ok := rec.RequestData["entry"].(map[string]interface{}); ok {
		if method, ok := entry["form_payment"].(string); ok {
			return method
		}
	}
	return ""
}

// runTimestamps pulls the step engine's start and completion times out
// of stored results. Aggregate run records hold them at the top level;
// records carrying an engine result hold them inside it. Both are empty
// until a result exists.
func runTimestamps(results map[string]interface{}) (started, completed string) {
	if result, ok := results["workflow_result"].(map[string]interface{}); ok {
		started, _ = result["started_at"].(string)
		completed, _ = result["completed_at"].(string)
	}
	if started == "" {
		started, _ = results["started_at"].(string)
	}
	if completed == "" {
		completed, _ = results["completed_at"].(string)
	}
	return started, completed
}

// spanTimestamps derives a request's overall execution window from the
// engine results across its records.
func spanTimestamps(records []*transaction.Record) (started, completed string) {
	var earliest, latest time.Time
	for _, rec := range records {
		s, c := runTimestamps(rec.Results)
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil && (earliest.IsZero() || ts.Before(earliest)) {
			earliest = ts
		}
		if ts, err := time.Parse(time.RFC3339Nano, c); err == nil && ts.After(latest) {
			latest = ts
		}
	}
	if earliest.IsZero() {
		return "", ""
	}
	return earliest.Format(time.RFC3339Nano), latest.Format(time.RFC3339Nano)
}

// collectErrors pulls the error maps out of a record's results so the
// status endpoint can surface them at the top level.
func collectErrors(results map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	if errs, ok := results["errors"].(map[string]interface{}); ok {
		for k, v := range errs {
			out[k] = v
		}
	}
	if result, ok := results["workflow_result"].(map[string]interface{}); ok {
		if errs, ok := result["errors"].(map[string]interface{}); ok {
			for k, v := range errs {
				out[k] = v
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

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

func toMaps[T any](items []T) []interface{} {
	out := make([]interface{}, 0, len(items))
	for i := range items {
		if m, err := toMap(&items[i]); err == nil {
			out = append(out, m)
		}
	}
	return out
}
