package transaction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vepflow/vepflow/core"
	"github.com/vepflow/vepflow/fingerprint"
	"github.com/vepflow/vepflow/workflow"
)

// MemoryStore keeps records in process memory with lazily enforced TTL
// deadlines. It mirrors the Redis store's semantics exactly so either
// backend can serve the same callers.
type MemoryStore struct {
	mu           sync.Mutex
	records      map[string]*memoryRecord
	fingerprints map[string]*fingerprintClaim
	now          func() time.Time
}

type memoryRecord struct {
	rec      Record
	deadline time.Time
}

type fingerprintClaim struct {
	owner    string
	deadline time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:      make(map[string]*memoryRecord),
		fingerprints: make(map[string]*fingerprintClaim),
		now:          time.Now,
	}
}

func (s *MemoryStore) expireLocked(at time.Time) {
	for key, mr := range s.records {
		if at.After(mr.deadline) {
			delete(s.records, key)
		}
	}
	for fp, claim := range s.fingerprints {
		if at.After(claim.deadline) {
			delete(s.fingerprints, fp)
		}
	}
}

func (s *MemoryStore) CheckDuplicate(ctx context.Context, fp string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked(s.now().UTC())
	if claim, ok := s.fingerprints[fp]; ok {
		return claim.owner, nil
	}
	return "", nil
}

func (s *MemoryStore) ClaimFingerprint(ctx context.Context, fp, owner string, ttlSeconds int) (string, error) {
	if ttlSeconds <= 0 {
		ttlSeconds = fingerprint.DefaultTTLSeconds
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	s.expireLocked(now)
	if claim, ok := s.fingerprints[fp]; ok {
		return claim.owner, nil
	}
	s.fingerprints[fp] = &fingerprintClaim{
		owner:    owner,
		deadline: now.Add(time.Duration(ttlSeconds) * time.Second),
	}
	return "", nil
}

func (s *MemoryStore) ReleaseFingerprint(ctx context.Context, fp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fingerprints, fp)
	return nil
}

func (s *MemoryStore) Create(ctx context.Context, rec *Record) error {
	if rec.TTLSeconds <= 0 {
		rec.TTLSeconds = fingerprint.DefaultTTLSeconds
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	s.expireLocked(now)

	if rec.Fingerprint != "" {
		if claim, ok := s.fingerprints[rec.Fingerprint]; ok {
			return &core.DuplicateTransactionError{ExistingExchangeID: claim.owner}
		}
	}

	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = workflow.StatusCreated
	}

	deadline := now.Add(time.Duration(rec.TTLSeconds) * time.Second)
	stored := *rec
	stored.RequestData = copyMap(rec.RequestData)
	stored.Results = copyMap(rec.Results)
	s.records[rec.Key] = &memoryRecord{rec: stored, deadline: deadline}
	if rec.Fingerprint != "" {
		s.fingerprints[rec.Fingerprint] = &fingerprintClaim{owner: rec.ExchangeID, deadline: deadline}
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked(s.now().UTC())

	mr, ok := s.records[key]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", key, ErrNotFound)
	}
	out := mr.rec
	out.RequestData = copyMap(mr.rec.RequestData)
	out.Results = copyMap(mr.rec.Results)
	return &out, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, key string, status workflow.Status, results map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	s.expireLocked(now)

	mr, ok := s.records[key]
	if !ok {
		return fmt.Errorf("transaction %s: %w", key, ErrNotFound)
	}
	mr.rec.Status = status
	mr.rec.Results = mergeResults(mr.rec.Results, results)
	mr.rec.UpdatedAt = now
	mr.deadline = now.Add(time.Duration(mr.rec.TTLSeconds) * time.Second)
	return nil
}

func (s *MemoryStore) GetByStatus(ctx context.Context, status workflow.Status) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked(s.now().UTC())

	var out []*Record
	for _, mr := range s.records {
		if mr.rec.Status != status {
			continue
		}
		rec := mr.rec
		rec.RequestData = copyMap(mr.rec.RequestData)
		rec.Results = copyMap(mr.rec.Results)
		out = append(out, &rec)
	}
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
