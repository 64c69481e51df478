// Package transaction persists run and entry records for duplicate
// detection and status tracking. Two backends exist with identical
// semantics: a Redis store for production and an in-memory store for
// tests and degraded single-node operation.
package transaction

import (
	"context"
	"errors"
	"time"

	"github.com/vepflow/vepflow/workflow"
)

// ErrNotFound is returned when no record exists under the given key.
var ErrNotFound = errors.New("transaction not found")

// Record is one stored transaction. Run-level records use the exchange
// id as key; entry-level records use the entry fingerprint as key and
// carry the parent run's exchange id.
type Record struct {
	Key         string                 `json:"key"`
	ExchangeID  string                 `json:"exchange_id"`
	Fingerprint string                 `json:"fingerprint"`
	Status      workflow.Status        `json:"status"`
	RequestData map[string]interface{} `json:"request_data"`
	Results     map[string]interface{} `json:"results"`
	TTLSeconds  int                    `json:"ttl_seconds"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// Store is the persistence contract shared by both backends.
type Store interface {
	// CheckDuplicate returns the exchange id owning the fingerprint, or
	// "" when the fingerprint is unclaimed.
	CheckDuplicate(ctx context.Context, fp string) (string, error)

	// ClaimFingerprint atomically claims the fingerprint for owner with
	// the given TTL. When it is already claimed, the existing owner is
	// returned and nothing is written.
	ClaimFingerprint(ctx context.Context, fp, owner string, ttlSeconds int) (string, error)

	// ReleaseFingerprint drops a claim. Releasing an unclaimed
	// fingerprint is not an error.
	ReleaseFingerprint(ctx context.Context, fp string) error

	// Create atomically stores a new record and claims its fingerprint.
	// If the fingerprint is already claimed the record is not written and
	// a *core.DuplicateTransactionError carrying the owning exchange id
	// is returned.
	Create(ctx context.Context, rec *Record) error

	// Get loads the record stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (*Record, error)

	// UpdateStatus sets the record's status and shallow-merges results
	// into the stored results map. The record's remaining TTL window is
	// refreshed from its stored ttl_seconds.
	UpdateStatus(ctx context.Context, key string, status workflow.Status, results map[string]interface{}) error

	// GetByStatus returns every live record currently in the given
	// status.
	GetByStatus(ctx context.Context, status workflow.Status) ([]*Record, error)

	// Close releases backend resources.
	Close() error
}

func mergeResults(stored, update map[string]interface{}) map[string]interface{} {
	if stored == nil {
		stored = make(map[string]interface{})
	}
	for k, v := range update {
		stored[k] = v
	}
	return stored
}
