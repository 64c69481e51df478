package transaction

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/vepflow/vepflow/core"
	"github.com/vepflow/vepflow/fingerprint"
	"github.com/vepflow/vepflow/workflow"
)

const (
	recordKeyPrefix      = "transaction:"
	fingerprintKeyPrefix = "transaction_hash:"
)

// RedisStore persists records as Redis hashes with per-record TTLs. The
// fingerprint claim and the record write are decoupled: the claim is a
// SET NX so only one writer ever owns a fingerprint, then the record is
// written in a pipeline.
type RedisStore struct {
	client *redis.Client
	logger core.Logger
}

// NewRedisStore creates a store on top of an established client.
func NewRedisStore(client *core.RedisClient, logger core.Logger) *RedisStore {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &RedisStore{client: client.Client(), logger: logger}
}

func recordKey(key string) string     { return recordKeyPrefix + key }
func fingerprintKey(fp string) string { return fingerprintKeyPrefix + fp }

func (s *RedisStore) CheckDuplicate(ctx context.Context, fp string) (string, error) {
	owner, err := s.client.Get(ctx, fingerprintKey(fp)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("checking fingerprint: %w: %v", core.ErrConnectionFailed, err)
	}
	return owner, nil
}

func (s *RedisStore) ClaimFingerprint(ctx context.Context, fp, owner string, ttlSeconds int) (string, error) {
	if ttlSeconds <= 0 {
		ttlSeconds = fingerprint.DefaultTTLSeconds
	}
	claimed, err := s.client.SetNX(ctx, fingerprintKey(fp), owner, time.Duration(ttlSeconds)*time.Second).Result()
	if err != nil {
		return "", fmt.Errorf("claiming fingerprint: %w: %v", core.ErrConnectionFailed, err)
	}
	if claimed {
		return "", nil
	}
	return s.CheckDuplicate(ctx, fp)
}

func (s *RedisStore) ReleaseFingerprint(ctx context.Context, fp string) error {
	if err := s.client.Del(ctx, fingerprintKey(fp)).Err(); err != nil {
		return fmt.Errorf("releasing fingerprint: %w: %v", core.ErrConnectionFailed, err)
	}
	return nil
}

func (s *RedisStore) Create(ctx context.Context, rec *Record) error {
	if rec.TTLSeconds <= 0 {
		rec.TTLSeconds = fingerprint.DefaultTTLSeconds
	}
	ttl := time.Duration(rec.TTLSeconds) * time.Second

	if rec.Fingerprint != "" {
		existing, err := s.ClaimFingerprint(ctx, rec.Fingerprint, rec.ExchangeID, rec.TTLSeconds)
		if err != nil {
			return err
		}
		if existing != "" {
			return &core.DuplicateTransactionError{ExistingExchangeID: existing}
		}
	}

	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = workflow.StatusCreated
	}

	fields, err := recordFields(rec)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrTransactionCreation, err)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, recordKey(rec.Key), fields)
	pipe.Expire(ctx, recordKey(rec.Key), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		if rec.Fingerprint != "" {
			s.client.Del(ctx, fingerprintKey(rec.Fingerprint))
		}
		return fmt.Errorf("%w: %v", core.ErrTransactionCreation, err)
	}

	s.logger.DebugWithContext(ctx, "transaction created", map[string]interface{}{
		"key":         rec.Key,
		"fingerprint": rec.Fingerprint,
		"ttl_seconds": rec.TTLSeconds,
	})
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	fields, err := s.client.HGetAll(ctx, recordKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("loading transaction %s: %w: %v", key, core.ErrConnectionFailed, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("transaction %s: %w", key, ErrNotFound)
	}
	return parseRecord(key, fields)
}

func (s *RedisStore) UpdateStatus(ctx context.Context, key string, status workflow.Status, results map[string]interface{}) error {
	rec, err := s.Get(ctx, key)
	if err != nil {
		return err
	}

	rec.Status = status
	rec.Results = mergeResults(rec.Results, results)
	rec.UpdatedAt = time.Now().UTC()

	resultsJSON, err := json.Marshal(rec.Results)
	if err != nil {
		return fmt.Errorf("encoding results for %s: %w", key, err)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, recordKey(key), map[string]interface{}{
		"status":     string(status),
		"results":    string(resultsJSON),
		"updated_at": rec.UpdatedAt.Format(time.RFC3339Nano),
	})
	pipe.Expire(ctx, recordKey(key), time.Duration(rec.TTLSeconds)*time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("updating transaction %s: %w: %v", key, core.ErrConnectionFailed, err)
	}
	return nil
}

func (s *RedisStore) GetByStatus(ctx context.Context, status workflow.Status) ([]*Record, error) {
	var out []*Record
	iter := s.client.Scan(ctx, 0, recordKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		fullKey := iter.Val()
		fields, err := s.client.HGetAll(ctx, fullKey).Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		rec, err := parseRecord(fullKey[len(recordKeyPrefix):], fields)
		if err != nil {
			s.logger.Warn("skipping unparseable transaction record", map[string]interface{}{
				"key":   fullKey,
				"error": err,
			})
			continue
		}
		if rec.Status == status {
			out = append(out, rec)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning transactions: %w: %v", core.ErrConnectionFailed, err)
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func recordFields(rec *Record) (map[string]interface{}, error) {
	requestJSON, err := json.Marshal(rec.RequestData)
	if err != nil {
		return nil, err
	}
	resultsJSON, err := json.Marshal(rec.Results)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"exchange_id":  rec.ExchangeID,
		"fingerprint":  rec.Fingerprint,
		"status":       string(rec.Status),
		"request_data": string(requestJSON),
		"results":      string(resultsJSON),
		"ttl_seconds":  strconv.Itoa(rec.TTLSeconds),
		"created_at":   rec.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":   rec.UpdatedAt.Format(time.RFC3339Nano),
	}, nil
}

func parseRecord(key string, fields map[string]string) (*Record, error) {
	rec := &Record{
		Key:         key,
		ExchangeID:  fields["exchange_id"],
		Fingerprint: fields["fingerprint"],
		Status:      workflow.Status(fields["status"]),
	}
	if v := fields["request_data"]; v != "" {
		if err := json.Unmarshal([]byte(v), &rec.RequestData); err != nil {
			return nil, fmt.Errorf("decoding request_data: %w", err)
		}
	}
	if v := fields["results"]; v != "" {
		if err := json.Unmarshal([]byte(v), &rec.Results); err != nil {
			return nil, fmt.Errorf("decoding results: %w", err)
		}
	}
	if v := fields["ttl_seconds"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("decoding ttl_seconds: %w", err)
		}
		rec.TTLSeconds = n
	}
	if v := fields["created_at"]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("decoding created_at: %w", err)
		}
		rec.CreatedAt = t
	}
	if v := fields["updated_at"]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("decoding updated_at: %w", err)
		}
		rec.UpdatedAt = t
	}
	return rec, nil
}
