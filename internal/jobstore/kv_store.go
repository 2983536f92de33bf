// Package jobstore persists job records in a NATS JetStream key-value bucket.
package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/podcast-service/internal/job"
	"github.com/nats-io/nats.go"
)

var _ job.Store = (*KVStore)(nil)

// KVStore implements job.Store on a NATS key-value bucket. The bucket TTL reaps old records,
// and each key keeps a single revision used for compare-and-set updates.
type KVStore struct {
	kv     nats.KeyValue
	bucket string
}

// NewKVStore creates the bucket, or binds to it when it already exists.
func NewKVStore(jetstreamContext nats.JetStreamContext, bucket string, ttl time.Duration) (*KVStore, error) {
	kv, err := jetstreamContext.CreateKeyValue(&nats.KeyValueConfig{
		Bucket:      bucket,
		Description: "Podcast job records.",
		History:     1,
		TTL:         ttl,
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		var bindErr error

		kv, bindErr = jetstreamContext.KeyValue(bucket)
		if bindErr != nil {
			return nil, fmt.Errorf("failed to create key-value bucket '%s': %w", bucket, errors.Join(err, bindErr))
		}
	}

	return &KVStore{kv: kv, bucket: bucket}, nil
}

// Create stores a new record.
func (s *KVStore) Create(_ context.Context, record *job.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", record.ID, err)
	}

	_, err = s.kv.Create(record.ID, data)
	if errors.Is(err, nats.ErrKeyExists) {
		return fmt.Errorf("%w: job %s already exists", job.ErrConflict, record.ID)
	}

	if err != nil {
		return fmt.Errorf("failed to create job %s in bucket '%s': %w", record.ID, s.bucket, err)
	}

	return nil
}

// Get returns the record and its revision.
func (s *KVStore) Get(_ context.Context, id string) (*job.Record, uint64, error) {
	entry, err := s.kv.Get(id)
	if errors.Is(err, nats.ErrKeyNotFound) || errors.Is(err, nats.ErrInvalidKey) {
		return nil, 0, fmt.Errorf("%w: %s", job.ErrNotFound, id)
	}

	if err != nil {
		return nil, 0, fmt.Errorf("failed to get job %s from bucket '%s': %w", id, s.bucket, err)
	}

	var record job.Record

	err = json.Unmarshal(entry.Value(), &record)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode job %s: %w", id, err)
	}

	return &record, entry.Revision(), nil
}

// Update replaces the record when its stored revision is still rev.
func (s *KVStore) Update(_ context.Context, record *job.Record, rev uint64) (uint64, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return 0, fmt.Errorf("failed to encode job %s: %w", record.ID, err)
	}

	next, err := s.kv.Update(record.ID, data, rev)
	if isWrongLastSequence(err) {
		return 0, fmt.Errorf("%w: job %s at revision %d", job.ErrConflict, record.ID, rev)
	}

	if err != nil {
		return 0, fmt.Errorf("failed to update job %s in bucket '%s': %w", record.ID, s.bucket, err)
	}

	return next, nil
}

// Delete removes a record.
func (s *KVStore) Delete(_ context.Context, id string) error {
	err := s.kv.Purge(id)
	if err != nil {
		return fmt.Errorf("failed to delete job %s from bucket '%s': %w", id, s.bucket, err)
	}

	return nil
}

func isWrongLastSequence(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *nats.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == nats.JSErrCodeStreamWrongLastSequence
	}

	return errors.Is(err, nats.ErrKeyExists)
}
