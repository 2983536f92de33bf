package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/book-expert/podcast-service/internal/job"
)

var _ job.Store = (*Memory)(nil)

type memoryEntry struct {
	data []byte
	rev  uint64
}

// Memory is an in-process job.Store with the same revision semantics as KVStore.
// Records are stored encoded so callers never share state with the store.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	seq     uint64
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

// Create stores a new record.
func (m *Memory) Create(_ context.Context, record *job.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", record.ID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[record.ID]; exists {
		return fmt.Errorf("%w: job %s already exists", job.ErrConflict, record.ID)
	}

	m.seq++
	m.entries[record.ID] = memoryEntry{data: data, rev: m.seq}

	return nil
}

// Get returns the record and its revision.
func (m *Memory) Get(_ context.Context, id string) (*job.Record, uint64, error) {
	m.mu.Lock()
	entry, ok := m.entries[id]
	m.mu.Unlock()

	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", job.ErrNotFound, id)
	}

	var record job.Record

	err := json.Unmarshal(entry.data, &record)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode job %s: %w", id, err)
	}

	return &record, entry.rev, nil
}

// Update replaces the record when its stored revision is still rev.
func (m *Memory) Update(_ context.Context, record *job.Record, rev uint64) (uint64, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return 0, fmt.Errorf("failed to encode job %s: %w", record.ID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[record.ID]
	if !ok || entry.rev != rev {
		return 0, fmt.Errorf("%w: job %s at revision %d", job.ErrConflict, record.ID, rev)
	}

	m.seq++
	m.entries[record.ID] = memoryEntry{data: data, rev: m.seq}

	return m.seq, nil
}

// Delete removes a record.
func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, id)

	return nil
}
