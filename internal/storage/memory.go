package storage

import (
	"context"
	"sort"
	"sync"

	"mangabot/internal/models"
)

type batchKey struct {
	subjectID  int64
	variantID  int64
	batchIndex int
}

// MemoryStore is an in-memory Store implementation for testing and
// development. Data does not survive a restart.
type MemoryStore struct {
	mu        sync.RWMutex
	artifacts map[models.ProductionKey]*models.ArtifactEntry
	batches   map[batchKey]*models.BatchEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		artifacts: make(map[models.ProductionKey]*models.ArtifactEntry),
		batches:   make(map[batchKey]*models.BatchEntry),
	}
}

// GetArtifact retrieves the cached entry for a production key.
func (ms *MemoryStore) GetArtifact(ctx context.Context, key models.ProductionKey) (*models.ArtifactEntry, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	entry, ok := ms.artifacts[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *entry
	return &cp, nil
}

// PutArtifact stores or overwrites the entry for its key.
func (ms *MemoryStore) PutArtifact(ctx context.Context, entry *models.ArtifactEntry) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	cp := *entry
	ms.artifacts[entry.Key] = &cp
	return nil
}

// GetBatches returns all batch entries for a subject/variant in ascending
// index order.
func (ms *MemoryStore) GetBatches(ctx context.Context, subjectID, variantID int64) ([]*models.BatchEntry, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	entries := make([]*models.BatchEntry, 0)
	for k, entry := range ms.batches {
		if k.subjectID != subjectID || k.variantID != variantID {
			continue
		}
		cp := *entry
		cp.Handles = append([]string(nil), entry.Handles...)
		entries = append(entries, &cp)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].BatchIndex < entries[j].BatchIndex
	})
	return entries, nil
}

// PutBatch stores or overwrites one batch row.
func (ms *MemoryStore) PutBatch(ctx context.Context, entry *models.BatchEntry) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	cp := *entry
	cp.Handles = append([]string(nil), entry.Handles...)
	ms.batches[batchKey{entry.SubjectID, entry.VariantID, entry.BatchIndex}] = &cp
	return nil
}

// DeleteArtifacts removes artifact entries, all of them or one subject's.
func (ms *MemoryStore) DeleteArtifacts(ctx context.Context, subjectID *int64) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var removed int64
	for key := range ms.artifacts {
		if subjectID != nil && key.SubjectID != *subjectID {
			continue
		}
		delete(ms.artifacts, key)
		removed++
	}
	return removed, nil
}

// DeleteBatches removes batch entries, all of them or one subject's.
func (ms *MemoryStore) DeleteBatches(ctx context.Context, subjectID *int64) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var removed int64
	for key := range ms.batches {
		if subjectID != nil && key.subjectID != *subjectID {
			continue
		}
		delete(ms.batches, key)
		removed++
	}
	return removed, nil
}

// Ping always succeeds for the in-memory store.
func (ms *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (ms *MemoryStore) Close() error {
	return nil
}
