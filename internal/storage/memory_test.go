package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mangabot/internal/models"
)

func TestMemoryStoreConformance(t *testing.T) {
	testStoreConformance(t, NewMemoryStore())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	entry := &models.BatchEntry{SubjectID: 1, VariantID: 1, BatchIndex: 0, Handles: []string{"a"}}
	require.NoError(t, store.PutBatch(ctx, entry))

	// Mutating what the caller holds must not reach the store.
	entry.Handles[0] = "mutated"

	got, err := store.GetBatches(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"a"}, got[0].Handles)

	// And mutating what the store returned must not either.
	got[0].Handles[0] = "mutated-again"
	again, err := store.GetBatches(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, again[0].Handles)
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			key := models.ProductionKey{SubjectID: n, VariantID: 1, Format: "pdf"}
			for j := 0; j < 50; j++ {
				_ = store.PutArtifact(ctx, &models.ArtifactEntry{Key: key, Handle: "h"})
				_, _ = store.GetArtifact(ctx, key)
				_ = store.PutBatch(ctx, &models.BatchEntry{SubjectID: n, VariantID: 1, BatchIndex: j, Handles: []string{"a"}})
				_, _ = store.GetBatches(ctx, n, 1)
			}
		}(int64(i))
	}
	wg.Wait()

	removed, err := store.DeleteArtifacts(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(8), removed)
}
