package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mangabot/internal/models"
)

// testStoreConformance runs the behavior every Store backend must share.
// Subtests use disjoint subject ids so they can run against one instance.
func testStoreConformance(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("artifact not found", func(t *testing.T) {
		_, err := store.GetArtifact(ctx, models.ProductionKey{SubjectID: 1, VariantID: 1, Format: "pdf"})
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("artifact round trip", func(t *testing.T) {
		key := models.ProductionKey{SubjectID: 10, VariantID: 3, Format: "pdf"}
		require.NoError(t, store.PutArtifact(ctx, &models.ArtifactEntry{
			Key:       key,
			Handle:    "handle-a",
			CreatedAt: time.Now().UTC().Truncate(time.Second),
		}))

		entry, err := store.GetArtifact(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, key, entry.Key)
		assert.Equal(t, "handle-a", entry.Handle)

		// Same subject/variant in another format is a separate entry.
		_, err = store.GetArtifact(ctx, models.ProductionKey{SubjectID: 10, VariantID: 3, Format: "cbz"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("artifact last write wins", func(t *testing.T) {
		key := models.ProductionKey{SubjectID: 11, VariantID: 1, Format: "pdf"}
		require.NoError(t, store.PutArtifact(ctx, &models.ArtifactEntry{Key: key, Handle: "old"}))
		require.NoError(t, store.PutArtifact(ctx, &models.ArtifactEntry{Key: key, Handle: "new"}))

		entry, err := store.GetArtifact(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "new", entry.Handle)
	})

	t.Run("batches empty without rows", func(t *testing.T) {
		entries, err := store.GetBatches(ctx, 20, 1)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("batches ordered with gaps preserved", func(t *testing.T) {
		for _, e := range []*models.BatchEntry{
			{SubjectID: 21, VariantID: 2, BatchIndex: 5, Handles: []string{"f"}},
			{SubjectID: 21, VariantID: 2, BatchIndex: 0, Handles: []string{"a", "b"}},
			{SubjectID: 21, VariantID: 2, BatchIndex: 2, Handles: []string{"c"}},
			{SubjectID: 21, VariantID: 9, BatchIndex: 0, Handles: []string{"other-variant"}},
		} {
			require.NoError(t, store.PutBatch(ctx, e))
		}

		entries, err := store.GetBatches(ctx, 21, 2)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, 0, entries[0].BatchIndex)
		assert.Equal(t, []string{"a", "b"}, entries[0].Handles)
		assert.Equal(t, 2, entries[1].BatchIndex)
		assert.Equal(t, 5, entries[2].BatchIndex)
	})

	t.Run("batch overwrite", func(t *testing.T) {
		require.NoError(t, store.PutBatch(ctx, &models.BatchEntry{
			SubjectID: 22, VariantID: 1, BatchIndex: 0, Handles: []string{"stale"},
		}))
		require.NoError(t, store.PutBatch(ctx, &models.BatchEntry{
			SubjectID: 22, VariantID: 1, BatchIndex: 0, Handles: []string{"fresh-1", "fresh-2"},
		}))

		entries, err := store.GetBatches(ctx, 22, 1)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, []string{"fresh-1", "fresh-2"}, entries[0].Handles)
	})

	t.Run("delete artifacts by subject", func(t *testing.T) {
		keep := models.ProductionKey{SubjectID: 31, VariantID: 1, Format: "pdf"}
		require.NoError(t, store.PutArtifact(ctx, &models.ArtifactEntry{Key: models.ProductionKey{SubjectID: 30, VariantID: 1, Format: "pdf"}, Handle: "x"}))
		require.NoError(t, store.PutArtifact(ctx, &models.ArtifactEntry{Key: models.ProductionKey{SubjectID: 30, VariantID: 2, Format: "pdf"}, Handle: "y"}))
		require.NoError(t, store.PutArtifact(ctx, &models.ArtifactEntry{Key: keep, Handle: "z"}))

		subject := int64(30)
		removed, err := store.DeleteArtifacts(ctx, &subject)
		require.NoError(t, err)
		assert.Equal(t, int64(2), removed)

		_, err = store.GetArtifact(ctx, keep)
		assert.NoError(t, err, "other subjects must be untouched")

		// Deleting an absent subject removes nothing.
		removed, err = store.DeleteArtifacts(ctx, &subject)
		require.NoError(t, err)
		assert.Zero(t, removed)
	})

	t.Run("delete batches by subject", func(t *testing.T) {
		require.NoError(t, store.PutBatch(ctx, &models.BatchEntry{SubjectID: 40, VariantID: 1, BatchIndex: 0, Handles: []string{"a"}}))
		require.NoError(t, store.PutBatch(ctx, &models.BatchEntry{SubjectID: 40, VariantID: 1, BatchIndex: 1, Handles: []string{"b"}}))
		require.NoError(t, store.PutBatch(ctx, &models.BatchEntry{SubjectID: 41, VariantID: 1, BatchIndex: 0, Handles: []string{"c"}}))

		subject := int64(40)
		removed, err := store.DeleteBatches(ctx, &subject)
		require.NoError(t, err)
		assert.Equal(t, int64(2), removed)

		entries, err := store.GetBatches(ctx, 41, 1)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("delete all", func(t *testing.T) {
		require.NoError(t, store.PutArtifact(ctx, &models.ArtifactEntry{Key: models.ProductionKey{SubjectID: 50, VariantID: 1, Format: "pdf"}, Handle: "x"}))
		require.NoError(t, store.PutBatch(ctx, &models.BatchEntry{SubjectID: 50, VariantID: 1, BatchIndex: 0, Handles: []string{"a"}}))

		removedArtifacts, err := store.DeleteArtifacts(ctx, nil)
		require.NoError(t, err)
		assert.Positive(t, removedArtifacts)

		removedBatches, err := store.DeleteBatches(ctx, nil)
		require.NoError(t, err)
		assert.Positive(t, removedBatches)

		_, err = store.GetArtifact(ctx, models.ProductionKey{SubjectID: 50, VariantID: 1, Format: "pdf"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, store.Ping(ctx))
	})
}
