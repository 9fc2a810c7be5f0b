package cache

import (
	"context"
	"log/slog"
	"time"

	"mangabot/internal/models"
	"mangabot/internal/storage"
)

// Batches maps a subject/variant to its ordered multi-part handle groups.
type Batches struct {
	store  storage.Store
	logger *slog.Logger
}

// NewBatches creates a batch cache over the given store.
func NewBatches(store storage.Store, logger *slog.Logger) *Batches {
	return &Batches{store: store, logger: logger}
}

// Get returns the cached handle groups for a subject/variant in ascending
// batch index order. Only indices actually present are returned; a missing
// index is an absence, not an empty group, and the caller decides whether a
// partial set is usable. Store failures degrade to an empty result.
func (b *Batches) Get(ctx context.Context, subjectID, variantID int64) [][]string {
	entries, err := b.store.GetBatches(ctx, subjectID, variantID)
	if err != nil {
		b.logger.Warn("batch cache read failed, treating as miss",
			"subject_id", subjectID,
			"variant_id", variantID,
			"error", err)
		return [][]string{}
	}

	groups := make([][]string, 0, len(entries))
	for _, entry := range entries {
		groups = append(groups, entry.Handles)
	}
	return groups
}

// Put records the handle group for one batch index, overwriting any previous
// group at that index. Store failures are logged and swallowed.
func (b *Batches) Put(ctx context.Context, subjectID, variantID int64, index int, handles []string) {
	err := b.store.PutBatch(ctx, &models.BatchEntry{
		SubjectID:  subjectID,
		VariantID:  variantID,
		BatchIndex: index,
		Handles:    handles,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		b.logger.Error("failed to persist batch handles",
			"subject_id", subjectID,
			"variant_id", variantID,
			"batch_index", index,
			"error", err)
	}
}

// Invalidate removes cached batches for one subject, or all of them when
// subjectID is nil. Returns the number of rows removed.
func (b *Batches) Invalidate(ctx context.Context, subjectID *int64) (int64, error) {
	return b.store.DeleteBatches(ctx, subjectID)
}
