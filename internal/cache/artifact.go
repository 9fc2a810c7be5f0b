// Package cache implements the delivery cache policy on top of a
// storage.Store. The caches are an optimization, never a gatekeeper: when the
// backing store is unavailable, reads degrade to a miss and writes are
// dropped with a log line, so delivery always proceeds (at regeneration
// cost) instead of failing.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"mangabot/internal/models"
	"mangabot/internal/storage"
)

// Artifacts maps production keys to single delivery handles.
type Artifacts struct {
	store  storage.Store
	logger *slog.Logger
}

// NewArtifacts creates an artifact cache over the given store.
func NewArtifacts(store storage.Store, logger *slog.Logger) *Artifacts {
	return &Artifacts{store: store, logger: logger}
}

// Get returns the cached handle for a key. Both a genuine absence and a
// store failure report a miss; only the failure is logged.
func (a *Artifacts) Get(ctx context.Context, key models.ProductionKey) (string, bool) {
	entry, err := a.store.GetArtifact(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			a.logger.Warn("artifact cache read failed, treating as miss",
				"subject_id", key.SubjectID,
				"variant_id", key.VariantID,
				"format", key.Format,
				"error", err)
		}
		return "", false
	}
	return entry.Handle, true
}

// Put records the handle for a key, overwriting any previous one. A store
// failure is logged and swallowed: the content has already been delivered,
// only the shortcut for next time is lost.
func (a *Artifacts) Put(ctx context.Context, key models.ProductionKey, handle string) {
	err := a.store.PutArtifact(ctx, &models.ArtifactEntry{
		Key:       key,
		Handle:    handle,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		a.logger.Error("failed to persist artifact handle",
			"subject_id", key.SubjectID,
			"variant_id", key.VariantID,
			"format", key.Format,
			"error", err)
	}
}

// Invalidate removes cached artifacts for one subject, or all of them when
// subjectID is nil. Returns the number of entries removed. Unlike reads and
// writes, invalidation failures are reported: the caller asked for a state
// change and needs to know it did not happen.
func (a *Artifacts) Invalidate(ctx context.Context, subjectID *int64) (int64, error) {
	return a.store.DeleteArtifacts(ctx, subjectID)
}
