package storage

import (
	"context"
	"log/slog"
	"time"

	"mangabot/internal/models"
)

// Store defines the interface for durable delivery-cache persistence. It
// covers the two tables the caches are built on: artifacts (one handle per
// production key) and batches (ordered handle groups per subject/variant).
// It can be implemented by different backends such as embedded databases,
// PostgreSQL, or Redis.
type Store interface {
	// GetArtifact retrieves the cached entry for a production key.
	// Returns ErrNotFound when no entry exists.
	GetArtifact(ctx context.Context, key models.ProductionKey) (*models.ArtifactEntry, error)

	// PutArtifact stores or overwrites the entry for its key (last write wins).
	PutArtifact(ctx context.Context, entry *models.ArtifactEntry) error

	// GetBatches returns all batch entries for a subject/variant in ascending
	// BatchIndex order. A subject/variant with no rows yields an empty slice,
	// not an error. Rows whose handle payload cannot be decoded are skipped.
	GetBatches(ctx context.Context, subjectID, variantID int64) ([]*models.BatchEntry, error)

	// PutBatch stores or overwrites one batch row, keyed by
	// (SubjectID, VariantID, BatchIndex).
	PutBatch(ctx context.Context, entry *models.BatchEntry) error

	// DeleteArtifacts removes artifact entries. A nil subjectID removes all;
	// otherwise only entries for that subject. Returns the number removed.
	DeleteArtifacts(ctx context.Context, subjectID *int64) (int64, error)

	// DeleteBatches removes batch entries, with the same subject scoping as
	// DeleteArtifacts. Returns the number removed.
	DeleteBatches(ctx context.Context, subjectID *int64) (int64, error)

	// Ping verifies the backend is reachable and operational.
	Ping(ctx context.Context) error

	// Close closes the backend connection and cleans up resources.
	Close() error
}

// Config holds configuration for storage backends.
type Config struct {
	// Type specifies the storage backend type (memory, sqlite, postgres, redis).
	Type string

	// DSN is the connection string for database backends.
	DSN string

	// Connection pool settings for database backends.
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// Redis connection settings.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int

	// Logger receives backend warnings such as corrupt-row skips.
	Logger *slog.Logger
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
