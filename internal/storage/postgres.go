package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"mangabot/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS artifacts (
	subject_id BIGINT NOT NULL,
	variant_id BIGINT NOT NULL,
	format     TEXT   NOT NULL,
	handle     TEXT   NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (subject_id, variant_id, format)
);

CREATE TABLE IF NOT EXISTS batches (
	subject_id  BIGINT NOT NULL,
	variant_id  BIGINT NOT NULL,
	batch_index INTEGER NOT NULL,
	handles     TEXT   NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (subject_id, variant_id, batch_index)
);
`

// PostgresStore implements Store on PostgreSQL via a pgx connection pool,
// for deployments where the bot shares a database with other services.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore creates a connection pool against the configured DSN and
// ensures the schema exists.
func NewPostgresStore(config Config) (*PostgresStore, error) {
	if config.DSN == "" {
		return nil, fmt.Errorf("DSN is required for PostgreSQL storage")
	}

	poolConfig, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}
	if config.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(config.MaxOpenConns)
	}
	if config.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = config.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(context.Background(), postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &PostgresStore{
		pool:   pool,
		logger: config.logger(),
	}, nil
}

// GetArtifact retrieves the cached entry for a production key.
func (ps *PostgresStore) GetArtifact(ctx context.Context, key models.ProductionKey) (*models.ArtifactEntry, error) {
	entry := &models.ArtifactEntry{Key: key}
	err := ps.pool.QueryRow(ctx,
		`SELECT handle, created_at FROM artifacts WHERE subject_id = $1 AND variant_id = $2 AND format = $3`,
		key.SubjectID, key.VariantID, key.Format).Scan(&entry.Handle, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return entry, nil
}

// PutArtifact stores or overwrites the entry for its key.
func (ps *PostgresStore) PutArtifact(ctx context.Context, entry *models.ArtifactEntry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := ps.pool.Exec(ctx,
		`INSERT INTO artifacts (subject_id, variant_id, format, handle, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (subject_id, variant_id, format)
		 DO UPDATE SET handle = excluded.handle, created_at = excluded.created_at`,
		entry.Key.SubjectID, entry.Key.VariantID, entry.Key.Format, entry.Handle, createdAt)
	if err != nil {
		return fmt.Errorf("failed to save artifact: %w", err)
	}
	return nil
}

// GetBatches returns all batch entries for a subject/variant in ascending
// index order. Rows with undecodable handle payloads are logged and skipped.
func (ps *PostgresStore) GetBatches(ctx context.Context, subjectID, variantID int64) ([]*models.BatchEntry, error) {
	rows, err := ps.pool.Query(ctx,
		`SELECT batch_index, handles, created_at FROM batches
		 WHERE subject_id = $1 AND variant_id = $2
		 ORDER BY batch_index ASC`,
		subjectID, variantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get batches: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.BatchEntry, 0)
	for rows.Next() {
		var (
			index     int
			payload   string
			createdAt time.Time
		)
		if err := rows.Scan(&index, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan batch row: %w", err)
		}

		handles, err := unmarshalHandles(payload)
		if err != nil {
			ps.logger.Warn("skipping corrupt batch row",
				"subject_id", subjectID,
				"variant_id", variantID,
				"batch_index", index,
				"error", err)
			continue
		}

		entries = append(entries, &models.BatchEntry{
			SubjectID:  subjectID,
			VariantID:  variantID,
			BatchIndex: index,
			Handles:    handles,
			CreatedAt:  createdAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate batch rows: %w", err)
	}
	return entries, nil
}

// PutBatch stores or overwrites one batch row.
func (ps *PostgresStore) PutBatch(ctx context.Context, entry *models.BatchEntry) error {
	payload, err := marshalHandles(entry.Handles)
	if err != nil {
		return err
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = ps.pool.Exec(ctx,
		`INSERT INTO batches (subject_id, variant_id, batch_index, handles, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (subject_id, variant_id, batch_index)
		 DO UPDATE SET handles = excluded.handles, created_at = excluded.created_at`,
		entry.SubjectID, entry.VariantID, entry.BatchIndex, payload, createdAt)
	if err != nil {
		return fmt.Errorf("failed to save batch: %w", err)
	}
	return nil
}

// DeleteArtifacts removes artifact entries, all of them or one subject's.
func (ps *PostgresStore) DeleteArtifacts(ctx context.Context, subjectID *int64) (int64, error) {
	return ps.deleteFrom(ctx, "artifacts", subjectID)
}

// DeleteBatches removes batch entries, all of them or one subject's.
func (ps *PostgresStore) DeleteBatches(ctx context.Context, subjectID *int64) (int64, error) {
	return ps.deleteFrom(ctx, "batches", subjectID)
}

func (ps *PostgresStore) deleteFrom(ctx context.Context, table string, subjectID *int64) (int64, error) {
	var (
		tag pgconn.CommandTag
		err error
	)
	if subjectID == nil {
		tag, err = ps.pool.Exec(ctx, `DELETE FROM `+table)
	} else {
		tag, err = ps.pool.Exec(ctx, `DELETE FROM `+table+` WHERE subject_id = $1`, *subjectID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

// Ping verifies the database is reachable.
func (ps *PostgresStore) Ping(ctx context.Context) error {
	return ps.pool.Ping(ctx)
}

// Close closes the connection pool.
func (ps *PostgresStore) Close() error {
	ps.pool.Close()
	return nil
}
