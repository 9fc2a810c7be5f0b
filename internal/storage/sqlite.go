package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"mangabot/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS artifacts (
	subject_id INTEGER NOT NULL,
	variant_id INTEGER NOT NULL,
	format     TEXT    NOT NULL,
	handle     TEXT    NOT NULL,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (subject_id, variant_id, format)
);

CREATE TABLE IF NOT EXISTS batches (
	subject_id  INTEGER NOT NULL,
	variant_id  INTEGER NOT NULL,
	batch_index INTEGER NOT NULL,
	handles     TEXT    NOT NULL,
	created_at  TIMESTAMP NOT NULL,
	PRIMARY KEY (subject_id, variant_id, batch_index)
);
`

// SQLiteStore implements Store on an embedded SQLite database. It is the
// default backend: a single-process bot does not need more.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (creating if necessary) the SQLite database at the
// configured DSN and ensures the schema exists.
func NewSQLiteStore(config Config) (*SQLiteStore, error) {
	if config.DSN == "" {
		return nil, fmt.Errorf("DSN is required for SQLite storage")
	}

	if err := ensureParentDir(config.DSN); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writers anyway; a single connection avoids
	// SQLITE_BUSY under concurrent access.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: config.logger(),
	}, nil
}

// ensureParentDir creates the directory for a file-backed DSN. In-memory and
// URI DSNs are left alone.
func ensureParentDir(dsn string) error {
	if strings.Contains(dsn, ":memory:") || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	path := dsn
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// GetArtifact retrieves the cached entry for a production key.
func (ss *SQLiteStore) GetArtifact(ctx context.Context, key models.ProductionKey) (*models.ArtifactEntry, error) {
	row := ss.db.QueryRowContext(ctx,
		`SELECT handle, created_at FROM artifacts WHERE subject_id = ? AND variant_id = ? AND format = ?`,
		key.SubjectID, key.VariantID, key.Format)

	entry := &models.ArtifactEntry{Key: key}
	if err := row.Scan(&entry.Handle, &entry.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return entry, nil
}

// PutArtifact stores or overwrites the entry for its key.
func (ss *SQLiteStore) PutArtifact(ctx context.Context, entry *models.ArtifactEntry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := ss.db.ExecContext(ctx,
		`INSERT INTO artifacts (subject_id, variant_id, format, handle, created_at)
		 VALUES (?, ?, ?, ?, ?)
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
func (ss *SQLiteStore) GetBatches(ctx context.Context, subjectID, variantID int64) ([]*models.BatchEntry, error) {
	rows, err := ss.db.QueryContext(ctx,
		`SELECT batch_index, handles, created_at FROM batches
		 WHERE subject_id = ? AND variant_id = ?
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
			ss.logger.Warn("skipping corrupt batch row",
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
func (ss *SQLiteStore) PutBatch(ctx context.Context, entry *models.BatchEntry) error {
	payload, err := marshalHandles(entry.Handles)
	if err != nil {
		return err
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = ss.db.ExecContext(ctx,
		`INSERT INTO batches (subject_id, variant_id, batch_index, handles, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (subject_id, variant_id, batch_index)
		 DO UPDATE SET handles = excluded.handles, created_at = excluded.created_at`,
		entry.SubjectID, entry.VariantID, entry.BatchIndex, payload, createdAt)
	if err != nil {
		return fmt.Errorf("failed to save batch: %w", err)
	}
	return nil
}

// DeleteArtifacts removes artifact entries, all of them or one subject's.
func (ss *SQLiteStore) DeleteArtifacts(ctx context.Context, subjectID *int64) (int64, error) {
	return ss.deleteFrom(ctx, "artifacts", subjectID)
}

// DeleteBatches removes batch entries, all of them or one subject's.
func (ss *SQLiteStore) DeleteBatches(ctx context.Context, subjectID *int64) (int64, error) {
	return ss.deleteFrom(ctx, "batches", subjectID)
}

func (ss *SQLiteStore) deleteFrom(ctx context.Context, table string, subjectID *int64) (int64, error) {
	var (
		result sql.Result
		err    error
	)
	if subjectID == nil {
		result, err = ss.db.ExecContext(ctx, `DELETE FROM `+table)
	} else {
		result, err = ss.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE subject_id = ?`, *subjectID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", table, err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted rows: %w", err)
	}
	return removed, nil
}

// Ping verifies the database is reachable.
func (ss *SQLiteStore) Ping(ctx context.Context) error {
	return ss.db.PingContext(ctx)
}

// Close closes the database handle.
func (ss *SQLiteStore) Close() error {
	return ss.db.Close()
}
