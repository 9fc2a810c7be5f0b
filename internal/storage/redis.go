package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"mangabot/internal/models"
)

const (
	redisArtifactPrefix = "mangabot:artifacts:"
	redisBatchPrefix    = "mangabot:batches:"
)

// artifactRecord is the JSON value stored per artifact hash field.
type artifactRecord struct {
	Handle    string    `json:"handle"`
	CreatedAt time.Time `json:"created_at"`
}

// batchRecord is the JSON value stored per batch hash field.
type batchRecord struct {
	Handles   []string  `json:"handles"`
	CreatedAt time.Time `json:"created_at"`
}

// RedisStore implements Store on Redis. Entries are grouped into one hash
// per subject so that subject-scoped invalidation is a single DEL.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisStore connects to the configured Redis instance.
func NewRedisStore(config Config) (*RedisStore, error) {
	if config.RedisAddr == "" {
		return nil, fmt.Errorf("address is required for Redis storage")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
		PoolSize: config.RedisPoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisStore{
		client: client,
		logger: config.logger(),
	}, nil
}

func artifactHashKey(subjectID int64) string {
	return redisArtifactPrefix + strconv.FormatInt(subjectID, 10)
}

func batchHashKey(subjectID int64) string {
	return redisBatchPrefix + strconv.FormatInt(subjectID, 10)
}

// GetArtifact retrieves the cached entry for a production key.
func (rs *RedisStore) GetArtifact(ctx context.Context, key models.ProductionKey) (*models.ArtifactEntry, error) {
	field := fmt.Sprintf("%d:%s", key.VariantID, key.Format)
	payload, err := rs.client.HGet(ctx, artifactHashKey(key.SubjectID), field).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}

	var rec artifactRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode artifact record: %w", err)
	}
	return &models.ArtifactEntry{Key: key, Handle: rec.Handle, CreatedAt: rec.CreatedAt}, nil
}

// PutArtifact stores or overwrites the entry for its key.
func (rs *RedisStore) PutArtifact(ctx context.Context, entry *models.ArtifactEntry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	payload, err := json.Marshal(artifactRecord{Handle: entry.Handle, CreatedAt: createdAt})
	if err != nil {
		return fmt.Errorf("failed to encode artifact record: %w", err)
	}

	field := fmt.Sprintf("%d:%s", entry.Key.VariantID, entry.Key.Format)
	if err := rs.client.HSet(ctx, artifactHashKey(entry.Key.SubjectID), field, payload).Err(); err != nil {
		return fmt.Errorf("failed to save artifact: %w", err)
	}
	return nil
}

// GetBatches returns all batch entries for a subject/variant in ascending
// index order. Fields with undecodable payloads are logged and skipped.
func (rs *RedisStore) GetBatches(ctx context.Context, subjectID, variantID int64) ([]*models.BatchEntry, error) {
	fields, err := rs.client.HGetAll(ctx, batchHashKey(subjectID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get batches: %w", err)
	}

	prefix := strconv.FormatInt(variantID, 10) + ":"
	entries := make([]*models.BatchEntry, 0)
	for field, payload := range fields {
		if !strings.HasPrefix(field, prefix) {
			continue
		}
		index, err := strconv.Atoi(strings.TrimPrefix(field, prefix))
		if err != nil {
			rs.logger.Warn("skipping batch field with malformed index",
				"subject_id", subjectID,
				"variant_id", variantID,
				"field", field)
			continue
		}

		var rec batchRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			rs.logger.Warn("skipping corrupt batch row",
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
			Handles:    rec.Handles,
			CreatedAt:  rec.CreatedAt,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].BatchIndex < entries[j].BatchIndex
	})
	return entries, nil
}

// PutBatch stores or overwrites one batch row.
func (rs *RedisStore) PutBatch(ctx context.Context, entry *models.BatchEntry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	handles := entry.Handles
	if handles == nil {
		handles = []string{}
	}
	payload, err := json.Marshal(batchRecord{Handles: handles, CreatedAt: createdAt})
	if err != nil {
		return fmt.Errorf("failed to encode batch record: %w", err)
	}

	field := fmt.Sprintf("%d:%d", entry.VariantID, entry.BatchIndex)
	if err := rs.client.HSet(ctx, batchHashKey(entry.SubjectID), field, payload).Err(); err != nil {
		return fmt.Errorf("failed to save batch: %w", err)
	}
	return nil
}

// DeleteArtifacts removes artifact entries, all of them or one subject's.
func (rs *RedisStore) DeleteArtifacts(ctx context.Context, subjectID *int64) (int64, error) {
	if subjectID != nil {
		return rs.deleteHash(ctx, artifactHashKey(*subjectID))
	}
	return rs.deleteByPattern(ctx, redisArtifactPrefix+"*")
}

// DeleteBatches removes batch entries, all of them or one subject's.
func (rs *RedisStore) DeleteBatches(ctx context.Context, subjectID *int64) (int64, error) {
	if subjectID != nil {
		return rs.deleteHash(ctx, batchHashKey(*subjectID))
	}
	return rs.deleteByPattern(ctx, redisBatchPrefix+"*")
}

// deleteHash removes one subject hash, returning the number of fields it held.
func (rs *RedisStore) deleteHash(ctx context.Context, key string) (int64, error) {
	count, err := rs.client.HLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	if count == 0 {
		return 0, nil
	}
	if err := rs.client.Del(ctx, key).Err(); err != nil {
		return 0, fmt.Errorf("failed to delete entries: %w", err)
	}
	return count, nil
}

// deleteByPattern scans for subject hashes matching the pattern and removes
// them all, returning the total number of fields removed.
func (rs *RedisStore) deleteByPattern(ctx context.Context, pattern string) (int64, error) {
	var (
		removed int64
		cursor  uint64
	)
	for {
		keys, next, err := rs.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to scan keys: %w", err)
		}
		for _, key := range keys {
			n, err := rs.deleteHash(ctx, key)
			if err != nil {
				return removed, err
			}
			removed += n
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

// Ping verifies the Redis connection is alive.
func (rs *RedisStore) Ping(ctx context.Context) error {
	return rs.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}
