package storage

import (
	"fmt"
	"log/slog"

	"mangabot/internal/models"
)

// Factory provides a centralized way to create storage instances based on
// configuration. This allows for easy extensibility and backend swapping
// without code changes.
type Factory struct{}

// NewFactory creates a new storage factory.
func NewFactory() *Factory {
	return &Factory{}
}

// Create instantiates a storage backend based on the provided configuration.
// Supported backends:
//   - memory: in-memory storage (for testing/development)
//   - sqlite: embedded SQLite database (default)
//   - postgres: PostgreSQL database storage
//   - redis: Redis storage
func (f *Factory) Create(config models.StorageConfig, logger *slog.Logger) (Store, error) {
	storageConfig := Config{
		Type:            config.Type,
		DSN:             config.Database.DSN,
		MaxOpenConns:    config.Database.MaxOpenConns,
		MaxIdleConns:    config.Database.MaxIdleConns,
		ConnMaxLifetime: config.Database.ConnMaxLifetime,
		RedisAddr:       config.Redis.Addr,
		RedisPassword:   config.Redis.Password,
		RedisDB:         config.Redis.DB,
		RedisPoolSize:   config.Redis.PoolSize,
		Logger:          logger,
	}

	switch config.Type {
	case models.StorageTypeMemory:
		return NewMemoryStore(), nil
	case models.StorageTypeSQLite:
		return NewSQLiteStore(storageConfig)
	case models.StorageTypePostgres:
		return NewPostgresStore(storageConfig)
	case models.StorageTypeRedis:
		return NewRedisStore(storageConfig)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.Type)
	}
}

// GetSupportedBackends returns a list of all supported storage backend types.
func (f *Factory) GetSupportedBackends() []string {
	return []string{models.StorageTypeMemory, models.StorageTypeSQLite, models.StorageTypePostgres, models.StorageTypeRedis}
}
