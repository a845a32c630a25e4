package storage

import (
	"fmt"

	"trustguard/internal/models"
)

// Factory provides a centralized way to create storage instances based on configuration.
type Factory struct{}

// NewFactory creates a new storage factory
func NewFactory() *Factory {
	return &Factory{}
}

// Create instantiates a storage provider based on the provided configuration.
// Supported providers:
//   - json: JSON Lines file, append-only
//   - memory: bounded in-memory ring (default)
//   - postgres: PostgreSQL, shared by several replicas
//   - sqlite: local SQLite database
func (f *Factory) Create(config models.StorageConfig) (Storage, error) {
	storageConfig := Config{
		Type:             config.Type,
		Path:             config.Path,
		ConnectionString: config.Database.DSN,
		MaxEntries:       config.MaxEntries,
		MaxOpenConns:     config.Database.MaxOpenConns,
		MaxIdleConns:     config.Database.MaxIdleConns,
		ConnMaxLifetime:  config.Database.ConnMaxLifetime,
	}

	switch config.Type {
	case models.StorageTypeJSON:
		return NewJSONStorage(storageConfig)
	case models.StorageTypeMemory:
		return NewMemoryStorage(storageConfig)
	case models.StorageTypePostgres:
		return NewPostgresStorage(storageConfig)
	case models.StorageTypeSQLite:
		return NewSQLiteStorage(storageConfig)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, config.Type)
	}
}

// GetSupportedProviders returns a list of all supported storage provider types
func (f *Factory) GetSupportedProviders() []string {
	return []string{models.StorageTypeJSON, models.StorageTypeMemory, models.StorageTypePostgres, models.StorageTypeSQLite}
}

// ValidateConfig validates that a storage configuration is valid for its type
func (f *Factory) ValidateConfig(config models.StorageConfig) error {
	switch config.Type {
	case models.StorageTypeJSON:
		if config.Path == "" {
			return fmt.Errorf("path is required for JSON storage")
		}
	case models.StorageTypeMemory:
		if config.MaxEntries < 0 {
			return fmt.Errorf("max entries cannot be negative")
		}
	case models.StorageTypePostgres, models.StorageTypeSQLite:
		if config.Database.DSN == "" {
			return fmt.Errorf("database DSN is required for %s storage", config.Type)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedType, config.Type)
	}
	return nil
}
