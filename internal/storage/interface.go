package storage

import (
	"context"
	"time"

	"trustguard/internal/models"
)

// Storage persists rejected requests so operators can see who is being
// throttled and by which policy. Rejections are append-only.
type Storage interface {
	// RecordRejection appends a rejection to the log
	RecordRejection(ctx context.Context, r *models.Rejection) error

	// Rejections returns the rejections matching filter, newest first, capped
	// at filter.EffectiveLimit()
	Rejections(ctx context.Context, filter models.RejectionFilter) ([]*models.Rejection, error)

	// Ping reports whether the backend is reachable
	Ping(ctx context.Context) error

	// Close releases the backend's resources
	Close() error
}

// Config holds configuration for storage backends
type Config struct {
	// Type specifies the storage backend type (json, memory, postgres, sqlite)
	Type string `json:"type" yaml:"type"`

	// Path is used for file-based storage backends
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// ConnectionString is used for database backends
	ConnectionString string `json:"connection_string,omitempty" yaml:"connection_string,omitempty"`

	// MaxEntries bounds the memory backend; older rejections are dropped first
	MaxEntries int `json:"max_entries,omitempty" yaml:"max_entries,omitempty"`

	MaxOpenConns    int           `json:"max_open_conns,omitempty" yaml:"max_open_conns,omitempty"`
	MaxIdleConns    int           `json:"max_idle_conns,omitempty" yaml:"max_idle_conns,omitempty"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime,omitempty" yaml:"conn_max_lifetime,omitempty"`
}
