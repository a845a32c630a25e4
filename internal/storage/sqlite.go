package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"trustguard/internal/models"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS rejections (
	id           TEXT PRIMARY KEY,
	policy       TEXT NOT NULL,
	limit_key    TEXT NOT NULL,
	ip           TEXT NOT NULL DEFAULT '',
	method       TEXT NOT NULL DEFAULT '',
	path         TEXT NOT NULL DEFAULT '',
	total_hits   INTEGER NOT NULL,
	max_requests INTEGER NOT NULL,
	occurred_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rejections_occurred_at ON rejections (occurred_at);
CREATE INDEX IF NOT EXISTS idx_rejections_policy ON rejections (policy, occurred_at);
`

// SQLiteStorage stores rejections in a local SQLite database. Timestamps are
// stored as Unix milliseconds.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens the database and creates the schema if needed.
func NewSQLiteStorage(config Config) (*SQLiteStorage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for SQLite storage")
	}

	db, err := sql.Open("sqlite", config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer
	db.SetMaxOpenConns(1)
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func (ss *SQLiteStorage) RecordRejection(ctx context.Context, r *models.Rejection) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid rejection: %w", err)
	}

	_, err := ss.db.ExecContext(ctx,
		`INSERT INTO rejections (id, policy, limit_key, ip, method, path, total_hits, max_requests, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Policy, r.Key, r.IP, r.Method, r.Path, r.TotalHits, r.Limit, r.OccurredAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert rejection: %w", err)
	}
	return nil
}

func (ss *SQLiteStorage) Rejections(ctx context.Context, filter models.RejectionFilter) ([]*models.Rejection, error) {
	var (
		where []string
		args  []any
	)
	if filter.Policy != "" {
		where = append(where, "policy = ?")
		args = append(args, filter.Policy)
	}
	if !filter.Since.IsZero() {
		where = append(where, "occurred_at >= ?")
		args = append(args, filter.Since.UnixMilli())
	}

	query := `SELECT id, policy, limit_key, ip, method, path, total_hits, max_requests, occurred_at FROM rejections`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY occurred_at DESC, rowid DESC LIMIT ?"
	args = append(args, filter.EffectiveLimit())

	rows, err := ss.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rejections: %w", err)
	}
	defer rows.Close()

	result := []*models.Rejection{}
	for rows.Next() {
		var (
			r          models.Rejection
			occurredAt int64
		)
		if err := rows.Scan(&r.ID, &r.Policy, &r.Key, &r.IP, &r.Method, &r.Path, &r.TotalHits, &r.Limit, &occurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan rejection: %w", err)
		}
		r.OccurredAt = time.UnixMilli(occurredAt).UTC()
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rejections: %w", err)
	}
	return result, nil
}

func (ss *SQLiteStorage) Ping(ctx context.Context) error {
	return ss.db.PingContext(ctx)
}

// Close closes the storage connection
func (ss *SQLiteStorage) Close() error {
	return ss.db.Close()
}
