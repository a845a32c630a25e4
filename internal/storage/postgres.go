package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"trustguard/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS rejections (
	id           TEXT PRIMARY KEY,
	policy       TEXT NOT NULL,
	limit_key    TEXT NOT NULL,
	ip           TEXT NOT NULL DEFAULT '',
	method       TEXT NOT NULL DEFAULT '',
	path         TEXT NOT NULL DEFAULT '',
	total_hits   BIGINT NOT NULL,
	max_requests INTEGER NOT NULL,
	occurred_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rejections_occurred_at ON rejections (occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_rejections_policy ON rejections (policy, occurred_at DESC);
`

// PostgresStorage stores rejections in PostgreSQL. Several gateway replicas
// can share one database.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage creates the connection pool and the schema.
func NewPostgresStorage(config Config) (*PostgresStorage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL storage")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if config.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(min(config.MaxIdleConns, int(poolConfig.MaxConns)))
	}
	if config.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = config.ConnMaxLifetime
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

func (ps *PostgresStorage) RecordRejection(ctx context.Context, r *models.Rejection) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid rejection: %w", err)
	}

	_, err := ps.pool.Exec(ctx,
		`INSERT INTO rejections (id, policy, limit_key, ip, method, path, total_hits, max_requests, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.Policy, r.Key, r.IP, r.Method, r.Path, r.TotalHits, r.Limit, r.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert rejection: %w", err)
	}
	return nil
}

func (ps *PostgresStorage) Rejections(ctx context.Context, filter models.RejectionFilter) ([]*models.Rejection, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Policy != "" {
		where = append(where, "policy = "+arg(filter.Policy))
	}
	if !filter.Since.IsZero() {
		where = append(where, "occurred_at >= "+arg(filter.Since))
	}

	query := `SELECT id, policy, limit_key, ip, method, path, total_hits, max_requests, occurred_at FROM rejections`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY occurred_at DESC LIMIT " + arg(filter.EffectiveLimit())

	rows, err := ps.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rejections: %w", err)
	}

	result, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Rejection, error) {
		var r models.Rejection
		err := row.Scan(&r.ID, &r.Policy, &r.Key, &r.IP, &r.Method, &r.Path, &r.TotalHits, &r.Limit, &r.OccurredAt)
		r.OccurredAt = r.OccurredAt.UTC()
		return &r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan rejections: %w", err)
	}
	if result == nil {
		result = []*models.Rejection{}
	}
	return result, nil
}

func (ps *PostgresStorage) Ping(ctx context.Context) error {
	return ps.pool.Ping(ctx)
}

// Close closes the connection pool
func (ps *PostgresStorage) Close() error {
	ps.pool.Close()
	return nil
}
