package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"trustguard/internal/models"
)

// expiryGrace keeps a window's key alive a little past the window end so a
// slow INCR never recreates a key Redis already expired mid-window.
const expiryGrace = time.Second

// RedisStore is a Store shared by every gateway replica. Each (key, window)
// pair is one Redis integer that expires shortly after the window ends, which
// stands in for the memory store's per-key reset.
type RedisStore struct {
	client  redis.Cmdable
	prefix  string
	timeout time.Duration
}

var _ Store = (*RedisStore)(nil)

type RedisStoreOption func(*RedisStore)

// WithKeyPrefix namespaces all counter keys.
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) { s.prefix = strings.Trim(prefix, ":") }
}

// WithTimeout bounds every Increment round trip.
func WithTimeout(d time.Duration) RedisStoreOption {
	return func(s *RedisStore) { s.timeout = d }
}

func NewRedisStore(client redis.Cmdable, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		client:  client,
		prefix:  "trustguard:rl",
		timeout: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Increment runs INCR and PEXPIREAT in one MULTI/EXEC. Errors are returned
// as-is; the policy fails open on them.
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration, now time.Time) (Hit, error) {
	if err := ValidateWindow(window); err != nil {
		return Hit{}, err
	}
	index, resetAt := windowBounds(now, window)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	counterKey := s.counterKey(key, index)
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, counterKey)
	pipe.PExpireAt(ctx, counterKey, resetAt.Add(expiryGrace))
	if _, err := pipe.Exec(ctx); err != nil {
		return Hit{}, fmt.Errorf("increment %s: %w", counterKey, err)
	}

	return Hit{TotalHits: incr.Val(), ResetTime: resetAt}, nil
}

func (s *RedisStore) counterKey(key string, index int64) string {
	return s.prefix + ":" + key + ":" + strconv.FormatInt(index, 10)
}

// NewRedisClient connects to Redis and verifies the connection with a ping.
func NewRedisClient(cfg models.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}
