package stats

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRecorder aggregates decisions in Redis hashes so several gateway
// replicas report one set of numbers:
//
//	{prefix}:total            field = outcome
//	{prefix}:policy           field = policy:outcome
//	{prefix}:minute:{YYYYMMDDhhmm}  field = outcome (expires after ttl)
//	{prefix}:key:{key}        field = outcome (only with key tracking, expires after ttl)
type RedisRecorder struct {
	rdb redis.Cmdable

	prefix    string
	ttl       time.Duration
	trackKeys bool
}

type RedisOption func(*RedisRecorder)

func WithRedisPrefix(prefix string) RedisOption {
	return func(r *RedisRecorder) { r.prefix = strings.Trim(prefix, ":") }
}

func WithRedisTTL(d time.Duration) RedisOption {
	return func(r *RedisRecorder) { r.ttl = d }
}

func WithRedisTrackKeys(track bool) RedisOption {
	return func(r *RedisRecorder) { r.trackKeys = track }
}

func NewRedisRecorder(rdb redis.Cmdable, opts ...RedisOption) *RedisRecorder {
	r := &RedisRecorder{
		rdb:    rdb,
		prefix: "trustguard:stats",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisRecorder) Record(ctx context.Context, ev Event) error {
	if r == nil || r.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := Outcome(ev)

	pipe := r.rdb.Pipeline()
	pipe.HIncrBy(ctx, r.prefix+":total", field, 1)
	pipe.HIncrBy(ctx, r.prefix+":policy", ev.Policy+":"+field, 1)

	bucketKey := fmt.Sprintf("%s:minute:%s", r.prefix, at.UTC().Format("200601021504"))
	pipe.HIncrBy(ctx, bucketKey, field, 1)
	if r.ttl > 0 {
		pipe.Expire(ctx, bucketKey, r.ttl)
	}

	if r.trackKeys && ev.Key != "" {
		keyKey := r.prefix + ":key:" + ev.Key
		pipe.HIncrBy(ctx, keyKey, field, 1)
		if r.ttl > 0 {
			pipe.Expire(ctx, keyKey, r.ttl)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record decision stats: %w", err)
	}
	return nil
}

// Totals reads the aggregated outcome counters.
func (r *RedisRecorder) Totals(ctx context.Context) (map[string]int64, error) {
	raw, err := r.rdb.HGetAll(ctx, r.prefix+":total").Result()
	if err != nil {
		return nil, fmt.Errorf("read decision totals: %w", err)
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			out[k] = n
		}
	}
	return out, nil
}
