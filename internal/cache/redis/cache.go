package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/catalogsearch/pkg/logger"
)

const (
	scanCount       = 500
	defaultTimeout  = 250 * time.Millisecond
	invalidateScale = 20
)

// Operations counts cache calls by operation and result
// (hit, miss, error, ok).
var Operations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "search_cache_operations_total",
		Help: "Total number of search cache operations by result",
	},
	[]string{"op", "result"},
)

// InvalidatedKeys counts keys removed by pattern invalidation.
var InvalidatedKeys = promauto.NewCounter(prometheus.CounterOpts{
	Name: "search_cache_invalidated_keys_total",
	Help: "Total number of cache keys removed by invalidation",
})

// Cache is a Redis-backed cache.Cache. Every operation runs under its own
// timeout; failures are logged and reported as a miss.
type Cache struct {
	client  *redis.Client
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Redis cache. A non-positive opTimeout uses 250ms.
func New(client *redis.Client, opTimeout time.Duration, logger *slog.Logger) *Cache {
	if opTimeout <= 0 {
		opTimeout = defaultTimeout
	}
	return &Cache{client: client, timeout: opTimeout, logger: logger}
}

// Get returns the stored value for key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			Operations.WithLabelValues("get", "miss").Inc()
			return nil, false
		}
		Operations.WithLabelValues("get", "error").Inc()
		c.warn(ctx, "redis get failed", key, err)
		return nil, false
	}

	Operations.WithLabelValues("get", "hit").Inc()
	return data, true
}

// Set stores value for ttl.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		Operations.WithLabelValues("set", "error").Inc()
		c.warn(ctx, "redis set failed", key, err)
		return
	}
	Operations.WithLabelValues("set", "ok").Inc()
}

// Invalidate deletes every key matching pattern, walking the keyspace with
// SCAN and deleting each batch in one pipeline. KEYS is never used.
func (c *Cache) Invalidate(ctx context.Context, pattern string) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout*invalidateScale)
	defer cancel()

	removed, err := c.invalidate(ctx, pattern)
	InvalidatedKeys.Add(float64(removed))
	if err != nil {
		Operations.WithLabelValues("invalidate", "error").Inc()
		c.warn(ctx, "redis invalidate failed", pattern, err)
		return
	}
	Operations.WithLabelValues("invalidate", "ok").Inc()

	logger.WithContext(ctx, c.logger).Debug("cache invalidated",
		slog.String("pattern", pattern),
		slog.Int("keys", removed),
	)
}

func (c *Cache) invalidate(ctx context.Context, pattern string) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return removed, err
		}

		if len(keys) > 0 {
			pipe := c.client.Pipeline()
			for _, k := range keys {
				pipe.Del(ctx, k)
			}
			if _, err := pipe.Exec(ctx); err != nil {
				return removed, err
			}
			removed += len(keys)
		}

		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

// Ping checks the Redis connection.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) warn(ctx context.Context, msg, key string, err error) {
	logger.WithContext(ctx, c.logger).Warn(msg,
		slog.String("key", key),
		slog.String("error", err.Error()),
	)
}
