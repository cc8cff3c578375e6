package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/kidega/apartments/pkg/observability"
)

// DefaultTTLs maps data types to cache lifetimes. Routes may override
// with an explicit TTL.
var DefaultTTLs = map[string]time.Duration{
	"apartments": 300 * time.Second,
	"users":      600 * time.Second,
	"tenants":    600 * time.Second,
	"metrics":    60 * time.Second,
	"static":     86400 * time.Second,
}

// DefaultTTL applies to data types without an entry in DefaultTTLs.
const DefaultTTL = 300 * time.Second

// TTLFor returns the cache lifetime for a data type.
func TTLFor(dataType string) time.Duration {
	if ttl, ok := DefaultTTLs[dataType]; ok {
		return ttl
	}
	return DefaultTTL
}

// KeyFor builds the deterministic cache key for a request. Tenant
// callers get a tenant-prefixed namespace so their entries can be
// invalidated in bulk without touching shared keys.
func KeyFor(dataType, path, tenantID string) string {
	if tenantID != "" {
		return fmt.Sprintf("tenant:%s:%s:%s", tenantID, dataType, path)
	}
	return fmt.Sprintf("%s:%s", dataType, path)
}

// TenantPrefix returns the key prefix covering every cache entry of one
// tenant.
func TenantPrefix(tenantID string) string {
	return fmt.Sprintf("tenant:%s:", tenantID)
}

// Client wraps a Redis connection with the cache key and TTL policy.
// Every operation degrades gracefully: a Redis failure is logged and
// reported as a miss or no-op, never as a request error.
type Client struct {
	client  *redis.Client
	logger  *observability.Logger
	metrics *observability.Metrics
}

// Config holds Redis connection settings.
type Config struct {
	URL      string
	PoolSize int
}

// NewClient connects to Redis and verifies the connection.
func NewClient(config Config, logger *observability.Logger, metrics *observability.Metrics) (*Client, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{client: client, logger: logger, metrics: metrics}, nil
}

// NewClientWithRedis wraps an existing Redis client. Used by tests.
func NewClientWithRedis(client *redis.Client, logger *observability.Logger, metrics *observability.Metrics) *Client {
	return &Client{client: client, logger: logger, metrics: metrics}
}

// Get returns the cached body for a key, or found=false on miss. Redis
// errors count as misses.
func (c *Client) Get(ctx context.Context, key, dataType string) (data []byte, found bool) {
	result, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		c.metrics.CacheMissesTotal.WithLabelValues(dataType).Inc()
		return nil, false
	}
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("cache get failed")
		c.metrics.CacheMissesTotal.WithLabelValues(dataType).Inc()
		return nil, false
	}
	c.metrics.CacheHitsTotal.WithLabelValues(dataType).Inc()
	return result, true
}

// Set stores a body under a key for the given TTL. Failures are logged
// and swallowed.
func (c *Client) Set(ctx context.Context, key string, data []byte, ttl time.Duration) {
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("cache set failed")
	}
}

// Delete removes specific keys. Failures are logged and swallowed.
func (c *Client) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.WithError(err).WithField("keys", keys).Warn("cache delete failed")
	}
}

// DeletePrefix removes every key under a prefix using SCAN, so large
// namespaces do not block Redis the way KEYS would.
func (c *Client) DeletePrefix(ctx context.Context, prefix string) {
	iter := c.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 100 {
			c.Delete(ctx, keys...)
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.WithError(err).WithField("prefix", prefix).Warn("cache scan failed")
		return
	}
	c.Delete(ctx, keys...)
}

// InvalidateTenant removes every cache entry in a tenant's namespace.
func (c *Client) InvalidateTenant(ctx context.Context, tenantID string) {
	c.DeletePrefix(ctx, TenantPrefix(tenantID))
}

// HealthCheck verifies the Redis connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}
