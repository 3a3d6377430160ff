package session

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// Default TTL for session records in Redis (24 hours). Records are deleted
// explicitly when the last participant leaves; the TTL is a backstop for
// sessions orphaned by a crashed gateway.
const defaultTTL = 24 * time.Hour

// StoreOption is a functional option for configuring a session store.
type StoreOption func(*storeConfig)

// storeConfig holds configuration for session stores.
type storeConfig struct {
	redisClient *redis.Client
	redisTTL    time.Duration
}

// ttl returns the configured record expiry, falling back to the default.
func (c *storeConfig) ttl() time.Duration {
	if c.redisTTL > 0 {
		return c.redisTTL
	}
	return defaultTTL
}

// WithRedisClient sets the shared Redis client for the redis driver.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithRedisTTL overrides the backstop expiry on session records.
func WithRedisTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) {
		c.redisTTL = ttl
	}
}
