package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/5vraa/swims.cc-website-sub000/gate"
)

// Cache stores definitive oracle answers. Implementations treat their own
// failures as misses.
type Cache interface {
	Get(ctx context.Context, key string) (hasRole bool, ok bool)
	Set(ctx context.Context, key string, hasRole bool)
}

// MemoryCache keeps answers in process.
type MemoryCache struct {
	entries *gate.TTLCache[string, bool]
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{entries: gate.NewTTLCache[string, bool](ttl)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (bool, bool) {
	return c.entries.Get(key)
}

func (c *MemoryCache) Set(_ context.Context, key string, hasRole bool) {
	c.entries.Set(key, hasRole)
}

// Invalidate drops a cached answer, e.g. after a role change in the guild.
func (c *MemoryCache) Invalidate(key string) {
	c.entries.Invalidate(key)
}

// RedisCache shares answers between instances.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	log    *slog.Logger
}

// ConnectRedis initializes a client from a redis:// URL or a host:port address.
func ConnectRedis(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

func NewRedisCache(client redis.UniversalClient, prefix string, ttl time.Duration, log *slog.Logger) *RedisCache {
	if log == nil {
		log = slog.Default()
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl, log: log}
}

func (c *RedisCache) Get(ctx context.Context, key string) (bool, bool) {
	v, err := c.client.Get(ctx, c.prefix+key).Result()
	if err == redis.Nil {
		return false, false
	}
	if err != nil {
		c.log.WarnContext(ctx, "role cache read failed", "module", "oracle", "operation", "cache_get", "error", err)
		return false, false
	}
	return v == "1", true
}

func (c *RedisCache) Set(ctx context.Context, key string, hasRole bool) {
	v := "0"
	if hasRole {
		v = "1"
	}
	if err := c.client.Set(ctx, c.prefix+key, v, c.ttl).Err(); err != nil {
		c.log.WarnContext(ctx, "role cache write failed", "module", "oracle", "operation", "cache_set", "error", err)
	}
}
