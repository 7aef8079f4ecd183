package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/common/logger"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/config"
)

const redisOpTimeout = 300 * time.Millisecond

// redisCache shares entries across replicas. Values are stored as JSON and
// come back from Get as json.RawMessage; callers decode them.
type redisCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis connects to Redis and verifies the connection with PING.
func NewRedis(cfg config.CacheConfig) (Cache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return NewRedisFromClient(rdb, cfg.Redis.Prefix, time.Duration(cfg.TTLSeconds)*time.Second), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(rdb *redis.Client, prefix string, ttl time.Duration) Cache {
	if prefix == "" {
		prefix = "grounding:"
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &redisCache{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (c *redisCache) Get(key string) (any, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	b, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Warnf("cache: redis get failed: %v", err)
		}
		return nil, false
	}
	return json.RawMessage(b), true
}

func (c *redisCache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	b, err := json.Marshal(value)
	if err != nil {
		logger.Warnf("cache: cannot encode value for %s: %v", key, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := c.rdb.Set(ctx, c.prefix+key, b, ttl).Err(); err != nil {
		logger.Warnf("cache: redis set failed: %v", err)
	}
}

// Purge removes every key under the cache prefix.
func (c *redisCache) Purge() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	iter := c.rdb.Scan(ctx, 0, c.prefix+"*", 256).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		logger.Warnf("cache: redis scan failed: %v", err)
		return
	}
	if len(keys) > 0 {
		if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
			logger.Warnf("cache: redis purge of %d keys failed: %v", len(keys), err)
		}
	}
}

// New builds the cache selected by cfg.
func New(cfg config.CacheConfig) (Cache, error) {
	switch cfg.Provider {
	case "redis":
		return NewRedis(cfg)
	case "lru":
		return NewLRU(cfg.Capacity, time.Duration(cfg.TTLSeconds)*time.Second), nil
	default:
		return Nop{}, nil
	}
}

func (c *redisCache) Close() error {
	return c.rdb.Close()
}
