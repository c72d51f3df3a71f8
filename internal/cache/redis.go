// Package cache wraps the Redis key/value operations used for job status
// views and request rate limiting.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the key/value surface the rest of the service depends on.
type Cache interface {
	// Get returns the stored value and whether the key existed.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// RedisCache implements Cache on a go-redis client.
type RedisCache struct {
	rdb *redis.Client
	log *slog.Logger
}

// NewRedisCache parses url, connects and pings the server.
func NewRedisCache(ctx context.Context, url string, log *slog.Logger) (*RedisCache, error) {
	if log == nil {
		log = slog.Default()
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		log.Error("redis ping failed", "addr", opts.Addr, "error", err)
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Info("connected to redis", "addr", opts.Addr, "db", opts.DB)
	return &RedisCache{rdb: rdb, log: log}, nil
}

// NewFromClient wraps an existing client.
func NewFromClient(rdb *redis.Client, log *slog.Logger) *RedisCache {
	if log == nil {
		log = slog.Default()
	}
	return &RedisCache{rdb: rdb, log: log}
}

// Client exposes the underlying connection for components sharing it.
func (c *RedisCache) Client() *redis.Client { return c.rdb }

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

// Allow counts a hit against key in a fixed window and reports whether the
// count is still within limit. The window starts with the first hit.
func (c *RedisCache) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int64, error) {
	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, err
	}
	n := incr.Val()
	return n <= int64(limit), n, nil
}

// Ping checks connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

// JobKey is the cache key of a job status view.
func JobKey(id string) string {
	return "job:" + id
}
