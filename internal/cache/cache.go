// Package cache wraps Redis for distributed, short-lived storage: JSON
// get/set/delete, a SetNX lock primitive, and key helpers for an
// anonymous-rules entry and a per-plugin install lock. The access
// evaluator receives a Cache but keeps its anonymous-rules cache in
// process memory, and the plugin lifecycle manager takes no install
// lock. Grounded on the teacher's Redis client
// (cache/cache.go): same pooling/retry/timeout tuning and
// enabled-flag fallback, trimmed to the operations the host actually
// calls and renamed around a small Cache interface so callers can be
// tested against an in-memory fake instead of miniredis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the contract internal/access depends on (access.NewEvaluator
// takes one), so tests can substitute another implementation.
type Cache interface {
	Get(ctx context.Context, key string, target interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePattern(ctx context.Context, pattern string) error
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	IsEnabled() bool
	Close() error
}

// RedisCache is the production Cache backed by go-redis.
type RedisCache struct {
	client *redis.Client
}

// Config holds cache configuration.
type Config struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// New creates a Redis-backed cache. When cfg.Enabled is false it
// returns a disabled cache whose operations are all safe no-ops, so
// the rest of the host does not need a separate "cache missing" path -
// it matches the teacher's graceful-fallback-when-disabled behavior.
func New(cfg Config) (*RedisCache, error) {
	if !cfg.Enabled {
		return &RedisCache{client: nil}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:        25,
		MinIdleConns:    5,
		MaxIdleConns:    10,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

func (c *RedisCache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *RedisCache) IsEnabled() bool { return c.client != nil }

func (c *RedisCache) Get(ctx context.Context, key string, target interface{}) error {
	if !c.IsEnabled() {
		return fmt.Errorf("cache not enabled")
	}

	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return fmt.Errorf("key not found: %s", key)
	}
	if err != nil {
		return fmt.Errorf("get key %s: %w", key, err)
	}

	return json.Unmarshal([]byte(val), target)
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.IsEnabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("set key %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if !c.IsEnabled() {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete keys: %w", err)
	}
	return nil
}

func (c *RedisCache) DeletePattern(ctx context.Context, pattern string) error {
	if !c.IsEnabled() {
		return nil
	}

	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan pattern %s: %w", pattern, err)
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("delete keys: %w", err)
		}
	}
	return nil
}

// SetNX sets key only when it is absent and reports whether it did, a
// distributed-lock primitive (see PluginInstallLockKey). The plugin
// lifecycle manager does not call it.
func (c *RedisCache) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	if !c.IsEnabled() {
		return false, fmt.Errorf("cache not enabled")
	}

	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("marshal value: %w", err)
	}
	return c.client.SetNX(ctx, key, data, ttl).Result()
}

// AnonymousRulesKey is the cache key for the anonymous role's resolved
// access rule set (spec.md §4.6.1).
func AnonymousRulesKey() string { return "access:anonymous-rules" }

// PluginInstallLockKey is the distributed lock key guarding a single
// plugin's install/migration across instances.
func PluginInstallLockKey(pluginID string) string { return fmt.Sprintf("plugins:install-lock:%s", pluginID) }
