// Package cache provides an optional response cache for the geocoder (C3)
// and POI provider (C4) adapters. When REDIS_ADDR is configured, lookups are
// shared across the process via Redis; otherwise a process-local cache
// serves the same interface, so callers never need to branch on whether
// Redis is present.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrCacheMiss is returned by GetJSON when the key is absent or expired.
var ErrCacheMiss = fmt.Errorf("cache miss")

// IsCacheMiss reports whether err is ErrCacheMiss.
func IsCacheMiss(err error) bool {
	return err == ErrCacheMiss
}

// Cache is the minimal key/value contract the geocoder and POI provider
// adapters depend on. Both the Redis-backed and local implementations
// satisfy it identically.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Close() error
}

// Config configures whichever Cache implementation New selects.
type Config struct {
	Addr                string        `yaml:"addr" env:"REDIS_ADDR"`
	Password            string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB                  int           `yaml:"db" env:"REDIS_DB"`
	DefaultTTL          time.Duration `yaml:"default_ttl" env:"REDIS_DEFAULT_TTL"`
	MaxRetries          int           `yaml:"max_retries" env:"REDIS_MAX_RETRIES"`
	PoolSize            int           `yaml:"pool_size" env:"REDIS_POOL_SIZE"`
	MinIdleConns        int           `yaml:"min_idle_conns" env:"REDIS_MIN_IDLE_CONNS"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval" env:"REDIS_HEALTH_CHECK_INTERVAL"`
	LocalCapacity       int           `yaml:"local_capacity" env:"CACHE_LOCAL_CAPACITY"`
}

// DefaultConfig returns sensible defaults for either backend.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:          5 * time.Minute,
		MaxRetries:          3,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
		LocalCapacity:       2048,
	}
}

// New selects a Redis-backed cache when cfg.Addr is set, and a process-local
// cache otherwise. This is the one constructor callers should use.
func New(cfg Config, logger *zap.Logger) (Cache, error) {
	if cfg.Addr == "" {
		logger.Info("REDIS_ADDR not set, using process-local cache")
		return newLocalCache(cfg.LocalCapacity, cfg.DefaultTTL), nil
	}
	return newRedisCache(cfg, logger)
}

// redisCache is the shared, multi-process cache backend.
type redisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
}

func newRedisCache(cfg Config, logger *zap.Logger) (*redisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	c := &redisCache{client: client, ttl: cfg.DefaultTTL, logger: logger.With(zap.String("component", "cache"))}
	if cfg.HealthCheckInterval > 0 {
		go c.healthCheckLoop(cfg.HealthCheckInterval)
	}
	logger.Info("redis cache initialized", zap.String("addr", cfg.Addr))
	return c, nil
}

func (c *redisCache) GetJSON(ctx context.Context, key string, dest any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return fmt.Errorf("cache is closed")
	}
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("cache get failed: %w", err)
	}
	return json.Unmarshal([]byte(val), dest)
}

func (c *redisCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return fmt.Errorf("cache is closed")
	}
	if ttl == 0 {
		ttl = c.ttl
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

func (c *redisCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.client.Close()
}

func (c *redisCache) healthCheckLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		c.mu.RLock()
		closed := c.closed
		c.mu.RUnlock()
		if closed {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.client.Ping(ctx).Err(); err != nil {
			c.logger.Warn("cache health check failed", zap.Error(err))
		}
		cancel()
	}
}

// localCache is a process-local fallback used when Redis is unconfigured,
// guarding a single map with a mutex and lazily evicting expired entries on
// access (no background sweep, since it only needs to survive one process's
// lifetime).
type localCache struct {
	mu       sync.Mutex
	entries  map[string]localEntry
	capacity int
	ttl      time.Duration
}

type localEntry struct {
	data      []byte
	expiresAt time.Time
}

func newLocalCache(capacity int, ttl time.Duration) *localCache {
	if capacity <= 0 {
		capacity = 2048
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &localCache{entries: make(map[string]localEntry), capacity: capacity, ttl: ttl}
}

func (c *localCache) GetJSON(_ context.Context, key string, dest any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return ErrCacheMiss
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return ErrCacheMiss
	}
	return json.Unmarshal(entry.data, dest)
}

func (c *localCache) SetJSON(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	if ttl == 0 {
		ttl = c.ttl
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.capacity {
		c.evictOneLocked()
	}
	c.entries[key] = localEntry{data: data, expiresAt: time.Now().Add(ttl)}
	return nil
}

// evictOneLocked drops an arbitrary entry when the cache is at capacity.
// Go map iteration order is randomized, which is an acceptable approximation
// of LRU for a best-effort response cache.
func (c *localCache) evictOneLocked() {
	for k := range c.entries {
		delete(c.entries, k)
		return
	}
}

func (c *localCache) Close() error {
	return nil
}
