package nlfilter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/pet-listings-scraper/internal/pet"
)

const redisKeyPrefix = "petscraper:nlfilter:"

// Cache stores extracted filters by normalized prompt.
type Cache interface {
	Get(ctx context.Context, key string) (pet.Filter, bool, error)
	Set(ctx context.Context, key string, filter pet.Filter) error
}

type memoryEntry struct {
	filter  pet.Filter
	expires time.Time
}

// MemoryCache is a process-local Cache with a fixed TTL.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

// NewMemoryCache returns a MemoryCache; ttl <= 0 keeps entries forever.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

// Get returns a live entry, evicting it when expired.
func (c *MemoryCache) Get(_ context.Context, key string) (pet.Filter, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return pet.Filter{}, false, nil
	}
	if !entry.expires.IsZero() && !c.now().Before(entry.expires) {
		delete(c.entries, key)
		return pet.Filter{}, false, nil
	}
	return entry.filter, true, nil
}

// Set stores filter under key.
func (c *MemoryCache) Set(_ context.Context, key string, filter pet.Filter) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := memoryEntry{filter: filter}
	if c.ttl > 0 {
		entry.expires = c.now().Add(c.ttl)
	}
	c.entries[key] = entry
	return nil
}

// redisClient is the subset of *redis.Client used by RedisCache.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisCache shares extracted filters across API replicas.
type RedisCache struct {
	client redisClient
	ttl    time.Duration
}

// NewRedisCache wraps a go-redis client.
func NewRedisCache(client redisClient, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Get decodes the cached filter; a missing key is not an error.
func (c *RedisCache) Get(ctx context.Context, key string) (pet.Filter, bool, error) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return pet.Filter{}, false, nil
	}
	if err != nil {
		return pet.Filter{}, false, fmt.Errorf("redis get: %w", err)
	}
	var filter pet.Filter
	if err := json.Unmarshal(raw, &filter); err != nil {
		return pet.Filter{}, false, fmt.Errorf("decode cached filter: %w", err)
	}
	return filter, true, nil
}

// Set stores the filter as JSON with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, key string, filter pet.Filter) error {
	data, err := json.Marshal(filter)
	if err != nil {
		return fmt.Errorf("encode filter: %w", err)
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
