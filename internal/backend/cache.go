package backend

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shreyachakravarty07/AgentTrace/pkg/generation"
	"github.com/shreyachakravarty07/AgentTrace/pkg/models"
)

const cacheKeyPrefix = "agenttrace:gen:"

// Cache stores generated text by key.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// RedisCache is a Cache backed by Redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to addr and pings it.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}
	return &RedisCache{client: client}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	entries map[string]memoryEntry
	mu      sync.Mutex
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

func (m *MemoryCache) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(m.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *MemoryCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

// Cached serves repeated (model, prompt, max length) requests from a cache.
// Traced generations and contexts marked with generation.WithoutCache always
// reach the wrapped generator. Cache failures are logged and treated as misses.
type Cached struct {
	next   generation.Generator
	cache  Cache
	ttl    time.Duration
	logger Logger
}

func NewCached(next generation.Generator, cache Cache, ttl time.Duration, logger Logger) *Cached {
	return &Cached{next: next, cache: cache, ttl: ttl, logger: logger}
}

func (c *Cached) Generate(ctx context.Context, model, prompt string, maxLength int) (string, error) {
	if generation.CacheDisabled(ctx) {
		return c.next.Generate(ctx, model, prompt, maxLength)
	}
	key := CacheKey(model, prompt, maxLength)
	if text, ok, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Errorf("Cache lookup for model '%s' failed: %v", model, err)
	} else if ok {
		c.logger.Debugf("Cache hit for model '%s'", model)
		return text, nil
	}

	text, err := c.next.Generate(ctx, model, prompt, maxLength)
	if err != nil {
		return "", err
	}
	if err := c.cache.Set(ctx, key, text, c.ttl); err != nil {
		c.logger.Errorf("Cache store for model '%s' failed: %v", model, err)
	}
	return text, nil
}

func (c *Cached) GenerateWithTrace(ctx context.Context, model, prompt string, maxLength int) (string, []models.TokenTrace, error) {
	return c.next.GenerateWithTrace(ctx, model, prompt, maxLength)
}

// CacheKey derives the cache key of a generation request.
func CacheKey(model, prompt string, maxLength int) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(maxLength)))
	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}
