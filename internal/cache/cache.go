// Package cache memoizes expensive structured-generation results under
// content-addressed keys. The cache is always an optimization, never a
// dependency: every read error is a miss and every write error is logged and
// dropped, so a broken backend can slow the service down but not break it.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTLs per domain. Volatile data expires fast, near-static data slowly.
const (
	TTLWeather  = 3 * time.Hour
	TTLYield    = 12 * time.Hour
	TTLSchemes  = 24 * time.Hour
	TTLSoil     = 24 * time.Hour
	TTLDisease  = 48 * time.Hour
	TTLCalendar = 7 * 24 * time.Hour
)

// Key derives the cache key for a semantic input tuple: the string parts are
// joined and hashed with SHA-256, so equal tuples always collide and distinct
// tuples essentially never do.
func Key(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return "cache:" + hex.EncodeToString(h[:])
}

// Store is a TTL'd byte-blob cache backend.
type Store interface {
	// Get returns the stored value, or false on miss, expiry, or any error.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set upserts the value under key with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// CleanExpired bulk-deletes rows past expiry and returns the count.
	// Backends with native expiry return 0.
	CleanExpired(ctx context.Context) (int64, error)
}

// GetJSON reads key and unmarshals it into v. Any failure is a miss.
func GetJSON(ctx context.Context, s Store, key string, v any) bool {
	data, ok := s.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		slog.Debug("cache entry undecodable, treating as miss", "error", err)
		return false
	}
	return true
}

// SetJSON marshals v and stores it under key. Failures are logged only.
func SetJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("failed to marshal cache value", "error", err)
		return
	}
	if err := s.Set(ctx, key, data, ttl); err != nil {
		slog.Warn("failed to write cache", "error", err)
	}
}

// InMemory is a process-local Store used in tests and when no durable
// backend is configured.
type InMemory struct {
	mu    sync.RWMutex
	items map[string]*memItem
	now   func() time.Time
}

type memItem struct {
	value     []byte
	expiresAt time.Time
}

func NewInMemory() *InMemory {
	return &InMemory{
		items: make(map[string]*memItem),
		now:   time.Now,
	}
}

func (c *InMemory) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if c.now().After(item.expiresAt) {
		return nil, false
	}
	return item.value, true
}

func (c *InMemory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = &memItem{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

func (c *InMemory) CleanExpired(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var removed int64
	for key, item := range c.items {
		if now.After(item.expiresAt) {
			delete(c.items, key)
			removed++
		}
	}
	return removed, nil
}

// Redis is a distributed Store. Expiry is delegated to Redis itself.
type Redis struct {
	client *redis.Client
}

func NewRedis(redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Redis{client: client}, nil
}

func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *Redis) CleanExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

func (c *Redis) Close() error {
	return c.client.Close()
}
