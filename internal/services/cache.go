package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// FingerprintCache stores fingerprint -> alarm ID entries with a TTL so the
// dedup engine can take the cheap path on exact repeats. Implementations must
// be safe under concurrent access from the ingest path and background loops.
type FingerprintCache interface {
	Get(ctx context.Context, fingerprint string) (uint, bool, error)
	Set(ctx context.Context, fingerprint string, alarmID uint, ttl time.Duration) error
	Delete(ctx context.Context, fingerprint string) error
	// ClearCache drops all entries; tests use it to control cache state
	ClearCache(ctx context.Context) error
}

type memoryCacheEntry struct {
	alarmID   uint
	expiresAt time.Time
}

// MemoryFingerprintCache is the in-process cache used when Redis is not
// configured, and in tests. Entries expire lazily on read.
type MemoryFingerprintCache struct {
	mu      sync.RWMutex
	entries map[string]memoryCacheEntry
	now     func() time.Time
}

// NewMemoryFingerprintCache creates an empty in-process fingerprint cache
func NewMemoryFingerprintCache() *MemoryFingerprintCache {
	return &MemoryFingerprintCache{
		entries: make(map[string]memoryCacheEntry),
		now:     time.Now,
	}
}

// Get returns the cached alarm ID for a fingerprint, if present and fresh
func (c *MemoryFingerprintCache) Get(ctx context.Context, fingerprint string) (uint, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[fingerprint]
	c.mu.RUnlock()
	if !ok {
		return 0, false, nil
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, fingerprint)
		c.mu.Unlock()
		return 0, false, nil
	}
	return entry.alarmID, true, nil
}

// Set stores a fingerprint with the given TTL
func (c *MemoryFingerprintCache) Set(ctx context.Context, fingerprint string, alarmID uint, ttl time.Duration) error {
	c.mu.Lock()
	c.entries[fingerprint] = memoryCacheEntry{alarmID: alarmID, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// Delete removes a single fingerprint
func (c *MemoryFingerprintCache) Delete(ctx context.Context, fingerprint string) error {
	c.mu.Lock()
	delete(c.entries, fingerprint)
	c.mu.Unlock()
	return nil
}

// ClearCache drops all entries
func (c *MemoryFingerprintCache) ClearCache(ctx context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]memoryCacheEntry)
	c.mu.Unlock()
	return nil
}

const redisFingerprintPrefix = "alarmdeck:fingerprint:"

// RedisFingerprintCache backs the fingerprint cache with Redis so dedup
// survives restarts and is shared across replicas.
type RedisFingerprintCache struct {
	client *redis.Client
}

// NewRedisFingerprintCache creates a Redis-backed fingerprint cache
func NewRedisFingerprintCache(client *redis.Client) *RedisFingerprintCache {
	return &RedisFingerprintCache{client: client}
}

// Get returns the cached alarm ID for a fingerprint, if present
func (c *RedisFingerprintCache) Get(ctx context.Context, fingerprint string) (uint, bool, error) {
	if c.client == nil {
		return 0, false, errors.New("redis client is nil")
	}
	val, err := c.client.Get(ctx, redisFingerprintPrefix+fingerprint).Uint64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read fingerprint cache: %w", err)
	}
	return uint(val), true, nil
}

// Set stores a fingerprint with the given TTL
func (c *RedisFingerprintCache) Set(ctx context.Context, fingerprint string, alarmID uint, ttl time.Duration) error {
	if c.client == nil {
		return errors.New("redis client is nil")
	}
	if err := c.client.Set(ctx, redisFingerprintPrefix+fingerprint, uint64(alarmID), ttl).Err(); err != nil {
		return fmt.Errorf("failed to store fingerprint: %w", err)
	}
	return nil
}

// Delete removes a single fingerprint
func (c *RedisFingerprintCache) Delete(ctx context.Context, fingerprint string) error {
	if c.client == nil {
		return errors.New("redis client is nil")
	}
	return c.client.Del(ctx, redisFingerprintPrefix+fingerprint).Err()
}

// ClearCache removes every fingerprint entry via SCAN, leaving unrelated
// keys in the same Redis untouched
func (c *RedisFingerprintCache) ClearCache(ctx context.Context) error {
	if c.client == nil {
		return errors.New("redis client is nil")
	}
	iter := c.client.Scan(ctx, 0, redisFingerprintPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
