package keycloak

import (
	"context"
	"encoding/json"
	"path"
	"sync"
	"time"
)

// Cache key prefixes. The formats are load-bearing: deployed services
// share a Redis instance, so the exact byte layout of keys is part of the
// compatibility surface.
//
//	jwt:validation:<64-hex-hash>
//	introspection:<32-hex-hash>
//	publickey:<realm>:<keyId>
const (
	jwtCachePrefix           = "jwt:validation:"
	introspectionCachePrefix = "introspection:"
	publicKeyCachePrefix     = "publickey:"
)

// introspectionHashLen truncates the token hash for introspection keys to
// 32 hex characters (128 bits of the SHA-256 digest). Still far beyond
// collision reach, and keeps key length in line with deployed consumers.
const introspectionHashLen = 32

// jwtCacheKey builds the validation-result key for a full 64-hex token
// hash.
func jwtCacheKey(tokenHash string) string {
	return jwtCachePrefix + tokenHash
}

// introspectionCacheKey builds the introspection-result key from the
// first 128 bits of the token hash.
func introspectionCacheKey(tokenHash string) string {
	if len(tokenHash) > introspectionHashLen {
		tokenHash = tokenHash[:introspectionHashLen]
	}
	return introspectionCachePrefix + tokenHash
}

// publicKeyCacheKey builds the JWKS public-key cache key.
func publicKeyCacheKey(realm, keyID string) string {
	return publicKeyCachePrefix + realm + ":" + keyID
}

// Store is the key-value backend consumed by [ValidationCache]. Values
// are serialized JSON strings with per-key TTLs. Implementations must be
// safe for concurrent use. [NewRedisStore] adapts the Redis client.
type Store interface {
	// Get returns the value for key and whether the key was present.
	// A miss is (value "", found false, err nil); err is reserved for
	// backend failures.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key with the given TTL. A non-positive TTL
	// means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// InvalidatePattern removes all keys matching a glob-style pattern
	// and returns the number removed.
	InvalidatePattern(ctx context.Context, pattern string) (int64, error)
}

// memoryEntry is a fallback cache record with its own expiry.
type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// maxMemoryEntries bounds the in-memory fallback so a prolonged store
// outage cannot grow the heap without limit.
const maxMemoryEntries = 1024

// memoryCache is the bounded in-process fallback used while the backing
// store is unavailable. It is deliberately simple: expired entries are
// dropped opportunistically, and when full the oldest-expiring entry is
// evicted.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]memoryEntry)}
}

func (m *memoryCache) get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return "", false
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(m.entries, key)
		return "", false
	}
	return entry.value, true
}

func (m *memoryCache) set(key, value string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if len(m.entries) >= maxMemoryEntries {
		m.evictLocked(now)
	}

	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}
	m.entries[key] = entry
}

// evictLocked drops expired entries, then the soonest-expiring entry if
// the cache is still full. Callers hold m.mu.
func (m *memoryCache) evictLocked(now time.Time) {
	for key, entry := range m.entries {
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			delete(m.entries, key)
		}
	}
	if len(m.entries) < maxMemoryEntries {
		return
	}
	var victim string
	var victimExpiry time.Time
	for key, entry := range m.entries {
		if victim == "" || entry.expiresAt.Before(victimExpiry) {
			victim = key
			victimExpiry = entry.expiresAt
		}
	}
	if victim != "" {
		delete(m.entries, victim)
	}
}

func (m *memoryCache) delete(keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.entries, key)
	}
}

func (m *memoryCache) invalidatePattern(pattern string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key := range m.entries {
		if ok, _ := path.Match(pattern, key); ok {
			delete(m.entries, key)
			n++
		}
	}
	return n
}

func (m *memoryCache) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]memoryEntry)
}

// ValidationCache is the read-through cache shared by JWT verification
// and introspection. Values are JSON-serialized; callers always receive
// freshly deserialized copies, never references into the cache.
//
// The cache must never make validation worse: when the backing store
// errors, reads fall back to the in-memory cache (then to a miss), and
// writes fall back to the in-memory cache. A failed cache operation is
// never surfaced to the validation caller.
type ValidationCache struct {
	store    Store
	fallback *memoryCache
	buffer   time.Duration
}

// NewValidationCache creates a ValidationCache over the given store.
// buffer is subtracted from token lifetimes when deriving TTLs. A nil
// store is permitted; the cache then runs purely in memory.
func NewValidationCache(store Store, buffer time.Duration) *ValidationCache {
	if buffer <= 0 {
		buffer = DefaultCacheBuffer
	}
	return &ValidationCache{
		store:    store,
		fallback: newMemoryCache(),
		buffer:   buffer,
	}
}

// Get looks up key and deserializes the cached JSON into out. Returns
// true only on a hit with a well-formed value. Store failures degrade to
// the in-memory fallback, then to a miss.
func (c *ValidationCache) Get(ctx context.Context, key string, out any) bool {
	if c.store != nil {
		value, found, err := c.store.Get(ctx, key)
		if err == nil {
			if !found {
				return false
			}
			return json.Unmarshal([]byte(value), out) == nil
		}
	}

	value, found := c.fallback.get(key)
	if !found {
		return false
	}
	return json.Unmarshal([]byte(value), out) == nil
}

// Set serializes value and stores it under key with the given TTL.
// Writes are best-effort: a store failure falls back to the in-memory
// cache and is otherwise swallowed. Unserializable values are dropped.
func (c *ValidationCache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}

	if c.store != nil {
		if err := c.store.Set(ctx, key, string(data), ttl); err == nil {
			return
		}
	}
	c.fallback.set(key, string(data), ttl)
}

// Delete removes keys from both the store and the fallback.
func (c *ValidationCache) Delete(ctx context.Context, keys ...string) {
	if c.store != nil {
		_ = c.store.Delete(ctx, keys...)
	}
	c.fallback.delete(keys...)
}

// InvalidatePattern removes all keys matching a glob pattern from both
// layers and returns the number removed from the backing store (or from
// memory when no store is configured). Safe to call concurrently with
// reads and writes.
func (c *ValidationCache) InvalidatePattern(ctx context.Context, pattern string) (int64, error) {
	memCount := c.fallback.invalidatePattern(pattern)
	if c.store == nil {
		return memCount, nil
	}
	return c.store.InvalidatePattern(ctx, pattern)
}

// Clear empties the in-memory fallback. Store contents are left to TTL
// expiry; use [ValidationCache.InvalidatePattern] for targeted store
// invalidation.
func (c *ValidationCache) Clear() {
	c.fallback.clear()
}

// TTL derives the cache TTL for a token expiring at exp (epoch seconds):
// max(exp - now - buffer, floor). The buffer makes entries expire before
// the token in the common case; the floor prevents thrashing on tokens
// with little remaining lifetime, accepting that such an entry may
// outlive the token by at most the floor.
func (c *ValidationCache) TTL(exp int64, floor time.Duration) time.Duration {
	remaining := time.Until(time.Unix(exp, 0)) - c.buffer
	if remaining < floor {
		return floor
	}
	return remaining
}
