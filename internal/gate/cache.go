package gate

import (
	"crypto/sha256"
	"sync"
	"time"

	"computegate/internal/identity"
)

// maxCacheEntries caps the cache so a flood of distinct tokens cannot grow
// it without bound.
const maxCacheEntries = 4096

// sessionCache holds successful session resolutions for a fixed TTL. Raw
// tokens are never stored; entries are keyed by token digest.
type sessionCache struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[[32]byte]cacheEntry
}

type cacheEntry struct {
	principal identity.Principal
	expires   time.Time
}

func newSessionCache(ttl time.Duration) *sessionCache {
	return &sessionCache{
		ttl:     ttl,
		entries: make(map[[32]byte]cacheEntry),
	}
}

func (c *sessionCache) get(token string) (*identity.Principal, bool) {
	key := sha256.Sum256([]byte(token))

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expires) {
		delete(c.entries, key)
		return nil, false
	}

	p := entry.principal
	return &p, true
}

func (c *sessionCache) put(token string, p *identity.Principal) {
	key := sha256.Sum256([]byte(token))

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= maxCacheEntries {
		c.evictExpiredLocked()
	}
	if len(c.entries) >= maxCacheEntries {
		// Still full after sweeping: drop the new entry rather than grow.
		return
	}

	c.entries[key] = cacheEntry{principal: *p, expires: time.Now().Add(c.ttl)}
}

func (c *sessionCache) evictExpiredLocked() {
	now := time.Now()
	for key, entry := range c.entries {
		if now.After(entry.expires) {
			delete(c.entries, key)
		}
	}
}
