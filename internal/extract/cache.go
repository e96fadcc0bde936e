package extract

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/devdraft-ai/devdraft/internal/spec"
)

const (
	defaultCacheTTL     = 5 * time.Minute
	defaultCacheEntries = 100
)

// Fingerprint returns the cache key for a transcript.
func Fingerprint(transcript string) string {
	sum := sha256.Sum256([]byte(transcript))
	return hex.EncodeToString(sum[:])
}

type cacheEntry struct {
	key      string
	raw      spec.RawExtraction
	storedAt time.Time
}

// Cache memoises extraction results keyed by transcript fingerprint. Entries
// expire after a TTL and the oldest entry is evicted once the capacity is
// reached, so repeated identical transcripts never hold memory indefinitely.
//
// Cache is safe for concurrent use.
type Cache struct {
	ttl time.Duration
	cap int
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = oldest
}

// NewCache creates a cache. Non-positive ttl or capacity take the defaults
// (5 minutes, 100 entries).
func NewCache(ttl time.Duration, capacity int) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if capacity <= 0 {
		capacity = defaultCacheEntries
	}
	return &Cache{
		ttl:     ttl,
		cap:     capacity,
		now:     time.Now,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Get returns the cached extraction for key, if present and not expired.
func (c *Cache) Get(key string) (spec.RawExtraction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return spec.RawExtraction{}, false
	}
	entry := el.Value.(*cacheEntry)
	if c.now().Sub(entry.storedAt) >= c.ttl {
		c.order.Remove(el)
		delete(c.entries, key)
		return spec.RawExtraction{}, false
	}
	return entry.raw, true
}

// Put stores an extraction under key, evicting the oldest entry if the cache
// is full. Storing an existing key refreshes its timestamp.
func (c *Cache) Put(key string, raw spec.RawExtraction) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.raw = raw
		entry.storedAt = c.now()
		c.order.MoveToBack(el)
		return
	}

	if c.order.Len() >= c.cap {
		oldest := c.order.Front()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}

	c.entries[key] = c.order.PushBack(&cacheEntry{
		key:      key,
		raw:      raw,
		storedAt: c.now(),
	})
}

// Len reports the number of entries currently held, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
