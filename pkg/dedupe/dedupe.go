// Package dedupe provides a bounded, time-windowed cache used to suppress
// repeated identical events: duplicate content chunks from the transport and
// duplicate adjacent state transitions.
//
// TTL expiry is delegated to patrickmn/go-cache; insertion-order capacity
// eviction and session-scoped clears are layered on top, since the engine
// needs "oldest inserted goes first" semantics rather than LRU.
package dedupe

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	// DefaultTTL is the window within which an identical event is treated
	// as a duplicate.
	DefaultTTL = 5 * time.Second

	// DefaultCapacity bounds the number of live entries.
	DefaultCapacity = 1000
)

// entry is the cached value for one event key.
type entry struct {
	insertedAt  time.Time
	fingerprint string
}

// Cache suppresses near-duplicate events within a TTL window.
//
// The cache is written only from the engine's single processing goroutine;
// go-cache's internal locking covers the janitor's concurrent expiry sweep.
type Cache struct {
	store    *gocache.Cache
	order    []string
	capacity int
}

// New creates a Cache with the given TTL and capacity. Zero values fall back
// to the defaults.
func New(ttl time.Duration, capacity int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Cache{
		store:    gocache.New(ttl, ttl),
		capacity: capacity,
	}
}

// ShouldProcess reports whether an event should be processed. It returns
// false when an unexpired entry with an identical data fingerprint exists
// for (eventType, eventKey). Otherwise it records the event and returns
// true, evicting the oldest entry first if the cache is at capacity.
func (c *Cache) ShouldProcess(eventType, eventKey string, data any) bool {
	key := eventType + "_" + eventKey
	fp := fingerprint(data)

	if v, found := c.store.Get(key); found {
		if v.(entry).fingerprint == fp {
			return false
		}
		// Same key, different payload: refresh in place. The insertion
		// order slot is kept.
		c.store.SetDefault(key, entry{insertedAt: time.Now(), fingerprint: fp})
		return true
	}

	if c.Len() >= c.capacity {
		c.evictOldest()
	}

	c.store.SetDefault(key, entry{insertedAt: time.Now(), fingerprint: fp})

	// The key may still hold an order slot from an entry that has since
	// expired; left in place, that stale slot would evict the fresh entry
	// out of turn.
	c.pruneKey(key)
	c.order = append(c.order, key)

	return true
}

// pruneKey drops the order slot left behind by an expired entry for key.
func (c *Cache) pruneKey(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// ClearScope drops every entry whose key references the given scope,
// typically a session id.
func (c *Cache) ClearScope(scope string) {
	if scope == "" {
		return
	}

	for key := range c.store.Items() {
		if strings.Contains(key, scope) {
			c.store.Delete(key)
		}
	}

	kept := c.order[:0]
	for _, key := range c.order {
		if !strings.Contains(key, scope) {
			kept = append(kept, key)
		}
	}
	c.order = kept
}

// Reset clears everything.
func (c *Cache) Reset() {
	c.store.Flush()
	c.order = nil
}

// Len returns the number of unexpired entries.
func (c *Cache) Len() int {
	return c.store.ItemCount()
}

// evictOldest removes the single oldest live entry by insertion order.
// Keys that already expired are pruned from the order list along the way.
func (c *Cache) evictOldest() {
	for len(c.order) > 0 {
		key := c.order[0]
		c.order = c.order[1:]

		if _, found := c.store.Get(key); found {
			c.store.Delete(key)
			return
		}
	}
}

// fingerprint produces a stable digest of the event payload for equality
// comparison.
func fingerprint(data any) string {
	var raw []byte

	switch v := data.(type) {
	case nil:
		raw = nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			encoded = []byte(fmt.Sprintf("%v", v))
		}
		raw = encoded
	}

	sum := sha256.Sum256(raw)

	return hex.EncodeToString(sum[:])
}
