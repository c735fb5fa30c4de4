package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Entry is a cached value with its expiry. Exposed so callers can persist
// and restore cache contents across restarts.
type Entry struct {
	Value     any       `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LRU is a thread-safe fixed-capacity cache with per-entry TTL. The tutor
// keys it by prompt hash (generated questions) and by chunk text hash
// (embeddings), both of which are expensive to recompute.
type LRU struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*list.Element
	order    *list.List // front = most recently used
}

type node struct {
	key string
	ent Entry
}

// NewLRU creates a cache holding at most capacity entries, each valid for ttl.
func NewLRU(capacity int, ttl time.Duration) *LRU {
	if capacity <= 0 {
		capacity = 128
	}
	return &LRU{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// Get returns the cached value if present and not expired.
func (c *LRU) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	n := elem.Value.(*node)
	if time.Now().After(n.ent.ExpiresAt) {
		c.order.Remove(elem)
		delete(c.items, key)
		return nil, false
	}
	c.order.MoveToFront(elem)
	return n.ent.Value, true
}

// Set stores or refreshes a value, evicting the least recently used entry
// when the cache is full.
func (c *LRU) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent := Entry{Value: value, ExpiresAt: time.Now().Add(c.ttl)}
	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		elem.Value.(*node).ent = ent
		return
	}
	c.items[key] = c.order.PushFront(&node{key: key, ent: ent})
	c.evictLocked()
}

func (c *LRU) evictLocked() {
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			return
		}
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*node).key)
	}
}

// Len reports the number of live entries.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear drops every entry.
func (c *LRU) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element, c.capacity)
	c.order.Init()
}

// Dump snapshots the cache for persistence.
func (c *LRU) Dump() map[string]Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Entry, len(c.items))
	for k, elem := range c.items {
		out[k] = elem.Value.(*node).ent
	}
	return out
}

// Restore loads a previously dumped snapshot, skipping expired entries.
func (c *LRU) Restore(snapshot map[string]Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element, c.capacity)
	c.order.Init()
	now := time.Now()
	for k, ent := range snapshot {
		if now.After(ent.ExpiresAt) {
			continue
		}
		c.items[k] = c.order.PushFront(&node{key: k, ent: ent})
	}
	c.evictLocked()
}

// HashKey derives a stable cache key from arbitrary text.
func HashKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
