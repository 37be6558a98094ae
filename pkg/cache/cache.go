package cache

import (
	"container/list"
	"hash/fnv"
	"sync"
	"time"
)

// Item represents a cached value with expiration time.
type Item struct {
	V   any
	Exp int64 // unix nanoseconds; 0 = no expiry
}

// Cache is an in-memory TTL cache with LRU eviction, safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	items    map[string]*entry
	order    *list.List // MRU at front, LRU at back
	maxItems int        // 0 = unlimited
	stop     chan struct{}
	stopOnce sync.Once
}

type entry struct {
	key  string
	item Item
	elem *list.Element
}

// New returns a cache holding at most maxItems entries (0 = unlimited).
// When janitorEvery > 0 a goroutine sweeps expired entries until Close.
func New(maxItems int, janitorEvery time.Duration) *Cache {
	if maxItems < 0 {
		maxItems = 0
	}
	c := &Cache{
		items:    make(map[string]*entry),
		order:    list.New(),
		maxItems: maxItems,
		stop:     make(chan struct{}),
	}
	if janitorEvery > 0 {
		go c.janitor(janitorEvery)
	}
	return c
}

// Get returns value and whether it exists and not expired.
func (c *Cache) Get(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	now := time.Now().UnixNano()
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if e.item.Exp != 0 && e.item.Exp < now {
		// lazy delete
		c.removeNoLock(key)
		return nil, false
	}
	c.order.MoveToFront(e.elem)
	return e.item.V, true
}

// Set sets a value with TTL. ttl<=0 means no expiry.
func (c *Cache) Set(key string, v any, ttl time.Duration) {
	if c == nil {
		return
	}
	var exp int64
	if ttl > 0 {
		exp = time.Now().Add(ttl).UnixNano()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[key]; ok {
		e.item = Item{V: v, Exp: exp}
		c.order.MoveToFront(e.elem)
		return
	}
	e := &entry{key: key, item: Item{V: v, Exp: exp}}
	e.elem = c.order.PushFront(e)
	c.items[key] = e
	for c.maxItems > 0 && c.order.Len() > c.maxItems {
		c.evictLRUNoLock()
	}
}

// Delete removes a key.
func (c *Cache) Delete(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.removeNoLock(key)
	c.mu.Unlock()
}

// Len returns the number of entries, expired ones included until swept.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Close stops the janitor. The cache stays usable.
func (c *Cache) Close() {
	if c == nil {
		return
	}
	c.stopOnce.Do(func() { close(c.stop) })
}

// janitor periodically removes expired items.
func (c *Cache) janitor(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			now := time.Now().UnixNano()
			c.mu.Lock()
			for k, e := range c.items {
				if e.item.Exp != 0 && e.item.Exp < now {
					c.removeNoLock(k)
				}
			}
			c.mu.Unlock()
		}
	}
}

// KeyFromStrings creates a compact stable key from parts.
func KeyFromStrings(parts ...string) string {
	h := fnv.New64a()
	for _, p := range parts {
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(p))
	}
	return string(h.Sum(nil))
}

// removeNoLock removes key from map/list; caller must hold c.mu.
func (c *Cache) removeNoLock(key string) {
	if e, ok := c.items[key]; ok {
		c.order.Remove(e.elem)
		delete(c.items, key)
	}
}

// evictLRUNoLock removes one LRU entry; caller must hold c.mu.
func (c *Cache) evictLRUNoLock() {
	back := c.order.Back()
	if back == nil {
		return
	}
	c.order.Remove(back)
	if e, ok := back.Value.(*entry); ok {
		delete(c.items, e.key)
	}
}
