package cache

import (
	"container/list"
	"sync"
	"time"
)

// Config configures a cache instance.
type Config struct {
	// MaxEntries bounds the number of cached entries. Default: 100.
	MaxEntries uint `yaml:"max_entries" mapstructure:"max_entries"`
	// TTL is the maximum age of an entry. 0 means entries never expire.
	TTL time.Duration `yaml:"ttl" mapstructure:"ttl"`
	// Disabled turns the cache into a pass-through: Get always misses and
	// Set is a no-op. Lookups are still counted in stats.
	Disabled bool `yaml:"disabled" mapstructure:"disabled"`
}

// DefaultConfig returns the default cache configuration: 100 entries with a
// one hour TTL.
func DefaultConfig() Config {
	return Config{
		MaxEntries: 100,
		TTL:        time.Hour,
	}
}

// Stats is a point-in-time snapshot of cache activity.
type Stats struct {
	// Hits is the number of lookups served from the cache.
	Hits uint64 `json:"hits"`
	// Misses is the number of lookups that found nothing usable.
	Misses uint64 `json:"misses"`
	// Evictions is the number of entries removed to make room.
	Evictions uint64 `json:"evictions"`
	// Expirations is the number of entries removed because they aged out.
	Expirations uint64 `json:"expirations"`
	// Sets is the number of successful stores, including replacements.
	Sets uint64 `json:"sets"`
	// Entries is the current entry count at snapshot time.
	Entries int `json:"entries"`
}

// entry is owned exclusively by the cache; values leave by copy.
type entry[V any] struct {
	key       uint64
	value     V
	createdAt time.Time
	hits      uint64
}

// Cache is a bounded TTL+LRU key/value store. The zero value is not usable;
// construct with New. Safe for concurrent use: the recency list, the index
// and the counters all live behind one mutex.
type Cache[V any] struct {
	config Config

	mu    sync.Mutex
	ll    *list.List // front = most recently used
	items map[uint64]*list.Element

	hits        uint64
	misses      uint64
	evictions   uint64
	expirations uint64
	sets        uint64
}

// New creates a cache. A zero MaxEntries falls back to the default of 100.
func New[V any](config Config) *Cache[V] {
	if config.MaxEntries == 0 {
		config.MaxEntries = 100
	}
	if config.TTL < 0 {
		config.TTL = 0
	}

	return &Cache[V]{
		config: config,
		ll:     list.New(),
		items:  make(map[uint64]*list.Element),
	}
}

// Get looks up the value cached for the given content payload. A hit
// promotes the entry to most-recently-used. An entry past its TTL is removed
// as a side effect and reported as a miss. A disabled cache always misses.
func (c *Cache[V]) Get(content string) (V, bool) {
	var zero V

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.config.Disabled {
		c.misses++
		return zero, false
	}

	elem, ok := c.items[Key(content)]
	if !ok {
		c.misses++
		return zero, false
	}

	ent := elem.Value.(*entry[V])
	if c.expiredLocked(ent) {
		c.removeLocked(elem)
		c.expirations++
		c.misses++
		return zero, false
	}

	ent.hits++
	c.hits++
	c.ll.MoveToFront(elem)
	return ent.value, true
}

// Set stores a value against the content payload. An existing entry is
// replaced, its age refreshed, and promoted to most-recently-used. When the
// cache is full the least-recently-used entry is evicted first. A disabled
// cache ignores the call.
func (c *Cache[V]) Set(content string, value V) {
	if c.config.Disabled {
		return
	}

	key := Key(content)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		ent := elem.Value.(*entry[V])
		ent.value = value
		ent.createdAt = time.Now()
		c.ll.MoveToFront(elem)
		c.sets++
		return
	}

	if uint(c.ll.Len()) >= c.config.MaxEntries {
		if oldest := c.ll.Back(); oldest != nil {
			c.removeLocked(oldest)
			c.evictions++
		}
	}

	elem := c.ll.PushFront(&entry[V]{
		key:       key,
		value:     value,
		createdAt: time.Now(),
	})
	c.items[key] = elem
	c.sets++
}

// Invalidate removes the entry for the given content payload. It reports
// whether an entry was present.
func (c *Cache[V]) Invalidate(content string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[Key(content)]
	if !ok {
		return false
	}
	c.removeLocked(elem)
	return true
}

// Clear removes all entries and returns how many were removed.
func (c *Cache[V]) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.ll.Len()
	c.ll.Init()
	c.items = make(map[uint64]*list.Element)
	return n
}

// Len returns the current number of entries.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Stats returns a snapshot of cache activity.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
		Sets:        c.sets,
		Entries:     c.ll.Len(),
	}
}

// ResetStats zeroes the cumulative counters. Cached entries are untouched.
func (c *Cache[V]) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hits = 0
	c.misses = 0
	c.evictions = 0
	c.expirations = 0
	c.sets = 0
}

// expiredLocked reports whether the entry has outlived the TTL. Callers must
// hold c.mu.
func (c *Cache[V]) expiredLocked(ent *entry[V]) bool {
	if c.config.TTL <= 0 {
		return false
	}
	return time.Since(ent.createdAt) > c.config.TTL
}

// removeLocked drops an element from both the recency list and the index.
// Callers must hold c.mu.
func (c *Cache[V]) removeLocked(elem *list.Element) {
	c.ll.Remove(elem)
	delete(c.items, elem.Value.(*entry[V]).key)
}
