// Package cache provides the bounded cache used for virtual-path
// chains and alias-info trees. The cache has a maximum entry count and
// a time-to-live; exceeding either bound clears the entire cache
// rather than evicting single entries. Callers only need staleness
// bounding, not per-entry eviction, so the whole-cache flush keeps the
// bookkeeping trivial.
package cache

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Config holds the bounds of a cache instance.
type Config struct {
	// MaxEntries is the entry count above which the cache is flushed.
	MaxEntries int
	// TTL is the maximum age of the cache as a whole, measured since
	// the last flush.
	TTL time.Duration
	// Clock supplies time; defaults to the real clock.
	Clock clockwork.Clock
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	MaxEntries: 1000,
	TTL:        15 * time.Minute,
}

// Flushing is a string-keyed cache with whole-cache flush semantics.
// It is safe for concurrent use.
type Flushing[V any] struct {
	mu         sync.RWMutex
	entries    map[string]V
	maxEntries int
	ttl        time.Duration
	clock      clockwork.Clock
	lastFlush  time.Time
	flushes    int
}

// New creates a cache with the given bounds. Zero-valued bounds fall
// back to DefaultConfig.
func New[V any](cfg Config) *Flushing[V] {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultConfig.MaxEntries
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig.TTL
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Flushing[V]{
		entries:    make(map[string]V),
		maxEntries: cfg.MaxEntries,
		ttl:        cfg.TTL,
		clock:      cfg.Clock,
		lastFlush:  cfg.Clock.Now(),
	}
}

// Get retrieves a cached value. A cache older than the TTL is flushed
// and the lookup reports a miss.
func (c *Flushing[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	expired := c.clock.Now().Sub(c.lastFlush) > c.ttl
	v, ok := c.entries[key]
	c.mu.RUnlock()

	if expired {
		c.Flush()
		var zero V
		return zero, false
	}
	return v, ok
}

// Put stores a value, flushing the whole cache first when a bound is
// exceeded. Existing entries are overwritten (last writer wins).
func (c *Flushing[V]) Put(key string, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushIfExceededLocked()
	c.entries[key] = v
}

// PutIfAbsent stores a value only when the key is not already present,
// returning the winning value. The first writer wins: a concurrent
// builder that lost the race gets the cached tree back and discards
// its own.
func (c *Flushing[V]) PutIfAbsent(key string, v V) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushIfExceededLocked()
	if existing, ok := c.entries[key]; ok {
		return existing, false
	}
	c.entries[key] = v
	return v, true
}

// flushIfExceededLocked clears the cache when inserting one more entry
// would exceed the size bound, or when the TTL has elapsed.
func (c *Flushing[V]) flushIfExceededLocked() {
	if len(c.entries) >= c.maxEntries || c.clock.Now().Sub(c.lastFlush) > c.ttl {
		c.flushLocked()
	}
}

// Flush clears the entire cache.
func (c *Flushing[V]) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
}

func (c *Flushing[V]) flushLocked() {
	c.entries = make(map[string]V)
	c.lastFlush = c.clock.Now()
	c.flushes++
}

// DeleteFunc removes every entry for which pred returns true.
func (c *Flushing[V]) DeleteFunc(pred func(key string, v V) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range c.entries {
		if pred(k, v) {
			delete(c.entries, k)
		}
	}
}

// Len returns the current entry count.
func (c *Flushing[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats reports cache usage.
type Stats struct {
	Entries int
	Flushes int
}

// Stats returns a snapshot of cache usage.
func (c *Flushing[V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Entries: len(c.entries), Flushes: c.flushes}
}
