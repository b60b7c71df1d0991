// Package dedup remembers the texts the bot itself sent so that the echo of
// those messages coming back through the event stream can be dropped.
package dedup

import (
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
)

const (
	DefaultMaxEntries = 1024
	DefaultTTL        = 60 * time.Second
)

type entry struct {
	text       string
	recordedAt time.Time
}

// Cache maps message ids to the text sent under them. It is bounded both by
// entry count (oldest inserted is evicted first) and by age.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	order   *lru.Cache // insertion order only, never read through Get
	ttl     time.Duration
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache. Non-positive arguments fall back to the defaults.
func New(maxEntries int, ttl time.Duration, opts ...Option) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		entries: make(map[string]entry),
		order:   lru.New(maxEntries),
		ttl:     ttl,
		now:     time.Now,
	}
	c.order.OnEvicted = func(key lru.Key, _ interface{}) {
		delete(c.entries, key.(string))
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RecordSent stores text under id. Recording an id again replaces its entry
// and counts as a fresh insertion.
func (c *Cache) RecordSent(id, text string) {
	if id == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = entry{text: text, recordedAt: c.now()}
	c.order.Add(id, nil)
}

// ShouldSuppress reports whether id was recorded with exactly this text and
// has not expired. Expired entries are removed. A lookup does not change the
// eviction order.
func (c *Cache) ShouldSuppress(id, text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return false
	}
	if c.now().Sub(e.recordedAt) >= c.ttl {
		c.order.Remove(id)
		return false
	}
	return e.text == text
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
