package customformat

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// CacheOptions bound the match cache.
type CacheOptions struct {
	MaxEntries int           // high-water mark triggering proactive eviction
	MaxAge     time.Duration // entries older than this are evicted by sweeps
}

// DefaultCacheOptions returns the standard cache bounds.
func DefaultCacheOptions() CacheOptions {
	return CacheOptions{
		MaxEntries: 2000,
		MaxAge:     12 * time.Hour,
	}
}

// cacheEntry is a memoized match result stamped with the ruleset version
// that produced it.
type cacheEntry struct {
	formats  []int64
	version  int64
	storedAt time.Time
}

// Cache memoizes matcher output keyed by normalized release title.
//
// Invalidation is lazy: bumping the version orphans every stored entry in
// O(1) without touching the map. Lookups compare the entry's stamp against
// the current version and treat mismatches as misses. The hit path takes no
// lock (sync.Map load + atomic version read).
type Cache struct {
	opts    CacheOptions
	entries sync.Map // normalized title -> *cacheEntry
	count   atomic.Int64
	version atomic.Int64

	evictMu sync.Mutex // serializes eviction passes, never held by lookups
}

// NewCache creates a match cache. The initial version is derived from the
// wall clock so restarts never resurrect stale stamps.
func NewCache(opts CacheOptions) *Cache {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultCacheOptions().MaxEntries
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultCacheOptions().MaxAge
	}
	c := &Cache{opts: opts}
	c.version.Store(time.Now().UnixNano())
	return c
}

// Version returns the current ruleset version stamp.
func (c *Cache) Version() int64 {
	return c.version.Load()
}

// Invalidate bumps the version, instantly orphaning all stored entries.
// The new version is strictly greater than the old one even if the clock
// stands still.
func (c *Cache) Invalidate() {
	for {
		old := c.version.Load()
		next := time.Now().UnixNano()
		if next <= old {
			next = old + 1
		}
		if c.version.CompareAndSwap(old, next) {
			return
		}
	}
}

// TryGet returns the memoized formats for a title if the stored entry was
// produced under the current ruleset version.
func (c *Cache) TryGet(title string) ([]int64, bool) {
	v, ok := c.entries.Load(NormalizeTitle(title))
	if !ok {
		return nil, false
	}
	entry := v.(*cacheEntry)
	if entry.version != c.version.Load() {
		return nil, false
	}
	return entry.formats, true
}

// Store memoizes a match result under the current version.
func (c *Cache) Store(title string, formats []int64) {
	key := NormalizeTitle(title)
	entry := &cacheEntry{
		formats:  formats,
		version:  c.version.Load(),
		storedAt: time.Now(),
	}
	if _, loaded := c.entries.Swap(key, entry); !loaded {
		c.count.Add(1)
	}

	if c.count.Load() > int64(c.opts.MaxEntries) {
		c.evict()
	}
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	return int(c.count.Load())
}

// Sweep runs the eviction pass. It is scheduled independently of request
// traffic and never blocks lookups.
func (c *Cache) Sweep() {
	c.evict()
}

// evict removes expired and orphaned entries first, then the oldest entries
// until the cache is back under its target size.
func (c *Cache) evict() {
	c.evictMu.Lock()
	defer c.evictMu.Unlock()

	now := time.Now()
	current := c.version.Load()

	type aged struct {
		key      string
		storedAt time.Time
	}
	var live []aged

	c.entries.Range(func(k, v any) bool {
		entry := v.(*cacheEntry)
		if entry.version != current || now.Sub(entry.storedAt) > c.opts.MaxAge {
			c.entries.Delete(k)
			c.count.Add(-1)
			return true
		}
		live = append(live, aged{key: k.(string), storedAt: entry.storedAt})
		return true
	})

	// Target 90% of the high-water mark so inserts don't immediately
	// re-trigger eviction.
	target := c.opts.MaxEntries * 9 / 10
	if len(live) <= target {
		return
	}

	sort.Slice(live, func(i, j int) bool {
		return live[i].storedAt.Before(live[j].storedAt)
	})
	for _, e := range live[:len(live)-target] {
		c.entries.Delete(e.key)
		c.count.Add(-1)
	}
}

// NormalizeTitle produces the cache key for a release title.
func NormalizeTitle(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = strings.ReplaceAll(s, ".", " ")
	s = strings.ReplaceAll(s, "_", " ")
	return strings.Join(strings.Fields(s), " ")
}
