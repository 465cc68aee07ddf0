package cache

import (
	"container/list"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Sternrassler/indexer-dashboard/pkg/record"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")
)

// DefaultCapacity is the entry bound used when Options.Capacity is 0.
const DefaultCapacity = 256

// Options configures a PageCache.
type Options struct {
	// TTL is the maximum entry age; 0 keeps entries until invalidated
	TTL time.Duration

	// Capacity bounds the number of entries (default: DefaultCapacity)
	Capacity int

	// Clock is used for FetchedAt and TTL checks (default: real clock)
	Clock clockwork.Clock
}

// Scope selects the entries removed by Invalidate.
type Scope struct {
	source string
	all    bool
}

// SourceScope selects every page of one source, across page sizes.
func SourceScope(source string) Scope {
	return Scope{source: source}
}

// AllSources selects every entry.
func AllSources() Scope {
	return Scope{all: true}
}

func (s Scope) matches(k Key) bool {
	return s.all || k.Source == s.source
}

func (s Scope) label() string {
	if s.all {
		return "all"
	}
	return "source"
}

// Stats is a point-in-time copy of the cache counters.
type Stats struct {
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Evictions     uint64 `json:"evictions"`
	Expirations   uint64 `json:"expirations"`
	Invalidations uint64 `json:"invalidations"`
	Entries       int    `json:"entries"`
}

type lruItem struct {
	key   Key
	entry *Entry
}

// PageCache is a thread-safe, size-bounded LRU cache of fetched pages.
// It never talks to the network.
type PageCache struct {
	ttl      time.Duration
	capacity int
	clock    clockwork.Clock

	mu    sync.Mutex
	ll    *list.List
	items map[Key]*list.Element
	stats Stats
}

// New creates a page cache.
func New(opts Options) *PageCache {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &PageCache{
		ttl:      opts.TTL,
		capacity: opts.Capacity,
		clock:    opts.Clock,
		ll:       list.New(),
		items:    make(map[Key]*list.Element),
	}
}

// Get returns the entry for key.
// Returns ErrCacheMiss if the key doesn't exist or the entry has expired;
// an expired entry is removed.
func (c *PageCache) Get(key Key) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		CacheMisses.WithLabelValues(key.Source).Inc()
		return nil, ErrCacheMiss
	}

	entry := elem.Value.(*lruItem).entry
	if entry.IsExpired(c.clock.Now(), c.ttl) {
		c.removeElement(elem)
		c.stats.Expirations++
		c.stats.Misses++
		CacheEvictions.WithLabelValues("expired").Inc()
		CacheMisses.WithLabelValues(key.Source).Inc()
		return nil, ErrCacheMiss
	}

	c.ll.MoveToFront(elem)
	c.stats.Hits++
	CacheHits.WithLabelValues(key.Source).Inc()
	return entry, nil
}

// Put stores a page for key, replacing any previous entry. It returns false
// and keeps the existing entry when that entry was produced by a newer
// request sequence.
func (c *PageCache) Put(key Key, records []record.Record, totalElements, totalPages int, sequence uint64) bool {
	entry := &Entry{
		Records:       records,
		TotalElements: totalElements,
		TotalPages:    totalPages,
		FetchedAt:     c.clock.Now(),
		Sequence:      sequence,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		item := elem.Value.(*lruItem)
		if item.entry.Sequence > sequence {
			return false
		}
		item.entry = entry
		c.ll.MoveToFront(elem)
		return true
	}

	c.items[key] = c.ll.PushFront(&lruItem{key: key, entry: entry})
	CacheEntries.Inc()

	for c.ll.Len() > c.capacity {
		c.evict()
	}
	return true
}

// Invalidate removes every entry matched by scope and returns how many
// were removed.
func (c *PageCache) Invalidate(scope Scope) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, elem := range c.items {
		if scope.matches(key) {
			c.removeElement(elem)
			removed++
		}
	}

	c.stats.Invalidations++
	CacheInvalidations.WithLabelValues(scope.label()).Inc()
	return removed
}

// Len returns the number of entries currently held.
func (c *PageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Stats returns a copy of the cache counters.
func (c *PageCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = c.ll.Len()
	return s
}

// TTL returns the configured entry lifetime.
func (c *PageCache) TTL() time.Duration {
	return c.ttl
}

// evict removes the least recently used entry.
// Must be called with c.mu held.
func (c *PageCache) evict() {
	elem := c.ll.Back()
	if elem == nil {
		return
	}
	c.removeElement(elem)
	c.stats.Evictions++
	CacheEvictions.WithLabelValues("capacity").Inc()
}

// Must be called with c.mu held.
func (c *PageCache) removeElement(elem *list.Element) {
	item := c.ll.Remove(elem).(*lruItem)
	delete(c.items, item.key)
	CacheEntries.Dec()
}
