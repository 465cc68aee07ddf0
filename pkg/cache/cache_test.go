package cache

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/indexer-dashboard/pkg/record"
)

func page(ids ...string) []record.Record {
	out := make([]record.Record, len(ids))
	for i, id := range ids {
		out[i] = record.Record{"id": id}
	}
	return out
}

func TestPageCache_GetMiss(t *testing.T) {
	c := New(Options{})

	entry, err := c.Get(Key{Source: "coins", Page: 0, Size: 50})
	assert.Nil(t, entry)
	assert.True(t, errors.Is(err, ErrCacheMiss))
	assert.Equal(t, uint64(1), c.Stats().Misses)
}

func TestPageCache_PutGet(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	c := New(Options{Clock: clock})
	key := Key{Source: "coins", Page: 3, Size: 50}

	require.True(t, c.Put(key, page("a", "b"), 500, 10, 1))

	entry, err := c.Get(key)
	require.NoError(t, err)
	assert.Len(t, entry.Records, 2)
	assert.Equal(t, 500, entry.TotalElements)
	assert.Equal(t, 10, entry.TotalPages)
	assert.Equal(t, uint64(1), entry.Sequence)
	assert.Equal(t, clock.Now(), entry.FetchedAt)

	_, err = c.Get(Key{Source: "coins", Page: 3, Size: 25})
	assert.ErrorIs(t, err, ErrCacheMiss, "a different page size is a different key")

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
}

func TestPageCache_PutReplacesWholeEntry(t *testing.T) {
	c := New(Options{})
	key := Key{Source: "pools", Page: 0, Size: 20}

	c.Put(key, page("a", "b", "c"), 3, 1, 1)
	c.Put(key, page("z"), 1, 1, 2)

	entry, err := c.Get(key)
	require.NoError(t, err)
	assert.Equal(t, page("z"), entry.Records)
	assert.Equal(t, 1, entry.TotalElements)
	assert.Equal(t, 1, c.Len())
}

func TestPageCache_PutRefusesOlderSequence(t *testing.T) {
	c := New(Options{})
	key := Key{Source: "coins", Page: 1, Size: 50}

	require.True(t, c.Put(key, page("new"), 100, 2, 7))
	assert.False(t, c.Put(key, page("old"), 90, 2, 3))

	entry, err := c.Get(key)
	require.NoError(t, err)
	assert.Equal(t, page("new"), entry.Records)
	assert.Equal(t, uint64(7), entry.Sequence)

	assert.True(t, c.Put(key, page("same"), 100, 2, 7), "an equal sequence may overwrite")
}

func TestPageCache_TTL(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New(Options{TTL: time.Minute, Clock: clock})
	key := Key{Source: "validators", Page: 0, Size: 20}

	c.Put(key, page("v1"), 1, 1, 1)

	clock.Advance(30 * time.Second)
	_, err := c.Get(key)
	require.NoError(t, err)

	clock.Advance(31 * time.Second)
	_, err = c.Get(key)
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, 0, c.Len(), "stale entry is evicted on access")
	assert.Equal(t, uint64(1), c.Stats().Expirations)
}

func TestPageCache_NoTTLKeepsEntries(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New(Options{Clock: clock})
	key := Key{Source: "accounts", Page: 0, Size: 20}

	c.Put(key, page("acc"), 1, 1, 1)
	clock.Advance(72 * time.Hour)

	_, err := c.Get(key)
	assert.NoError(t, err)
}

func TestPageCache_CapacityEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(Options{Capacity: 2})
	k0 := Key{Source: "coins", Page: 0, Size: 50}
	k1 := Key{Source: "coins", Page: 1, Size: 50}
	k2 := Key{Source: "coins", Page: 2, Size: 50}

	c.Put(k0, page("a"), 3, 3, 1)
	c.Put(k1, page("b"), 3, 3, 2)

	// touch k0 so k1 becomes the LRU entry
	_, err := c.Get(k0)
	require.NoError(t, err)

	c.Put(k2, page("c"), 3, 3, 3)

	assert.Equal(t, 2, c.Len())
	_, err = c.Get(k1)
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(k0)
	assert.NoError(t, err)
	_, err = c.Get(k2)
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestPageCache_Invalidate(t *testing.T) {
	c := New(Options{})
	for p := 0; p < 3; p++ {
		c.Put(Key{Source: "coins", Page: p, Size: 50}, page("c"), 150, 3, uint64(p+1))
	}
	c.Put(Key{Source: "coins", Page: 0, Size: 20}, page("c"), 150, 8, 4)
	c.Put(Key{Source: "pools", Page: 0, Size: 20}, page("p"), 1, 1, 1)

	removed := c.Invalidate(SourceScope("coins"))
	assert.Equal(t, 4, removed, "all pages and sizes of the source")
	assert.Equal(t, 1, c.Len())

	_, err := c.Get(Key{Source: "pools", Page: 0, Size: 20})
	assert.NoError(t, err, "other sources are untouched")

	assert.Equal(t, 0, c.Invalidate(SourceScope("coins")), "second invalidate is a no-op")

	assert.Equal(t, 1, c.Invalidate(AllSources()))
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, uint64(3), c.Stats().Invalidations)
}

func TestPageCache_ConcurrentAccess(t *testing.T) {
	c := New(Options{Capacity: 16})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := Key{Source: fmt.Sprintf("s%d", g%3), Page: i % 10, Size: 10}
				c.Put(key, page("x"), 100, 10, uint64(i))
				_, _ = c.Get(key)
				if i%25 == 0 {
					c.Invalidate(SourceScope(key.Source))
				}
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 16)
}
