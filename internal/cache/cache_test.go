package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPut(t *testing.T) {
	c := New[string](Config{MaxEntries: 10, TTL: time.Minute})

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Put("a", "one")
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "one", v)

	// Plain overwrite, last writer wins.
	c.Put("a", "two")
	v, _ = c.Get("a")
	assert.Equal(t, "two", v)
}

func TestSizeBoundFlushesWholeCache(t *testing.T) {
	c := New[int](Config{MaxEntries: 3, TTL: time.Hour})

	for i := 0; i < 3; i++ {
		c.Put(fmt.Sprintf("key%d", i), i)
	}
	assert.Equal(t, 3, c.Len())

	// The insertion that exceeds the bound clears everything that came
	// before, not just the oldest entry.
	c.Put("key3", 3)
	assert.Equal(t, 1, c.Len())
	for i := 0; i < 3; i++ {
		_, ok := c.Get(fmt.Sprintf("key%d", i))
		assert.False(t, ok, "key%d should have been flushed", i)
	}
	v, ok := c.Get("key3")
	require.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestTTLFlushesWholeCache(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	c := New[int](Config{MaxEntries: 100, TTL: 10 * time.Minute, Clock: clock})

	c.Put("a", 1)
	c.Put("b", 2)

	clock.Advance(9 * time.Minute)
	_, ok := c.Get("a")
	assert.True(t, ok)

	clock.Advance(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestPutIfAbsentFirstWriterWins(t *testing.T) {
	c := New[string](Config{MaxEntries: 10, TTL: time.Minute})

	v, inserted := c.PutIfAbsent("k", "first")
	assert.True(t, inserted)
	assert.Equal(t, "first", v)

	v, inserted = c.PutIfAbsent("k", "second")
	assert.False(t, inserted)
	assert.Equal(t, "first", v)

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "first", got)
}

func TestDeleteFunc(t *testing.T) {
	c := New[int](Config{MaxEntries: 10, TTL: time.Minute})
	c.Put("/cal/a", 1)
	c.Put("/cal/a:entity", 2)
	c.Put("/cal/b", 3)

	c.DeleteFunc(func(key string, _ int) bool {
		return key == "/cal/a" || key == "/cal/a:entity"
	})

	_, ok := c.Get("/cal/a")
	assert.False(t, ok)
	_, ok = c.Get("/cal/a:entity")
	assert.False(t, ok)
	_, ok = c.Get("/cal/b")
	assert.True(t, ok)
}

func TestStats(t *testing.T) {
	c := New[int](Config{MaxEntries: 2, TTL: time.Minute})
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3) // exceeds the bound, triggers a flush

	stats := c.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, 1, stats.Flushes)
}
