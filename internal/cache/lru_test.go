package cache

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"spendly/internal/log"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache(size int, ttl time.Duration) (*LRUCache[string], *clock, *[]string) {
	clk := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	var mu sync.Mutex
	evicted := &[]string{}
	c := NewLRUCache[string](size, ttl).OnEvict(func(key, _ string) {
		mu.Lock()
		*evicted = append(*evicted, key)
		mu.Unlock()
	})
	c.now = clk.Now
	return c, clk, evicted
}

// TestLRUCacheEviction tests size-based eviction
func TestLRUCacheEviction(t *testing.T) {
	cache, _, evicted := newTestCache(3, time.Hour)

	cache.Set("key1", "value1")
	cache.Set("key2", "value2")
	cache.Set("key3", "value3")
	cache.Get("key1")
	cache.Set("key4", "value4") // key2 is now least recently used

	_, found := cache.Get("key2")
	assert.False(t, found)
	for _, k := range []string{"key1", "key3", "key4"} {
		_, found := cache.Get(k)
		assert.True(t, found, k)
	}
	assert.Equal(t, []string{"key2"}, *evicted)
	assert.Equal(t, 3, cache.Size())
}

// TestLRUCacheTTLExpiration tests idle expiration
func TestLRUCacheTTLExpiration(t *testing.T) {
	cache, clk, evicted := newTestCache(100, time.Minute)

	cache.Set("key1", "value1")
	cache.Set("key2", "value2")

	clk.Advance(40 * time.Second)
	_, found := cache.Get("key1")
	assert.True(t, found)

	// key1 was touched 40s ago, key2 was set 80s ago.
	clk.Advance(40 * time.Second)
	_, found = cache.Get("key1")
	assert.True(t, found)
	_, found = cache.Get("key2")
	assert.False(t, found)
	assert.Equal(t, []string{"key2"}, *evicted)
}

func TestLRUCacheCleanExpired(t *testing.T) {
	cache, clk, evicted := newTestCache(100, time.Minute)
	cache.Set("a", "1")
	cache.Set("b", "2")
	clk.Advance(30 * time.Second)
	cache.Set("c", "3")
	clk.Advance(45 * time.Second)

	assert.Equal(t, 2, cache.CleanExpired())
	assert.Equal(t, 1, cache.Size())
	sort.Strings(*evicted)
	assert.Equal(t, []string{"a", "b"}, *evicted)
}

func TestLRUCacheReplaceDeletePurge(t *testing.T) {
	cache, _, evicted := newTestCache(10, time.Hour)
	cache.Set("a", "1")
	cache.Set("a", "2")
	got, _ := cache.Get("a")
	assert.Equal(t, "2", got)
	assert.Equal(t, []string{"a"}, *evicted)

	cache.Delete("a")
	cache.Delete("missing")
	assert.Equal(t, []string{"a", "a"}, *evicted)

	cache.Set("x", "1")
	cache.Set("y", "2")
	cache.Purge()
	assert.Zero(t, cache.Size())
	assert.Len(t, *evicted, 4)
}

func TestManagerStop(t *testing.T) {
	m := NewManager(log.Discard())
	c := NewLRUCache[int](1, time.Millisecond)
	m.Register(c)
	m.StartCleanup(time.Millisecond)
	c.Set("k", 1)
	assert.Eventually(t, func() bool { return c.Size() == 0 }, time.Second, 5*time.Millisecond)
	m.Stop()
	m.Stop()

	// Stopping a manager that never started must not block.
	NewManager(log.Discard()).Stop()
}
