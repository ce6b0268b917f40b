package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func TestLRUCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	_, _ = c.Get("a")
	c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "b was least recently used")
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Size())
}

func TestLRUCacheExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](10, time.Minute, WithClock(clock.now))
	c.Set("k", "v")
	c.Set("other", "v")

	clock.t = clock.t.Add(30 * time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok)

	clock.t = clock.t.Add(time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok)

	assert.Equal(t, 1, c.CleanExpired())
	assert.Equal(t, 0, c.Size())
}

func TestLRUCacheDeletePrefix(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	c.Set("alice:summary", 1)
	c.Set("alice:balances", 2)
	c.Set("bob:summary", 3)

	assert.Equal(t, 2, c.DeletePrefix("alice:"))
	_, ok := c.Get("bob:summary")
	assert.True(t, ok)
	assert.Equal(t, 1, c.Size())
}

func TestLRUCacheObserver(t *testing.T) {
	var hits, misses int
	c := NewLRUCache[int](10, time.Minute, WithObserver(ObserverFunc(func(hit bool) {
		if hit {
			hits++
		} else {
			misses++
		}
	})))
	c.Get("x")
	c.Set("x", 1)
	c.Get("x")
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)
}

func TestManagerCleansRegisteredCaches(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	c := NewLRUCache[int](10, time.Second, WithClock(clock.now))
	c.Set("a", 1)

	m := NewManager()
	m.Register(c)
	m.StartCleanup(time.Hour)
	defer m.Stop()

	clock.t = clock.t.Add(time.Minute)
	assert.Equal(t, 1, m.CleanNow())
}
