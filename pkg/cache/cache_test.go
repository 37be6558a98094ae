package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSetGetAndExpire(t *testing.T) {
	c := New(10, 0)
	key := KeyFromStrings("unit", "expire")

	_, ok := c.Get(key)
	require.False(t, ok, "expected no value initially")

	c.Set(key, "hello", 50*time.Millisecond)
	v, ok := c.Get(key)
	require.True(t, ok)
	require.Equal(t, "hello", v)

	time.Sleep(80 * time.Millisecond)
	_, ok = c.Get(key)
	require.False(t, ok, "expected expired value to be gone")
}

func TestDelete(t *testing.T) {
	c := New(10, 0)
	key := KeyFromStrings("unit", "delete")
	c.Set(key, 42, time.Second)
	v, ok := c.Get(key)
	require.True(t, ok)
	require.Equal(t, 42, v)

	c.Delete(key)
	_, ok = c.Get(key)
	require.False(t, ok, "expected deleted value to be absent")
}

func TestLRUEviction(t *testing.T) {
	c := New(2, 0)
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)

	// touch a so b becomes the eviction candidate
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("c", 3, 0)
	require.Equal(t, 2, c.Len())
	_, ok = c.Get("b")
	require.False(t, ok, "least recently used entry should be evicted")
	_, ok = c.Get("a")
	require.True(t, ok)
	_, ok = c.Get("c")
	require.True(t, ok)
}

func TestJanitorSweepsExpired(t *testing.T) {
	c := New(0, 10*time.Millisecond)
	defer c.Close()
	c.Set("short", "x", 5*time.Millisecond)

	require.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestKeyFromStringsStability(t *testing.T) {
	k1 := KeyFromStrings("a", "b", "c")
	k2 := KeyFromStrings("a", "b", "c")
	require.Equal(t, k1, k2, "expected same inputs to yield same key")
	k3 := KeyFromStrings("a", "b", "d")
	require.NotEqual(t, k1, k3, "expected different inputs to yield different key")
}

func TestNilCacheIsNoop(t *testing.T) {
	var c *Cache
	c.Set("k", 1, time.Second)
	_, ok := c.Get("k")
	require.False(t, ok)
	c.Delete("k")
	c.Close()
	require.Zero(t, c.Len())
}
