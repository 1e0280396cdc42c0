package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindnote/mindroute/internal/models"
)

func TestKeyDeterministic(t *testing.T) {
	k1 := Key("hello", "gpt-4", 0.7, 256, 1.0)
	k2 := Key("hello", "gpt-4", 0.7, 256, 1.0)
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 64)
}

func TestKeyVariesWithParameters(t *testing.T) {
	base := Key("hello", "gpt-4", 0.7, 256, 1.0)
	assert.NotEqual(t, base, Key("hello!", "gpt-4", 0.7, 256, 1.0))
	assert.NotEqual(t, base, Key("hello", "gpt-4o", 0.7, 256, 1.0))
	assert.NotEqual(t, base, Key("hello", "gpt-4", 0.8, 256, 1.0))
	assert.NotEqual(t, base, Key("hello", "gpt-4", 0.7, 512, 1.0))
	assert.NotEqual(t, base, Key("hello", "gpt-4", 0.7, 256, 0.9))
}

func TestGetMiss(t *testing.T) {
	c := New(time.Minute, 10)
	_, ok := c.Get("missing")
	assert.False(t, ok)
}

func TestSetAndGet(t *testing.T) {
	c := New(time.Minute, 10)
	c.Set("k", models.Response{Content: "cached answer", Success: true})

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "cached answer", got.Content)
	assert.True(t, got.Success)
}

func TestExpiry(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := New(time.Minute, 10)
	c.now = func() time.Time { return clock }

	c.Set("k", models.Response{Content: "x"})

	clock = clock.Add(59 * time.Second)
	_, ok := c.Get("k")
	assert.True(t, ok)

	clock = clock.Add(2 * time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestEvictionPrefersExpired(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := New(time.Minute, 2)
	c.now = func() time.Time { return clock }

	c.Set("old", models.Response{Content: "old"})
	clock = clock.Add(2 * time.Minute) // "old" expires
	c.Set("fresh", models.Response{Content: "fresh"})
	c.Set("newer", models.Response{Content: "newer"})

	_, ok := c.Get("old")
	assert.False(t, ok)
	_, ok = c.Get("fresh")
	assert.True(t, ok)
	_, ok = c.Get("newer")
	assert.True(t, ok)
}

func TestEvictionFallsBackToOldest(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := New(time.Hour, 2)
	c.now = func() time.Time { return clock }

	c.Set("first", models.Response{})
	clock = clock.Add(time.Second)
	c.Set("second", models.Response{})
	clock = clock.Add(time.Second)
	c.Set("third", models.Response{})

	_, ok := c.Get("first")
	assert.False(t, ok)
	_, ok = c.Get("second")
	assert.True(t, ok)
	_, ok = c.Get("third")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestClear(t *testing.T) {
	c := New(time.Minute, 10)
	c.Set("a", models.Response{})
	c.Set("b", models.Response{})
	c.Clear()
	assert.Equal(t, 0, c.Len())
}
