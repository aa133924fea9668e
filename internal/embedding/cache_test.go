package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryCache_evictsLeastRecentlyUsed(t *testing.T) {
	c := NewQueryCache(2)
	_, ok := c.Get("door schedule")
	assert.False(t, ok)

	c.Set("door schedule", []float32{1, 2, 3})
	c.Set("stair core", []float32{4, 5})
	_, ok = c.Get("door schedule")
	require.True(t, ok)
	c.Set("footing depth", []float32{6}) // evicts "stair core"

	_, ok = c.Get("stair core")
	assert.False(t, ok)
	_, ok = c.Get("footing depth")
	assert.True(t, ok)
	assert.Equal(t, CacheStats{Entries: 2, Hits: 2, Misses: 2}, c.Stats())
}

func TestQueryCache_normalizesWhitespace(t *testing.T) {
	c := NewQueryCache(4)
	c.Set("  fire   rating\tof D01 ", []float32{1})

	v, ok := c.Get("fire rating of D01")
	require.True(t, ok)
	assert.Equal(t, []float32{1}, v)
	_, ok = c.Get("Fire rating of D01")
	assert.False(t, ok, "keys are case sensitive")
}

func TestQueryCache_returnsCopies(t *testing.T) {
	c := NewQueryCache(1)
	in := []float32{1, 2}
	c.Set("q", in)
	in[0] = 9

	out, ok := c.Get("q")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2}, out)
	out[1] = 7

	again, _ := c.Get("q")
	assert.Equal(t, []float32{1, 2}, again)
}

func TestQueryCache_replaceExisting(t *testing.T) {
	c := NewQueryCache(2)
	c.Set("q", []float32{1})
	c.Set("q", []float32{2})

	v, ok := c.Get("q")
	require.True(t, ok)
	assert.Equal(t, []float32{2}, v)
	assert.Equal(t, 1, c.Stats().Entries)
}
