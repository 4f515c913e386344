package cache

import (
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestCache_ExpiryAndStaleReads(t *testing.T) {
	clk := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewCacheWithClock(clk.now)

	require.NoError(t, c.Set(JourneyKey("j1"), []string{"a", "b"}, time.Minute, "provider"))

	var got []string
	found, err := c.Get(JourneyKey("j1"), &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"a", "b"}, got)

	clk.t = clk.t.Add(90 * time.Second)
	found, err = c.Get(JourneyKey("j1"), &got)
	require.NoError(t, err)
	assert.False(t, found)
	assert.True(t, c.IsStale(JourneyKey("j1")))
	assert.False(t, c.IsVeryStale(JourneyKey("j1")))

	var stale []string
	entry, found, err := c.GetStale(JourneyKey("j1"), &stale)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "provider", entry.Source)
	assert.Equal(t, []string{"a", "b"}, stale)

	assert.Equal(t, 0, c.CleanupStale(), "stale entries are kept for fallback")
	clk.t = clk.t.Add(time.Minute)
	assert.True(t, c.IsVeryStale(JourneyKey("j1")))
	assert.Equal(t, 1, c.CleanupStale())
	assert.Empty(t, c.Keys())
}

func TestCache_Stats(t *testing.T) {
	clk := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewCacheWithClock(clk.now)
	require.NoError(t, c.Set("a", 1, time.Second, "test"))
	clk.t = clk.t.Add(2 * time.Second)
	require.NoError(t, c.Set("b", 2, time.Minute, "test"))

	stats := c.Stats()
	assert.Equal(t, 2, stats.TotalEntries)
	assert.Equal(t, 1, stats.StaleEntries)
	assert.Equal(t, 1, stats.FreshEntries)
	assert.True(t, stats.OldestEntry.Before(stats.NewestEntry))

	c.Delete("a")
	assert.Equal(t, []string{"b"}, c.Keys())
	c.Clear()
	assert.Empty(t, c.Keys())
}

func TestCache_MarshalError(t *testing.T) {
	c := NewCache()
	err := c.Set("bad", make(chan int), time.Minute, "test")
	assert.Error(t, err)
}

func TestClustersKey_RoundsViewport(t *testing.T) {
	a := ClustersKey("j1", 5, orb.Bound{Min: orb.Point{1.000001, 2}, Max: orb.Point{3, 4}})
	b := ClustersKey("j1", 5, orb.Bound{Min: orb.Point{1.000002, 2}, Max: orb.Point{3, 4}})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, ClustersKey("j1", 6, orb.Bound{Min: orb.Point{1, 2}, Max: orb.Point{3, 4}}))
}
