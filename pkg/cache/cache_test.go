package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHotMissFallsThroughToWarm(t *testing.T) {
	c := New(Config{HotCapacity: 1, WarmCapacity: 10}, nil)
	c.Put("a", 1)
	c.Put("b", 2) // evicts "a" from hot into warm

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestSecondTouchPromotesWarmToHot(t *testing.T) {
	c := New(Config{HotCapacity: 1, WarmCapacity: 10}, nil)
	c.Put("a", 1)
	c.Put("b", 2) // "a" demoted to warm

	_, ok := c.Get("a") // first touch in warm
	require.True(t, ok)
	_, ok = c.Get("a") // second touch: promotes to hot
	require.True(t, ok)

	// "a" is now in hot; inserting "c" demotes it back to warm, where it is
	// still found.
	c.Put("c", 3)
	_, ok = c.Get("a")
	assert.True(t, ok)
}

func TestMissNotifiesPrefetcherWithoutBlocking(t *testing.T) {
	notified := make(chan string, 1)
	p := prefetcherFunc(func(key string) { notified <- key })

	c := New(DefaultConfig(), p)
	_, ok := c.Get("missing")
	assert.False(t, ok)

	select {
	case key := <-notified:
		assert.Equal(t, "missing", key)
	case <-time.After(time.Second):
		t.Fatal("prefetcher was not notified")
	}
}

func TestRemoveClearsBothTiers(t *testing.T) {
	c := New(DefaultConfig(), nil)
	c.Put("a", 1)
	c.Remove("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestClearEmptiesCache(t *testing.T) {
	c := New(DefaultConfig(), nil)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Clear()

	stats := c.Stats()
	assert.Equal(t, 0, stats.HotSize)
	assert.Equal(t, 0, stats.WarmSize)
}

func TestNeighborhoodPrefetcherFetchesAdjacency(t *testing.T) {
	c := New(DefaultConfig(), nil)
	neighbors := func(id string) []string {
		if id == "x" {
			return []string{"n1", "n2"}
		}
		return nil
	}
	fetch := func(keys []string) map[string]interface{} {
		out := make(map[string]interface{})
		for _, k := range keys {
			out[k] = "value-" + k
		}
		return out
	}
	p := NewNeighborhoodPrefetcher(c, neighbors, fetch)
	p.OnMiss("x")

	assert.Eventually(t, func() bool {
		_, ok := c.Get("n1")
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestQueryPathPrefetcherTriggersOnSharedPrefix(t *testing.T) {
	c := New(DefaultConfig(), nil)
	fetch := func(keys []string) map[string]interface{} {
		out := make(map[string]interface{})
		for _, k := range keys {
			out[k] = "v"
		}
		return out
	}
	qp := NewQueryPathPrefetcher(c, 8, fetch)
	qp.RecordBeam([]string{"a", "b", "c", "d"})
	qp.RecordBeam([]string{"a", "b", "x"}) // shares prefix [a,b] with the first beam

	assert.Eventually(t, func() bool {
		_, ok := c.Get("c")
		return ok
	}, time.Second, 5*time.Millisecond)
}

type prefetcherFunc func(key string)

func (f prefetcherFunc) OnMiss(key string) { f(key) }
