package memoryopt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kgmemory/kgmemory/internal/graphtypes"
)

func TestLRUTierTTLExpiry(t *testing.T) {
	tier := newLRUTier[string, int](10, 10*time.Millisecond)
	tier.put("a", 1)

	v, ok := tier.get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)

	time.Sleep(15 * time.Millisecond)
	_, ok = tier.get("a")
	require.False(t, ok)

	stats := tier.stats()
	require.Equal(t, uint64(1), stats.Hits)
	require.Equal(t, uint64(1), stats.Misses)
}

func TestLRUTierEvictsLeastRecentlyUsed(t *testing.T) {
	tier := newLRUTier[string, int](2, 0)
	tier.put("a", 1)
	tier.put("b", 2)
	tier.get("a") // touch a, making b the LRU entry
	tier.put("c", 3)

	_, ok := tier.get("b")
	require.False(t, ok, "b should have been evicted as least-recently-used")

	_, ok = tier.get("a")
	require.True(t, ok)
	_, ok = tier.get("c")
	require.True(t, ok)
}

func TestOptimizerNodeTierRoundTrip(t *testing.T) {
	opt := New(DefaultOptimizerConfig())
	n := graphtypes.Node{UUID: graphtypes.NewUUID(), Name: "Widget", Type: "concept"}
	opt.PutNode(n)

	got, ok := opt.GetNode(n.UUID)
	require.True(t, ok)
	require.Equal(t, n.Name, got.Name)

	opt.InvalidateNode(n.UUID)
	_, ok = opt.GetNode(n.UUID)
	require.False(t, ok)
}

func TestQueryKeyStableForEqualParams(t *testing.T) {
	type params struct {
		Query string
		Limit int
	}
	k1 := QueryKey("search_memory", params{Query: "hello", Limit: 10})
	k2 := QueryKey("search_memory", params{Query: "hello", Limit: 10})
	k3 := QueryKey("search_memory", params{Query: "hello", Limit: 20})
	require.Equal(t, k1, k2)
	require.NotEqual(t, k1, k3)
}

func TestPoolAcquireReleaseReusesShells(t *testing.T) {
	pool := newPool(2,
		func() *int { v := 0; return &v },
		func(p **int) { **p = 0 })

	a := pool.Acquire()
	*a = 42
	pool.Release(a)
	require.Equal(t, 1, pool.Len())

	b := pool.Acquire()
	require.Equal(t, 0, *b, "released shell must be reset before reuse")
	require.Equal(t, 0, pool.Len())
}

func TestPoolDropsBeyondCapacity(t *testing.T) {
	pool := newPool(1,
		func() int { return 0 },
		func(p *int) { *p = 0 })
	pool.Release(1)
	pool.Release(2)
	require.Equal(t, 1, pool.Len())
}

func TestGCSchedulerEvictsOverThreshold(t *testing.T) {
	tier := newLRUTier[int, int](1000, 0)
	for i := 0; i < 20; i++ {
		tier.put(i, i)
	}

	gc := newGCScheduler(GCConfig{
		Interval:     time.Hour,
		GCThreshold:  0.5,
		MaxCacheSize: 20,
		MaxSnapshots: 10,
	}, []sweepable{tier})

	require.NoError(t, gc.sweepOnce())
	require.LessOrEqual(t, tier.size(), 10)
	require.Len(t, gc.History(), 1)
}

func TestGCSchedulerSuggestsResizeOnSustainedGrowth(t *testing.T) {
	gc := newGCScheduler(GCConfig{MaxCacheSize: 100, MaxSnapshots: 10}, nil)
	gc.recordSnapshot(90)
	gc.recordSnapshot(95)
	gc.recordSnapshot(98)

	suggestions := gc.Suggestions()
	require.NotEmpty(t, suggestions)
	require.Equal(t, "resize_cache", suggestions[0].Action)
}
