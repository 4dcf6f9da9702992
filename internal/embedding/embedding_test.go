package embedding_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kgmemory/kgmemory/internal/embedding"
	"github.com/kgmemory/kgmemory/internal/graphtypes"
)

func readyEngine(t *testing.T) *embedding.Engine {
	t.Helper()
	backend := embedding.NewHashBackend(64)
	eng := embedding.NewEngine(backend, embedding.Config{
		Dimension:      64,
		CacheCapacity:  1000,
		BatchSize:      4,
		MaxConcurrency: 2,
		BatchTimeout:   time.Second,
	})
	require.NoError(t, eng.Init(context.Background(), nil))
	return eng
}

func TestEncodeReturnsUnitNormVector(t *testing.T) {
	eng := readyEngine(t)
	vec, err := eng.Encode(context.Background(), "Patchright browser automation")
	require.NoError(t, err)

	var sumSq float64
	for _, f := range vec {
		sumSq += float64(f) * float64(f)
	}
	require.InDelta(t, 1.0, math.Sqrt(sumSq), 1e-4)
}

func TestEncodeIsDeterministic(t *testing.T) {
	eng := readyEngine(t)
	v1, err := eng.Encode(context.Background(), "same text")
	require.NoError(t, err)
	v2, err := eng.Encode(context.Background(), "same text")
	require.NoError(t, err)
	require.Equal(t, v1, v2)
}

func TestEncodeNotReadyBeforeInit(t *testing.T) {
	backend := embedding.NewHashBackend(32)
	eng := embedding.NewEngine(backend, embedding.DefaultConfig())

	_, err := eng.Encode(context.Background(), "anything")
	require.Error(t, err)
	require.Equal(t, graphtypes.KindNotReady, graphtypes.KindOf(err))
}

func TestInitFailurePropagatesAndLeavesUninitialized(t *testing.T) {
	backend := embedding.NewHashBackend(32)
	eng := embedding.NewEngine(backend, embedding.DefaultConfig())

	warmupErr := graphtypes.New(graphtypes.KindInternal, "model load failed")
	err := eng.Init(context.Background(), func(ctx context.Context) error { return warmupErr })
	require.Error(t, err)
	require.Equal(t, embedding.StateUninitialized, eng.State())

	_, err = eng.Encode(context.Background(), "x")
	require.Equal(t, graphtypes.KindNotReady, graphtypes.KindOf(err))
}

func TestEncodeBatchUsesCacheOnRepeatedTexts(t *testing.T) {
	eng := readyEngine(t)
	ctx := context.Background()

	texts := []string{"alpha", "beta", "alpha", "gamma", "beta"}
	vecs, err := eng.EncodeBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	require.Equal(t, vecs[0], vecs[2], "repeated text alpha must encode identically")
	require.Equal(t, vecs[1], vecs[4], "repeated text beta must encode identically")

	_, misses := eng.CacheStats()
	require.Equal(t, uint64(5), misses, "first pass over these texts has no cache entries yet")

	// A second pass over the same (now-distinct) texts must be served
	// entirely from the cache.
	_, err = eng.EncodeBatch(ctx, []string{"alpha", "beta", "gamma"})
	require.NoError(t, err)
	hits, _ := eng.CacheStats()
	require.Equal(t, uint64(3), hits)
}

func TestEncodeBatchSpansMultipleChunks(t *testing.T) {
	eng := readyEngine(t)
	texts := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		texts = append(texts, string(rune('a'+i))+" distinct text")
	}
	vecs, err := eng.EncodeBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 10)
	for _, v := range vecs {
		require.NotNil(t, v)
	}
}

func TestEncodeBatchEmptyInput(t *testing.T) {
	eng := readyEngine(t)
	vecs, err := eng.EncodeBatch(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, vecs)
}

func TestEmptyTextEncodesToZeroVectorWithoutError(t *testing.T) {
	eng := readyEngine(t)
	vec, err := eng.Encode(context.Background(), "")
	require.NoError(t, err)
	for _, f := range vec {
		require.Equal(t, float32(0), f)
	}
}
