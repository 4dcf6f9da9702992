package vectorsearch_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kgmemory/kgmemory/internal/graphtypes"
	"github.com/kgmemory/kgmemory/internal/search/vectorsearch"
	"github.com/kgmemory/kgmemory/internal/storage"
)

type fakeStore struct {
	storage.Store
	records []graphtypes.EmbeddingRecord
}

func (f *fakeStore) AllEmbeddings(ctx context.Context, kind graphtypes.EmbeddingKind, groupID string) ([]graphtypes.EmbeddingRecord, error) {
	return f.records, nil
}

func newFixture() *fakeStore {
	return &fakeStore{records: []graphtypes.EmbeddingRecord{
		{EntityUUID: graphtypes.NewUUID(), Vector: []float32{1, 0, 0}},
		{EntityUUID: graphtypes.NewUUID(), Vector: []float32{0, 1, 0}},
		{EntityUUID: graphtypes.NewUUID(), Vector: []float32{0.99, 0.01, 0}},
	}}
}

func TestSearchCosineRanksClosestVectorFirst(t *testing.T) {
	store := newFixture()
	s := vectorsearch.New(store, vectorsearch.DefaultConfig())

	results, err := s.Search(context.Background(), []float32{1, 0, 0}, graphtypes.EmbeddingNode, "", 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, store.records[0].EntityUUID, results[0].EntityUUID)
	require.Equal(t, store.records[2].EntityUUID, results[1].EntityUUID)
}

func TestSearchAppliesSimilarityThreshold(t *testing.T) {
	store := newFixture()
	cfg := vectorsearch.DefaultConfig()
	cfg.SimilarityThreshold = 0.99999
	s := vectorsearch.New(store, cfg)

	results, err := s.Search(context.Background(), []float32{1, 0, 0}, graphtypes.EmbeddingNode, "", 3)
	require.NoError(t, err)
	require.Len(t, results, 1, "only the exact match clears a 0.99999 threshold (the near match scores about 0.99995)")
}

func TestSearchEuclideanMetric(t *testing.T) {
	store := newFixture()
	cfg := vectorsearch.DefaultConfig()
	cfg.Metric = vectorsearch.MetricEuclidean
	s := vectorsearch.New(store, cfg)

	results, err := s.Search(context.Background(), []float32{1, 0, 0}, graphtypes.EmbeddingNode, "", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, store.records[0].EntityUUID, results[0].EntityUUID)
}

func TestKMeansAssignsAllMembers(t *testing.T) {
	ids := []graphtypes.UUID{graphtypes.NewUUID(), graphtypes.NewUUID(), graphtypes.NewUUID(), graphtypes.NewUUID()}
	vectors := [][]float32{{1, 0}, {0.9, 0.1}, {0, 1}, {0.1, 0.9}}

	clusters := vectorsearch.KMeans(ids, vectors, 2, 10)
	require.Len(t, clusters, 2)

	total := 0
	for _, c := range clusters {
		total += len(c.Members)
	}
	require.Equal(t, len(ids), total)
}

func TestDetectOutliersFindsDistantMember(t *testing.T) {
	ids := make([]graphtypes.UUID, 0, 6)
	vectors := make([][]float32, 0, 6)
	for i := 0; i < 5; i++ {
		ids = append(ids, graphtypes.NewUUID())
		vectors = append(vectors, []float32{1, 0.01 * float32(i)})
	}
	outlierID := graphtypes.NewUUID()
	ids = append(ids, outlierID)
	vectors = append(vectors, []float32{-1, 5})

	clusters := vectorsearch.KMeans(ids, vectors, 1, 10)
	outliers := vectorsearch.DetectOutliers(ids, vectors, clusters, 1.0)

	require.NotEmpty(t, outliers)
	var found bool
	for _, o := range outliers {
		if o.EntityUUID == outlierID {
			found = true
		}
	}
	require.True(t, found)
}
