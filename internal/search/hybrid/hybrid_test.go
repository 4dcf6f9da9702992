package hybrid

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kgmemory/kgmemory/internal/graphtypes"
	"github.com/kgmemory/kgmemory/internal/search/textsearch"
	"github.com/kgmemory/kgmemory/internal/search/vectorsearch"
	"github.com/kgmemory/kgmemory/internal/storage"
)

func TestFuseLinearCombinationMonotonicity(t *testing.T) {
	a, b, c := graphtypes.NewUUID(), graphtypes.NewUUID(), graphtypes.NewUUID()
	textRanked := []graphtypes.UUID{a, b, c}
	vectorRanked := []vectorsearch.Scored{
		{EntityUUID: c, Score: 0.9},
		{EntityUUID: graphtypes.NewUUID(), Score: 0.8}, // vector-only node absent from text results
		{EntityUUID: a, Score: 0.5},
	}

	o := &Orchestrator{cfg: Config{Algorithm: LinearCombination, TextWeight: 1}}
	fused := o.fuse(textRanked, vectorRanked)

	require.Len(t, fused, len(textRanked), "wt=1,wv=0 must reproduce the text-only result set exactly")
	for i, f := range fused {
		require.Equal(t, textRanked[i], f.EntityUUID, "wt=1,wv=0 must reproduce the text-only result order exactly")
	}
}

func TestFuseLinearCombinationMonotonicityVectorOnly(t *testing.T) {
	a, b, c := graphtypes.NewUUID(), graphtypes.NewUUID(), graphtypes.NewUUID()
	textRanked := []graphtypes.UUID{graphtypes.NewUUID()}
	vectorRanked := []vectorsearch.Scored{
		{EntityUUID: a, Score: 0.9},
		{EntityUUID: b, Score: 0.8},
		{EntityUUID: c, Score: 0.7},
	}

	o := &Orchestrator{cfg: Config{Algorithm: LinearCombination, TextWeight: 0}}
	fused := o.fuse(textRanked, vectorRanked)

	require.Len(t, fused, len(vectorRanked), "wt=0,wv=1 must reproduce the vector-only result set exactly")
	for i, f := range fused {
		require.Equal(t, vectorRanked[i].EntityUUID, f.EntityUUID, "wt=0,wv=1 must reproduce the vector-only result order exactly")
	}
}

func TestFuseLinearCombinationBlendsBothLegs(t *testing.T) {
	a, b := graphtypes.NewUUID(), graphtypes.NewUUID()
	textRanked := []graphtypes.UUID{a, b}
	vectorRanked := []vectorsearch.Scored{
		{EntityUUID: b, Score: 0.9},
		{EntityUUID: a, Score: 0.8},
	}

	o := &Orchestrator{cfg: Config{Algorithm: LinearCombination, TextWeight: 0.5}}
	fused := o.fuse(textRanked, vectorRanked)

	require.Len(t, fused, 2, "a genuine blend still covers the union of both legs")
}

func TestFuseReciprocalRankFusionRewardsAgreement(t *testing.T) {
	a, b := graphtypes.NewUUID(), graphtypes.NewUUID()
	textRanked := []graphtypes.UUID{a, b}
	vectorRanked := []vectorsearch.Scored{
		{EntityUUID: a, Score: 0.9},
		{EntityUUID: b, Score: 0.1},
	}

	o := &Orchestrator{cfg: Config{Algorithm: ReciprocalRankFusion}}
	fused := o.fuse(textRanked, vectorRanked)

	require.Len(t, fused, 2)
	require.Equal(t, a, fused[0].EntityUUID, "a ranks first in both lists so RRF must rank it first")
}

func TestFuseMinScoreOnlyIntersects(t *testing.T) {
	a, b := graphtypes.NewUUID(), graphtypes.NewUUID()
	textRanked := []graphtypes.UUID{a, b}
	vectorRanked := []vectorsearch.Scored{{EntityUUID: a, Score: 0.9}}

	o := &Orchestrator{cfg: Config{Algorithm: MinScore}}
	fused := o.fuse(textRanked, vectorRanked)

	require.Len(t, fused, 1, "MinScore fuses only entries present in both lists")
	require.Equal(t, a, fused[0].EntityUUID)
}

func TestFuseMaxScoreCoversUnion(t *testing.T) {
	a, b := graphtypes.NewUUID(), graphtypes.NewUUID()
	textRanked := []graphtypes.UUID{a}
	vectorRanked := []vectorsearch.Scored{{EntityUUID: b, Score: 0.9}}

	o := &Orchestrator{cfg: Config{Algorithm: MaxScore}}
	fused := o.fuse(textRanked, vectorRanked)

	require.Len(t, fused, 2, "MaxScore fuses the union of both lists")
}

type fakeStore struct {
	storage.Store
	nodes      []graphtypes.Node
	embeddings []graphtypes.EmbeddingRecord
}

func (f *fakeStore) SearchNodesByText(ctx context.Context, query, groupID string, limit int) ([]graphtypes.Node, error) {
	return f.nodes, nil
}

func (f *fakeStore) AllEmbeddings(ctx context.Context, kind graphtypes.EmbeddingKind, groupID string) ([]graphtypes.EmbeddingRecord, error) {
	return f.embeddings, nil
}

func TestSearchDegradesToTextOnlyWhenEmbeddingNotReady(t *testing.T) {
	match := graphtypes.Node{UUID: graphtypes.NewUUID(), Name: "webauthn"}
	store := &fakeStore{nodes: []graphtypes.Node{match}}
	text := textsearch.New(store, textsearch.DefaultConfig())
	vector := vectorsearch.New(store, vectorsearch.DefaultConfig())

	o := New(text, vector, nil, func() bool { return false }, DefaultConfig())
	results, err := o.Search(context.Background(), "webauthn", "", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, match.UUID, results[0].EntityUUID)
}

func TestSearchFusesTextAndVectorWhenReady(t *testing.T) {
	mlNode := graphtypes.Node{UUID: graphtypes.NewUUID(), Name: "machine learning"}
	cookingNode := graphtypes.Node{UUID: graphtypes.NewUUID(), Name: "cooking recipes"}
	store := &fakeStore{
		nodes: []graphtypes.Node{mlNode, cookingNode},
		embeddings: []graphtypes.EmbeddingRecord{
			{EntityUUID: mlNode.UUID, Vector: []float32{1, 0, 0}},
			{EntityUUID: cookingNode.UUID, Vector: []float32{0, 1, 0}},
		},
	}
	text := textsearch.New(store, textsearch.DefaultConfig())
	vector := vectorsearch.New(store, vectorsearch.DefaultConfig())
	embed := func(ctx context.Context, q string) ([]float32, error) { return []float32{1, 0, 0}, nil }

	o := New(text, vector, embed, func() bool { return true }, DefaultConfig())
	results, err := o.Search(context.Background(), "machine learning", "", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, mlNode.UUID, results[0].EntityUUID, "the ML node must outrank cooking on both the text and vector legs")
}
