package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kgmemory/kgmemory/internal/graphtypes"
	"github.com/kgmemory/kgmemory/internal/storage/sqlite"
)

func openTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.Open(":memory:", sqlite.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestInsertAndGetNodeRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	n := &graphtypes.Node{
		Name:     "Patchright",
		Type:     "tool",
		Summary:  "a browser automation framework",
		GroupID:  "g1",
		Metadata: map[string]any{"confidence": 0.9},
	}
	id, err := st.InsertNode(ctx, n)
	require.NoError(t, err)
	require.False(t, id.IsNil())

	got, err := st.GetNode(ctx, id)
	require.NoError(t, err)
	require.Equal(t, n.Name, got.Name)
	require.Equal(t, n.Type, got.Type)
	require.Equal(t, n.Summary, got.Summary)
	require.Equal(t, n.GroupID, got.GroupID)
	require.False(t, got.UpdatedAt.Before(got.CreatedAt))
}

func TestInsertNodeDedup(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	n1 := &graphtypes.Node{Name: "Chrome", Type: "tool", GroupID: "g1"}
	id1, err := st.InsertNode(ctx, n1)
	require.NoError(t, err)

	n2 := &graphtypes.Node{Name: "Chrome", Type: "tool", GroupID: "g1", Summary: "different summary"}
	id2, err := st.InsertNode(ctx, n2)
	require.NoError(t, err)

	require.Equal(t, id1, id2, "inserting the same {name,type,group} must return the existing uuid")

	count, err := st.CountNodes(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestSearchNodesByTextFindsSubstringOfName(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	n := &graphtypes.Node{Name: "WebAuthn", Type: "technology", GroupID: "g1"}
	_, err := st.InsertNode(ctx, n)
	require.NoError(t, err)

	results, err := st.SearchNodesByText(ctx, "WebAuthn", "", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "WebAuthn", results[0].Name)
}

func TestDeleteEpisodeCascades(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	n, err := st.InsertNode(ctx, &graphtypes.Node{Name: "A", Type: "t", GroupID: "g"})
	require.NoError(t, err)

	ep := &graphtypes.Episode{
		Name:       "Meeting",
		Content:    "We discussed A",
		Source:     graphtypes.SourceText,
		GroupID:    "g",
		EntityRefs: []graphtypes.UUID{n},
		Embedding:  []float32{0.1, 0.2, 0.3},
	}
	require.NoError(t, st.InsertEpisode(ctx, ep))

	require.NoError(t, st.DeleteEpisode(ctx, ep.UUID))

	_, err = st.GetEpisode(ctx, ep.UUID)
	require.Error(t, err)
	require.Equal(t, graphtypes.KindNotFound, graphtypes.KindOf(err))

	_, err = st.GetEmbedding(ctx, ep.UUID, graphtypes.EmbeddingEpisode)
	require.Error(t, err)
	require.Equal(t, graphtypes.KindNotFound, graphtypes.KindOf(err))

	// The referenced node must remain reachable.
	node, err := st.GetNode(ctx, n)
	require.NoError(t, err)
	require.Equal(t, "A", node.Name)
}

func TestDeleteEpisodeNotFound(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	err := st.DeleteEpisode(ctx, graphtypes.NewUUID())
	require.Error(t, err)
	require.Equal(t, graphtypes.KindNotFound, graphtypes.KindOf(err))
}

func TestEdgeReferentialIntegrity(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	_, err := st.InsertEdge(ctx, &graphtypes.Edge{
		Source:       graphtypes.NewUUID(),
		Target:       graphtypes.NewUUID(),
		RelationType: "accesses",
		GroupID:      "g",
	})
	require.Error(t, err)
	require.Equal(t, graphtypes.KindConflict, graphtypes.KindOf(err))
}

func TestEmbeddingVectorRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	id := graphtypes.NewUUID()
	vec := []float32{0.1, -0.2, 0.3, 0.4}
	require.NoError(t, st.StoreEmbedding(ctx, id, graphtypes.EmbeddingNode, vec))

	rec, err := st.GetEmbedding(ctx, id, graphtypes.EmbeddingNode)
	require.NoError(t, err)
	require.Equal(t, len(vec), rec.Dimension)
	for i := range vec {
		require.InDelta(t, vec[i], rec.Vector[i], 1e-6)
	}
}

func TestClearAll(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	_, err := st.InsertNode(ctx, &graphtypes.Node{Name: "A", Type: "t", GroupID: "g"})
	require.NoError(t, err)

	require.NoError(t, st.ClearAll(ctx))

	count, err := st.CountNodes(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), count)
}
