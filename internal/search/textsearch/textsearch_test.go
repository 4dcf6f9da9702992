package textsearch_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kgmemory/kgmemory/internal/graphtypes"
	"github.com/kgmemory/kgmemory/internal/search/textsearch"
	"github.com/kgmemory/kgmemory/internal/storage"
)

// fakeStore is a minimal storage.Store stub returning a fixed node set from
// every *ByText call, so textsearch's scoring logic can be tested without a
// real FTS engine.
type fakeStore struct {
	storage.Store
	nodes []graphtypes.Node
}

func (f *fakeStore) SearchNodesByText(ctx context.Context, query, groupID string, limit int) ([]graphtypes.Node, error) {
	if limit < len(f.nodes) {
		return f.nodes[:limit], nil
	}
	return f.nodes, nil
}

func newFixture() *fakeStore {
	return &fakeStore{nodes: []graphtypes.Node{
		{Name: "WebAuthn", Type: "technology", Summary: "an authentication standard"},
		{Name: "OAuth", Type: "technology", Summary: "an authorization framework"},
		{Name: "Chrome", Type: "browser_tool", Summary: "uses WebAuthn for passkeys"},
	}}
}

func TestSearchNodesRanksNameMatchHighest(t *testing.T) {
	store := newFixture()
	searcher := textsearch.New(store, textsearch.DefaultConfig())

	results, err := searcher.SearchNodes(context.Background(), "WebAuthn", "", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "WebAuthn", results[0].Node.Name)
}

func TestSearchNodesAppliesMinScoreThreshold(t *testing.T) {
	store := newFixture()
	cfg := textsearch.DefaultConfig()
	cfg.MinScoreThreshold = 1000
	searcher := textsearch.New(store, cfg)

	results, err := searcher.SearchNodes(context.Background(), "WebAuthn", "", 10)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestSearchNodesTruncatesToLimit(t *testing.T) {
	store := newFixture()
	cfg := textsearch.DefaultConfig()
	cfg.MinScoreThreshold = 0
	searcher := textsearch.New(store, cfg)

	results, err := searcher.SearchNodes(context.Background(), "a", "", 1)
	require.NoError(t, err)
	require.LessOrEqual(t, len(results), 1)
}

func TestSearchFuzzyMatchesNearMisspelling(t *testing.T) {
	store := newFixture()
	cfg := textsearch.DefaultConfig()
	cfg.MinScoreThreshold = 0.5
	searcher := textsearch.New(store, cfg)

	results, err := searcher.SearchFuzzy(context.Background(), "WebAuthm", "", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "WebAuthn", results[0].Node.Name)
}

func TestSearchBooleanFiltersByScore(t *testing.T) {
	store := newFixture()
	cfg := textsearch.DefaultConfig()
	cfg.MinScoreThreshold = 0
	searcher := textsearch.New(store, cfg)

	results, err := searcher.SearchBoolean(context.Background(), "WebAuthn OR OAuth", "", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
}

func TestSearchPhraseDelegatesToNearQuery(t *testing.T) {
	store := newFixture()
	cfg := textsearch.DefaultConfig()
	cfg.MinScoreThreshold = 0
	searcher := textsearch.New(store, cfg)

	results, err := searcher.SearchPhrase(context.Background(), "web authn", "", 5, 10)
	require.NoError(t, err)
	require.NotNil(t, results)
}
