package extractor_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kgmemory/kgmemory/internal/extractor"
	"github.com/kgmemory/kgmemory/internal/graphtypes"
)

func names(entities []extractor.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.Name
	}
	return out
}

func TestExtractFromTextFindsKnownEntityTypes(t *testing.T) {
	x := extractor.New(extractor.DefaultEntityConfig(), extractor.DefaultRelationshipConfig())
	content := "Using Patchright with Chrome for WebAuthn testing at https://example.com"

	res := x.Extract(content, graphtypes.SourceText, "test")
	found := names(res.Entities)

	require.Contains(t, found, "Patchright")
	require.Contains(t, found, "Chrome")
	require.Contains(t, found, "WebAuthn")
	require.Contains(t, found, "https://example.com")
}

func TestExtractFromJSONRecognizesKeysAndStringValues(t *testing.T) {
	x := extractor.New(extractor.DefaultEntityConfig(), extractor.DefaultRelationshipConfig())
	content := `{"browser": "Patchright", "url": "https://example.com", "id": "1234"}`

	res := x.Extract(content, graphtypes.SourceJSON, "test")
	found := names(res.Entities)

	require.Contains(t, found, "browser")
	require.Contains(t, found, "Patchright")
	require.NotContains(t, found, "id", "id is in the meaningful-key stop list")
}

func TestExtractDeduplicatesByNameAndType(t *testing.T) {
	x := extractor.New(extractor.DefaultEntityConfig(), extractor.DefaultRelationshipConfig())
	content := "Chrome Chrome Chrome is a browser. Chrome again."

	res := x.Extract(content, graphtypes.SourceText, "test")
	count := 0
	for _, e := range res.Entities {
		if e.Name == "Chrome" && e.Type == "browser_tool" {
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestExtractTruncatesToMaxEntitiesPerText(t *testing.T) {
	cfg := extractor.DefaultEntityConfig()
	cfg.MaxEntitiesPerText = 2
	x := extractor.New(cfg, extractor.DefaultRelationshipConfig())

	content := "Chrome Firefox Safari Edge Chromium WebAuthn OAuth SAML"
	res := x.Extract(content, graphtypes.SourceText, "test")
	require.LessOrEqual(t, len(res.Entities), 2)
}

func TestCoOccurrenceRelationshipWithinWindow(t *testing.T) {
	x := extractor.New(extractor.DefaultEntityConfig(), extractor.DefaultRelationshipConfig())
	content := "WebAuthn testing with Chrome browser"

	res := x.Extract(content, graphtypes.SourceText, "test")
	var sawCoOccurs bool
	for _, r := range res.Relationships {
		if r.RelationType == "co_occurs_with" {
			sawCoOccurs = true
		}
	}
	require.True(t, sawCoOccurs)
}

func TestSemanticUsageRelationship(t *testing.T) {
	relCfg := extractor.DefaultRelationshipConfig()
	relCfg.MinConfidence = 0
	x := extractor.New(extractor.DefaultEntityConfig(), relCfg)

	content := "Patchright uses Chrome for automation"
	res := x.Extract(content, graphtypes.SourceText, "test")

	var sawUses bool
	for _, r := range res.Relationships {
		if r.RelationType == "uses" {
			sawUses = true
		}
	}
	require.True(t, sawUses)
}

func TestDomainBrowserAccessesURLRelationship(t *testing.T) {
	relCfg := extractor.DefaultRelationshipConfig()
	relCfg.MinConfidence = 0
	x := extractor.New(extractor.DefaultEntityConfig(), relCfg)

	content := "Chrome loaded https://example.com successfully"
	res := x.Extract(content, graphtypes.SourceText, "test")

	var sawAccesses bool
	for _, r := range res.Relationships {
		if r.RelationType == "accesses" && r.SourceEntity == "Chrome" {
			sawAccesses = true
		}
	}
	require.True(t, sawAccesses)
}

func TestRelationshipsTruncatedToMax(t *testing.T) {
	relCfg := extractor.DefaultRelationshipConfig()
	relCfg.MinConfidence = 0
	relCfg.MaxRelationshipsPerText = 1
	x := extractor.New(extractor.DefaultEntityConfig(), relCfg)

	content := "Chrome Firefox Safari Edge all accessed https://example.com and https://example.org"
	res := x.Extract(content, graphtypes.SourceText, "test")
	require.LessOrEqual(t, len(res.Relationships), 1)
}

func TestMinEntityLengthFiltersShortEntities(t *testing.T) {
	cfg := extractor.DefaultEntityConfig()
	cfg.MinEntityLength = 10
	x := extractor.New(cfg, extractor.DefaultRelationshipConfig())

	content := "Go is great"
	res := x.Extract(content, graphtypes.SourceText, "test")
	for _, e := range res.Entities {
		require.GreaterOrEqual(t, len(e.Name), 10)
	}
}
