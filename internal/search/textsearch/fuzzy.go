package textsearch

import (
	"context"
	"strings"

	"github.com/agnivade/levenshtein"
)

// SearchFuzzy widens the primary FTS pass (4 x limit candidates for the
// enhanced query) then re-ranks the candidates' names by a similarity derived
// from Levenshtein distance normalized by the longer string's length. No
// spelling variants of the query are generated: only nodes the FTS pass
// returns for the query as typed are re-ranked.
func (s *Searcher) SearchFuzzy(ctx context.Context, query, groupID string, limit int) ([]Scored, error) {
	candidates, err := s.store.SearchNodesByText(ctx, s.enhanceQuery(query), groupID, 4*limit)
	if err != nil {
		return nil, err
	}

	scored := make([]Scored, 0, len(candidates))
	for _, n := range candidates {
		sim := fuzzySimilarity(query, n.Name)
		if sim < s.cfg.MinScoreThreshold {
			continue
		}
		scored = append(scored, Scored{Node: n, Score: sim})
	}
	sortByScoreDesc(scored)
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// fuzzySimilarity converts an edit distance into a [0,1] similarity: 1 means
// identical, 0 means completely dissimilar relative to the longer string's
// length.
func fuzzySimilarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(maxLen)
}
