package textsearch

import (
	"context"
	"fmt"
	"strings"
)

// SearchPhrase runs a proximity-bounded phrase query: terms must all appear
// within k tokens of each other, expressed as FTS5's NEAR(terms, k)
// operator, per spec.md §4.4 ("phrase search uses a proximity predicate").
func (s *Searcher) SearchPhrase(ctx context.Context, phrase, groupID string, proximity, limit int) ([]Scored, error) {
	terms := strings.Fields(phrase)
	if len(terms) == 0 {
		return nil, nil
	}
	nearQuery := fmt.Sprintf("NEAR(%s, %d)", strings.Join(terms, " "), proximity)

	candidates, err := s.store.SearchNodesByText(ctx, nearQuery, groupID, 2*limit)
	if err != nil {
		return nil, err
	}

	scored := make([]Scored, 0, len(candidates))
	for _, n := range candidates {
		sc := s.rescore(phrase, n)
		if sc < s.cfg.MinScoreThreshold {
			continue
		}
		scored = append(scored, Scored{Node: n, Score: sc})
	}
	sortByScoreDesc(scored)
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}
