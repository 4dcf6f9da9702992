package textsearch

import (
	"context"
	"strings"
)

// SearchBoolean translates an AND/OR/NOT expression into FTS5 boolean syntax
// and delegates to the primary pass, per spec.md §4.4 ("boolean search
// translates AND/OR/NOT to FTS syntax"). FTS5 already uses AND/OR/NOT as
// keywords, so translation is a case normalization plus term quoting: each
// bare term is quoted so punctuation inside it can't be mistaken for FTS5
// operator syntax, while the boolean keywords themselves pass through
// unquoted.
func (s *Searcher) SearchBoolean(ctx context.Context, expr, groupID string, limit int) ([]Scored, error) {
	ftsExpr := toFTSBoolean(expr)

	candidates, err := s.store.SearchNodesByText(ctx, ftsExpr, groupID, 2*limit)
	if err != nil {
		return nil, err
	}

	plainTerms := strings.Fields(strings.ToLower(stripBooleanKeywords(expr)))
	scored := make([]Scored, 0, len(candidates))
	for _, n := range candidates {
		sc := fieldScore(plainTerms, n.Name)*s.cfg.Weights.Name +
			fieldScore(plainTerms, n.Type)*s.cfg.Weights.Type +
			fieldScore(plainTerms, n.Summary)*s.cfg.Weights.Summary
		if len(plainTerms) > 0 {
			sc /= float64(len(plainTerms))
		}
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

var booleanKeywords = map[string]bool{"AND": true, "OR": true, "NOT": true}

func toFTSBoolean(expr string) string {
	fields := strings.Fields(expr)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		upper := strings.ToUpper(f)
		if booleanKeywords[upper] {
			out = append(out, upper)
			continue
		}
		out = append(out, `"`+strings.ReplaceAll(f, `"`, `""`)+`"`)
	}
	return strings.Join(out, " ")
}

func stripBooleanKeywords(expr string) string {
	fields := strings.Fields(expr)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if booleanKeywords[strings.ToUpper(f)] {
			continue
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}
