// Package textsearch implements lexical retrieval over the persistent
// graph: query enhancement, an FTS-backed primary pass, field-weighted
// re-scoring, plus the phrase/fuzzy/boolean query variants, per spec.md
// §4.4.
package textsearch

import (
	"context"
	"sort"
	"strings"

	"github.com/kgmemory/kgmemory/internal/graphtypes"
	"github.com/kgmemory/kgmemory/internal/storage"
)

// FieldWeights tunes the re-scoring pass. Defaults match spec.md §4.4.
type FieldWeights struct {
	Name    float64
	Type    float64
	Summary float64
}

// DefaultFieldWeights matches the reference tuning.
func DefaultFieldWeights() FieldWeights {
	return FieldWeights{Name: 2.0, Type: 1.5, Summary: 1.2}
}

// Config tunes the Searcher.
type Config struct {
	Weights           FieldWeights
	MinScoreThreshold float64
	CaseInsensitive   bool
	WildcardMode      bool
}

// DefaultConfig matches the reference tuning.
func DefaultConfig() Config {
	return Config{
		Weights:           DefaultFieldWeights(),
		MinScoreThreshold: 0.1,
		CaseInsensitive:   true,
		WildcardMode:      true,
	}
}

// Scored pairs a node with its re-scored relevance.
type Scored struct {
	Node  graphtypes.Node
	Score float64
}

// Searcher runs lexical retrieval against a storage.Store.
type Searcher struct {
	store storage.Store
	cfg   Config
}

// New returns a Searcher over store.
func New(store storage.Store, cfg Config) *Searcher {
	return &Searcher{store: store, cfg: cfg}
}

// SearchNodes runs the query-enhancement -> primary-pass -> re-score ->
// threshold pipeline described in spec.md §4.4.
func (s *Searcher) SearchNodes(ctx context.Context, query, groupID string, limit int) ([]Scored, error) {
	enhanced := s.enhanceQuery(query)

	candidates, err := s.store.SearchNodesByText(ctx, enhanced, groupID, 2*limit)
	if err != nil {
		return nil, err
	}

	scored := make([]Scored, 0, len(candidates))
	for _, n := range candidates {
		sc := s.rescore(query, n)
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

// enhanceQuery lowercases (if configured), appends a trailing wildcard when
// the query has none and wildcard mode is enabled, per spec.md §4.4 step 1.
// Stemming is intentionally a no-op: the reference implementation ships no
// stemmer dependency and the retrieved example pack carries none either.
func (s *Searcher) enhanceQuery(query string) string {
	q := strings.TrimSpace(query)
	if s.cfg.CaseInsensitive {
		q = strings.ToLower(q)
	}
	if s.cfg.WildcardMode && !strings.ContainsAny(q, "*\"") {
		q += "*"
	}
	return q
}

// rescore computes a term-match score against name/type/summary fields with
// configured weights plus a position bonus, per spec.md §4.4 step 3.
func (s *Searcher) rescore(query string, n graphtypes.Node) float64 {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return 0
	}
	var total float64
	total += fieldScore(terms, n.Name) * s.cfg.Weights.Name
	total += fieldScore(terms, n.Type) * s.cfg.Weights.Type
	total += fieldScore(terms, n.Summary) * s.cfg.Weights.Summary
	return total / float64(len(terms))
}

// fieldScore sums, per term, 1 if present plus a position bonus of
// 1 - pos/len for the term's earliest occurrence.
func fieldScore(terms []string, field string) float64 {
	if field == "" {
		return 0
	}
	lower := strings.ToLower(field)
	var score float64
	for _, t := range terms {
		pos := strings.Index(lower, t)
		if pos < 0 {
			continue
		}
		bonus := 1.0 - float64(pos)/float64(len(lower))
		score += 1.0 + bonus
	}
	return score
}

func sortByScoreDesc(scored []Scored) {
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
}
