package hybrid

import (
	"context"
	"sort"

	"github.com/kgmemory/kgmemory/internal/graphtypes"
)

// ModalityQuery pairs a modality name (e.g. "text", "code", "url") with the
// query string to run through that modality's engine.
type ModalityQuery struct {
	Modality string
	Query    string
}

// MultiModalSearch runs each modality's query through Search, weights each
// modality's contribution by modalityWeights, aggregates per-node scores,
// and returns them ordered descending, per spec.md §4.6 ("accepts a mapping
// of modality -> query string... aggregates scores per node"). A modality
// absent from modalityWeights defaults to weight 1.
func (o *Orchestrator) MultiModalSearch(ctx context.Context, queries []ModalityQuery, modalityWeights map[string]float64, groupID string, k int) ([]Fused, error) {
	scores := make(map[graphtypes.UUID]float64)

	for _, mq := range queries {
		weight := 1.0
		if w, ok := modalityWeights[mq.Modality]; ok {
			weight = w
		}
		results, err := o.Search(ctx, mq.Query, groupID, k)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			scores[r.EntityUUID] += weight * r.Score
		}
	}

	out := make([]Fused, 0, len(scores))
	for id, sc := range scores {
		out = append(out, Fused{EntityUUID: id, Score: sc})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// FacetConstraint is one facet's query-narrowing term, e.g. {Facet: "type",
// Query: "technology"}.
type FacetConstraint struct {
	Facet string
	Query string
}

// FacetedSearch runs baseQuery once per facet constraint (each constraint's
// query appended to the base query) and boosts nodes matching multiple
// facets by 1 + 0.1*|matches|, per spec.md §4.6.
func (o *Orchestrator) FacetedSearch(ctx context.Context, baseQuery string, facets []FacetConstraint, groupID string, k int) ([]Fused, error) {
	matchCount := make(map[graphtypes.UUID]int)
	bestScore := make(map[graphtypes.UUID]float64)

	for _, f := range facets {
		results, err := o.Search(ctx, baseQuery+" "+f.Query, groupID, k)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			matchCount[r.EntityUUID]++
			if r.Score > bestScore[r.EntityUUID] {
				bestScore[r.EntityUUID] = r.Score
			}
		}
	}

	out := make([]Fused, 0, len(bestScore))
	for id, sc := range bestScore {
		boost := 1 + 0.1*float64(matchCount[id])
		out = append(out, Fused{EntityUUID: id, Score: sc * boost})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}
