// Package hybrid orchestrates textsearch and vectorsearch and fuses their
// ranked outputs, per spec.md §4.6. It degrades gracefully to text-only
// retrieval when the embedding engine is not Ready.
package hybrid

import (
	"context"
	"sort"

	"github.com/kgmemory/kgmemory/internal/graphtypes"
	"github.com/kgmemory/kgmemory/internal/search/textsearch"
	"github.com/kgmemory/kgmemory/internal/search/vectorsearch"
)

// Algorithm selects the fusion rule combining the text and vector rankings.
type Algorithm int

const (
	LinearCombination Algorithm = iota
	ReciprocalRankFusion
	BordaCount
	WeightedSum
	MaxScore
	MinScore
)

// reciprocalRankFusionK is the constant offset in ReciprocalRankFusion's
// 1/(k+rank+1) term, per spec.md §4.6.
const reciprocalRankFusionK = 60

// Config tunes the Orchestrator.
type Config struct {
	Algorithm  Algorithm
	TextWeight float64 // normalized so TextWeight + VectorWeight = 1
}

// DefaultConfig matches spec.md §4.6.
func DefaultConfig() Config {
	return Config{Algorithm: LinearCombination, TextWeight: 0.5}
}

// ParseAlgorithm maps the TOML [hybrid_search].algorithm string onto an
// Algorithm, defaulting to LinearCombination for an unrecognized or empty
// value.
func ParseAlgorithm(s string) Algorithm {
	switch s {
	case "reciprocal_rank_fusion":
		return ReciprocalRankFusion
	case "borda_count":
		return BordaCount
	case "weighted_sum":
		return WeightedSum
	case "max_score":
		return MaxScore
	case "min_score":
		return MinScore
	default:
		return LinearCombination
	}
}

// Fused is one result of a fused search: the node's identity plus its
// combined score.
type Fused struct {
	EntityUUID graphtypes.UUID
	Score      float64
}

// Orchestrator runs Text Search and Vector Search and fuses their outputs.
type Orchestrator struct {
	text   *textsearch.Searcher
	vector *vectorsearch.Searcher
	embed  EmbedFunc
	ready  ReadyFunc
	cfg    Config
}

// EmbedFunc turns a query string into its embedding vector.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// ReadyFunc reports whether the embedding engine is Ready.
type ReadyFunc func() bool

// New builds an Orchestrator. embed/ready are small closures rather than an
// interface so callers don't need to satisfy the embedding package's full
// Engine surface just to drive hybrid search.
func New(text *textsearch.Searcher, vector *vectorsearch.Searcher, embed EmbedFunc, ready ReadyFunc, cfg Config) *Orchestrator {
	return &Orchestrator{text: text, vector: vector, embed: embed, ready: ready, cfg: cfg}
}

// normalizedWeights returns (textWeight, vectorWeight) summing to 1.
func (o *Orchestrator) normalizedWeights() (float64, float64) {
	w := o.cfg.TextWeight
	if w < 0 {
		w = 0
	}
	if w > 1 {
		w = 1
	}
	return w, 1 - w
}

// Search runs the configured fusion algorithm over a text query and its
// embedding, deduplicating by node UUID before fusing, per spec.md §4.6.
// When the embedding engine is not Ready, it degrades to text-only.
func (o *Orchestrator) Search(ctx context.Context, query, groupID string, k int) ([]Fused, error) {
	textResults, err := o.text.SearchNodes(ctx, query, groupID, k)
	if err != nil {
		return nil, err
	}
	textRanked := dedupByNode(textResults)

	if o.ready == nil || !o.ready() {
		return rankToFused(textRanked), nil
	}

	qvec, err := o.embed(ctx, query)
	if err != nil {
		return rankToFused(textRanked), nil
	}
	vectorResults, err := o.vector.Search(ctx, qvec, graphtypes.EmbeddingNode, groupID, k)
	if err != nil {
		return rankToFused(textRanked), nil
	}

	return o.fuse(textRanked, vectorResults), nil
}

func dedupByNode(scored []textsearch.Scored) []graphtypes.UUID {
	seen := make(map[graphtypes.UUID]bool, len(scored))
	out := make([]graphtypes.UUID, 0, len(scored))
	for _, s := range scored {
		if seen[s.Node.UUID] {
			continue
		}
		seen[s.Node.UUID] = true
		out = append(out, s.Node.UUID)
	}
	return out
}

func rankToFused(ranked []graphtypes.UUID) []Fused {
	out := make([]Fused, len(ranked))
	for i, id := range ranked {
		out[i] = Fused{EntityUUID: id, Score: 1 - float64(i)/float64(len(ranked)+1)}
	}
	return out
}

// fuse combines the text ranking (node UUIDs, already rank-ordered) with
// the vector ranking using the configured algorithm.
func (o *Orchestrator) fuse(textRanked []graphtypes.UUID, vectorRanked []vectorsearch.Scored) []Fused {
	textRank := rankIndex(textRanked)
	vecIDs := make([]graphtypes.UUID, len(vectorRanked))
	for i, v := range vectorRanked {
		vecIDs[i] = v.EntityUUID
	}
	vecRank := rankIndex(vecIDs)

	union := unionIDs(textRanked, vecIDs)
	wt, wv := o.normalizedWeights()
	if o.cfg.Algorithm == LinearCombination || o.cfg.Algorithm == WeightedSum {
		// Fusion monotonicity (spec.md §8): at wv==0 the fused result must
		// equal the text-only result in both set and order, and symmetrically
		// at wt==0 for the vector-only side. Fusing over the full union would
		// let a zero-weighted leg's exclusive entries leak into the result
		// set with a score of 0, which is in-set but not text-only (or
		// vector-only) equivalent.
		switch {
		case wv == 0:
			union = textRanked
		case wt == 0:
			union = vecIDs
		}
	}

	scores := make(map[graphtypes.UUID]float64, len(union))
	for _, id := range union {
		tRank, inText := textRank[id]
		vRank, inVec := vecRank[id]

		switch o.cfg.Algorithm {
		case MinScore:
			if !inText || !inVec {
				continue
			}
			scores[id] = min(rankScore(tRank, len(textRanked)), rankScore(vRank, len(vecIDs)))
		case MaxScore:
			scores[id] = max(
				rankScoreOr(inText, tRank, len(textRanked)),
				rankScoreOr(inVec, vRank, len(vecIDs)),
			)
		case ReciprocalRankFusion:
			var s float64
			if inText {
				s += 1 / float64(reciprocalRankFusionK+tRank+1)
			}
			if inVec {
				s += 1 / float64(reciprocalRankFusionK+vRank+1)
			}
			scores[id] = s
		case BordaCount:
			var s float64
			if inText {
				s += float64(len(textRanked) - tRank)
			}
			if inVec {
				s += float64(len(vecIDs) - vRank)
			}
			scores[id] = s
		default: // LinearCombination, WeightedSum
			scores[id] = wt*rankScoreOr(inText, tRank, len(textRanked)) + wv*rankScoreOr(inVec, vRank, len(vecIDs))
		}
	}

	out := make([]Fused, 0, len(scores))
	for id, sc := range scores {
		out = append(out, Fused{EntityUUID: id, Score: sc})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func rankIndex(ids []graphtypes.UUID) map[graphtypes.UUID]int {
	idx := make(map[graphtypes.UUID]int, len(ids))
	for i, id := range ids {
		idx[id] = i
	}
	return idx
}

func rankScore(rank, listLen int) float64 {
	if listLen == 0 {
		return 0
	}
	return 1 - float64(rank)/float64(listLen)
}

func rankScoreOr(present bool, rank, listLen int) float64 {
	if !present {
		return 0
	}
	return rankScore(rank, listLen)
}

func unionIDs(a, b []graphtypes.UUID) []graphtypes.UUID {
	seen := make(map[graphtypes.UUID]bool, len(a)+len(b))
	out := make([]graphtypes.UUID, 0, len(a)+len(b))
	for _, id := range a {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range b {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
