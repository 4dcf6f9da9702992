// Package vectorsearch implements similarity retrieval over stored
// embedding vectors: configurable distance metrics, an approximate
// stride-sampling mode, and offline k-means clustering / outlier detection,
// per spec.md §4.5.
package vectorsearch

import (
	"context"
	"math"
	"sort"

	"github.com/kgmemory/kgmemory/internal/graphtypes"
	"github.com/kgmemory/kgmemory/internal/storage"
)

// Metric selects the distance function used to score candidates against a
// query vector.
type Metric int

const (
	MetricCosine Metric = iota
	MetricEuclidean
	MetricDotProduct
	MetricManhattan
)

// Config tunes the Searcher.
type Config struct {
	Metric              Metric
	SimilarityThreshold float64
	Approximate         bool
}

// DefaultConfig matches spec.md §4.5's defaults.
func DefaultConfig() Config {
	return Config{Metric: MetricCosine, SimilarityThreshold: 0.0, Approximate: false}
}

// ParseMetric maps the TOML [vector_search].metric string onto a Metric,
// defaulting to MetricCosine for an unrecognized or empty value.
func ParseMetric(s string) Metric {
	switch s {
	case "euclidean":
		return MetricEuclidean
	case "dot_product":
		return MetricDotProduct
	case "manhattan":
		return MetricManhattan
	default:
		return MetricCosine
	}
}

// Scored pairs an entity identifier with its similarity to the query.
type Scored struct {
	EntityUUID graphtypes.UUID
	Score      float64
}

// Searcher runs vector similarity queries against a storage.Store.
type Searcher struct {
	store storage.Store
	cfg   Config
}

// New returns a Searcher over store.
func New(store storage.Store, cfg Config) *Searcher {
	return &Searcher{store: store, cfg: cfg}
}

// Search scans every embedding of kind in groupID, scores it against query,
// and returns the top-k results above cfg.SimilarityThreshold, per spec.md
// §4.5. When cfg.Approximate is set, the candidate pool is stride-sampled
// before scoring, trading recall for latency.
func (s *Searcher) Search(ctx context.Context, query []float32, kind graphtypes.EmbeddingKind, groupID string, k int) ([]Scored, error) {
	records, err := s.store.AllEmbeddings(ctx, kind, groupID)
	if err != nil {
		return nil, err
	}
	if s.cfg.Approximate {
		records = strideSample(records, k)
	}

	out := make([]Scored, 0, len(records))
	for _, rec := range records {
		sim := s.similarity(query, rec.Vector)
		if sim < s.cfg.SimilarityThreshold {
			continue
		}
		out = append(out, Scored{EntityUUID: rec.EntityUUID, Score: sim})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// similarity converts the configured metric's raw distance/score into a
// comparable similarity value where higher is more similar.
func (s *Searcher) similarity(a, b []float32) float64 {
	switch s.cfg.Metric {
	case MetricEuclidean:
		return 1 / (1 + euclideanDistance(a, b))
	case MetricDotProduct:
		return dotProduct(a, b)
	case MetricManhattan:
		return 1 / (1 + manhattanDistance(a, b))
	default:
		return cosineSimilarity(a, b)
	}
}

// strideSample samples the candidate pool at stride n/max(k*10, n/4), per
// spec.md §4.5's approximate mode.
func strideSample(records []graphtypes.EmbeddingRecord, k int) []graphtypes.EmbeddingRecord {
	n := len(records)
	if n == 0 {
		return records
	}
	denom := k * 10
	if alt := n / 4; alt > denom {
		denom = alt
	}
	if denom <= 0 {
		denom = 1
	}
	stride := n / denom
	if stride <= 1 {
		return records
	}
	out := make([]graphtypes.EmbeddingRecord, 0, n/stride+1)
	for i := 0; i < n; i += stride {
		out = append(out, records[i])
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func dotProduct(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func euclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.MaxFloat64
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func manhattanDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.MaxFloat64
	}
	var sum float64
	for i := range a {
		sum += math.Abs(float64(a[i]) - float64(b[i]))
	}
	return sum
}
