package toolhandlers

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/kgmemory/kgmemory/internal/graphtypes"
	"github.com/kgmemory/kgmemory/internal/search/vectorsearch"
)

// analyzePatternsParams is the analyze_patterns tool's argument shape, per
// spec.md §4.9 item 3.
type analyzePatternsParams struct {
	Operation string `json:"operation"`
	GroupID   string `json:"group_id"`
	K         int    `json:"k"`
	Limit     int    `json:"limit"`
}

const defaultClusterCount = 5

func (h *Handlers) handleAnalyzePatterns(ctx context.Context, raw json.RawMessage) (any, error) {
	var p analyzePatternsParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, graphtypes.Wrap(graphtypes.KindInvalidParameters, err, "malformed analyze_patterns arguments")
	}
	if err := validEnum("operation", p.Operation, "centrality", "clusters", "temporal"); err != nil {
		return nil, err
	}
	p.Limit = clampLimit(p.Limit)

	switch p.Operation {
	case "centrality":
		return h.analyzeCentrality(ctx, p)
	case "clusters":
		return h.analyzeClusters(ctx, p)
	case "temporal":
		return h.analyzeTemporal(ctx, p)
	default:
		return nil, graphtypes.Newf(graphtypes.KindInvalidParameters, "unsupported operation %q", p.Operation).WithField("operation")
	}
}

// analyzeCentrality computes plain degree centrality over the group's
// edges, per spec.md §4.5 ("centrality: degree centrality over the
// persisted edge set, computed on demand rather than maintained
// incrementally").
func (h *Handlers) analyzeCentrality(ctx context.Context, p analyzePatternsParams) (any, error) {
	var edges []graphtypes.Edge
	err := h.withStorageBreaker(ctx, func(ctx context.Context) error {
		var innerErr error
		edges, innerErr = h.deps.Store.AllEdges(ctx, p.GroupID)
		return innerErr
	})
	if err != nil {
		return nil, err
	}

	degree := make(map[graphtypes.UUID]int)
	for _, e := range edges {
		degree[e.Source]++
		degree[e.Target]++
	}

	type ranked struct {
		id     graphtypes.UUID
		degree int
	}
	rows := make([]ranked, 0, len(degree))
	for id, d := range degree {
		rows = append(rows, ranked{id, d})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].degree != rows[j].degree {
			return rows[i].degree > rows[j].degree
		}
		return rows[i].id.String() < rows[j].id.String()
	})
	if len(rows) > p.Limit {
		rows = rows[:p.Limit]
	}

	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		entry := map[string]any{"uuid": r.id.String(), "degree": r.degree}
		if node, err := h.deps.Store.GetNode(ctx, r.id); err == nil {
			entry["name"] = node.Name
			entry["type"] = node.Type
		}
		out = append(out, entry)
	}
	return map[string]any{"operation": "centrality", "results": out}, nil
}

// analyzeClusters runs k-means over every node's embedding and flags
// outliers, per spec.md §4.5. It requires node embeddings to already exist
// (written during add_memory); nodes without one are excluded rather than
// failing the whole analysis.
func (h *Handlers) analyzeClusters(ctx context.Context, p analyzePatternsParams) (any, error) {
	k := p.K
	if k <= 0 {
		k = defaultClusterCount
	}

	var records []graphtypes.EmbeddingRecord
	err := h.withStorageBreaker(ctx, func(ctx context.Context) error {
		var innerErr error
		records, innerErr = h.deps.Store.AllEmbeddings(ctx, graphtypes.EmbeddingNode, p.GroupID)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return map[string]any{"operation": "clusters", "clusters": []any{}, "outliers": []any{}}, nil
	}

	ids := make([]graphtypes.UUID, len(records))
	vectors := make([][]float32, len(records))
	for i, r := range records {
		ids[i] = r.EntityUUID
		vectors[i] = r.Vector
	}

	clusters := vectorsearch.KMeans(ids, vectors, k, 50)
	outliers := vectorsearch.DetectOutliers(ids, vectors, clusters, 2.0)

	clusterOut := make([]map[string]any, 0, len(clusters))
	for i, cl := range clusters {
		clusterOut = append(clusterOut, map[string]any{
			"cluster_id": i,
			"size":       len(cl.Members),
			"members":    uuidStrings(cl.Members),
		})
	}
	outlierOut := make([]map[string]any, 0, len(outliers))
	for _, o := range outliers {
		outlierOut = append(outlierOut, map[string]any{"uuid": o.EntityUUID.String(), "distance": o.Distance})
	}
	return map[string]any{"operation": "clusters", "clusters": clusterOut, "outliers": outlierOut}, nil
}

// analyzeTemporal reports episode ingestion activity over the group's most
// recent episodes, per spec.md §4.5 ("temporal: recent ingestion activity,
// bucketed").
func (h *Handlers) analyzeTemporal(ctx context.Context, p analyzePatternsParams) (any, error) {
	var episodes []graphtypes.Episode
	err := h.withStorageBreaker(ctx, func(ctx context.Context) error {
		var innerErr error
		episodes, innerErr = h.deps.Store.GetRecentEpisodes(ctx, p.GroupID, p.Limit)
		return innerErr
	})
	if err != nil {
		return nil, err
	}

	buckets := make(map[string]int)
	for _, ep := range episodes {
		day := ep.CreatedAt.Format("2006-01-02")
		buckets[day]++
	}

	days := make([]string, 0, len(buckets))
	for d := range buckets {
		days = append(days, d)
	}
	sort.Strings(days)

	out := make([]map[string]any, 0, len(days))
	for _, d := range days {
		out = append(out, map[string]any{"date": d, "episode_count": buckets[d]})
	}
	return map[string]any{"operation": "temporal", "buckets": out, "total_episodes": len(episodes)}, nil
}
