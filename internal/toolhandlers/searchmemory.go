package toolhandlers

import (
	"context"
	"encoding/json"

	"github.com/kgmemory/kgmemory/internal/graphtypes"
	"github.com/kgmemory/kgmemory/internal/memoryopt"
)

// searchMemoryParams is the search_memory tool's argument shape, per
// spec.md §4.9 item 2.
type searchMemoryParams struct {
	Operation string            `json:"operation"`
	Query     string            `json:"query"`
	GroupID   string            `json:"group_id"`
	Limit     int               `json:"limit"`
	Threshold float64           `json:"threshold"`
	Verbosity string            `json:"verbosity"`
	Queries   []string          `json:"queries"`
}

func (h *Handlers) handleSearchMemory(ctx context.Context, raw json.RawMessage) (any, error) {
	var p searchMemoryParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, graphtypes.Wrap(graphtypes.KindInvalidParameters, err, "malformed search_memory arguments")
	}
	if err := validEnum("operation", p.Operation, "nodes", "facts", "episodes", "similar_concepts", "batch"); err != nil {
		return nil, err
	}
	p.Limit = clampLimit(p.Limit)
	verbosity := parseVerbosity(p.Verbosity)

	switch p.Operation {
	case "batch":
		return h.searchBatch(ctx, p, verbosity)
	case "nodes":
		return h.searchNodes(ctx, p, verbosity)
	case "facts":
		return h.searchFacts(ctx, p, verbosity)
	case "episodes":
		return h.searchEpisodes(ctx, p, verbosity)
	case "similar_concepts":
		return h.searchSimilarConcepts(ctx, p, verbosity)
	default:
		return nil, graphtypes.Newf(graphtypes.KindInvalidParameters, "unsupported operation %q", p.Operation).WithField("operation")
	}
}

// searchBatch runs the same operation for each query in p.Queries against
// nodes search, per spec.md §4.9 ("batch: run N queries against the same
// operation in one call"). A request missing queries falls back to treating
// Query as a single-element batch.
func (h *Handlers) searchBatch(ctx context.Context, p searchMemoryParams, v Verbosity) (any, error) {
	queries := p.Queries
	if len(queries) == 0 && p.Query != "" {
		queries = []string{p.Query}
	}
	if len(queries) == 0 {
		return nil, graphtypes.New(graphtypes.KindInvalidParameters, "batch requires at least one query").WithField("queries")
	}

	results := make([]any, 0, len(queries))
	for _, q := range queries {
		sub := p
		sub.Query = q
		sub.Operation = "nodes"
		r, err := h.searchNodes(ctx, sub, v)
		if err != nil {
			return nil, err
		}
		results = append(results, map[string]any{"query": q, "result": r})
	}
	return map[string]any{"batch": results}, nil
}

func (h *Handlers) searchNodes(ctx context.Context, p searchMemoryParams, v Verbosity) (any, error) {
	if err := requireNonEmpty("query", p.Query); err != nil {
		return nil, err
	}
	if err := requireMaxLength("query", p.Query, maxQueryLength); err != nil {
		return nil, err
	}

	var cacheKey string
	if h.deps.Optimizer != nil {
		cacheKey = memoryopt.QueryKey("search_nodes", map[string]any{"query": p.Query, "group_id": p.GroupID, "limit": p.Limit})
		if cached, ok := h.deps.Optimizer.GetQueryResult(cacheKey); ok {
			var out any
			if json.Unmarshal(cached, &out) == nil {
				return out, nil
			}
		}
	}

	var fused []fusedNode
	if h.deps.Hybrid != nil {
		results, err := h.deps.Hybrid.Search(ctx, p.Query, p.GroupID, p.Limit)
		if err != nil {
			return nil, err
		}
		fused = make([]fusedNode, len(results))
		for i, r := range results {
			fused[i] = fusedNode{id: r.EntityUUID, score: r.Score}
		}
	} else if h.deps.Text != nil {
		scored, err := h.deps.Text.SearchNodes(ctx, p.Query, p.GroupID, p.Limit)
		if err != nil {
			return nil, err
		}
		fused = make([]fusedNode, len(scored))
		for i, s := range scored {
			fused[i] = fusedNode{id: s.Node.UUID, score: s.Score}
		}
	}

	out := make([]map[string]any, 0, len(fused))
	for _, f := range fused {
		node, err := h.deps.Store.GetNode(ctx, f.id)
		if err != nil {
			continue
		}
		if h.deps.Optimizer != nil {
			h.deps.Optimizer.PutNode(*node)
		}
		out = append(out, formatNode(*node, f.score, v))
	}
	result := map[string]any{"operation": "nodes", "results": out}

	if h.deps.Optimizer != nil && cacheKey != "" {
		if b, err := json.Marshal(result); err == nil {
			h.deps.Optimizer.PutQueryResult(cacheKey, b)
		}
	}
	return result, nil
}

type fusedNode struct {
	id    graphtypes.UUID
	score float64
}

func (h *Handlers) searchFacts(ctx context.Context, p searchMemoryParams, v Verbosity) (any, error) {
	if err := requireNonEmpty("query", p.Query); err != nil {
		return nil, err
	}

	var edges []graphtypes.Edge
	err := h.withStorageBreaker(ctx, func(ctx context.Context) error {
		var innerErr error
		edges, innerErr = h.deps.Store.SearchEdgesByText(ctx, p.Query, p.GroupID, p.Limit)
		return innerErr
	})
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		out = append(out, formatEdge(e, v))
	}
	return map[string]any{"operation": "facts", "results": out}, nil
}

func (h *Handlers) searchEpisodes(ctx context.Context, p searchMemoryParams, v Verbosity) (any, error) {
	if err := requireNonEmpty("query", p.Query); err != nil {
		return nil, err
	}

	var episodes []graphtypes.Episode
	err := h.withStorageBreaker(ctx, func(ctx context.Context) error {
		var innerErr error
		episodes, innerErr = h.deps.Store.SearchEpisodesByContent(ctx, p.Query, p.GroupID, p.Limit)
		return innerErr
	})
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(episodes))
	for _, ep := range episodes {
		out = append(out, formatEpisode(ep, v))
	}
	return map[string]any{"operation": "episodes", "results": out}, nil
}

// searchSimilarConcepts embeds the query and ranks nodes by cosine
// similarity via the Vector Search engine, per spec.md §4.9 item 2
// ("similar_concepts: nearest nodes by embedding distance"). It requires
// the Embedding Service to be Ready; otherwise it reports NotReady rather
// than silently degrading, since there is no text fallback for a
// similarity-only query.
func (h *Handlers) searchSimilarConcepts(ctx context.Context, p searchMemoryParams, v Verbosity) (any, error) {
	if err := requireNonEmpty("query", p.Query); err != nil {
		return nil, err
	}
	if h.deps.Embed == nil || h.deps.Vector == nil {
		return nil, graphtypes.New(graphtypes.KindNotReady, "embedding engine not configured")
	}

	var qvec []float32
	err := h.withEmbeddingBreaker(ctx, func(ctx context.Context) error {
		var innerErr error
		qvec, innerErr = h.deps.Embed.Encode(ctx, p.Query)
		return innerErr
	})
	if err != nil {
		return nil, err
	}

	scored, err := h.deps.Vector.Search(ctx, qvec, graphtypes.EmbeddingNode, p.GroupID, p.Limit)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(scored))
	for _, s := range scored {
		if p.Threshold > 0 && s.Score < p.Threshold {
			continue
		}
		node, err := h.deps.Store.GetNode(ctx, s.EntityUUID)
		if err != nil {
			continue
		}
		out = append(out, formatNode(*node, s.Score, v))
	}
	return map[string]any{"operation": "similar_concepts", "results": out}, nil
}

func formatNode(n graphtypes.Node, score float64, v Verbosity) map[string]any {
	base := map[string]any{"uuid": n.UUID.String(), "name": n.Name, "type": n.Type, "score": score}
	switch v {
	case VerbositySummary:
		return base
	case VerbosityFull:
		base["summary"] = n.Summary
		base["group_id"] = n.GroupID
		base["metadata"] = n.Metadata
		base["created_at"] = n.CreatedAt
		base["updated_at"] = n.UpdatedAt
		return base
	default: // compact
		base["summary"] = n.Summary
		return base
	}
}

func formatEdge(e graphtypes.Edge, v Verbosity) map[string]any {
	base := map[string]any{
		"uuid":          e.UUID.String(),
		"source":        e.Source.String(),
		"target":        e.Target.String(),
		"relation_type": e.RelationType,
	}
	switch v {
	case VerbositySummary:
		return base
	case VerbosityFull:
		base["summary"] = e.Summary
		base["weight"] = e.Weight
		base["group_id"] = e.GroupID
		base["metadata"] = e.Metadata
		base["created_at"] = e.CreatedAt
		return base
	default:
		base["summary"] = e.Summary
		base["weight"] = e.Weight
		return base
	}
}

func formatEpisode(ep graphtypes.Episode, v Verbosity) map[string]any {
	base := map[string]any{"uuid": ep.UUID.String(), "name": ep.Name}
	switch v {
	case VerbositySummary:
		return base
	case VerbosityFull:
		base["content"] = ep.Content
		base["source"] = string(ep.Source)
		base["source_description"] = ep.SourceDescription
		base["group_id"] = ep.GroupID
		base["entity_refs"] = uuidStrings(ep.EntityRefs)
		base["edge_refs"] = uuidStrings(ep.EdgeRefs)
		base["created_at"] = ep.CreatedAt
		return base
	default:
		base["content"] = ep.Content
		base["created_at"] = ep.CreatedAt
		return base
	}
}
