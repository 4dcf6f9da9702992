package toolhandlers

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/kgmemory/kgmemory/internal/extractor"
	"github.com/kgmemory/kgmemory/internal/graphtypes"
)

// addMemoryParams is the add_memory tool's argument shape, per spec.md
// §4.9 item 1.
type addMemoryParams struct {
	Name              string `json:"name"`
	EpisodeBody       string `json:"episode_body"`
	Source            string `json:"source"`
	SourceDescription string `json:"source_description"`
	GroupID           string `json:"group_id"`
	Verbosity         string `json:"verbosity"`
}

// addMemoryResult is what the tool returns on success.
type addMemoryResult struct {
	EpisodeUUID   string   `json:"episode_uuid"`
	EntityCount   int      `json:"entity_count"`
	EdgeCount     int      `json:"edge_count"`
	EntityUUIDs   []string `json:"entity_uuids,omitempty"`
	EdgeUUIDs     []string `json:"edge_uuids,omitempty"`
	EntityNames   []string `json:"entity_names,omitempty"`
}

func (h *Handlers) handleAddMemory(ctx context.Context, raw json.RawMessage) (any, error) {
	var p addMemoryParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, graphtypes.Wrap(graphtypes.KindInvalidParameters, err, "malformed add_memory arguments")
	}
	if err := requireNonEmpty("name", p.Name); err != nil {
		return nil, err
	}
	if err := requireMaxLength("name", p.Name, maxNameLength); err != nil {
		return nil, err
	}
	if err := requireNonEmpty("episode_body", p.EpisodeBody); err != nil {
		return nil, err
	}
	if err := requireMaxLength("episode_body", p.EpisodeBody, maxContentLength); err != nil {
		return nil, err
	}
	if p.Source == "" {
		p.Source = string(graphtypes.SourceText)
	}
	if err := validEnum("source", p.Source, string(graphtypes.SourceText), string(graphtypes.SourceJSON), string(graphtypes.SourceMessage)); err != nil {
		return nil, err
	}

	result, err := h.ingest(ctx, p)
	if err != nil {
		return nil, err
	}

	verbosity := parseVerbosity(p.Verbosity)
	return formatAddMemoryResult(result, verbosity), nil
}

// ingest runs the full add_memory dataflow from spec.md §2: Extractor ->
// Storage (nodes/edges/episode) -> Embedding Service -> Storage (vectors)
// -> Memory Optimizer (cache invalidation). The happens-before chain in
// spec.md §5 is realized by the order of these steps, each awaited before
// the next begins.
func (h *Handlers) ingest(ctx context.Context, p addMemoryParams) (addMemoryResult, error) {
	sourceKind := graphtypes.SourceKind(p.Source)
	extracted := h.deps.Extract.Extract(p.EpisodeBody, sourceKind, p.Name)

	nodeUUIDs, err := h.insertEntities(ctx, extracted.Entities, p.GroupID)
	if err != nil {
		return addMemoryResult{}, err
	}

	edgeUUIDs, err := h.insertRelationships(ctx, extracted.Relationships, nodeUUIDs, p.GroupID)
	if err != nil {
		return addMemoryResult{}, err
	}
	edgeUUIDStrings := uuidStrings(edgeUUIDs)

	entityUUIDs := sortedValues(nodeUUIDs)
	episode := &graphtypes.Episode{
		UUID:              graphtypes.NewUUID(),
		Name:              p.Name,
		Content:           p.EpisodeBody,
		Source:            sourceKind,
		SourceDescription: p.SourceDescription,
		GroupID:           p.GroupID,
		EntityRefs:        entityUUIDs,
		EdgeRefs:          edgeUUIDs,
	}
	if err := h.withStorageBreaker(ctx, func(ctx context.Context) error {
		return h.deps.Store.InsertEpisode(ctx, episode)
	}); err != nil {
		return addMemoryResult{}, err
	}

	if h.deps.Embed != nil {
		if vec, err := h.embedEpisode(ctx, episode); err == nil {
			episode.Embedding = vec
		} else {
			h.log.Warn("toolhandlers: episode embedding failed, ingest still succeeded", "episode", episode.UUID, "error", err)
		}
	}

	if h.deps.Optimizer != nil {
		h.deps.Optimizer.PutEpisode(*episode)
		h.deps.Optimizer.InvalidateQueryResults()
	}

	names := make([]string, 0, len(extracted.Entities))
	for _, e := range extracted.Entities {
		names = append(names, e.Name)
	}
	h.deps.Metrics.RecordIngestEntities(ctx, string(sourceKind), len(nodeUUIDs))

	return addMemoryResult{
		EpisodeUUID: episode.UUID.String(),
		EntityCount: len(nodeUUIDs),
		EdgeCount:   len(edgeUUIDs),
		EntityUUIDs: uuidStrings(entityUUIDs),
		EdgeUUIDs:   edgeUUIDStrings,
		EntityNames: names,
	}, nil
}

type entityKey struct {
	name string
	typ  string
}

// insertEntities deduplicates extracted entities by (name, type) and
// inserts each as a node, returning the name->UUID map relationship
// resolution needs. Storage performs the actual {name,type,group} dedup
// against existing rows (spec.md §3); this map only resolves names to the
// UUIDs this call produced or matched.
//
// Each inserted node is also embedded and stored under EmbeddingNode, per
// the §2 ingest dataflow ("Embedding Service -> Storage (vectors)"): without
// a node embedding, similar_concepts, the vector leg of hybrid search, and
// the clusters analysis would have nothing to query against.
func (h *Handlers) insertEntities(ctx context.Context, entities []extractor.Entity, groupID string) (map[entityKey]graphtypes.UUID, error) {
	out := make(map[entityKey]graphtypes.UUID, len(entities))
	for _, e := range entities {
		key := entityKey{name: e.Name, typ: e.Type}
		if _, ok := out[key]; ok {
			continue
		}
		node := &graphtypes.Node{
			Name:     e.Name,
			Type:     e.Type,
			Summary:  e.Summary,
			GroupID:  groupID,
			Metadata: e.Metadata,
		}
		var id graphtypes.UUID
		err := h.withStorageBreaker(ctx, func(ctx context.Context) error {
			var innerErr error
			id, innerErr = h.deps.Store.InsertNode(ctx, node)
			return innerErr
		})
		if err != nil {
			return nil, err
		}
		out[key] = id

		if h.deps.Embed != nil {
			if err := h.embedNode(ctx, id, node); err != nil {
				h.log.Warn("toolhandlers: node embedding failed, ingest still succeeded", "node", id, "error", err)
			}
		}
	}
	return out, nil
}

// embedNode encodes a node's name and summary and stores the resulting
// vector under EmbeddingNode, mirroring embedEpisode's breaker-wrapped
// encode-then-store shape.
func (h *Handlers) embedNode(ctx context.Context, id graphtypes.UUID, node *graphtypes.Node) error {
	text := node.Name
	if node.Summary != "" {
		text = node.Name + " " + node.Summary
	}
	var vec []float32
	err := h.withEmbeddingBreaker(ctx, func(ctx context.Context) error {
		var innerErr error
		vec, innerErr = h.deps.Embed.Encode(ctx, text)
		return innerErr
	})
	if err != nil {
		return err
	}
	return h.withStorageBreaker(ctx, func(ctx context.Context) error {
		return h.deps.Store.StoreEmbedding(ctx, id, graphtypes.EmbeddingNode, vec)
	})
}

// insertRelationships resolves each extracted relationship's entity names
// to the UUIDs insertEntities produced and inserts the edge. A relationship
// naming an entity the extractor didn't also emit (never expected, since
// both passes share the same entity list) is skipped rather than failing
// the whole ingest.
func (h *Handlers) insertRelationships(ctx context.Context, rels []extractor.Relationship, nodeUUIDs map[entityKey]graphtypes.UUID, groupID string) ([]graphtypes.UUID, error) {
	byName := make(map[string]graphtypes.UUID, len(nodeUUIDs))
	for k, id := range nodeUUIDs {
		byName[k.name] = id
	}

	var out []graphtypes.UUID
	for _, r := range rels {
		src, ok := byName[r.SourceEntity]
		if !ok {
			continue
		}
		tgt, ok := byName[r.TargetEntity]
		if !ok {
			continue
		}
		edge := &graphtypes.Edge{
			Source:       src,
			Target:       tgt,
			RelationType: r.RelationType,
			Summary:      r.Summary,
			Weight:       r.Weight,
			GroupID:      groupID,
			Metadata:     r.Metadata,
		}
		var id graphtypes.UUID
		err := h.withStorageBreaker(ctx, func(ctx context.Context) error {
			var innerErr error
			id, innerErr = h.deps.Store.InsertEdge(ctx, edge)
			return innerErr
		})
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func (h *Handlers) embedEpisode(ctx context.Context, ep *graphtypes.Episode) ([]float32, error) {
	var vec []float32
	err := h.withEmbeddingBreaker(ctx, func(ctx context.Context) error {
		var innerErr error
		vec, innerErr = h.deps.Embed.Encode(ctx, ep.Content)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	if err := h.withStorageBreaker(ctx, func(ctx context.Context) error {
		return h.deps.Store.StoreEmbedding(ctx, ep.UUID, graphtypes.EmbeddingEpisode, vec)
	}); err != nil {
		return nil, err
	}
	return vec, nil
}

// sortedValues returns m's values ordered by their string form, so an
// episode's recorded EntityRefs have a deterministic order across runs
// instead of depending on Go's randomized map iteration.
func sortedValues(m map[entityKey]graphtypes.UUID) []graphtypes.UUID {
	out := make([]graphtypes.UUID, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func uuidStrings(ids []graphtypes.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func formatAddMemoryResult(r addMemoryResult, v Verbosity) any {
	switch v {
	case VerbositySummary:
		return map[string]any{
			"episode_uuid": r.EpisodeUUID,
			"summary":      fmt.Sprintf("ingested %d entities, %d relationships", r.EntityCount, r.EdgeCount),
		}
	case VerbosityFull:
		return r
	default: // compact
		return map[string]any{
			"episode_uuid": r.EpisodeUUID,
			"entity_count": r.EntityCount,
			"edge_count":   r.EdgeCount,
		}
	}
}
