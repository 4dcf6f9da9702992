package toolhandlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/kgmemory/kgmemory/internal/embedding"
	"github.com/kgmemory/kgmemory/internal/extractor"
	"github.com/kgmemory/kgmemory/internal/graphtypes"
	"github.com/kgmemory/kgmemory/internal/memoryopt"
	"github.com/kgmemory/kgmemory/internal/otelmetrics"
	"github.com/kgmemory/kgmemory/internal/resilience"
	"github.com/kgmemory/kgmemory/internal/rpcserver"
	"github.com/kgmemory/kgmemory/internal/search/hybrid"
	"github.com/kgmemory/kgmemory/internal/search/textsearch"
	"github.com/kgmemory/kgmemory/internal/search/vectorsearch"
	"github.com/kgmemory/kgmemory/internal/storage"
)

// Deps bundles every component the Tool Dispatcher's five tools are built
// over, per the dataflow in spec.md §2 ("Dispatcher -> Extractor -> Storage
// ... -> Embedding Service ... -> Memory Optimizer").
type Deps struct {
	Store     storage.Store
	Embed     *embedding.Engine
	Extract   *extractor.Extractor
	Text      *textsearch.Searcher
	Vector    *vectorsearch.Searcher
	Hybrid    *hybrid.Orchestrator
	Optimizer *memoryopt.Optimizer
	Breakers  *resilience.BreakerRegistry
	Auth      *resilience.Auth
	RateLimit *resilience.RateLimiter

	IndexCodebaseRoot string
	LanguageRulesPath string
	Metrics           *otelmetrics.Metrics
	Log               *slog.Logger
}

// Handlers implements rpcserver.ToolHandler: it validates parameters,
// enforces rate limiting and auth, and routes each tool onto the
// corresponding operation, per spec.md §4.9.
type Handlers struct {
	deps Deps
	log  *slog.Logger
}

// New builds a Handlers over deps.
func New(deps Deps) *Handlers {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{deps: deps, log: log}
}

var _ rpcserver.ToolHandler = (*Handlers)(nil)

// toolNames is the fixed set of five top-level tools, per spec.md §4.9.
const (
	toolAddMemory      = "add_memory"
	toolSearchMemory   = "search_memory"
	toolAnalyzePatterns = "analyze_patterns"
	toolManageGraph    = "manage_graph"
	toolIndexCodebase  = "index_codebase"
)

// Tools returns the schema for all five tools, for tools/list.
func (h *Handlers) Tools() []rpcserver.ToolSchema {
	return []rpcserver.ToolSchema{
		{
			Name:        toolAddMemory,
			Description: "Ingest one episode: extract entities/relationships, dedupe, persist, embed.",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []string{"name", "episode_body"},
				"properties": map[string]any{
					"name":               map[string]any{"type": "string"},
					"episode_body":       map[string]any{"type": "string"},
					"source":             map[string]any{"type": "string", "enum": []string{"text", "json", "message"}},
					"source_description": map[string]any{"type": "string"},
					"group_id":           map[string]any{"type": "string"},
				},
			},
		},
		{
			Name:        toolSearchMemory,
			Description: "Retrieve nodes, facts, episodes, or similar concepts via lexical, vector, or hybrid search.",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []string{"operation", "query"},
				"properties": map[string]any{
					"operation": map[string]any{"type": "string", "enum": []string{"nodes", "facts", "episodes", "similar_concepts", "batch"}},
					"query":     map[string]any{"type": "string"},
					"group_id":  map[string]any{"type": "string"},
					"limit":     map[string]any{"type": "integer"},
					"threshold": map[string]any{"type": "number"},
					"verbosity": map[string]any{"type": "string", "enum": []string{"summary", "compact", "full"}},
				},
			},
		},
		{
			Name:        toolAnalyzePatterns,
			Description: "Analyze the persisted graph: centrality, clustering, or temporal activity.",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []string{"operation"},
				"properties": map[string]any{
					"operation": map[string]any{"type": "string", "enum": []string{"centrality", "clusters", "temporal"}},
					"group_id":  map[string]any{"type": "string"},
					"k":         map[string]any{"type": "integer"},
				},
			},
		},
		{
			Name:        toolManageGraph,
			Description: "Get or delete single/batch graph records; clear_graph wipes the store (requires confirm + auth).",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []string{"operation"},
				"properties": map[string]any{
					"operation": map[string]any{"type": "string", "enum": []string{"get", "delete_episode", "delete_edge", "delete_node", "batch_delete", "clear_graph"}},
					"uuid":      map[string]any{"type": "string"},
					"uuids":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"confirm":   map[string]any{"type": "boolean"},
				},
			},
		},
		{
			Name:        toolIndexCodebase,
			Description: "Walk a directory tree and ingest each recognized source file as an episode.",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []string{"path"},
				"properties": map[string]any{
					"path":     map[string]any{"type": "string"},
					"group_id": map[string]any{"type": "string"},
				},
			},
		},
	}
}

// Call enforces the per-client rate limit and the API-key auth gate, then
// routes tool to its handler, per spec.md §4.8/§4.9.
func (h *Handlers) Call(ctx context.Context, clientID, apiKey, tool string, args json.RawMessage) (any, error) {
	if h.deps.RateLimit != nil {
		if err := h.deps.RateLimit.Allow(clientID, time.Now()); err != nil {
			return nil, err
		}
	}
	if h.deps.Auth != nil {
		if err := h.deps.Auth.Check(tool, apiKey); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	result, err := h.route(ctx, tool, args)
	status := "ok"
	if err != nil {
		status = graphtypes.KindOf(err).String()
	}
	h.deps.Metrics.RecordToolCall(ctx, tool, status)
	if tool == toolSearchMemory {
		h.deps.Metrics.RecordSearchLatency(ctx, tool, time.Since(start).Seconds())
	}
	return result, err
}

func (h *Handlers) route(ctx context.Context, tool string, args json.RawMessage) (any, error) {
	switch tool {
	case toolAddMemory:
		return h.handleAddMemory(ctx, args)
	case toolSearchMemory:
		return h.handleSearchMemory(ctx, args)
	case toolAnalyzePatterns:
		return h.handleAnalyzePatterns(ctx, args)
	case toolManageGraph:
		return h.handleManageGraph(ctx, args)
	case toolIndexCodebase:
		return h.handleIndexCodebase(ctx, args)
	default:
		return nil, graphtypes.Newf(graphtypes.KindInvalidParameters, "unknown tool %q", tool).WithField("name")
	}
}

// storageRetryAttempts bounds the retry of StorageTransient failures that
// withStorageBreaker wraps around each Storage call, per spec.md §7.
const storageRetryAttempts = 3

// withStorageBreaker wraps a Storage call with the shared "storage"
// breaker, per spec.md §4.8 ("A registry keyed by breaker name lets the
// Dispatcher share one breaker per downstream dependency"). Before the
// breaker sees the outcome, a StorageTransient failure is retried up to
// storageRetryAttempts times with backoff, so the breaker only records a
// failure once the retries themselves are exhausted.
func (h *Handlers) withStorageBreaker(ctx context.Context, fn func(ctx context.Context) error) error {
	return h.withBreaker(ctx, resilience.BreakerStorage, func(ctx context.Context) error {
		return resilience.RetryTransient(ctx, storageRetryAttempts, func() error { return fn(ctx) })
	})
}

// withEmbeddingBreaker wraps an Embedding Service call with the shared
// "embeddings" breaker.
func (h *Handlers) withEmbeddingBreaker(ctx context.Context, fn func(ctx context.Context) error) error {
	return h.withBreaker(ctx, resilience.BreakerEmbeddings, fn)
}

func (h *Handlers) withBreaker(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if h.deps.Breakers == nil {
		return fn(ctx)
	}
	err := h.deps.Breakers.Get(name).Call(ctx, fn)
	if graphtypes.KindOf(err) == graphtypes.KindCircuitOpen {
		h.deps.Metrics.RecordBreakerTrip(ctx, name)
	}
	return err
}
