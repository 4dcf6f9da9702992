package memoryopt

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/kgmemory/kgmemory/internal/graphtypes"
)

// CacheConfig tunes one tier's capacity and TTL.
type CacheConfig struct {
	Capacity int
	TTL      time.Duration
}

// OptimizerConfig tunes the four LRU tiers plus the query-result cache,
// mapping 1:1 onto spec.md §4.7's L1-L4 tiers.
type OptimizerConfig struct {
	NodeByUUID       CacheConfig // L1
	NodeListByQuery  CacheConfig // L2
	EpisodeByUUID    CacheConfig // L3
	EmbeddingByText  CacheConfig // L4
	QueryResult      CacheConfig
	GC               GCConfig
}

// DefaultOptimizerConfig matches the reference implementation's tuning.
func DefaultOptimizerConfig() OptimizerConfig {
	tenMin := CacheConfig{Capacity: 5000, TTL: 10 * time.Minute}
	return OptimizerConfig{
		NodeByUUID:      tenMin,
		NodeListByQuery: CacheConfig{Capacity: 2000, TTL: 5 * time.Minute},
		EpisodeByUUID:   tenMin,
		EmbeddingByText: CacheConfig{Capacity: 10000, TTL: 30 * time.Minute},
		QueryResult:     CacheConfig{Capacity: 2000, TTL: 2 * time.Minute},
		GC:              DefaultGCConfig(),
	}
}

// Optimizer is the Memory Optimizer (C7): four cache tiers, a query-result
// cache keyed by a hash of the full query parameters, an object pool, and a
// background GC scheduler, composed per spec.md §4.7.
type Optimizer struct {
	cfg OptimizerConfig

	nodeByUUID      *lruTier[graphtypes.UUID, graphtypes.Node]
	nodeListByQuery *lruTier[string, []graphtypes.Node]
	episodeByUUID   *lruTier[graphtypes.UUID, graphtypes.Episode]
	embeddingByText *lruTier[string, []float32]
	queryResult     *lruTier[string, []byte]

	Pools *Pools
	GC    *GCScheduler
}

// New builds an Optimizer from cfg, wiring its GC scheduler to the four
// tiers (the query-result cache is swept as a fifth tier via the same
// accounting).
func New(cfg OptimizerConfig) *Optimizer {
	o := &Optimizer{
		cfg:             cfg,
		nodeByUUID:      newLRUTier[graphtypes.UUID, graphtypes.Node](cfg.NodeByUUID.Capacity, cfg.NodeByUUID.TTL),
		nodeListByQuery: newLRUTier[string, []graphtypes.Node](cfg.NodeListByQuery.Capacity, cfg.NodeListByQuery.TTL),
		episodeByUUID:   newLRUTier[graphtypes.UUID, graphtypes.Episode](cfg.EpisodeByUUID.Capacity, cfg.EpisodeByUUID.TTL),
		embeddingByText: newLRUTier[string, []float32](cfg.EmbeddingByText.Capacity, cfg.EmbeddingByText.TTL),
		queryResult:     newLRUTier[string, []byte](cfg.QueryResult.Capacity, cfg.QueryResult.TTL),
		Pools:           newPools(),
	}
	o.GC = newGCScheduler(cfg.GC, o.tiers())
	return o
}

func (o *Optimizer) tiers() []sweepable {
	return []sweepable{o.nodeByUUID, o.nodeListByQuery, o.episodeByUUID, o.embeddingByText, o.queryResult}
}

// --- L1: node by UUID ---

func (o *Optimizer) GetNode(id graphtypes.UUID) (graphtypes.Node, bool) { return o.nodeByUUID.get(id) }
func (o *Optimizer) PutNode(n graphtypes.Node)                         { o.nodeByUUID.put(n.UUID, n) }
func (o *Optimizer) InvalidateNode(id graphtypes.UUID)                 { o.nodeByUUID.invalidate(id) }

// --- L2: node list by query string ---

func (o *Optimizer) GetNodeList(query string) ([]graphtypes.Node, bool) {
	return o.nodeListByQuery.get(query)
}
func (o *Optimizer) PutNodeList(query string, nodes []graphtypes.Node) {
	o.nodeListByQuery.put(query, nodes)
}

// --- L3: episode by UUID ---

func (o *Optimizer) GetEpisode(id graphtypes.UUID) (graphtypes.Episode, bool) {
	return o.episodeByUUID.get(id)
}
func (o *Optimizer) PutEpisode(ep graphtypes.Episode) { o.episodeByUUID.put(ep.UUID, ep) }
func (o *Optimizer) InvalidateEpisode(id graphtypes.UUID) {
	o.episodeByUUID.invalidate(id)
}

// --- L4: embedding by text ---

func (o *Optimizer) GetEmbedding(text string) ([]float32, bool) { return o.embeddingByText.get(text) }
func (o *Optimizer) PutEmbedding(text string, v []float32)      { o.embeddingByText.put(text, v) }

// --- query-result cache, keyed by a hash of the full query parameters ---

// QueryKey hashes an arbitrary, JSON-marshalable query-parameter struct
// into a stable cache key, matching the teacher's QueryCache.MakeKey
// (sha256 of operation + serialized args).
func QueryKey(operation string, params any) string {
	h := sha256.New()
	h.Write([]byte(operation))
	h.Write([]byte{':'})
	if b, err := json.Marshal(params); err == nil {
		h.Write(b)
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

func (o *Optimizer) GetQueryResult(key string) ([]byte, bool) { return o.queryResult.get(key) }
func (o *Optimizer) PutQueryResult(key string, result []byte) { o.queryResult.put(key, result) }

// InvalidateQueryResults clears the entire query-result cache. Called after
// any write operation, since arbitrary cached query results may reference
// data the write just changed (mirrors the teacher's QueryCache.Invalidate
// "clear all entries - simple and safe invalidation strategy").
func (o *Optimizer) InvalidateQueryResults() { o.queryResult.clear() }

// InvalidateAll clears every tier. Used on clear_graph.
func (o *Optimizer) InvalidateAll() {
	for _, t := range o.tiers() {
		t.clear()
	}
}

// Stats reports hit/miss/size counters for every tier, for the health and
// metrics surface.
type Stats struct {
	NodeByUUID      TierStats
	NodeListByQuery TierStats
	EpisodeByUUID   TierStats
	EmbeddingByText TierStats
	QueryResult     TierStats
}

func (o *Optimizer) Stats() Stats {
	return Stats{
		NodeByUUID:      o.nodeByUUID.stats(),
		NodeListByQuery: o.nodeListByQuery.stats(),
		EpisodeByUUID:   o.episodeByUUID.stats(),
		EmbeddingByText: o.embeddingByText.stats(),
		QueryResult:     o.queryResult.stats(),
	}
}
