package embedding

import (
	"context"
	"time"

	"github.com/kgmemory/kgmemory/internal/graphtypes"
)

// Config tunes the embedding engine, per SPEC_FULL.md §4.2 / appconfig's
// [embedding] table.
type Config struct {
	Dimension      int
	CacheCapacity  int
	BatchSize      int
	MaxConcurrency int
	BatchTimeout   time.Duration
}

// DefaultConfig returns conservative defaults matching the HashBackend's
// natural dimension.
func DefaultConfig() Config {
	return Config{
		Dimension:      256,
		CacheCapacity:  10000,
		BatchSize:      32,
		MaxConcurrency: 4,
		BatchTimeout:   10 * time.Second,
	}
}

// Engine is the embedding service: a lifecycle-guarded Backend wrapped with
// an LRU text cache and a concurrency-bounded batch processor, per spec.md
// §4.2. The tool handlers call it directly; hybrid search reaches it through
// the encode function it is constructed with.
type Engine struct {
	cfg     Config
	life    lifecycle
	backend Backend
	cache   *textCache
	batcher *batchProcessor
}

// NewEngine constructs an Engine around backend without initializing it;
// call Init before Encode/EncodeBatch.
func NewEngine(backend Backend, cfg Config) *Engine {
	cache := newTextCache(cfg.CacheCapacity)
	e := &Engine{
		cfg:     cfg,
		backend: backend,
		cache:   cache,
	}
	e.batcher = newBatchProcessor(backend, cache, cfg.BatchSize, cfg.MaxConcurrency, e.batchDeadline)
	return e
}

func (e *Engine) batchDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.BatchTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.cfg.BatchTimeout)
}

// Init transitions the engine Uninitialized -> Initializing -> Ready. warmup
// is invoked while holding the init lock; a nil warmup is a no-op probe
// (e.g. for HashBackend, which needs no external handshake). Concurrent
// callers block until the first Init completes.
func (e *Engine) Init(ctx context.Context, warmup func(ctx context.Context) error) error {
	return e.life.withInit(false, func() error {
		if warmup == nil {
			return nil
		}
		return warmup(ctx)
	})
}

// State reports the current lifecycle state.
func (e *Engine) State() State { return e.life.current() }

// Dimension is the backend's fixed output width.
func (e *Engine) Dimension() int { return e.backend.Dimension() }

// Encode returns the unit-norm embedding for text, consulting the cache
// first. Returns a KindNotReady error if Init has not completed.
func (e *Engine) Encode(ctx context.Context, text string) ([]float32, error) {
	if e.life.current() != StateReady {
		return nil, graphtypes.New(graphtypes.KindNotReady, "embedding engine not ready")
	}
	if v, ok := e.cache.get(text); ok {
		return v, nil
	}
	out, err := e.batcher.encodeAll(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EncodeBatch returns unit-norm embeddings for texts in order, batching
// cache misses per Config.BatchSize/MaxConcurrency. Returns a KindNotReady
// error if Init has not completed.
func (e *Engine) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.life.current() != StateReady {
		return nil, graphtypes.New(graphtypes.KindNotReady, "embedding engine not ready")
	}
	if len(texts) == 0 {
		return nil, nil
	}
	return e.batcher.encodeAll(ctx, texts)
}

// CacheStats exposes the text cache's hit/miss counters for the memory
// optimizer's reporting surface.
func (e *Engine) CacheStats() (hits, misses uint64) { return e.cache.stats() }
