package embedding

import (
	"context"
	"sync"

	"github.com/kgmemory/kgmemory/internal/graphtypes"
)

// batchProcessor groups cache misses into chunks of batchSize and encodes
// the chunks concurrently, bounded by a semaphore of width maxConcurrency,
// per spec.md §4.2. Each chunk is independently timed out; the cache is
// updated only for texts whose chunk completed successfully, so a timed-out
// chunk never poisons the cache with partial results.
type batchProcessor struct {
	backend          Backend
	cache            *textCache
	batchSize        int
	maxConcurrency   int
	perBatchDeadline func(ctx context.Context) (context.Context, context.CancelFunc)
}

func newBatchProcessor(backend Backend, cache *textCache, batchSize, maxConcurrency int, deadline func(ctx context.Context) (context.Context, context.CancelFunc)) *batchProcessor {
	if batchSize <= 0 {
		batchSize = 32
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &batchProcessor{
		backend:          backend,
		cache:            cache,
		batchSize:        batchSize,
		maxConcurrency:   maxConcurrency,
		perBatchDeadline: deadline,
	}
}

// encodeAll returns a normalized vector for every text in texts, in order.
// Texts already present in the cache skip the backend entirely.
func (b *batchProcessor) encodeAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int

	for i, t := range texts {
		if v, ok := b.cache.get(t); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
	}
	if len(missIdx) == 0 {
		return out, nil
	}

	chunks := chunkIndices(missIdx, b.batchSize)
	sem := make(chan struct{}, b.maxConcurrency)
	var wg sync.WaitGroup
	errs := make([]error, len(chunks))

	for ci, chunk := range chunks {
		ci, chunk := ci, chunk
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			errs[ci] = b.encodeChunk(ctx, texts, chunk, out)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (b *batchProcessor) encodeChunk(ctx context.Context, texts []string, idxs []int, out [][]float32) error {
	chunkCtx, cancel := b.perBatchDeadline(ctx)
	defer cancel()

	results := make([][]float32, len(idxs))
	for i, idx := range idxs {
		select {
		case <-chunkCtx.Done():
			return timeoutOrCanceled(chunkCtx)
		default:
		}
		raw, err := b.backend.EncodeOne(chunkCtx, texts[idx])
		if err != nil {
			if chunkCtx.Err() != nil {
				return timeoutOrCanceled(chunkCtx)
			}
			return graphtypes.Wrap(graphtypes.KindInternal, err, "encode batch member")
		}
		results[i] = normalize(raw)
	}

	for i, idx := range idxs {
		out[idx] = results[i]
		b.cache.put(texts[idx], results[i])
	}
	return nil
}

func timeoutOrCanceled(ctx context.Context) error {
	if ctx.Err() == context.DeadlineExceeded {
		return graphtypes.New(graphtypes.KindTimeout, "embedding batch deadline exceeded")
	}
	return graphtypes.Wrap(graphtypes.KindInternal, ctx.Err(), "embedding batch canceled")
}

func chunkIndices(idxs []int, size int) [][]int {
	var chunks [][]int
	for i := 0; i < len(idxs); i += size {
		end := i + size
		if end > len(idxs) {
			end = len(idxs)
		}
		chunks = append(chunks, idxs[i:end])
	}
	return chunks
}
