package memoryopt

import (
	"sync"

	"github.com/kgmemory/kgmemory/internal/graphtypes"
)

// Pool is a bounded, lazily-grown object pool of reusable shells. acquire
// returns a reset instance (allocating fresh only when the pool is empty);
// release returns it to the pool if capacity allows, otherwise drops it,
// per spec.md §4.7 ("Pool refills are not pre-allocated - lazily grown").
type Pool[T any] struct {
	mu       sync.Mutex
	free     []T
	capacity int
	reset    func(*T)
	new      func() T
}

func newPool[T any](capacity int, newFn func() T, resetFn func(*T)) *Pool[T] {
	return &Pool[T]{capacity: capacity, new: newFn, reset: resetFn}
}

// Acquire returns a shell from the free list, or a freshly constructed one
// if the pool is currently empty.
func (p *Pool[T]) Acquire() T {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.free); n > 0 {
		v := p.free[n-1]
		p.free = p.free[:n-1]
		return v
	}
	return p.new()
}

// Release resets v and returns it to the free list, dropping it silently if
// the pool is already at capacity.
func (p *Pool[T]) Release(v T) {
	p.reset(&v)
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) >= p.capacity {
		return
	}
	p.free = append(p.free, v)
}

// Len reports the number of shells currently held in the free list.
func (p *Pool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Pools bundles the bounded shell pools named in spec.md §4.7: node, edge,
// episode, vector, and string.
type Pools struct {
	Nodes    *Pool[graphtypes.Node]
	Edges    *Pool[graphtypes.Edge]
	Episodes *Pool[graphtypes.Episode]
	Vectors  *Pool[[]float32]
	Strings  *Pool[[]byte]
}

// defaultPoolCapacity bounds each pool's free list. Chosen generously above
// typical per-request fan-out so steady-state traffic rarely allocates.
const defaultPoolCapacity = 256

func newPools() *Pools {
	return &Pools{
		Nodes: newPool(defaultPoolCapacity,
			func() graphtypes.Node { return graphtypes.Node{} },
			func(n *graphtypes.Node) { *n = graphtypes.Node{} }),
		Edges: newPool(defaultPoolCapacity,
			func() graphtypes.Edge { return graphtypes.Edge{} },
			func(e *graphtypes.Edge) { *e = graphtypes.Edge{} }),
		Episodes: newPool(defaultPoolCapacity,
			func() graphtypes.Episode { return graphtypes.Episode{} },
			func(e *graphtypes.Episode) { *e = graphtypes.Episode{} }),
		Vectors: newPool(defaultPoolCapacity,
			func() []float32 { return nil },
			func(v *[]float32) { *v = (*v)[:0] }),
		Strings: newPool(defaultPoolCapacity,
			func() []byte { return nil },
			func(b *[]byte) { *b = (*b)[:0] }),
	}
}
