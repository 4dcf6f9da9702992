package resilience

import "sync"

// BreakerRegistry lets the Tool Dispatcher share one Breaker per downstream
// dependency name (storage, embeddings, external I/O), per spec.md §4.8
// ("A registry keyed by breaker name"), generalized and narrowed from the
// teacher's internal/registry.SessionRegistry shape (a struct wrapping a
// lookup keyed by name, guarded by a mutex).
type BreakerRegistry struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	breakers map[string]*Breaker
}

// NewBreakerRegistry returns a registry that lazily creates breakers with
// cfg the first time each name is requested.
func NewBreakerRegistry(cfg BreakerConfig) *BreakerRegistry {
	return &BreakerRegistry{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// Get returns the named breaker, creating it on first use.
func (r *BreakerRegistry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := NewBreaker(name, r.cfg)
	r.breakers[name] = b
	return b
}

// Snapshot returns the current state of every breaker in the registry,
// keyed by name, for the health/metrics surface.
func (r *BreakerRegistry) Snapshot() map[string]BreakerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]BreakerState, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.State()
	}
	return out
}

// Known breaker names shared across the Dispatcher, matching the
// "storage, embeddings, external I/O" dependencies named in spec.md §4.8.
const (
	BreakerStorage    = "storage"
	BreakerEmbeddings = "embeddings"
	BreakerExternalIO = "external_io"
)
