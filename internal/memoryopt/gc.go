package memoryopt

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// sweepable is the subset of lruTier's surface the GC scheduler needs to
// sample and evict across tiers without knowing their key/value types.
type sweepable interface {
	size() int
	evictLRU(n int) int
	clear()
}

// GCConfig tunes the GCScheduler, per spec.md §4.7.
type GCConfig struct {
	Interval     time.Duration
	GCThreshold  float64 // fraction of MaxCacheSize that triggers a sweep
	MaxCacheSize int     // aggregate entry budget across all tiers
	MaxSnapshots int     // bounded history of memory snapshots
}

// DefaultGCConfig matches the reference implementation's tuning.
func DefaultGCConfig() GCConfig {
	return GCConfig{
		Interval:     5 * time.Minute,
		GCThreshold:  0.8,
		MaxCacheSize: 20000,
		MaxSnapshots: 100,
	}
}

// MemorySnapshot is one sample of aggregate cache occupancy, retained in a
// bounded history that informs optimization suggestions, per spec.md §4.7.
type MemorySnapshot struct {
	Timestamp  time.Time
	TotalItems int
}

// Suggestion is an optimization recommendation the GC scheduler produces
// from its snapshot history: resize a cache, toggle compression, or change
// the GC interval, per spec.md §4.7.
type Suggestion struct {
	Action   string // "resize_cache" | "toggle_compression" | "change_gc_interval"
	Reason   string
	Priority int // higher means more urgent
}

// autoApplyPriority is the priority threshold above which GCScheduler
// applies a suggestion itself rather than only reporting it.
const autoApplyPriority = 8

// GCScheduler periodically samples aggregate cache occupancy and, when it
// exceeds GCThreshold*MaxCacheSize, evicts least-recently-used entries
// across tiers until back under threshold, per spec.md §4.7.
type GCScheduler struct {
	cfg   GCConfig
	tiers []sweepable

	mu         sync.Mutex
	snapshots  []MemorySnapshot
	lastResize time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func newGCScheduler(cfg GCConfig, tiers []sweepable) *GCScheduler {
	return &GCScheduler{cfg: cfg, tiers: tiers}
}

// Start launches the periodic sweep as a background goroutine, cancelled by
// Stop or ctx's own cancellation. Safe to call once; a second call is a
// no-op until Stop is called.
func (g *GCScheduler) Start(ctx context.Context, log *slog.Logger) {
	if g.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.done = make(chan struct{})

	go func() {
		defer close(g.done)
		ticker := time.NewTicker(g.cfg.Interval)
		defer ticker.Stop()
		failures := 0
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if err := g.sweepOnce(); err != nil {
					failures++
					log.Warn("memoryopt: gc sweep failed", "error", err, "consecutive_failures", failures)
					if failures >= 5 {
						backoff := g.cfg.Interval * time.Duration(1<<min(failures-5, 4))
						ticker.Reset(backoff)
					}
					continue
				}
				if failures > 0 {
					failures = 0
					ticker.Reset(g.cfg.Interval)
				}
			}
		}
	}()
}

// Stop cancels the background sweep and waits for it to exit.
func (g *GCScheduler) Stop() {
	if g.cancel == nil {
		return
	}
	g.cancel()
	<-g.done
}

func (g *GCScheduler) sweepOnce() error {
	total := g.totalItems()
	g.recordSnapshot(total)

	threshold := int(g.cfg.GCThreshold * float64(g.cfg.MaxCacheSize))
	if total <= threshold {
		return nil
	}

	toEvict := total - threshold
	g.evictAcross(toEvict)

	for _, s := range g.Suggestions() {
		if s.Priority >= autoApplyPriority {
			g.autoApply(s)
		}
	}
	return nil
}

func (g *GCScheduler) totalItems() int {
	total := 0
	for _, t := range g.tiers {
		total += t.size()
	}
	return total
}

// evictAcross removes n entries total, one per tier per round, visiting the
// tiers in their fixed order, so no single tier is emptied before others are
// touched.
func (g *GCScheduler) evictAcross(n int) {
	remaining := n
	for remaining > 0 {
		progressed := false
		for _, t := range g.tiers {
			if remaining <= 0 {
				break
			}
			if t.evictLRU(1) > 0 {
				remaining--
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
}

func (g *GCScheduler) recordSnapshot(total int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.snapshots = append(g.snapshots, MemorySnapshot{Timestamp: time.Now(), TotalItems: total})
	if len(g.snapshots) > g.cfg.MaxSnapshots {
		g.snapshots = g.snapshots[len(g.snapshots)-g.cfg.MaxSnapshots:]
	}
}

// History returns a copy of the retained memory-snapshot history.
func (g *GCScheduler) History() []MemorySnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]MemorySnapshot, len(g.snapshots))
	copy(out, g.snapshots)
	return out
}

// Suggestions derives optimization recommendations from the snapshot
// history: a sustained upward trend suggests resizing the cache budget; a
// history pinned at the ceiling suggests shortening the GC interval.
func (g *GCScheduler) Suggestions() []Suggestion {
	g.mu.Lock()
	history := append([]MemorySnapshot(nil), g.snapshots...)
	g.mu.Unlock()

	if len(history) < 3 {
		return nil
	}

	var suggestions []Suggestion
	recent := history[len(history)-3:]
	rising := recent[0].TotalItems < recent[1].TotalItems && recent[1].TotalItems < recent[2].TotalItems
	if rising && recent[2].TotalItems >= int(float64(g.cfg.MaxCacheSize)*0.95) {
		suggestions = append(suggestions, Suggestion{
			Action:   "resize_cache",
			Reason:   "aggregate cache occupancy rising and near MaxCacheSize",
			Priority: 9,
		})
	}

	atCeiling := 0
	for _, s := range recent {
		if s.TotalItems >= g.cfg.MaxCacheSize {
			atCeiling++
		}
	}
	if atCeiling == len(recent) {
		suggestions = append(suggestions, Suggestion{
			Action:   "change_gc_interval",
			Reason:   "cache pinned at ceiling across the last sweeps; shorten the interval",
			Priority: 6,
		})
	}

	return suggestions
}

// autoApply applies a high-priority suggestion. Only change_gc_interval and
// resize_cache are auto-applied; toggle_compression has no code path in
// this core (no compressed tier representation exists) so it is reported
// only, never applied.
func (g *GCScheduler) autoApply(s Suggestion) {
	switch s.Action {
	case "change_gc_interval":
		g.mu.Lock()
		g.cfg.Interval = g.cfg.Interval / 2
		g.mu.Unlock()
	case "resize_cache":
		g.mu.Lock()
		g.cfg.MaxCacheSize = int(float64(g.cfg.MaxCacheSize) * 1.5)
		g.lastResize = time.Now()
		g.mu.Unlock()
	}
}
