package resilience

import (
	"sync"
	"time"

	"github.com/kgmemory/kgmemory/internal/graphtypes"
)

// RateLimitConfig tunes the RateLimiter, per spec.md §4.8: a 60-second main
// window and a 10-second burst window, each with its own request cap.
type RateLimitConfig struct {
	RequestsPerMinute int
	BurstPerTenSec    int
	IdleTTL           time.Duration // clients idle longer than this are dropped by Cleanup
}

// DefaultRateLimitConfig matches the scenario tuning in spec.md §8.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerMinute: 60, BurstPerTenSec: 15, IdleTTL: 5 * time.Minute}
}

const (
	mainWindow  = 60 * time.Second
	burstWindow = 10 * time.Second
)

type clientWindow struct {
	timestamps []time.Time
	lastSeen   time.Time
}

// RateLimiter is a per-client sliding-window limiter: every request is
// recorded as a timestamp, and each check prunes timestamps older than the
// main window before counting against both thresholds, per spec.md §4.8.
type RateLimiter struct {
	cfg RateLimitConfig

	mu      sync.Mutex
	clients map[string]*clientWindow
}

// NewRateLimiter returns a limiter configured by cfg.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{cfg: cfg, clients: make(map[string]*clientWindow)}
}

// Allow records a request for clientID at now and reports whether it is
// within both the main and burst thresholds. On rejection the returned
// error is a KindRateLimited *graphtypes.Error whose message carries the
// reset time (first-request-in-window + 60s), per spec.md §8 scenario 6.
func (r *RateLimiter) Allow(clientID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cw, ok := r.clients[clientID]
	if !ok {
		cw = &clientWindow{}
		r.clients[clientID] = cw
	}
	cw.lastSeen = now
	cw.timestamps = pruneBefore(cw.timestamps, now.Add(-mainWindow))

	mainCount := len(cw.timestamps)
	burstCount := countSince(cw.timestamps, now.Add(-burstWindow))

	if r.cfg.RequestsPerMinute > 0 && mainCount >= r.cfg.RequestsPerMinute {
		return rateLimitedError(cw.timestamps[0].Add(mainWindow))
	}
	if r.cfg.BurstPerTenSec > 0 && burstCount >= r.cfg.BurstPerTenSec {
		return rateLimitedError(now.Add(burstWindow))
	}

	cw.timestamps = append(cw.timestamps, now)
	return nil
}

func rateLimitedError(resetAt time.Time) error {
	return graphtypes.Newf(graphtypes.KindRateLimited, "rate limited, reset at %s", resetAt.UTC().Format(time.RFC3339))
}

func pruneBefore(ts []time.Time, cutoff time.Time) []time.Time {
	out := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

func countSince(ts []time.Time, cutoff time.Time) int {
	n := 0
	for _, t := range ts {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

// Cleanup drops clients that have been idle longer than cfg.IdleTTL,
// bounding the map's memory growth, per spec.md §4.8 ("A cleanup pass drops
// clients idle > 5 minutes").
func (r *RateLimiter) Cleanup(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, cw := range r.clients {
		if now.Sub(cw.lastSeen) > r.cfg.IdleTTL {
			delete(r.clients, id)
			removed++
		}
	}
	return removed
}

// ClientCount reports the number of tracked clients, for metrics.
func (r *RateLimiter) ClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
