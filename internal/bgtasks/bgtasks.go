// Package bgtasks supervises two of the three background tasks named in
// spec.md §5: an embedding warmup run once at startup and a periodic
// storage health probe. The third, the GC sweeper, is run by
// memoryopt.GCScheduler rather than by this package. Each follows the
// teacher's startDecisionSweeper shape (internal/rpc/server_decision_sweeper.go):
// a ticker goroutine selecting on a stop channel, stopped at shutdown.
package bgtasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// HealthProbe reports the storage subsystem's liveness; wired to
// storage.Store.Ping by the caller.
type HealthProbe func(ctx context.Context) error

// WarmupFunc encodes a set of configured warmup queries once at startup;
// wired to embedding.Engine.EncodeBatch by the caller.
type WarmupFunc func(ctx context.Context) error

// Supervisor owns the warmup and health-probe goroutines and their shared
// stop signal.
type Supervisor struct {
	log *slog.Logger

	healthProbe       HealthProbe
	healthInterval    time.Duration
	warmup            WarmupFunc
	warmupTimeout     time.Duration

	stop chan struct{}
}

// Config tunes the Supervisor's two tasks. Warmup runs once, not
// periodically, so it has a timeout but no interval.
type Config struct {
	HealthProbeInterval time.Duration // spec.md §5: "storage health probe every 10 minutes"
	WarmupTimeout       time.Duration
}

// DefaultConfig matches spec.md §5's narrative defaults.
func DefaultConfig() Config {
	return Config{HealthProbeInterval: 10 * time.Minute, WarmupTimeout: 30 * time.Second}
}

// New builds a Supervisor. Either probe or warmup may be nil to skip that
// task (e.g. tests exercising only one).
func New(cfg Config, probe HealthProbe, warmup WarmupFunc, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	if cfg.HealthProbeInterval <= 0 {
		cfg.HealthProbeInterval = 10 * time.Minute
	}
	if cfg.WarmupTimeout <= 0 {
		cfg.WarmupTimeout = 30 * time.Second
	}
	return &Supervisor{
		log:            log,
		healthProbe:    probe,
		healthInterval: cfg.HealthProbeInterval,
		warmup:         warmup,
		warmupTimeout:  cfg.WarmupTimeout,
		stop:           make(chan struct{}),
	}
}

// Start runs the embedding warmup once (failure logged, non-fatal per
// spec.md §5) and launches the storage health probe loop. It returns
// immediately; call Stop to cancel both at shutdown.
func (s *Supervisor) Start(ctx context.Context) {
	if s.warmup != nil {
		go s.runWarmupOnce(ctx)
	}
	if s.healthProbe != nil {
		go s.runHealthProbeLoop(ctx)
	}
}

// Stop cancels both background loops. Safe to call once.
func (s *Supervisor) Stop() {
	close(s.stop)
}

func (s *Supervisor) runWarmupOnce(ctx context.Context) {
	wctx, cancel := context.WithTimeout(ctx, s.warmupTimeout)
	defer cancel()
	if err := s.warmup(wctx); err != nil {
		s.log.Warn("bgtasks: embedding warmup failed, continuing without it", "error", err)
	}
}

// runHealthProbeLoop mirrors startDecisionSweeper's ticker-over-stop-channel
// shape, with exponential back-off applied after five consecutive failures
// per spec.md §5 ("GC sweeper every 5 minutes with exponential back-off
// after five consecutive failures" — the same discipline applies here to
// the health probe so a flapping store doesn't spin the probe tight).
func (s *Supervisor) runHealthProbeLoop(ctx context.Context) {
	ticker := time.NewTicker(s.healthInterval)
	defer ticker.Stop()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.healthInterval
	bo.MaxInterval = 30 * time.Minute
	bo.MaxElapsedTime = 0 // never return backoff.Stop, which Ticker.Reset rejects
	consecutiveFailures := 0

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := s.healthProbe(pctx)
			cancel()
			if err != nil {
				consecutiveFailures++
				s.log.Warn("bgtasks: storage health probe failed", "error", err, "consecutive_failures", consecutiveFailures)
				if consecutiveFailures >= 5 {
					ticker.Reset(bo.NextBackOff())
				}
				continue
			}
			if consecutiveFailures >= 5 {
				ticker.Reset(s.healthInterval)
				bo.Reset()
			}
			consecutiveFailures = 0
		}
	}
}
