// Package resilience implements the Circuit Breaker + Auth substrate of
// spec.md §4.8: a three-state breaker per downstream dependency, an API-key
// auth gate, and a per-client sliding-window rate limiter. Every type here
// follows the teacher's QueryCache shape (internal/rpc/cache.go): a mutex or
// RWMutex guarding a map, short critical sections, no channels.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kgmemory/kgmemory/internal/graphtypes"
)

// BreakerState is one of the three states of a Breaker, per spec.md §4.8.
type BreakerState int

const (
	Closed BreakerState = iota
	Open
	HalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// BreakerConfig tunes a Breaker.
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures in Closed before tripping to Open
	SuccessThreshold int           // consecutive successes in HalfOpen before returning to Closed
	RecoveryTimeout  time.Duration // time in Open before the next call is allowed through as HalfOpen
	CallTimeout      time.Duration // per-call timeout; expiry counts as a failure
}

// DefaultBreakerConfig matches spec.md §4.8's narrative defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		RecoveryTimeout:  30 * time.Second,
		CallTimeout:      10 * time.Second,
	}
}

// Breaker is a mutex-guarded three-state circuit breaker wrapping a single
// downstream dependency (storage writes, embedding calls, external I/O),
// per spec.md §4.8.
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu          sync.Mutex
	state       BreakerState
	failures    int
	successes   int
	lastFailure time.Time
}

// NewBreaker returns a Breaker in the Closed state.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	return &Breaker{name: name, cfg: cfg, state: Closed}
}

// Name returns the breaker's registry key.
func (b *Breaker) Name() string { return b.name }

// State reports the breaker's current state, first applying the Open ->
// HalfOpen transition if the recovery timeout has elapsed.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked()
	return b.state
}

func (b *Breaker) maybeHalfOpenLocked() {
	if b.state == Open && time.Since(b.lastFailure) >= b.cfg.RecoveryTimeout {
		b.state = HalfOpen
		b.successes = 0
	}
}

// Allow reports whether a call may proceed, per the Closed/Open/HalfOpen
// contract in spec.md §4.8. Call Record after the call completes.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked()
	if b.state == Open {
		return graphtypes.Newf(graphtypes.KindCircuitOpen, "circuit %q is open", b.name)
	}
	return nil
}

// Record updates the breaker's state machine with the outcome of a call
// that Allow had previously permitted.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.onSuccessLocked()
	} else {
		b.onFailureLocked()
	}
}

func (b *Breaker) onSuccessLocked() {
	switch b.state {
	case HalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.state = Closed
			b.failures = 0
			b.successes = 0
		}
	default:
		b.failures = 0
	}
}

func (b *Breaker) onFailureLocked() {
	b.lastFailure = time.Now()
	switch b.state {
	case HalfOpen:
		b.state = Open
		b.successes = 0
	default:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.state = Open
		}
	}
}

// Call runs fn under the breaker: rejects immediately with CircuitOpen if
// tripped, otherwise enforces cfg.CallTimeout and records the outcome. A
// timeout is recorded as a failure and surfaced as KindTimeout.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.Allow(); err != nil {
		return err
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if b.cfg.CallTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, b.cfg.CallTimeout)
		defer cancel()
	}

	err := fn(callCtx)
	if err != nil {
		b.Record(false)
		if callCtx.Err() == context.DeadlineExceeded {
			return graphtypes.Wrap(graphtypes.KindTimeout, err, "circuit "+b.name+" call timed out")
		}
		return err
	}
	b.Record(true)
	return nil
}

// RetryTransient retries fn up to maxAttempts times with exponential
// backoff when it fails with a KindStorageTransient error, per spec.md §7
// ("StorageTransient is retried up to three times with backoff inside
// Storage"). Non-transient errors return immediately.
func RetryTransient(ctx context.Context, maxAttempts int, fn func() error) error {
	attempt := 0
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(maxAttempts-1)), ctx)
	return backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if graphtypes.KindOf(err) != graphtypes.KindStorageTransient {
			return backoff.Permanent(err)
		}
		return err
	}, bo)
}
