package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kgmemory/kgmemory/internal/graphtypes"
)

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b := NewBreaker("storage", BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		RecoveryTimeout:  20 * time.Millisecond,
		CallTimeout:      time.Second,
	})

	failing := func(ctx context.Context) error { return errors.New("boom") }

	for i := 0; i < 5; i++ {
		err := b.Call(context.Background(), failing)
		require.Error(t, err)
		require.NotEqual(t, graphtypes.KindCircuitOpen, graphtypes.KindOf(err))
	}

	err := b.Call(context.Background(), failing)
	require.Equal(t, graphtypes.KindCircuitOpen, graphtypes.KindOf(err))
	require.Equal(t, Open, b.State())

	time.Sleep(25 * time.Millisecond)
	require.Equal(t, HalfOpen, b.State())

	ok := func(ctx context.Context) error { return nil }
	require.NoError(t, b.Call(context.Background(), ok))
	require.Equal(t, HalfOpen, b.State())
	require.NoError(t, b.Call(context.Background(), ok))
	require.Equal(t, Closed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker("embeddings", BreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		RecoveryTimeout:  10 * time.Millisecond,
		CallTimeout:      time.Second,
	})
	require.Error(t, b.Call(context.Background(), func(ctx context.Context) error { return errors.New("x") }))
	require.Equal(t, Open, b.State())

	time.Sleep(15 * time.Millisecond)
	require.Equal(t, HalfOpen, b.State())

	require.Error(t, b.Call(context.Background(), func(ctx context.Context) error { return errors.New("still failing") }))
	require.Equal(t, Open, b.State())
}

func TestBreakerRegistrySharesInstances(t *testing.T) {
	reg := NewBreakerRegistry(DefaultBreakerConfig())
	a := reg.Get(BreakerStorage)
	b := reg.Get(BreakerStorage)
	require.Same(t, a, b)

	other := reg.Get(BreakerEmbeddings)
	require.NotSame(t, a, other)

	snap := reg.Snapshot()
	require.Contains(t, snap, BreakerStorage)
	require.Contains(t, snap, BreakerEmbeddings)
}

func TestAuthAdminOperationsAlwaysGated(t *testing.T) {
	auth := NewAuth(AuthConfig{Enabled: false, APIKey: "secret", AdminOperationsRequireAuth: true})

	require.NoError(t, auth.Check("search_memory", ""))

	err := auth.Check("clear_graph", "")
	require.Equal(t, graphtypes.KindAuthDenied, graphtypes.KindOf(err))

	require.NoError(t, auth.Check("clear_graph", "secret"))
}

func TestAuthEnabledGatesEverything(t *testing.T) {
	auth := NewAuth(AuthConfig{Enabled: true, APIKey: "k"})
	require.Error(t, auth.Check("search_memory", "wrong"))
	require.NoError(t, auth.Check("search_memory", "k"))
}

func TestRateLimiterMainWindow(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 3, BurstPerTenSec: 100, IdleTTL: time.Minute})
	base := time.Now()

	for i := 0; i < 3; i++ {
		require.NoError(t, rl.Allow("client-a", base.Add(time.Duration(i)*time.Millisecond)))
	}
	err := rl.Allow("client-a", base.Add(4*time.Millisecond))
	require.Equal(t, graphtypes.KindRateLimited, graphtypes.KindOf(err))
}

func TestRateLimiterBurstWindow(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 1000, BurstPerTenSec: 2, IdleTTL: time.Minute})
	base := time.Now()

	require.NoError(t, rl.Allow("c", base))
	require.NoError(t, rl.Allow("c", base.Add(time.Millisecond)))
	err := rl.Allow("c", base.Add(2*time.Millisecond))
	require.Equal(t, graphtypes.KindRateLimited, graphtypes.KindOf(err))
}

func TestRateLimiterCleanupDropsIdleClients(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 10, BurstPerTenSec: 10, IdleTTL: time.Minute})
	base := time.Now()
	require.NoError(t, rl.Allow("idle-client", base))
	require.Equal(t, 1, rl.ClientCount())

	removed := rl.Cleanup(base.Add(2 * time.Minute))
	require.Equal(t, 1, removed)
	require.Equal(t, 0, rl.ClientCount())
}

func TestRetryTransientRetriesOnlyTransientKind(t *testing.T) {
	attempts := 0
	err := RetryTransient(context.Background(), 3, func() error {
		attempts++
		if attempts < 3 {
			return graphtypes.New(graphtypes.KindStorageTransient, "blip")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)

	attempts = 0
	err = RetryTransient(context.Background(), 3, func() error {
		attempts++
		return graphtypes.New(graphtypes.KindConflict, "dup")
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}
