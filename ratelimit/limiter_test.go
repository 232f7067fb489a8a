package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steerd/steer/health"
)

// fakeClock is a manually-advanced time source.
type fakeClock struct {
	now time.Time
	mu  sync.Mutex
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(cfg Config) (*Limiter, *fakeClock) {
	clock := newFakeClock()
	return NewLimiter(cfg, nil, WithClock(clock.Now)), clock
}

func TestLimiter_BucketExhaustionAndRefill(t *testing.T) {
	t.Parallel()

	limiter, clock := newTestLimiter(Config{MaxTokens: 10, RefillPerSec: 1})

	for i := 0; i < 10; i++ {
		d := limiter.Acquire("caller", "res", 1)
		require.Equal(t, StatusOK, d.Status, "acquire %d", i+1)
	}

	d := limiter.Acquire("caller", "res", 1)
	assert.Equal(t, StatusRateLimited, d.Status)
	assert.InDelta(t, time.Second.Seconds(), d.RetryAfter.Seconds(), 0.01)

	clock.Advance(time.Second)
	d = limiter.Acquire("caller", "res", 1)
	assert.Equal(t, StatusOK, d.Status)
}

func TestLimiter_RejectionDoesNotConsume(t *testing.T) {
	t.Parallel()

	limiter, _ := newTestLimiter(Config{MaxTokens: 5, RefillPerSec: 1})

	require.Equal(t, StatusOK, limiter.Acquire("caller", "res", 3).Status)

	// 3 > 2 remaining: rejected, balance untouched.
	d := limiter.Acquire("caller", "res", 3)
	require.Equal(t, StatusRateLimited, d.Status)
	assert.InDelta(t, 2.0, d.Remaining, 1e-9)

	// The 2 remaining tokens are still spendable.
	assert.Equal(t, StatusOK, limiter.Acquire("caller", "res", 2).Status)
}

func TestLimiter_CheckAvailableIsDryRun(t *testing.T) {
	t.Parallel()

	limiter, _ := newTestLimiter(Config{MaxTokens: 5, RefillPerSec: 1})

	for i := 0; i < 10; i++ {
		d := limiter.CheckAvailable("caller", "res", 2)
		require.Equal(t, StatusOK, d.Status)
		assert.InDelta(t, 5.0, d.Remaining, 1e-9, "dry run must not deduct")
	}
}

func TestLimiter_TokensNeverExceedCap(t *testing.T) {
	t.Parallel()

	limiter, clock := newTestLimiter(Config{MaxTokens: 10, RefillPerSec: 100})

	require.Equal(t, StatusOK, limiter.Acquire("caller", "res", 4).Status)
	clock.Advance(time.Hour)

	stats, ok := limiter.GetStats("caller", "res")
	require.True(t, ok)
	assert.InDelta(t, 10.0, stats.Tokens, 1e-9, "refill must cap at max")
}

func TestLimiter_PriorityScalesCost(t *testing.T) {
	t.Parallel()

	limiter, _ := newTestLimiter(Config{MaxTokens: 10, RefillPerSec: 0.001})

	// Materialize the buckets, then move the callers to their tiers.
	require.Equal(t, StatusOK, limiter.Acquire("vip", "res", 0).Status)
	require.Equal(t, StatusOK, limiter.Acquire("bulk", "res", 0).Status)
	limiter.SetPriority("vip", PriorityHigh)
	limiter.SetPriority("bulk", PriorityLow)

	// High priority pays 0.5 tokens per unit: 20 units fit in 10 tokens.
	granted := 0
	for i := 0; i < 30; i++ {
		if limiter.Acquire("vip", "res", 1).Allowed() {
			granted++
		}
	}
	assert.Equal(t, 20, granted, "high priority should stretch the bucket 2x")

	// Low priority pays 2 tokens per unit: 5 units fit.
	granted = 0
	for i := 0; i < 30; i++ {
		if limiter.Acquire("bulk", "res", 1).Allowed() {
			granted++
		}
	}
	assert.Equal(t, 5, granted, "low priority should halve the bucket")
}

func TestLimiter_CircuitOpenRejectsImmediately(t *testing.T) {
	t.Parallel()

	limiter, _ := newTestLimiter(Config{
		MaxTokens:    10,
		RefillPerSec: 1,
		Breaker:      health.Config{FailureThreshold: 3, RecoveryTimeout: time.Hour},
	})

	for i := 0; i < 3; i++ {
		limiter.RecordOutcome("caller", "res", false)
	}

	d := limiter.Acquire("caller", "res", 1)
	assert.Equal(t, StatusCircuitOpen, d.Status)
	assert.ErrorIs(t, d.Err(), ErrCircuitOpen)

	// Other resources are unaffected.
	assert.Equal(t, StatusOK, limiter.Acquire("caller", "other", 1).Status)
}

func TestLimiter_AdaptiveGrowthAndShrink(t *testing.T) {
	t.Parallel()

	limiter, _ := newTestLimiter(Config{
		MaxTokens:    100,
		RefillPerSec: 1,
		Adaptive:     true,
		GrowthStreak: 5,
	})

	require.Equal(t, StatusOK, limiter.Acquire("caller", "res", 0).Status)

	for i := 0; i < 5; i++ {
		limiter.RecordOutcome("caller", "res", true)
	}
	stats, _ := limiter.GetStats("caller", "res")
	assert.InDelta(t, 110.0, stats.MaxTokens, 1e-9, "5 successes should grow capacity 10%")

	limiter.RecordOutcome("caller", "res", false)
	stats, _ = limiter.GetStats("caller", "res")
	assert.InDelta(t, 88.0, stats.MaxTokens, 1e-9, "failure should shrink capacity 20%")
}

func TestLimiter_AdaptiveBounds(t *testing.T) {
	t.Parallel()

	limiter, _ := newTestLimiter(Config{
		MaxTokens:    100,
		RefillPerSec: 1,
		Adaptive:     true,
		GrowthStreak: 1,
	})
	require.Equal(t, StatusOK, limiter.Acquire("caller", "res", 0).Status)

	// Growth saturates at 2x baseline.
	for i := 0; i < 100; i++ {
		limiter.RecordOutcome("caller", "res", true)
	}
	stats, _ := limiter.GetStats("caller", "res")
	assert.LessOrEqual(t, stats.MaxTokens, 200.0)
	assert.InDelta(t, 200.0, stats.MaxTokens, 1e-6)

	// Shrink floors at 1 token, never zero.
	for i := 0; i < 100; i++ {
		limiter.RecordOutcome("caller", "res", false)
	}
	stats, _ = limiter.GetStats("caller", "res")
	assert.GreaterOrEqual(t, stats.MaxTokens, 1.0)
	assert.InDelta(t, 1.0, stats.MaxTokens, 1e-6)
}

func TestLimiter_RecentlyLimited(t *testing.T) {
	t.Parallel()

	limiter, clock := newTestLimiter(Config{MaxTokens: 1, RefillPerSec: 0.001})

	assert.False(t, limiter.RecentlyLimited("res", time.Minute))

	require.Equal(t, StatusOK, limiter.Acquire("caller", "res", 1).Status)
	require.Equal(t, StatusRateLimited, limiter.Acquire("caller", "res", 1).Status)
	assert.True(t, limiter.RecentlyLimited("res", time.Minute))

	clock.Advance(2 * time.Minute)
	assert.False(t, limiter.RecentlyLimited("res", time.Minute))
}

func TestLimiter_ResetRestoresBaseline(t *testing.T) {
	t.Parallel()

	limiter, _ := newTestLimiter(Config{MaxTokens: 5, RefillPerSec: 0.001})

	require.Equal(t, StatusOK, limiter.Acquire("caller", "res", 5).Status)
	require.Equal(t, StatusRateLimited, limiter.Acquire("caller", "res", 1).Status)

	limiter.Reset("caller", "res")
	assert.Equal(t, StatusOK, limiter.Acquire("caller", "res", 5).Status)
}

func TestLimiter_SweepEvictsIdleBuckets(t *testing.T) {
	t.Parallel()

	limiter, clock := newTestLimiter(Config{
		MaxTokens:    10,
		RefillPerSec: 1,
		IdleWindow:   time.Hour,
	})

	limiter.Acquire("old", "res", 1)
	clock.Advance(2 * time.Hour)
	limiter.Acquire("fresh", "res", 1)

	limiter.Sweep()

	assert.Equal(t, 1, limiter.BucketCount())
	_, ok := limiter.GetStats("old", "res")
	assert.False(t, ok, "idle bucket should be evicted")
	_, ok = limiter.GetStats("fresh", "res")
	assert.True(t, ok, "fresh bucket should survive")
}

func TestLimiter_StartStop(t *testing.T) {
	t.Parallel()

	limiter, _ := newTestLimiter(Config{SweepInterval: 10 * time.Millisecond})
	limiter.Start()
	limiter.Stop() // must not hang or panic
}

func TestLimiter_ConcurrentAcquire(t *testing.T) {
	t.Parallel()

	limiter, _ := newTestLimiter(Config{MaxTokens: 1000, RefillPerSec: 0.001})

	var wg sync.WaitGroup
	granted := make([]int, 8)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if limiter.Acquire("caller", "res", 1).Allowed() {
					granted[g]++
				}
			}
		}(g)
	}
	wg.Wait()

	total := 0
	for _, n := range granted {
		total += n
	}
	// 1600 attempts against 1000 tokens: exactly 1000 grants, no lost
	// updates in either direction.
	assert.Equal(t, 1000, total)
}
