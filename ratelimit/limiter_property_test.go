package ratelimit

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestLimiter_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	// Property 1: the balance never exceeds capacity, whatever the
	// sequence of acquisitions and clock advances.
	properties.Property("tokens never exceed max", prop.ForAll(
		func(maxTokens float64, costs []float64, advanceMS int64) bool {
			clock := newFakeClock()
			limiter := NewLimiter(
				Config{MaxTokens: maxTokens, RefillPerSec: 5},
				nil,
				WithClock(clock.Now),
			)

			for _, cost := range costs {
				limiter.Acquire("c", "r", cost)
				clock.Advance(time.Duration(advanceMS) * time.Millisecond)
			}
			clock.Advance(time.Hour)

			stats, ok := limiter.GetStats("c", "r")
			if !ok {
				return len(costs) == 0
			}
			return stats.Tokens <= stats.MaxTokens+1e-9 && stats.Tokens >= 0
		},
		gen.Float64Range(1, 500),
		gen.SliceOf(gen.Float64Range(0, 50)),
		gen.Int64Range(0, 2000),
	))

	// Property 2: a rejected acquire leaves the balance unchanged.
	properties.Property("rejection mutates nothing", prop.ForAll(
		func(maxTokens, over float64) bool {
			clock := newFakeClock()
			limiter := NewLimiter(
				Config{MaxTokens: maxTokens, RefillPerSec: 0.0001},
				nil,
				WithClock(clock.Now),
			)

			before := limiter.CheckAvailable("c", "r", 0).Remaining
			d := limiter.Acquire("c", "r", maxTokens+over)
			after := limiter.CheckAvailable("c", "r", 0).Remaining

			return d.Status == StatusRateLimited && before == after
		},
		gen.Float64Range(1, 100),
		gen.Float64Range(1, 100),
	))

	// Property 3: grants are conserved; you can never spend more than
	// capacity from a cold start with negligible refill.
	properties.Property("cannot overspend capacity", prop.ForAll(
		func(maxTokens float64, attempts int) bool {
			clock := newFakeClock()
			limiter := NewLimiter(
				Config{MaxTokens: maxTokens, RefillPerSec: 0.0001},
				nil,
				WithClock(clock.Now),
			)

			spent := 0.0
			for i := 0; i < attempts; i++ {
				if limiter.Acquire("c", "r", 1).Allowed() {
					spent++
				}
			}
			return spent <= maxTokens+1e-9
		},
		gen.Float64Range(1, 50),
		gen.IntRange(0, 200),
	))

	properties.TestingRun(t)
}
