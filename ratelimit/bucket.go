package ratelimit

import (
	"sync"
	"time"
)

// bucket is one (caller, resource) token bucket. All fields are guarded
// by mu; refill is folded into every access so the bucket needs no
// timer of its own.
type bucket struct {
	caller        string
	resource      string
	tokens        float64
	maxTokens     float64
	baselineMax   float64
	refillPerSec  float64
	priority      Priority
	successStreak int
	lastRefill    time.Time
	lastAccess    time.Time
	mu            sync.Mutex
}

// refillLocked advances the bucket to now. Refill is monotonic: a clock
// that appears to run backwards adds nothing.
func (b *bucket) refillLocked(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = min(b.maxTokens, b.tokens+elapsed*b.refillPerSec)
		b.lastRefill = now
	}
	b.lastAccess = now
}

// cost returns the token cost of a request for the bucket's priority.
func (b *bucket) cost(requested float64) float64 {
	return requested / b.priority.Multiplier()
}

// grow applies one adaptive growth step, capped at twice the baseline.
func (b *bucket) growLocked() {
	b.maxTokens = min(b.baselineMax*maxAdaptiveGrowth, b.maxTokens*DefaultGrowthFactor)
}

// shrink applies the adaptive failure penalty, floored at the minimum
// capacity, and clamps the balance to the new ceiling.
func (b *bucket) shrinkLocked() {
	b.maxTokens = max(minAdaptiveCapacity, b.maxTokens*DefaultShrinkFactor)
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
}

// BucketStats is a point-in-time snapshot of one bucket.
type BucketStats struct {
	Caller       string    `json:"caller"`
	Resource     string    `json:"resource"`
	Tokens       float64   `json:"tokens"`
	MaxTokens    float64   `json:"max_tokens"`
	RefillPerSec float64   `json:"refill_per_sec"`
	Priority     string    `json:"priority"`
	LastAccess   time.Time `json:"last_access"`
}

func (b *bucket) snapshotLocked() BucketStats {
	return BucketStats{
		Caller:       b.caller,
		Resource:     b.resource,
		Tokens:       b.tokens,
		MaxTokens:    b.maxTokens,
		RefillPerSec: b.refillPerSec,
		Priority:     b.priority.String(),
		LastAccess:   b.lastAccess,
	}
}
